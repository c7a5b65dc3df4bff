package ga

import (
	"context"

	"github.com/openfluke/strand/gpu"
)

// RandomMutation resets a random subset of offspring genes to fresh uniform
// draws from [MinValue, MaxValue). The number of mutated genes is binomial:
// each of the GenerationSize*VectorLength genes mutates with Probability,
// and the mutated positions are distinct.
type RandomMutation struct {
	Probability float32
}

func (m RandomMutation) Apply(_ context.Context, g *GA) error {
	o := g.Options()
	n := o.GenerationSize * o.VectorLength

	count := 0
	for i := 0; i < n; i++ {
		if g.Rand().Float64() < float64(m.Probability) {
			count++
		}
	}
	if count == 0 {
		return nil
	}

	next := g.Data().Next
	for _, index := range g.Rand().Perm(n)[:count] {
		value := []float32{g.uniform(o.MinValue, o.MaxValue)}
		if err := next.WriteAt(uint64(index)*4, gpu.ToBytes(value)); err != nil {
			return err
		}
	}
	return nil
}
