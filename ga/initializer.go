package ga

import (
	"context"

	"github.com/openfluke/strand/gpu"
)

// RandomInit fills the whole population with vectors drawn uniformly from
// [MinValue, MaxValue).
type RandomInit struct{}

func (RandomInit) Apply(_ context.Context, g *GA) error {
	o := g.Options()
	values := make([]float32, o.PopulationSize*o.VectorLength)
	for i := range values {
		values[i] = g.uniform(o.MinValue, o.MaxValue)
	}
	return g.Data().Population.Write(gpu.ToBytes(values))
}
