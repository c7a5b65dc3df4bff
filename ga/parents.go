package ga

import (
	"context"

	"github.com/openfluke/strand/gpu"
)

// RandomParents draws ParentsCount population indexes per offspring, uniformly
// over the whole population, and uploads them for the crossover kernel.
// Parents are drawn with replacement; an offspring may repeat a parent.
type RandomParents struct{}

func (RandomParents) Apply(_ context.Context, g *GA) error {
	o := g.Options()
	picks := make([]uint32, o.GenerationSize*o.ParentsCount)
	for i := range picks {
		picks[i] = uint32(g.Rand().Intn(o.PopulationSize))
	}
	return g.Data().Parents.Write(gpu.ToBytes(picks))
}
