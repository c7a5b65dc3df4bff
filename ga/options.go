package ga

import "github.com/pkg/errors"

// Options configure a genetic algorithm run. All sizes are in elements, not
// bytes; buffer dimensions are derived from them once at creation.
type Options struct {
	// Direction of optimization.
	Direction Direction
	// PopulationSize is the number of individuals kept between generations.
	PopulationSize int
	// GenerationSize is the number of offspring produced per generation.
	GenerationSize int
	// ParentsCount is the number of parents drawn per offspring.
	ParentsCount int
	// VectorLength is the solution vector length of every individual.
	VectorLength int
	// MinValue and MaxValue bound every solution vector component.
	MinValue, MaxValue float32
	// Seed fixes the host random stream; 0 draws a seed from the clock.
	Seed int64
}

func (o Options) validate() error {
	switch {
	case o.PopulationSize <= 0:
		return errors.Errorf("ga: population size %d", o.PopulationSize)
	case o.GenerationSize <= 0:
		return errors.Errorf("ga: generation size %d", o.GenerationSize)
	case o.ParentsCount < 2:
		return errors.Errorf("ga: parents count %d, need at least 2", o.ParentsCount)
	case o.VectorLength <= 0:
		return errors.Errorf("ga: vector length %d", o.VectorLength)
	case o.MinValue >= o.MaxValue:
		return errors.Errorf("ga: value bounds [%g, %g]", o.MinValue, o.MaxValue)
	}
	return nil
}
