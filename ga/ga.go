// Package ga runs a genetic algorithm whose population lives in device
// memory. The host orchestrates: it draws parents and mutations, schedules
// the crossover and fitness kernels, and reads only lineage and fitness back
// each generation. Solution vectors cross the bus just twice per survivor, on
// creation and on an explicit best-value read.
package ga

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/openfluke/strand/gpu"
)

// Operator is one stage of the generation pipeline. Stages run in a fixed
// order: parents, crossover, mutation, problem, selector. An operator may
// write host data into buffers, submit kernel dispatches, or both; it must
// not retain buffers beyond the call.
type Operator interface {
	Apply(ctx context.Context, g *GA) error
}

// GA is a genetic algorithm bound to one gpu context. Configure the operator
// fields after New and before the first Generation call. Parents and Selector
// default to RandomParents and TruncationSelector; Initializer, Crossover and
// Problem have no default. Mutation may stay nil to disable mutation.
type GA struct {
	Initializer Operator
	Parents     Operator
	Crossover   Operator
	Mutation    Operator
	Problem     Problem
	Selector    Operator

	gpu  *gpu.Context
	opts Options
	rng  *rand.Rand
	data *Data

	nextID          int
	generationIndex int
	initialized     bool
}

// New validates the options and allocates the run's device buffers.
func New(ctx *gpu.Context, opts Options) (*GA, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	data, err := newData(ctx, opts)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &GA{
		Parents:  RandomParents{},
		Selector: TruncationSelector{},
		gpu:      ctx,
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
		data:     data,
	}, nil
}

// Options returns the run configuration.
func (g *GA) Options() Options { return g.opts }

// Data returns the run's device buffers, for operators and tests.
func (g *GA) Data() *Data { return g.data }

// Context returns the gpu context the run is bound to.
func (g *GA) Context() *gpu.Context { return g.gpu }

// Rand returns the host random stream. Operators draw from it so a fixed
// Options.Seed reproduces a run on the software backend.
func (g *GA) Rand() *rand.Rand { return g.rng }

// GenerationIndex returns the number of completed generations.
func (g *GA) GenerationIndex() int { return g.generationIndex }

// Individuals returns the host-side records of the current population.
func (g *GA) Individuals() []Individual { return g.data.individuals }

// Generation advances the run by one generation: the first call initializes
// and evaluates the population, every later call breeds, evaluates and
// selects one batch of offspring.
func (g *GA) Generation(ctx context.Context) error {
	if err := g.configured(); err != nil {
		return err
	}
	if !g.initialized {
		return g.generationInit(ctx)
	}
	return g.generationNext(ctx)
}

// Run calls Generation until f returns false or an error occurs. f receives
// the 1-based count of completed generations.
func (g *GA) Run(ctx context.Context, f func(g *GA, generation int) (bool, error)) error {
	for i := 1; ; i++ {
		if err := g.Generation(ctx); err != nil {
			return err
		}
		cont, err := f(g, i)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// Best returns the record of the best individual in the population. ok is
// false before the first generation.
func (g *GA) Best() (best Individual, ok bool) {
	index, ok := g.data.best(g.opts.Direction)
	if !ok {
		return Individual{}, false
	}
	return g.data.individuals[index], true
}

// BestValue reads the best individual's solution vector back from the device.
func (g *GA) BestValue(ctx context.Context) ([]float32, error) {
	index, ok := g.data.best(g.opts.Direction)
	if !ok {
		return nil, errors.New("ga: no generation has run")
	}
	return g.data.readIndividual(ctx, g, index)
}

// Close releases the run's device buffers, including buffers owned by the
// pipeline operators. The Problem is not closed: problems own training data
// and may be shared across runs.
func (g *GA) Close() {
	for _, op := range []Operator{g.Initializer, g.Parents, g.Crossover, g.Mutation, g.Selector} {
		if c, ok := op.(interface{ Close() }); ok {
			c.Close()
		}
	}
	g.data.destroy()
}

func (g *GA) configured() error {
	switch {
	case g.Initializer == nil:
		return errors.New("ga: no initializer configured")
	case g.Crossover == nil:
		return errors.New("ga: no crossover configured")
	case g.Problem == nil:
		return errors.New("ga: no problem configured")
	case g.Parents == nil:
		return errors.New("ga: no parents selector configured")
	case g.Selector == nil:
		return errors.New("ga: no selector configured")
	}
	return nil
}

func (g *GA) generationInit(ctx context.Context) error {
	o := g.opts
	if err := g.Initializer.Apply(ctx, g); err != nil {
		return err
	}
	if err := g.Problem.Evaluate(ctx, g, g.data.Population, g.data.Results, o.PopulationSize); err != nil {
		return err
	}
	results, err := gpu.ReadValues[float32](ctx, g.data.Reader, g.data.Results, 0, o.PopulationSize)
	if err != nil {
		return err
	}

	g.data.individuals = g.data.individuals[:0]
	for i, result := range results {
		g.data.individuals = append(g.data.individuals, Individual{
			ID:     g.nextID + i,
			Result: result,
		})
	}
	g.nextID += o.PopulationSize
	g.generationIndex++
	g.initialized = true

	best, _ := g.Best()
	klog.V(1).Infof("ga: initialized population of %d, best %g", o.PopulationSize, best.Result)
	return nil
}

func (g *GA) generationNext(ctx context.Context) error {
	if err := g.Parents.Apply(ctx, g); err != nil {
		return err
	}
	if err := g.Crossover.Apply(ctx, g); err != nil {
		return err
	}
	if g.Mutation != nil {
		if err := g.Mutation.Apply(ctx, g); err != nil {
			return err
		}
	}
	if err := g.Problem.Evaluate(ctx, g, g.data.Next, g.data.Results, g.opts.GenerationSize); err != nil {
		return err
	}
	if err := g.Selector.Apply(ctx, g); err != nil {
		return err
	}

	g.generationIndex++
	g.nextID += g.opts.GenerationSize

	if klog.V(2).Enabled() {
		best, _ := g.Best()
		klog.Infof("ga: generation %d, best %g (id %d)", g.generationIndex, best.Result, best.ID)
	}
	return nil
}

// uniform draws one float in [lo, hi).
func (g *GA) uniform(lo, hi float32) float32 {
	return lo + g.rng.Float32()*(hi-lo)
}
