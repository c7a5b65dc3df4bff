package ga

import (
	"context"

	"github.com/openfluke/strand/gpu"
)

// Data owns the device buffers of a run. All float buffers are element-strided
// (4 bytes); row arithmetic uses Options.VectorLength at the call site.
type Data struct {
	// Population holds PopulationSize solution vectors back to back.
	Population *gpu.Buffer
	// Next holds the GenerationSize offspring vectors of the current generation.
	Next *gpu.Buffer
	// Parents holds ParentsCount population indexes per offspring, as u32.
	Parents *gpu.Buffer
	// Results holds one fitness value per evaluated solution.
	Results *gpu.Buffer
	// Reader is the shared staging buffer for host readbacks.
	Reader *gpu.Buffer

	individuals []Individual
}

func newData(ctx *gpu.Context, o Options) (*Data, error) {
	d := &Data{}
	var err error

	create := func(label string, capability gpu.Capability, count int) *gpu.Buffer {
		if err != nil {
			return nil
		}
		var b *gpu.Buffer
		b, err = ctx.CreateBuffer(label, capability, count, 4)
		return b
	}

	resultsCount := max(o.PopulationSize, o.GenerationSize)
	d.Population = create("ga:population", gpu.StorageReadWrite, o.PopulationSize*o.VectorLength)
	d.Next = create("ga:next", gpu.StorageReadWrite, o.GenerationSize*o.VectorLength)
	d.Parents = create("ga:parents", gpu.StorageRead, o.GenerationSize*o.ParentsCount)
	d.Results = create("ga:results", gpu.StorageReadWrite, resultsCount)
	d.Reader = create("ga:reader", gpu.Readback,
		max(o.GenerationSize*o.ParentsCount, resultsCount, o.VectorLength))
	if err != nil {
		d.destroy()
		return nil, err
	}
	d.individuals = make([]Individual, 0, o.PopulationSize)
	return d, nil
}

func (d *Data) destroy() {
	for _, b := range []*gpu.Buffer{d.Population, d.Next, d.Parents, d.Results, d.Reader} {
		if b != nil {
			b.Destroy()
		}
	}
}

// readGeneration reads the offspring lineage and fitness back from the device
// and materializes them as individuals of the current generation.
func (d *Data) readGeneration(ctx context.Context, g *GA) ([]Individual, error) {
	o := g.opts

	rawParents, err := d.Reader.Read(ctx, d.Parents, 0, o.GenerationSize*o.ParentsCount)
	if err != nil {
		return nil, err
	}
	parents := gpu.FromBytes[uint32](rawParents)

	results, err := gpu.ReadValues[float32](ctx, d.Reader, d.Results, 0, o.GenerationSize)
	if err != nil {
		return nil, err
	}

	individuals := make([]Individual, o.GenerationSize)
	for i, result := range results {
		lineage := make([]int, o.ParentsCount)
		for p := range lineage {
			lineage[p] = int(parents[i*o.ParentsCount+p])
		}
		individuals[i] = Individual{
			ID:         g.nextID + i,
			Generation: g.generationIndex,
			Parents:    lineage,
			Result:     result,
		}
	}
	return individuals, nil
}

type replacement struct {
	index      int
	individual Individual
}

// updatePopulation copies surviving offspring vectors from the next buffer
// into their population slots, one copy pass per replacement in a single
// submission, and updates the host-side records. The offspring's slot in the
// next buffer follows from its ID: the initial generation consumed
// PopulationSize IDs, every later one GenerationSize.
func (d *Data) updatePopulation(g *GA, replacements []replacement) error {
	if len(replacements) == 0 {
		return nil
	}
	o := g.opts

	passes := make([]gpu.Pass, 0, len(replacements))
	for _, r := range replacements {
		nextIndex := (r.individual.ID - o.PopulationSize) % o.GenerationSize
		passes = append(passes, gpu.Copy(d.Next, nextIndex*o.VectorLength, d.Population, r.index*o.VectorLength, o.VectorLength))
		d.individuals[r.index] = r.individual
	}
	_, err := g.gpu.Submit(passes...)
	return err
}

// readIndividual reads one solution vector out of the population buffer.
func (d *Data) readIndividual(ctx context.Context, g *GA, index int) ([]float32, error) {
	return gpu.ReadValues[float32](ctx, d.Reader, d.Population, index*g.opts.VectorLength, g.opts.VectorLength)
}

// best returns the population index of the best individual. On equal results
// the earlier index wins.
func (d *Data) best(direction Direction) (int, bool) {
	if len(d.individuals) == 0 {
		return 0, false
	}
	best := 0
	for i := 1; i < len(d.individuals); i++ {
		if direction.Better(d.individuals[i].Result, d.individuals[best].Result) {
			best = i
		}
	}
	return best, true
}
