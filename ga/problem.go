package ga

import (
	"context"

	"github.com/pkg/errors"

	"github.com/openfluke/strand/gpu"
)

// Problem assigns a fitness to each of count solution vectors. solutions
// holds count*VectorLength floats, results receives count floats. Evaluate
// may leave work queued; the orchestrator's next readback observes it.
type Problem interface {
	Evaluate(ctx context.Context, g *GA, solutions, results *gpu.Buffer, count int) error
}

// KernelProblem evaluates fitness on the device. The kernel's binding layout
// must start with the solutions buffer and the results buffer, followed by
// the Extra buffers; it is dispatched with one grid cell per solution.
type KernelProblem struct {
	Source gpu.KernelSource
	Extra  []*gpu.Buffer
}

func (p *KernelProblem) Evaluate(_ context.Context, g *GA, solutions, results *gpu.Buffer, count int) error {
	kernel, err := g.Context().Compile(p.Source)
	if err != nil {
		return err
	}
	buffers := append([]*gpu.Buffer{solutions, results}, p.Extra...)
	bind, err := kernel.Bind(buffers...)
	if err != nil {
		return err
	}
	_, err = g.Context().Submit(gpu.Compute(bind, gpu.Grid(count)))
	return err
}

// CPUProblem evaluates fitness on the host: it reads the solution vectors
// back, calls Func, and uploads the results. Every generation crosses the
// bus twice, so this is for problems with no kernel formulation and for
// tests, not for throughput.
type CPUProblem struct {
	// Func receives count*vectorLength floats and returns count results.
	Func func(solutions []float32, count, vectorLength int) []float32

	reader *gpu.Buffer
}

func (p *CPUProblem) Evaluate(ctx context.Context, g *GA, solutions, results *gpu.Buffer, count int) error {
	o := g.Options()
	if p.reader == nil {
		maxRows := max(o.PopulationSize, o.GenerationSize)
		reader, err := g.Context().CreateBuffer("ga:cpu-problem", gpu.Readback, maxRows*o.VectorLength, 4)
		if err != nil {
			return err
		}
		p.reader = reader
	}

	values, err := gpu.ReadValues[float32](ctx, p.reader, solutions, 0, count*o.VectorLength)
	if err != nil {
		return err
	}
	out := p.Func(values, count, o.VectorLength)
	if len(out) != count {
		return errors.Errorf("ga: problem returned %d results for %d solutions", len(out), count)
	}
	return results.WriteAt(0, gpu.ToBytes(out))
}

// Close releases the readback buffer. Problems are caller-owned, so the GA
// does not call this; close the problem with the run that sized it.
func (p *CPUProblem) Close() {
	if p.reader != nil {
		p.reader.Destroy()
		p.reader = nil
	}
}
