package pn

import (
	"context"

	"github.com/pkg/errors"

	"github.com/openfluke/strand/gpu"
)

// Solution is one trained permutation neuron: the learned vectors plus the
// label tallies its training run produced per permutation code. It marshals
// to JSON for persistence.
type Solution struct {
	VectorsCount int       `json:"vectors_count"`
	OutputsCount int       `json:"outputs_count"`
	Vectors      []float32 `json:"vectors"`
	// Permutations holds the nonzero training tallies, keyed by
	// code*OutputsCount+label. Sparse: most codes never occur.
	Permutations map[int]uint32 `json:"permutations"`
	// Result is the number of training examples classified correctly.
	Result int `json:"result"`
}

// Solution evaluates one vector set against the problem's training data and
// captures the resulting classifier.
func (p *PNP) Solution(ctx context.Context, vectors []float32) (*Solution, error) {
	if len(vectors) != p.VectorsCount*p.VectorLength {
		return nil, errors.Errorf("pn: %d vector floats, want %d*%d", len(vectors), p.VectorsCount, p.VectorLength)
	}

	solutions, err := gpu.CreateBufferInit(p.ctx, "pn:solution", gpu.StorageRead, vectors)
	if err != nil {
		return nil, err
	}
	defer solutions.Destroy()
	results, err := p.ctx.CreateBuffer("pn:solution-result", gpu.StorageReadWrite, 1, 4)
	if err != nil {
		return nil, err
	}
	defer results.Destroy()

	if err := p.run(solutions, results, 1); err != nil {
		return nil, err
	}

	talliesSize := p.PermutationsCount * p.OutputsCount
	reader, err := p.ctx.CreateBuffer("pn:solution-reader", gpu.Readback, talliesSize, 4)
	if err != nil {
		return nil, err
	}
	defer reader.Destroy()

	tallies, err := gpu.ReadValues[uint32](ctx, reader, p.scratch.tallies, 0, talliesSize)
	if err != nil {
		return nil, err
	}
	result, err := gpu.ReadValues[float32](ctx, reader, results, 0, 1)
	if err != nil {
		return nil, err
	}

	permutations := make(map[int]uint32)
	for i, tally := range tallies {
		if tally != 0 {
			permutations[i] = tally
		}
	}
	return &Solution{
		VectorsCount: p.VectorsCount,
		OutputsCount: p.OutputsCount,
		Vectors:      vectors,
		Permutations: permutations,
		Result:       int(result[0]),
	}, nil
}

// AssignedLabels derives the per-code label table from the training tallies:
// for every permutation code, the label with the highest tally, scanning
// labels in ascending order and keeping the first maximum.
func (s *Solution) AssignedLabels(permutationsCount int) []uint32 {
	assigned := make([]uint32, permutationsCount)
	for code := 0; code < permutationsCount; code++ {
		best, bestCount := uint32(0), s.Permutations[code*s.OutputsCount]
		for label := 1; label < s.OutputsCount; label++ {
			if count := s.Permutations[code*s.OutputsCount+label]; count > bestCount {
				best, bestCount = uint32(label), count
			}
		}
		assigned[code] = best
	}
	return assigned
}

// Test scores a trained solution against this problem's examples using the
// label table fixed at training time. This is how a solution trained on one
// dataset is validated against another.
func (p *PNP) Test(ctx context.Context, s *Solution) (int, error) {
	if s.VectorsCount != p.VectorsCount || s.OutputsCount != p.OutputsCount {
		return 0, errors.Errorf("pn: solution shape %dx%d against problem %dx%d",
			s.VectorsCount, s.OutputsCount, p.VectorsCount, p.OutputsCount)
	}

	solutions, err := gpu.CreateBufferInit(p.ctx, "pn:test-solution", gpu.StorageRead, s.Vectors)
	if err != nil {
		return 0, err
	}
	defer solutions.Destroy()
	assigned, err := gpu.CreateBufferInit(p.ctx, "pn:test-assigned", gpu.StorageRead, s.AssignedLabels(p.PermutationsCount))
	if err != nil {
		return 0, err
	}
	defer assigned.Destroy()
	results, err := p.ctx.CreateBuffer("pn:test-result", gpu.StorageReadWrite, 1, 4)
	if err != nil {
		return 0, err
	}
	defer results.Destroy()

	scr, err := p.ensureScratch(1)
	if err != nil {
		return 0, err
	}
	multiply, err := p.ctx.Compile(multiplySource())
	if err != nil {
		return 0, err
	}
	permutations, err := p.ctx.Compile(permutationsSource())
	if err != nil {
		return 0, err
	}
	test, err := p.ctx.Compile(testSource())
	if err != nil {
		return 0, err
	}

	multiplyBind, err := multiply.Bind(scr.options, p.examples, solutions, scr.products)
	if err != nil {
		return 0, err
	}
	permutationsBind, err := permutations.Bind(scr.options, scr.products, scr.codes)
	if err != nil {
		return 0, err
	}
	testBind, err := test.Bind(scr.options, p.labels, scr.codes, assigned, results)
	if err != nil {
		return 0, err
	}

	_, err = p.ctx.Submit(
		gpu.Compute(multiplyBind, gpu.Grid(p.ExamplesCount, p.VectorsCount)),
		gpu.Compute(permutationsBind, gpu.Grid(1, p.ExamplesCount)),
		gpu.Compute(testBind, gpu.Grid(1)),
	)
	if err != nil {
		return 0, err
	}

	reader, err := p.ctx.CreateBuffer("pn:test-reader", gpu.Readback, 1, 4)
	if err != nil {
		return 0, err
	}
	defer reader.Destroy()
	result, err := gpu.ReadValues[float32](ctx, reader, results, 0, 1)
	if err != nil {
		return 0, err
	}
	return int(result[0]), nil
}
