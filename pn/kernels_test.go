package pn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/strand/gpu"
)

func runKernel(t *testing.T, ctx *gpu.Context, src gpu.KernelSource, grid gpu.Extent, buffers ...*gpu.Buffer) {
	t.Helper()
	kernel, err := ctx.Compile(src)
	require.NoError(t, err)
	bind, err := kernel.Bind(buffers...)
	require.NoError(t, err)
	_, err = ctx.Submit(gpu.Compute(bind, grid))
	require.NoError(t, err)
}

func storage[T any](t *testing.T, ctx *gpu.Context, label string, data []T) *gpu.Buffer {
	t.Helper()
	b, err := gpu.CreateBufferInit(ctx, label, gpu.StorageReadWrite, data)
	require.NoError(t, err)
	return b
}

func readBack[T any](t *testing.T, ctx *gpu.Context, src *gpu.Buffer, count int) []T {
	t.Helper()
	staging, err := ctx.CreateBuffer("staging", gpu.Readback, count, 4)
	require.NoError(t, err)
	got, err := gpu.ReadValues[T](context.Background(), staging, src, 0, count)
	require.NoError(t, err)
	return got
}

func uniformOptions(t *testing.T, ctx *gpu.Context, opts pnOptions) *gpu.Buffer {
	t.Helper()
	b, err := gpu.CreateBufferInit(ctx, "options", gpu.Uniform, []pnOptions{opts})
	require.NoError(t, err)
	return b
}

func TestMultiplyKernel(t *testing.T) {
	ctx := gpu.NewSoftwareContext()
	defer ctx.Close()

	t.Run("small", func(t *testing.T) {
		opts := pnOptions{ExamplesCount: 2, VectorLength: 2, VectorsCount: 2, SolutionsCount: 2, OutputsCount: 3, PermutationsCount: 6}
		products := storage(t, ctx, "products", make([]float32, 8))
		runKernel(t, ctx, multiplySource(), gpu.Grid(2, 4),
			uniformOptions(t, ctx, opts),
			storage(t, ctx, "examples", []float32{1, 2, 7, 8}),
			storage(t, ctx, "vectors", []float32{3, 4, 5, 6, 10, 20, 30, 40}),
			products,
		)
		assert.Equal(t, []float32{11, 53, 17, 83, 50, 230, 110, 530}, readBack[float32](t, ctx, products, 8))
	})

	t.Run("example", func(t *testing.T) {
		opts := exampleOptions()
		size := int(opts.SolutionsCount * opts.VectorsCount * opts.ExamplesCount)
		products := storage(t, ctx, "products", make([]float32, size))
		runKernel(t, ctx, multiplySource(), gpu.Grid(int(opts.ExamplesCount), int(opts.VectorsCount*opts.SolutionsCount)),
			uniformOptions(t, ctx, opts),
			storage(t, ctx, "examples", exampleExamples()),
			storage(t, ctx, "vectors", exampleVectors()),
			products,
		)
		assert.Equal(t, exampleProducts(), readBack[float32](t, ctx, products, size))
	})
}

func TestPermutationsKernel(t *testing.T) {
	ctx := gpu.NewSoftwareContext()
	defer ctx.Close()

	t.Run("small", func(t *testing.T) {
		opts := pnOptions{ExamplesCount: 2, VectorLength: 2, VectorsCount: 2, SolutionsCount: 2, OutputsCount: 3, PermutationsCount: 6}
		codes := storage(t, ctx, "codes", make([]uint32, 4))
		runKernel(t, ctx, permutationsSource(), gpu.Grid(2, 2),
			uniformOptions(t, ctx, opts),
			storage(t, ctx, "products", []float32{
				1, -1,
				2, 1,
				1, -1,
				-1, -2,
			}),
			codes,
		)
		assert.Equal(t, []uint32{2, 3, 1, 4}, readBack[uint32](t, ctx, codes, 4))
	})

	t.Run("example", func(t *testing.T) {
		opts := exampleOptions()
		size := int(opts.SolutionsCount * opts.ExamplesCount)
		codes := storage(t, ctx, "codes", make([]uint32, size))
		runKernel(t, ctx, permutationsSource(), gpu.Grid(int(opts.SolutionsCount), int(opts.ExamplesCount)),
			uniformOptions(t, ctx, opts),
			storage(t, ctx, "products", exampleProducts()),
			codes,
		)
		assert.Equal(t, exampleCodes(), readBack[uint32](t, ctx, codes, size))
	})
}

func TestResultsKernel(t *testing.T) {
	ctx := gpu.NewSoftwareContext()
	defer ctx.Close()

	opts := exampleOptions()
	talliesSize := int(opts.SolutionsCount * opts.PermutationsCount * opts.OutputsCount)
	results := storage(t, ctx, "results", make([]float32, int(opts.SolutionsCount)))
	runKernel(t, ctx, resultsSource(), gpu.Grid(int(opts.SolutionsCount)),
		uniformOptions(t, ctx, opts),
		storage(t, ctx, "labels", exampleLabels()),
		storage(t, ctx, "codes", exampleCodes()),
		storage(t, ctx, "tallies", make([]uint32, talliesSize)),
		results,
	)
	assert.Equal(t, exampleResults(), readBack[float32](t, ctx, results, int(opts.SolutionsCount)))
}

// A constructed tie: codes map two labels to equal tallies, and the lower
// label index must win.
func TestResultsTieBreak(t *testing.T) {
	ctx := gpu.NewSoftwareContext()
	defer ctx.Close()

	// Eight examples, all the same code, labels evenly split between 0 and 1.
	opts := pnOptions{ExamplesCount: 8, VectorLength: 1, VectorsCount: 1, SolutionsCount: 1, OutputsCount: 2, PermutationsCount: 2}
	results := storage(t, ctx, "results", make([]float32, 1))
	runKernel(t, ctx, resultsSource(), gpu.Grid(1),
		uniformOptions(t, ctx, opts),
		storage(t, ctx, "labels", []uint32{0, 1, 0, 1, 0, 1, 0, 1}),
		storage(t, ctx, "codes", []uint32{0, 0, 0, 0, 0, 0, 0, 0}),
		storage(t, ctx, "tallies", make([]uint32, 4)),
		results,
	)
	// Tally {0: 4, 1: 4} resolves to label 0, matching the four 0-labeled
	// examples.
	assert.Equal(t, []float32{4}, readBack[float32](t, ctx, results, 1))
}

// The results kernel must reset its tally region: a second evaluation over
// the same buffers sees fresh counts, not accumulated ones.
func TestResultsRezeroesTallies(t *testing.T) {
	ctx := gpu.NewSoftwareContext()
	defer ctx.Close()

	opts := exampleOptions()
	talliesSize := int(opts.SolutionsCount * opts.PermutationsCount * opts.OutputsCount)
	tallies := storage(t, ctx, "tallies", make([]uint32, talliesSize))
	results := storage(t, ctx, "results", make([]float32, int(opts.SolutionsCount)))

	for round := 0; round < 2; round++ {
		runKernel(t, ctx, resultsSource(), gpu.Grid(int(opts.SolutionsCount)),
			uniformOptions(t, ctx, opts),
			storage(t, ctx, "labels", exampleLabels()),
			storage(t, ctx, "codes", exampleCodes()),
			tallies,
			results,
		)
		assert.Equal(t, exampleResults(), readBack[float32](t, ctx, results, int(opts.SolutionsCount)), "round %d", round)
	}
}

func TestTestKernel(t *testing.T) {
	ctx := gpu.NewSoftwareContext()
	defer ctx.Close()

	// Single solution over the example data: assigned labels taken from the
	// training argmax of solution 0 must reproduce its training score.
	opts := exampleOptions()
	opts.SolutionsCount = 1
	results := storage(t, ctx, "results", make([]float32, 1))
	runKernel(t, ctx, testSource(), gpu.Grid(1),
		uniformOptions(t, ctx, opts),
		storage(t, ctx, "labels", exampleLabels()),
		storage(t, ctx, "codes", exampleCodes()[:10]),
		storage(t, ctx, "assigned", []uint32{2, 3, 2, 1, 0, 0}),
		results,
	)
	assert.Equal(t, []float32{8}, readBack[float32](t, ctx, results, 1))
}
