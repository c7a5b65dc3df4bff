// Package pn trains permutation neurons: classifiers that map each input
// example to a permutation of its dot products with a small set of learned
// vectors, and label examples by the Lehmer code of that permutation. The
// solution space (the vectors) is searched with the ga package; the
// evaluation pipeline runs on the gpu package.
package pn

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/openfluke/strand/dataset"
	"github.com/openfluke/strand/ga"
	"github.com/openfluke/strand/gpu"
)

// PNP is a permutation-neuron problem over a fixed training set. It
// implements ga.Problem: every GA generation evaluates a batch of candidate
// vector sets against the whole training set on the device.
type PNP struct {
	// ExamplesCount, VectorLength: training set dimensions.
	ExamplesCount int
	VectorLength  int
	// VectorsCount is the number of learned vectors per solution. Each
	// example yields VectorsCount dot products plus an implicit zero, so
	// permutations range over VectorsCount+1 elements.
	VectorsCount int
	// OutputsCount is the number of label classes.
	OutputsCount int
	// PermutationsCount is (VectorsCount+1)!.
	PermutationsCount int

	ctx      *gpu.Context
	examples *gpu.Buffer
	labels   *gpu.Buffer

	scratch *scratch
}

// scratch holds the intermediate buffers of one evaluation shape; it is
// rebuilt when the solutions count changes.
type scratch struct {
	solutionsCount int
	options        *gpu.Buffer
	products       *gpu.Buffer
	codes          *gpu.Buffer
	tallies        *gpu.Buffer
}

func (s *scratch) destroy() {
	if s == nil {
		return
	}
	for _, b := range []*gpu.Buffer{s.options, s.products, s.codes, s.tallies} {
		if b != nil {
			b.Destroy()
		}
	}
}

// PermutationsCount returns (vectorsCount+1)!, the number of distinct codes a
// solution with vectorsCount vectors can produce.
func PermutationsCount(vectorsCount int) int {
	result := 1
	for i := 2; i <= vectorsCount+1; i++ {
		result *= i
	}
	return result
}

// New allocates a problem with empty example buffers, to be filled with
// UploadExamples.
func New(ctx *gpu.Context, examplesCount, vectorsCount, vectorLength, outputsCount int) (*PNP, error) {
	if vectorsCount+1 > MaxElements {
		return nil, errors.Errorf("pn: %d vectors need permutations of %d elements, limit is %d",
			vectorsCount, vectorsCount+1, MaxElements)
	}
	examples, err := ctx.CreateBuffer("pn:examples", gpu.StorageRead, examplesCount*vectorLength, 4)
	if err != nil {
		return nil, err
	}
	labels, err := ctx.CreateBuffer("pn:labels", gpu.StorageRead, examplesCount, 4)
	if err != nil {
		examples.Destroy()
		return nil, err
	}
	return &PNP{
		ExamplesCount:     examplesCount,
		VectorLength:      vectorLength,
		VectorsCount:      vectorsCount,
		OutputsCount:      outputsCount,
		PermutationsCount: PermutationsCount(vectorsCount),
		ctx:               ctx,
		examples:          examples,
		labels:            labels,
	}, nil
}

// Init allocates a problem and uploads the training set in one step.
func Init(ctx *gpu.Context, vectorsCount, vectorLength, outputsCount int, examples []float32, labels []uint32) (*PNP, error) {
	if len(examples) != len(labels)*vectorLength {
		return nil, errors.Errorf("pn: %d example floats for %d labels of length %d", len(examples), len(labels), vectorLength)
	}
	p, err := New(ctx, len(labels), vectorsCount, vectorLength, outputsCount)
	if err != nil {
		return nil, err
	}
	if err := p.UploadExamples(examples, labels); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// FromDataset allocates a problem from a loaded dataset.
func FromDataset(ctx *gpu.Context, vectorsCount int, d *dataset.Dataset) (*PNP, error) {
	return Init(ctx, vectorsCount, d.VectorLength, d.OutputsCount, d.Examples, d.Labels)
}

// UploadExamples writes the training set into the device buffers.
func (p *PNP) UploadExamples(examples []float32, labels []uint32) error {
	if err := p.examples.Write(gpu.ToBytes(examples)); err != nil {
		return err
	}
	return p.labels.Write(gpu.ToBytes(labels))
}

// Close releases the problem's device buffers.
func (p *PNP) Close() {
	p.examples.Destroy()
	p.labels.Destroy()
	p.scratch.destroy()
	p.scratch = nil
}

func (p *PNP) options(solutionsCount int) pnOptions {
	return pnOptions{
		ExamplesCount:     uint32(p.ExamplesCount),
		VectorLength:      uint32(p.VectorLength),
		VectorsCount:      uint32(p.VectorsCount),
		SolutionsCount:    uint32(solutionsCount),
		OutputsCount:      uint32(p.OutputsCount),
		PermutationsCount: uint32(p.PermutationsCount),
	}
}

func (p *PNP) ensureScratch(solutionsCount int) (*scratch, error) {
	if p.scratch != nil && p.scratch.solutionsCount == solutionsCount {
		return p.scratch, nil
	}
	p.scratch.destroy()
	p.scratch = nil

	s := &scratch{solutionsCount: solutionsCount}
	var err error
	create := func(label string, count int) *gpu.Buffer {
		if err != nil {
			return nil
		}
		var b *gpu.Buffer
		b, err = p.ctx.CreateBuffer(label, gpu.StorageReadWrite, count, 4)
		return b
	}
	s.products = create("pn:products", solutionsCount*p.VectorsCount*p.ExamplesCount)
	s.codes = create("pn:codes", solutionsCount*p.ExamplesCount)
	s.tallies = create("pn:tallies", solutionsCount*p.PermutationsCount*p.OutputsCount)
	if err == nil {
		opts := p.options(solutionsCount)
		s.options, err = gpu.CreateBufferInit(p.ctx, "pn:options", gpu.Uniform, []pnOptions{opts})
	}
	if err != nil {
		s.destroy()
		return nil, err
	}

	klog.V(1).Infof("pn: evaluation buffers for %d solutions, %d permutations of %d elements",
		solutionsCount, p.PermutationsCount, p.VectorsCount+1)
	p.scratch = s
	return s, nil
}

// Evaluate scores count candidate vector sets: each receives the number of
// training examples its majority-vote labeling classifies correctly. The
// three kernels run as one ordered submission.
func (p *PNP) Evaluate(_ context.Context, _ *ga.GA, solutions, results *gpu.Buffer, count int) error {
	return p.run(solutions, results, count)
}

func (p *PNP) run(solutions, results *gpu.Buffer, count int) error {
	s, err := p.ensureScratch(count)
	if err != nil {
		return err
	}

	multiply, err := p.ctx.Compile(multiplySource())
	if err != nil {
		return err
	}
	permutations, err := p.ctx.Compile(permutationsSource())
	if err != nil {
		return err
	}
	score, err := p.ctx.Compile(resultsSource())
	if err != nil {
		return err
	}

	multiplyBind, err := multiply.Bind(s.options, p.examples, solutions, s.products)
	if err != nil {
		return err
	}
	permutationsBind, err := permutations.Bind(s.options, s.products, s.codes)
	if err != nil {
		return err
	}
	scoreBind, err := score.Bind(s.options, p.labels, s.codes, s.tallies, results)
	if err != nil {
		return err
	}

	_, err = p.ctx.Submit(
		gpu.Compute(multiplyBind, gpu.Grid(p.ExamplesCount, p.VectorsCount*count)),
		gpu.Compute(permutationsBind, gpu.Grid(count, p.ExamplesCount)),
		gpu.Compute(scoreBind, gpu.Grid(count)),
	)
	return err
}
