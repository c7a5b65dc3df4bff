package gpu

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Extent is the workgroup count per dispatch axis. Every axis must be at least
// 1 when submitted.
type Extent struct {
	X, Y, Z uint32
}

// Grid builds an Extent from 1 to 3 dimensions, filling missing axes with 1.
// Grid(n) dispatches a row, Grid(w, h) a plane, Grid(w, h, d) a volume. A
// non-positive dimension becomes a zero axis, which Submit rejects.
func Grid(dims ...int) Extent {
	e := Extent{1, 1, 1}
	if len(dims) > 0 {
		e.X = axis(dims[0])
	}
	if len(dims) > 1 {
		e.Y = axis(dims[1])
	}
	if len(dims) > 2 {
		e.Z = axis(dims[2])
	}
	return e
}

func axis(d int) uint32 {
	if d < 0 {
		return 0
	}
	return uint32(d)
}

// Len returns the total number of grid cells.
func (e Extent) Len() int { return int(e.X) * int(e.Y) * int(e.Z) }

func (e Extent) valid() bool { return e.X > 0 && e.Y > 0 && e.Z > 0 }

// Pass is one entry of a submission: either a compute dispatch or a
// buffer-to-buffer copy.
type Pass interface {
	validate() error
}

// ComputePass dispatches a kernel over a workgroup grid with a bound buffer
// set.
type ComputePass struct {
	Bind *BindGroup
	Grid Extent
}

// Compute builds a compute pass.
func Compute(bind *BindGroup, grid Extent) ComputePass {
	return ComputePass{Bind: bind, Grid: grid}
}

func (p ComputePass) validate() error {
	if p.Bind == nil || p.Bind.kernel == nil {
		return errors.Wrap(ErrDimensionMismatch, "compute pass without a bind group")
	}
	if !p.Grid.valid() {
		return errors.Wrapf(ErrDimensionMismatch,
			"kernel %q: dispatch grid %dx%dx%d has a zero axis", p.Bind.kernel.src.Name, p.Grid.X, p.Grid.Y, p.Grid.Z)
	}
	return nil
}

// CopyPass copies Size bytes from Src at SrcOffset to Dst at DstOffset, as
// part of the submission's ordered command sequence.
type CopyPass struct {
	Src, Dst             *Buffer
	SrcOffset, DstOffset uint64
	Size                 uint64
}

// Copy builds a copy pass over whole-element ranges: count elements of src's
// stride, from element srcStart to dst element dstStart.
func Copy(src *Buffer, srcStart int, dst *Buffer, dstStart, count int) CopyPass {
	stride := uint64(src.stride)
	return CopyPass{
		Src:       src,
		Dst:       dst,
		SrcOffset: uint64(srcStart) * stride,
		DstOffset: uint64(dstStart) * stride,
		Size:      uint64(count) * stride,
	}
}

func (p CopyPass) validate() error {
	if p.Src == nil || p.Dst == nil {
		return errors.Wrap(ErrDimensionMismatch, "copy pass with a nil buffer")
	}
	if p.Src.cap == Uniform || p.Src.cap == Readback {
		return errors.Wrapf(ErrDimensionMismatch, "copy source %q: %s buffers cannot be copied from", p.Src.label, p.Src.cap)
	}
	if p.Dst.cap == Uniform {
		return errors.Wrapf(ErrDimensionMismatch, "copy destination %q: uniform buffers cannot be copied into", p.Dst.label)
	}
	if p.SrcOffset+p.Size > p.Src.size {
		return errors.Wrapf(ErrBufferSizeMismatch,
			"copy reads %d bytes at %d from %d-byte buffer %q", p.Size, p.SrcOffset, p.Src.size, p.Src.label)
	}
	if p.DstOffset+p.Size > p.Dst.size {
		return errors.Wrapf(ErrBufferSizeMismatch,
			"copy writes %d bytes at %d into %d-byte buffer %q", p.Size, p.DstOffset, p.Dst.size, p.Dst.label)
	}
	return nil
}

// Submission is the completion handle for one submitted command sequence.
// Discarding a handle without awaiting it releases host-side interest in the
// result; it does not stop in-flight device work.
type Submission struct {
	once sync.Once
	wait func(context.Context) error
	err  error
}

// Wait suspends the calling task until every pass of the submission has
// executed on the device, or ctx is cancelled. Wait is idempotent; concurrent
// waiters all observe the same result.
func (s *Submission) Wait(ctx context.Context) error {
	s.once.Do(func() { s.err = s.wait(ctx) })
	return s.err
}

// Submit encodes the passes, in order, into a single command sequence and
// hands it to the device queue. Passes within the submission execute in encode
// order with full visibility of earlier passes' writes; submissions on the
// same queue execute in submission order. Submit itself never suspends: use
// the returned handle (or a readback) to observe completion before reusing a
// buffer with conflicting access.
func (c *Context) Submit(passes ...Pass) (*Submission, error) {
	if len(passes) == 0 {
		return nil, errors.Wrap(ErrDimensionMismatch, "empty submission")
	}
	for _, p := range passes {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}
	return c.backend.submit(passes), nil
}
