package gpu

import "context"

// Limits describes the subset of device limits the validation layer checks
// before issuing work.
type Limits struct {
	// MaxBufferSize is the largest buffer, in bytes, the device will allocate.
	MaxBufferSize uint64
}

// backend is the seam between the orchestration layer and a concrete compute
// device. Two implementations exist: the wgpu backend driving real hardware,
// and the software backend executing kernel mirrors on the CPU so the whole
// stack is testable without a GPU.
//
// Handles returned by a backend are opaque to the rest of the package and are
// only ever passed back to the backend that produced them.
type backend interface {
	name() string
	limits() Limits

	createBuffer(label string, capability Capability, size uint64) (any, error)
	destroyBuffer(h any)
	// write schedules a host to device copy. Complete once enqueued; ordered
	// on the queue timeline ahead of later submissions.
	write(h any, offset uint64, p []byte) error

	compile(src KernelSource) (any, error)
	bind(kernel *Kernel, buffers []*Buffer) (any, error)

	// submit encodes the passes into one command sequence in order and hands
	// it to the queue. Never suspends the caller.
	submit(passes []Pass) *Submission

	// mapRead suspends until every previously submitted command affecting h
	// has executed, then returns a copy of the first n bytes.
	mapRead(ctx context.Context, h any, n uint64) ([]byte, error)

	close()
}
