package gpu

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Capability declares what a buffer may be used for. It is fixed at creation
// and checked against kernel binding layouts and readback requests.
type Capability uint8

const (
	// Uniform holds a small parameter block read by kernels. Host-writable.
	Uniform Capability = iota
	// StorageRead is a storage buffer kernels only read. Host-writable.
	StorageRead
	// StorageReadWrite is a storage buffer kernels may read and write.
	StorageReadWrite
	// Readback is a host-mappable staging buffer, the only kind the host can
	// read from. Kernels cannot bind it; it is filled by copy passes.
	Readback
)

func (c Capability) String() string {
	switch c {
	case Uniform:
		return "uniform"
	case StorageRead:
		return "storage-read"
	case StorageReadWrite:
		return "storage-read-write"
	case Readback:
		return "readback"
	}
	return "invalid"
}

// satisfies reports whether a buffer with capability c may be bound to a slot
// declared with capability slot. A read-write storage buffer may serve a
// read-only slot; everything else requires an exact match.
func (c Capability) satisfies(slot Capability) bool {
	if c == slot {
		return true
	}
	return c == StorageReadWrite && slot == StorageRead
}

// hostWritable reports whether Write/WriteAt are valid for this capability.
func (c Capability) hostWritable() bool {
	return c == Uniform || c == StorageRead || c == StorageReadWrite
}

// Buffer is a typed region of device memory. Capacity is always an exact
// multiple of the element stride. Buffers are not resizable; changing a
// dimension means creating a new buffer. The creating orchestrator owns the
// buffer; the core never retains it beyond the call that uses it.
type Buffer struct {
	ctx       *Context
	label     string
	cap       Capability
	stride    int
	count     int
	size      uint64
	handle    any
	mapped    atomic.Bool // Readback only: at most one outstanding map
	destroyed atomic.Bool
}

// CreateBuffer allocates a device buffer of count elements of stride bytes
// each. Fails with ErrBufferSizeMismatch when the dimensions are not positive
// or count*stride exceeds the device's buffer size limit.
func (c *Context) CreateBuffer(label string, capability Capability, count, stride int) (*Buffer, error) {
	if count <= 0 || stride <= 0 {
		return nil, errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: count %d, stride %d", label, count, stride)
	}
	size := uint64(count) * uint64(stride)
	if max := c.backend.limits().MaxBufferSize; size > max {
		return nil, errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: %d bytes exceeds device limit %d", label, size, max)
	}

	handle, err := c.backend.createBuffer(label, capability, size)
	if err != nil {
		return nil, errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: %v", label, err)
	}
	klog.V(2).Infof("gpu: allocated %s buffer %q (%s)", capability, label, humanize.IBytes(size))

	return &Buffer{
		ctx:    c,
		label:  label,
		cap:    capability,
		stride: stride,
		count:  count,
		size:   size,
		handle: handle,
	}, nil
}

// CreateBufferInit allocates a host-writable buffer and fills it with data in
// one step. The element stride is the stride of data's element type.
func CreateBufferInit[T any](c *Context, label string, capability Capability, data []T) (*Buffer, error) {
	raw := ToBytes(data)
	stride := 0
	if len(data) > 0 {
		stride = len(raw) / len(data)
	}
	b, err := c.CreateBuffer(label, capability, len(data), stride)
	if err != nil {
		return nil, err
	}
	if err := b.Write(raw); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// Label returns the debug label the buffer was created with.
func (b *Buffer) Label() string { return b.label }

// Capability returns the capability tag fixed at creation.
func (b *Buffer) Capability() Capability { return b.cap }

// Stride returns the element stride in bytes.
func (b *Buffer) Stride() int { return b.stride }

// Count returns the buffer's capacity in elements.
func (b *Buffer) Count() int { return b.count }

// Size returns the byte capacity (always Count*Stride).
func (b *Buffer) Size() uint64 { return b.size }

// Write schedules a full host to device copy. p must be exactly the buffer's
// byte capacity; Readback buffers reject host writes. The call returns once
// the copy is enqueued, which is before the device necessarily consumed it —
// queue ordering guarantees later submissions observe the data.
func (b *Buffer) Write(p []byte) error {
	if !b.cap.hostWritable() {
		return errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: %s buffers are not host-writable", b.label, b.cap)
	}
	if uint64(len(p)) != b.size {
		return errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: write of %d bytes into %d-byte buffer", b.label, len(p), b.size)
	}
	return b.ctx.backend.write(b.handle, 0, p)
}

// WriteAt schedules a ranged host to device copy of len(p) bytes starting at
// the given byte offset. The range must lie within the buffer and start on an
// element boundary.
func (b *Buffer) WriteAt(offset uint64, p []byte) error {
	if !b.cap.hostWritable() {
		return errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: %s buffers are not host-writable", b.label, b.cap)
	}
	if len(p) == 0 {
		return nil
	}
	if offset%uint64(b.stride) != 0 {
		return errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: write offset %d not aligned to stride %d", b.label, offset, b.stride)
	}
	if offset+uint64(len(p)) > b.size {
		return errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: write of %d bytes at offset %d overruns %d-byte buffer", b.label, len(p), offset, b.size)
	}
	return b.ctx.backend.write(b.handle, offset, p)
}

// WriteValue uploads a single parameter struct into a Uniform buffer.
func WriteValue[T any](b *Buffer, v *T) error {
	return b.Write(StructBytes(v))
}

// Destroy releases the device memory. The buffer must not be referenced by any
// in-flight submission. Safe to call more than once.
func (b *Buffer) Destroy() {
	if b.destroyed.CompareAndSwap(false, true) {
		b.ctx.backend.destroyBuffer(b.handle)
	}
}
