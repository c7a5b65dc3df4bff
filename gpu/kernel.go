package gpu

import (
	"hash/fnv"

	"github.com/pkg/errors"
)

// Binding declares one slot of a kernel's binding layout: the @binding index
// in the WGSL source and the buffer capability the slot expects.
type Binding struct {
	Slot uint32
	Cap  Capability
}

// BindingLayout is the ordered list of bindings a kernel expects. Dispatch-time
// bind groups are validated against it; the order here is the order buffers
// must be passed to Bind.
type BindingLayout []Binding

// MirrorBuffer is the CPU-side view of one bound buffer handed to a kernel's
// mirror function by the software backend.
type MirrorBuffer struct {
	Cap   Capability
	bytes []byte
}

// Bytes returns the buffer's backing store. Writes through it are only
// meaningful for StorageReadWrite slots.
func (m MirrorBuffer) Bytes() []byte { return m.bytes }

// F32 views the buffer as float32 elements.
func (m MirrorBuffer) F32() []float32 { return FromBytes[float32](m.bytes) }

// U32 views the buffer as uint32 elements.
func (m MirrorBuffer) U32() []uint32 { return FromBytes[uint32](m.bytes) }

// MirrorFunc is the CPU reference implementation of a kernel, mirroring the
// WGSL entry point over the whole dispatch grid. The software backend executes
// it in place of the shader; buffers arrive in binding-layout order. Keeping
// the mirror byte-for-byte faithful to the shader is what makes the numeric
// test suite meaningful.
type MirrorFunc func(buffers []MirrorBuffer, grid Extent) error

// KernelSource is everything needed to compile a kernel: the WGSL text, the
// binding layout it was written against, and the CPU mirror.
type KernelSource struct {
	Name   string
	WGSL   string
	Layout BindingLayout
	Mirror MirrorFunc
}

func (s KernelSource) cacheKey() uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.Name))
	h.Write([]byte{0})
	h.Write([]byte(s.WGSL))
	for _, b := range s.Layout {
		h.Write([]byte{0, byte(b.Slot), byte(b.Cap)})
	}
	return h.Sum64()
}

// Kernel is an immutable compiled pipeline plus its binding layout. Compile
// once per distinct source, reuse across any number of dispatches.
type Kernel struct {
	ctx    *Context
	src    KernelSource
	handle any
}

// Name returns the kernel's source name.
func (k *Kernel) Name() string { return k.src.Name }

// Layout returns the binding layout the kernel was compiled against.
func (k *Kernel) Layout() BindingLayout { return k.src.Layout }

// Compile turns kernel source into a reusable pipeline, or returns the cached
// pipeline when the same source was compiled before on this context. Fails
// with ErrShaderCompile carrying the compiler diagnostic.
func (c *Context) Compile(src KernelSource) (*Kernel, error) {
	key := src.cacheKey()

	c.mu.Lock()
	if k, ok := c.kernels[key]; ok {
		c.mu.Unlock()
		return k, nil
	}
	c.mu.Unlock()

	handle, err := c.backend.compile(src)
	if err != nil {
		return nil, err
	}
	k := &Kernel{ctx: c, src: src, handle: handle}

	c.mu.Lock()
	c.kernels[key] = k
	c.mu.Unlock()
	return k, nil
}

// BindGroup is an ordered association of concrete buffers to a kernel's
// binding slots, valid for any number of dispatches of that kernel. Create a
// fresh one whenever the buffer set changes.
type BindGroup struct {
	kernel  *Kernel
	buffers []*Buffer
	handle  any
}

// Bind associates buffers with the kernel's slots, in layout order. Fails with
// ErrDimensionMismatch when the count or the capability sequence does not
// match the kernel's layout.
func (k *Kernel) Bind(buffers ...*Buffer) (*BindGroup, error) {
	layout := k.src.Layout
	if len(buffers) != len(layout) {
		return nil, errors.Wrapf(ErrDimensionMismatch,
			"kernel %q: %d buffers bound, layout declares %d slots", k.src.Name, len(buffers), len(layout))
	}
	for i, b := range buffers {
		if b.cap == Readback {
			return nil, errors.Wrapf(ErrDimensionMismatch,
				"kernel %q slot %d: readback buffers cannot be bound", k.src.Name, layout[i].Slot)
		}
		if !b.cap.satisfies(layout[i].Cap) {
			return nil, errors.Wrapf(ErrDimensionMismatch,
				"kernel %q slot %d: %s buffer %q bound to %s slot", k.src.Name, layout[i].Slot, b.cap, b.label, layout[i].Cap)
		}
	}

	handle, err := k.ctx.backend.bind(k, buffers)
	if err != nil {
		return nil, err
	}
	return &BindGroup{kernel: k, buffers: buffers, handle: handle}, nil
}
