package gpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillSource writes 42 into every grid cell of a read-write buffer.
func fillSource() KernelSource {
	return KernelSource{
		Name: "test_fill",
		WGSL: `
@group(0) @binding(0) var<storage, read_write> out: array<f32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    out[gid.x] = 42.0;
}
`,
		Layout: BindingLayout{{Slot: 0, Cap: StorageReadWrite}},
		Mirror: func(buffers []MirrorBuffer, grid Extent) error {
			out := buffers[0].F32()
			for i := 0; i < int(grid.X); i++ {
				out[i] = 42
			}
			return nil
		},
	}
}

var countSource = KernelSource{
	Name: "test_count",
	WGSL: `
@group(0) @binding(0) var<storage, read_write> out: array<u32>;

@compute @workgroup_size(1)
fn main() {
    out[0] = out[0] + 1u;
}
`,
	Layout: BindingLayout{{Slot: 0, Cap: StorageReadWrite}},
	Mirror: func(buffers []MirrorBuffer, _ Extent) error {
		buffers[0].U32()[0]++
		return nil
	},
}

func TestCreateBufferValidation(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	_, err := ctx.CreateBuffer("bad-count", StorageRead, 0, 4)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)

	_, err = ctx.CreateBuffer("bad-stride", StorageRead, 4, 0)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)

	_, err = ctx.CreateBuffer("too-big", StorageRead, 1<<28, 1<<10)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)

	b, err := ctx.CreateBuffer("ok", StorageRead, 16, 4)
	require.NoError(t, err)
	assert.Equal(t, 16, b.Count())
	assert.Equal(t, 4, b.Stride())
	assert.Equal(t, uint64(64), b.Size())
	b.Destroy()
	b.Destroy() // second destroy is a no-op
}

func TestWriteValidation(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	b, err := ctx.CreateBuffer("storage", StorageReadWrite, 8, 4)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Write(make([]byte, 16)), ErrBufferSizeMismatch)
	assert.NoError(t, b.Write(make([]byte, 32)))

	assert.ErrorIs(t, b.WriteAt(2, make([]byte, 4)), ErrBufferSizeMismatch)  // misaligned
	assert.ErrorIs(t, b.WriteAt(28, make([]byte, 8)), ErrBufferSizeMismatch) // overrun
	assert.NoError(t, b.WriteAt(28, make([]byte, 4)))
	assert.NoError(t, b.WriteAt(0, nil))

	rb, err := ctx.CreateBuffer("staging", Readback, 8, 4)
	require.NoError(t, err)
	assert.ErrorIs(t, rb.Write(make([]byte, 32)), ErrBufferSizeMismatch)
}

func TestByteRoundTrip(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	for _, n := range []int{1, 7, 4096} {
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(i)*0.25 - 3.5
		}

		src, err := CreateBufferInit(ctx, "src", StorageRead, data)
		require.NoError(t, err)
		staging, err := ctx.CreateBuffer("staging", Readback, n, 4)
		require.NoError(t, err)

		got, err := ReadValues[float32](context.Background(), staging, src, 0, n)
		require.NoError(t, err)
		assert.Equal(t, data, got, "round trip of %d elements", n)
	}
}

func TestCompileCacheAndLint(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	src := fillSource()
	k1, err := ctx.Compile(src)
	require.NoError(t, err)
	k2, err := ctx.Compile(src)
	require.NoError(t, err)
	assert.Same(t, k1, k2, "identical source must hit the kernel cache")

	// Layout names a slot the source does not declare.
	broken := src
	broken.Layout = BindingLayout{{Slot: 3, Cap: StorageReadWrite}}
	_, err = ctx.Compile(broken)
	assert.ErrorIs(t, err, ErrShaderCompile)

	noMirror := fillSource()
	noMirror.Name = "test_fill_no_mirror"
	noMirror.Mirror = nil
	_, err = ctx.Compile(noMirror)
	assert.ErrorIs(t, err, ErrShaderCompile)
}

func TestBindValidation(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	k, err := ctx.Compile(fillSource())
	require.NoError(t, err)

	rw, err := ctx.CreateBuffer("rw", StorageReadWrite, 4, 4)
	require.NoError(t, err)
	uni, err := ctx.CreateBuffer("uni", Uniform, 1, 16)
	require.NoError(t, err)
	rb, err := ctx.CreateBuffer("rb", Readback, 4, 4)
	require.NoError(t, err)

	_, err = k.Bind()
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = k.Bind(rw, rw)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = k.Bind(uni)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = k.Bind(rb)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = k.Bind(rw)
	assert.NoError(t, err)
}

func TestGrid(t *testing.T) {
	assert.Equal(t, Extent{5, 1, 1}, Grid(5))
	assert.Equal(t, Extent{5, 3, 1}, Grid(5, 3))
	assert.Equal(t, Extent{5, 3, 2}, Grid(5, 3, 2))
	assert.Equal(t, 30, Grid(5, 3, 2).Len())

	// Negative dimensions must not wrap into huge unsigned extents.
	assert.Equal(t, Extent{0, 1, 1}, Grid(-1))
	assert.Equal(t, Extent{5, 0, 1}, Grid(5, -3))
}

func TestDispatchGridValidation(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	k, err := ctx.Compile(fillSource())
	require.NoError(t, err)
	rw, err := ctx.CreateBuffer("rw", StorageReadWrite, 4, 4)
	require.NoError(t, err)
	bg, err := k.Bind(rw)
	require.NoError(t, err)

	_, err = ctx.Submit(Compute(bg, Extent{X: 0, Y: 1, Z: 1}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ctx.Submit(Compute(bg, Grid(-4)))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ctx.Submit()
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

// Work issued after Close must fail, not crash the queue.
func TestCloseRejectsLaterWork(t *testing.T) {
	ctx := NewSoftwareContext()

	k, err := ctx.Compile(fillSource())
	require.NoError(t, err)
	rw, err := ctx.CreateBuffer("rw", StorageReadWrite, 4, 4)
	require.NoError(t, err)
	bg, err := k.Bind(rw)
	require.NoError(t, err)
	staging, err := ctx.CreateBuffer("staging", Readback, 4, 4)
	require.NoError(t, err)

	ctx.Close()
	ctx.Close() // idempotent

	assert.ErrorIs(t, rw.Write(make([]byte, 16)), ErrDeviceUnavailable)

	sub, err := ctx.Submit(Compute(bg, Grid(4)))
	require.NoError(t, err)
	assert.ErrorIs(t, sub.Wait(context.Background()), ErrDeviceUnavailable)

	// The readback's copy pass hits the closed queue first.
	_, err = ReadValues[float32](context.Background(), staging, rw, 0, 4)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestCopyValidation(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	src, err := ctx.CreateBuffer("src", StorageRead, 8, 4)
	require.NoError(t, err)
	dst, err := ctx.CreateBuffer("dst", StorageReadWrite, 4, 4)
	require.NoError(t, err)
	uni, err := ctx.CreateBuffer("uni", Uniform, 1, 16)
	require.NoError(t, err)
	rb, err := ctx.CreateBuffer("rb", Readback, 8, 4)
	require.NoError(t, err)

	_, err = ctx.Submit(Copy(uni, 0, dst, 0, 1))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = ctx.Submit(Copy(rb, 0, dst, 0, 1))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = ctx.Submit(Copy(src, 0, uni, 0, 1))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = ctx.Submit(Copy(src, 6, dst, 0, 4))
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)
	_, err = ctx.Submit(Copy(src, 0, dst, 2, 4))
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)

	sub, err := ctx.Submit(Copy(src, 4, dst, 0, 4))
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))
}

// A dispatch that writes a value, then a copy of the result into a second
// buffer, submitted as one ordered sequence: the readback must observe the
// value the dispatch produced.
func TestDispatchThenCopyOrdering(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	k, err := ctx.Compile(fillSource())
	require.NoError(t, err)

	work, err := ctx.CreateBuffer("work", StorageReadWrite, 4, 4)
	require.NoError(t, err)
	result, err := ctx.CreateBuffer("result", StorageReadWrite, 4, 4)
	require.NoError(t, err)
	staging, err := ctx.CreateBuffer("staging", Readback, 4, 4)
	require.NoError(t, err)

	bg, err := k.Bind(work)
	require.NoError(t, err)

	sub, err := ctx.Submit(
		Compute(bg, Grid(4)),
		Copy(work, 0, result, 0, 4),
	)
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))

	got, err := ReadValues[float32](context.Background(), staging, result, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{42, 42, 42, 42}, got)
}

// Submissions execute in submission order even when no handle is awaited in
// between: a readback issued after N increments must observe all N.
func TestSubmissionFIFO(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	k, err := ctx.Compile(countSource)
	require.NoError(t, err)
	counter, err := ctx.CreateBuffer("counter", StorageReadWrite, 1, 4)
	require.NoError(t, err)
	staging, err := ctx.CreateBuffer("staging", Readback, 1, 4)
	require.NoError(t, err)

	bg, err := k.Bind(counter)
	require.NoError(t, err)

	const rounds = 100
	for i := 0; i < rounds; i++ {
		_, err := ctx.Submit(Compute(bg, Grid(1)))
		require.NoError(t, err)
	}

	got, err := ReadValues[uint32](context.Background(), staging, counter, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(rounds), got[0])
}

func TestReadbackValidation(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	storage, err := ctx.CreateBuffer("storage", StorageReadWrite, 8, 4)
	require.NoError(t, err)
	staging, err := ctx.CreateBuffer("staging", Readback, 4, 4)
	require.NoError(t, err)
	uni, err := ctx.CreateBuffer("uni", Uniform, 1, 16)
	require.NoError(t, err)

	// Only readback buffers can be mapped.
	_, err = storage.Read(context.Background(), storage, 0, 1)
	assert.ErrorIs(t, err, ErrMapFailed)

	// Only storage buffers can be read back.
	_, err = staging.Read(context.Background(), uni, 0, 1)
	assert.ErrorIs(t, err, ErrMapFailed)

	// Result must fit the staging buffer.
	_, err = staging.Read(context.Background(), storage, 0, 8)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)
	_, err = staging.Read(context.Background(), storage, 0, 0)
	assert.ErrorIs(t, err, ErrBufferSizeMismatch)

	// A buffer with an outstanding map rejects a second map.
	staging.mapped.Store(true)
	_, err = staging.Read(context.Background(), storage, 0, 4)
	assert.ErrorIs(t, err, ErrMapFailed)
	staging.mapped.Store(false)

	_, err = staging.Read(context.Background(), storage, 0, 4)
	assert.NoError(t, err)
}

func TestBytesViews(t *testing.T) {
	vals := []float32{1.5, -2.25, 3}
	raw := ToBytes(vals)
	assert.Len(t, raw, 12)
	assert.Equal(t, vals, FromBytes[float32](raw))

	type params struct {
		A, B uint32
		C    float32
		_    uint32
	}
	p := params{A: 7, B: 9, C: 1.25}
	raw = StructBytes(&p)
	assert.Len(t, raw, 16)
	back := FromBytes[params](raw)
	assert.Equal(t, p, back[0])
}

func TestMirrorErrorPropagates(t *testing.T) {
	ctx := NewSoftwareContext()
	defer ctx.Close()

	src := KernelSource{
		Name: "test_boom",
		WGSL: `
@group(0) @binding(0) var<storage, read_write> out: array<f32>;

@compute @workgroup_size(1)
fn main() {}
`,
		Layout: BindingLayout{{Slot: 0, Cap: StorageReadWrite}},
		Mirror: func([]MirrorBuffer, Extent) error {
			return ErrDimensionMismatch
		},
	}
	k, err := ctx.Compile(src)
	require.NoError(t, err)
	rw, err := ctx.CreateBuffer("rw", StorageReadWrite, 1, 4)
	require.NoError(t, err)
	bg, err := k.Bind(rw)
	require.NoError(t, err)

	sub, err := ctx.Submit(Compute(bg, Grid(1)))
	require.NoError(t, err)
	err = sub.Wait(context.Background())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	// Wait is idempotent.
	assert.ErrorIs(t, sub.Wait(context.Background()), ErrDimensionMismatch)
}
