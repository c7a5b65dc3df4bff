package gpu

import (
	"context"

	"github.com/pkg/errors"
)

// Read copies count elements of src (starting at element srcStart) into the
// readback buffer b and returns their bytes once the device signals
// completion. The copy is encoded as the final pass of its own submission, so
// the result reflects every submission queued before the call.
//
// The protocol: submit the copy, request an async map of b, cooperatively
// await the device's completion signal (only this step suspends the calling
// task), copy the bytes out, unmap. At most one map may be outstanding per
// readback buffer; a second Read before the first completes fails with
// ErrMapFailed, as does any device-side mapping error.
func (b *Buffer) Read(ctx context.Context, src *Buffer, srcStart, count int) ([]byte, error) {
	if b.cap != Readback {
		return nil, errors.Wrapf(ErrMapFailed, "buffer %q: read requires a readback buffer, have %s", b.label, b.cap)
	}
	if src == nil || (src.cap != StorageRead && src.cap != StorageReadWrite) {
		return nil, errors.Wrap(ErrMapFailed, "readback source must be a storage buffer")
	}
	n := uint64(count) * uint64(src.stride)
	if n == 0 {
		return nil, errors.Wrapf(ErrBufferSizeMismatch, "buffer %q: empty readback", b.label)
	}
	if n > b.size {
		return nil, errors.Wrapf(ErrBufferSizeMismatch,
			"buffer %q: readback of %d bytes exceeds %d-byte capacity", b.label, n, b.size)
	}

	if !b.mapped.CompareAndSwap(false, true) {
		return nil, errors.Wrapf(ErrMapFailed, "buffer %q is already mapped", b.label)
	}
	defer b.mapped.Store(false)

	sub, err := b.ctx.Submit(Copy(src, srcStart, b, 0, count))
	if err != nil {
		return nil, err
	}
	if err := sub.Wait(ctx); err != nil {
		return nil, err
	}

	return b.ctx.backend.mapRead(ctx, b.handle, n)
}

// ReadValues is Read with a typed result: count elements of type T.
func ReadValues[T any](ctx context.Context, b *Buffer, src *Buffer, srcStart, count int) ([]T, error) {
	raw, err := b.Read(ctx, src, srcStart, count)
	if err != nil {
		return nil, err
	}
	out := make([]T, count)
	copy(out, FromBytes[T](raw))
	return out, nil
}
