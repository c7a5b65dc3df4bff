package gpu

import "errors"

// Error taxonomy for the compute layer. Every validation failure maps to one of
// these sentinels so callers can branch with errors.Is; call sites attach detail
// via errors.Wrapf.
var (
	// ErrDeviceUnavailable is returned by NewContext when no compute-capable
	// adapter is present on the host, and by work issued against a closed
	// context. Fatal: there is nothing to retry.
	ErrDeviceUnavailable = errors.New("gpu: no compatible compute device available")

	// ErrBufferSizeMismatch is returned when a buffer allocation exceeds device
	// limits, or a write does not match the buffer's byte capacity. Always
	// detected host-side before any device work is issued.
	ErrBufferSizeMismatch = errors.New("gpu: buffer size mismatch")

	// ErrShaderCompile is returned by Compile when the kernel source is invalid
	// for its declared binding layout. The wrapped message carries the compiler
	// diagnostic. Retrying without changing the source will fail identically.
	ErrShaderCompile = errors.New("gpu: shader compilation failed")

	// ErrDimensionMismatch is returned when binding buffers to a kernel whose
	// layout expects a different count or capability sequence, or when a
	// dispatch grid has a zero axis. Checked eagerly, never reaches the device.
	ErrDimensionMismatch = errors.New("gpu: dimension mismatch")

	// ErrMapFailed is returned when a readback cannot be mapped to host memory:
	// the device reported an error, the buffer is already mapped, or the buffer
	// is not a Readback buffer.
	ErrMapFailed = errors.New("gpu: buffer map failed")
)
