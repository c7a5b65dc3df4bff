// Package gpu is a compute orchestration layer for iterative, population-based
// optimization: device context lifetime, typed buffer management, kernel
// compilation and binding, ordered pass submission, and asynchronous readback.
//
// All work flows through an explicit Context. There is no package-level
// device: tests and tools create as many independent contexts as they need,
// including software contexts that run entirely on the CPU.
package gpu

import (
	"sync"
)

// PowerPreference selects between adapters when more than one is available.
type PowerPreference int

const (
	PowerDefault PowerPreference = iota
	PowerHighPerformance
	PowerLowPower
)

// Context owns one compute device and its command queue. It is the sole point
// of buffer and kernel creation; every other entity borrows it and must not
// outlive it. A Context is safe for concurrent use, but buffers remain
// single-writer per submission window (the caller serializes conflicting
// access with Submission.Wait or a readback).
type Context struct {
	backend backend

	mu      sync.Mutex
	kernels map[uint64]*Kernel
}

// Options configure context creation. The zero value asks for any
// compute-capable adapter with default limits.
type Options struct {
	// Power biases adapter selection when several are present.
	Power PowerPreference
	// AdapterFilter, when set, force-selects the first enumerated adapter for
	// which it returns true (matched against name and vendor), before any
	// power-preference request is attempted.
	AdapterFilter func(name, vendor string) bool
}

// NewContext opens the host's compute device and its queue. Fails with
// ErrDeviceUnavailable when no compatible adapter is present.
func NewContext(opts Options) (*Context, error) {
	b, err := newWGPUBackend(opts)
	if err != nil {
		return nil, err
	}
	return newContext(b), nil
}

// NewSoftwareContext creates a context backed by the in-process software
// device, which executes each kernel's CPU mirror on a single FIFO queue
// goroutine. It preserves the queue-ordering and readback semantics of a real
// device and needs no hardware; it is the test backend.
func NewSoftwareContext() *Context {
	return newContext(newSoftBackend())
}

func newContext(b backend) *Context {
	return &Context{
		backend: b,
		kernels: make(map[uint64]*Kernel),
	}
}

// Backend returns the backing device's name ("wgpu" or "software").
func (c *Context) Backend() string { return c.backend.name() }

// Limits returns the device limits the validation layer enforces.
func (c *Context) Limits() Limits { return c.backend.limits() }

// Close releases the device. All buffers and kernels created from the context
// become invalid; in-flight submissions are drained first.
func (c *Context) Close() {
	c.backend.close()
}
