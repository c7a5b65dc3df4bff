package gpu

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// softBackend is the in-process reference device. Buffers are plain byte
// slices and kernels execute their CPU mirror. All mutation happens on a
// single queue goroutine consuming operations in FIFO order, which reproduces
// the queue-timeline guarantees of a real device: writes and submissions are
// observed in enqueue order, and a readback sees everything queued before it.
type softBackend struct {
	ops  chan func()
	idle chan struct{}

	mu     sync.RWMutex
	closed bool
}

// softLimits mirrors the default wgpu storage binding limit. Large enough for
// any population buffer in this codebase, small enough to exercise the
// size-validation path in tests.
const softMaxBufferSize = 1 << 30

func newSoftBackend() *softBackend {
	s := &softBackend{
		ops:  make(chan func(), 64),
		idle: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *softBackend) run() {
	defer close(s.idle)
	for op := range s.ops {
		op()
	}
}

func (s *softBackend) name() string { return "software" }

func (s *softBackend) limits() Limits { return Limits{MaxBufferSize: softMaxBufferSize} }

type softBuffer struct {
	label string
	data  []byte
}

func (s *softBackend) createBuffer(label string, _ Capability, size uint64) (any, error) {
	// Device buffers are zero-initialized; the reference device matches.
	return &softBuffer{label: label, data: make([]byte, size)}, nil
}

func (s *softBackend) destroyBuffer(any) {}

// enqueue puts op on the queue timeline, or fails once the device is closed.
func (s *softBackend) enqueue(op func()) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Wrap(ErrDeviceUnavailable, "software device closed")
	}
	s.ops <- op
	return nil
}

func (s *softBackend) write(h any, offset uint64, p []byte) error {
	buf := h.(*softBuffer)
	// Snapshot now: the write lands on the queue timeline, and the caller may
	// reuse p as soon as we return.
	staged := make([]byte, len(p))
	copy(staged, p)
	return s.enqueue(func() {
		copy(buf.data[offset:], staged)
	})
}

type softKernel struct {
	src KernelSource
}

func (s *softBackend) compile(src KernelSource) (any, error) {
	if diag := lintWGSL(src); diag != "" {
		return nil, errors.Wrapf(ErrShaderCompile, "kernel %q: %s", src.Name, diag)
	}
	if src.Mirror == nil {
		return nil, errors.Wrapf(ErrShaderCompile, "kernel %q: no CPU mirror for the software device", src.Name)
	}
	return &softKernel{src: src}, nil
}

// lintWGSL cross-checks the kernel source against its declared binding layout.
// It is not a shader compiler; it catches the layout drift that would be a
// pipeline-creation diagnostic on real hardware.
func lintWGSL(src KernelSource) string {
	for _, b := range src.Layout {
		marker := fmt.Sprintf("@binding(%d)", b.Slot)
		if !strings.Contains(src.WGSL, marker) {
			return fmt.Sprintf("layout declares slot %d but source has no %s", b.Slot, marker)
		}
	}
	if got := strings.Count(src.WGSL, "@binding("); got != len(src.Layout) {
		return fmt.Sprintf("source declares %d bindings, layout declares %d", got, len(src.Layout))
	}
	return ""
}

func (s *softBackend) bind(*Kernel, []*Buffer) (any, error) {
	// The bind group's buffer list is all the software device needs.
	return nil, nil
}

func (s *softBackend) submit(passes []Pass) *Submission {
	done := make(chan struct{})
	var runErr error

	enqueued := s.enqueue(func() {
		defer close(done)
		for _, p := range passes {
			switch pass := p.(type) {
			case ComputePass:
				kernel := pass.Bind.kernel.handle.(*softKernel)
				views := make([]MirrorBuffer, len(pass.Bind.buffers))
				for i, b := range pass.Bind.buffers {
					views[i] = MirrorBuffer{Cap: b.cap, bytes: b.handle.(*softBuffer).data}
				}
				if err := kernel.src.Mirror(views, pass.Grid); err != nil {
					runErr = errors.Wrapf(err, "kernel %q", kernel.src.Name)
					return
				}
			case CopyPass:
				src := pass.Src.handle.(*softBuffer)
				dst := pass.Dst.handle.(*softBuffer)
				copy(dst.data[pass.DstOffset:pass.DstOffset+pass.Size], src.data[pass.SrcOffset:pass.SrcOffset+pass.Size])
			}
		}
	})
	if enqueued != nil {
		return &Submission{wait: func(context.Context) error { return enqueued }}
	}

	return &Submission{wait: func(ctx context.Context) error {
		select {
		case <-done:
			return runErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
}

func (s *softBackend) mapRead(ctx context.Context, h any, n uint64) ([]byte, error) {
	buf := h.(*softBuffer)
	out := make(chan []byte, 1)

	// Copy on the queue goroutine so a submission executing behind this read
	// can never tear the snapshot.
	if err := s.enqueue(func() {
		snap := make([]byte, n)
		copy(snap, buf.data[:n])
		out <- snap
	}); err != nil {
		return nil, errors.Wrapf(ErrMapFailed, "buffer %q: %v", buf.label, err)
	}

	select {
	case snap := <-out:
		return snap, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ErrMapFailed, "buffer %q: %v", buf.label, ctx.Err())
	}
}

func (s *softBackend) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ops)
	}
	s.mu.Unlock()
	<-s.idle
}
