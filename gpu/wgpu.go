package gpu

import (
	"context"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// wgpuBackend drives a real device through WebGPU. One instance owns the
// adapter, device and queue for the lifetime of its Context.
type wgpuBackend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

// WebGPU's default max_buffer_size. The device is requested with default
// limits, so this is what the validation layer enforces.
const wgpuMaxBufferSize = 256 << 20

func newWGPUBackend(opts Options) (*wgpuBackend, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, "failed to create WebGPU instance")
	}

	b := &wgpuBackend{instance: instance}

	if opts.AdapterFilter != nil {
		for _, a := range instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			klog.V(1).Infof("gpu: adapter %s (vendor %s, type %d)", info.Name, info.VendorName, info.AdapterType)
			if opts.AdapterFilter(strings.ToLower(info.Name), strings.ToLower(info.VendorName)) {
				b.adapter = a
				break
			}
		}
	}

	tryRequest := func(o *wgpu.RequestAdapterOptions) {
		if b.adapter != nil {
			return
		}
		if a, err := instance.RequestAdapter(o); err == nil {
			b.adapter = a
		}
	}
	switch opts.Power {
	case PowerHighPerformance:
		tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance})
	case PowerLowPower:
		tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceLowPower})
	}
	tryRequest(&wgpu.RequestAdapterOptions{PowerPreference: wgpu.PowerPreferenceHighPerformance})
	tryRequest(nil)
	if b.adapter == nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, "no adapter accepted the request")
	}

	info := b.adapter.GetInfo()
	klog.V(1).Infof("gpu: using adapter %s (vendor %s)", info.Name, info.VendorName)

	device, err := b.adapter.RequestDevice(nil)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "request device: %v", err)
	}
	b.device = device
	b.queue = device.GetQueue()
	if b.queue == nil {
		return nil, errors.Wrap(ErrDeviceUnavailable, "device has no queue")
	}
	return b, nil
}

func (b *wgpuBackend) name() string { return "wgpu" }

func (b *wgpuBackend) limits() Limits { return Limits{MaxBufferSize: wgpuMaxBufferSize} }

func usageFor(c Capability) wgpu.BufferUsage {
	switch c {
	case Uniform:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	case Readback:
		return wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	default:
		return wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	}
}

func (b *wgpuBackend) createBuffer(label string, capability Capability, size uint64) (any, error) {
	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usageFor(capability),
	})
}

func (b *wgpuBackend) destroyBuffer(h any) {
	h.(*wgpu.Buffer).Destroy()
}

func (b *wgpuBackend) write(h any, offset uint64, p []byte) error {
	b.queue.WriteBuffer(h.(*wgpu.Buffer), offset, p)
	return nil
}

func (b *wgpuBackend) compile(src KernelSource) (any, error) {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.WGSL},
	})
	if err != nil {
		return nil, errors.Wrapf(ErrShaderCompile, "kernel %q: %v", src.Name, err)
	}
	pipeline, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   src.Name,
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, errors.Wrapf(ErrShaderCompile, "kernel %q: %v", src.Name, err)
	}
	return pipeline, nil
}

func (b *wgpuBackend) bind(kernel *Kernel, buffers []*Buffer) (any, error) {
	pipeline := kernel.handle.(*wgpu.ComputePipeline)
	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, buf := range buffers {
		entries[i] = wgpu.BindGroupEntry{
			Binding: kernel.src.Layout[i].Slot,
			Buffer:  buf.handle.(*wgpu.Buffer),
			Size:    buf.size,
		}
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   kernel.src.Name,
		Layout:  pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrDimensionMismatch, "kernel %q: %v", kernel.src.Name, err)
	}
	return group, nil
}

func (b *wgpuBackend) submit(passes []Pass) *Submission {
	encodeErr := func(err error) *Submission {
		return &Submission{wait: func(context.Context) error { return err }}
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return encodeErr(errors.Wrapf(ErrDimensionMismatch, "create command encoder: %v", err))
	}
	for _, p := range passes {
		switch pass := p.(type) {
		case ComputePass:
			cp := encoder.BeginComputePass(nil)
			cp.SetPipeline(pass.Bind.kernel.handle.(*wgpu.ComputePipeline))
			cp.SetBindGroup(0, pass.Bind.handle.(*wgpu.BindGroup), nil)
			cp.DispatchWorkgroups(pass.Grid.X, pass.Grid.Y, pass.Grid.Z)
			cp.End()
		case CopyPass:
			encoder.CopyBufferToBuffer(
				pass.Src.handle.(*wgpu.Buffer), pass.SrcOffset,
				pass.Dst.handle.(*wgpu.Buffer), pass.DstOffset,
				pass.Size,
			)
		}
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return encodeErr(errors.Wrapf(ErrDimensionMismatch, "finish command encoder: %v", err))
	}
	b.queue.Submit(cmd)

	return &Submission{wait: func(context.Context) error {
		// Wait for the queue to drain. Coarser than a per-submission fence,
		// still correct: everything submitted before us is also done.
		b.device.Poll(true, nil)
		return nil
	}}
}

func (b *wgpuBackend) mapRead(ctx context.Context, h any, n uint64) ([]byte, error) {
	buf := h.(*wgpu.Buffer)

	done := make(chan struct{})
	var mapErr error
	err := buf.MapAsync(wgpu.MapModeRead, 0, n, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = errors.Wrapf(ErrMapFailed, "map status %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, errors.Wrapf(ErrMapFailed, "map async: %v", err)
	}

	// Cooperatively pump the device until the map callback fires.
	for {
		b.device.Poll(false, nil)
		select {
		case <-done:
			if mapErr != nil {
				return nil, mapErr
			}
			data := buf.GetMappedRange(0, uint(n))
			if data == nil {
				return nil, errors.Wrap(ErrMapFailed, "mapped range unavailable")
			}
			out := make([]byte, n)
			copy(out, data)
			buf.Unmap()
			return out, nil
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrMapFailed, "%v", ctx.Err())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func (b *wgpuBackend) close() {
	// Drain outstanding work; the bindings free native resources with their
	// finalizers once the context drops its references.
	if b.device != nil {
		b.device.Poll(true, nil)
	}
}
