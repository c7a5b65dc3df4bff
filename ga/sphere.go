package ga

import "github.com/openfluke/strand/gpu"

const sphereWGSL = `
@group(0) @binding(0) var<storage, read> solutions: array<f32>;
@group(0) @binding(1) var<storage, read_write> results: array<f32>;
@group(0) @binding(2) var<uniform> vector_length: u32;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    var sum = 0.0;
    let base = gid.x * vector_length;
    for (var j = 0u; j < vector_length; j = j + 1u) {
        let v = solutions[base + j];
        sum = sum + v * v;
    }
    results[gid.x] = sum;
}
`

// Sphere builds the sum-of-squares benchmark problem, minimized at the zero
// vector.
func Sphere(ctx *gpu.Context, vectorLength int) (*KernelProblem, error) {
	opts, err := gpu.CreateBufferInit(ctx, "ga:sphere-options", gpu.Uniform, []uint32{uint32(vectorLength)})
	if err != nil {
		return nil, err
	}
	src := gpu.KernelSource{
		Name: "ga_sphere",
		WGSL: sphereWGSL,
		Layout: gpu.BindingLayout{
			{Slot: 0, Cap: gpu.StorageRead},
			{Slot: 1, Cap: gpu.StorageReadWrite},
			{Slot: 2, Cap: gpu.Uniform},
		},
		Mirror: func(buffers []gpu.MirrorBuffer, grid gpu.Extent) error {
			solutions := buffers[0].F32()
			results := buffers[1].F32()
			vl := int(buffers[2].U32()[0])
			for i := 0; i < int(grid.X); i++ {
				var sum float32
				for j := 0; j < vl; j++ {
					v := solutions[i*vl+j]
					sum += v * v
				}
				results[i] = sum
			}
			return nil
		},
	}
	return &KernelProblem{Source: src, Extra: []*gpu.Buffer{opts}}, nil
}
