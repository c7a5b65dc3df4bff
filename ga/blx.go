package ga

import (
	"context"

	"github.com/openfluke/strand/gpu"
)

// blxOptions is the crossover kernel's parameter block.
type blxOptions struct {
	GenerationOffset uint32
	VectorLength     uint32
	ParentsCount     uint32
	MinValue         float32
	MaxValue         float32
}

const blxWGSL = `
struct BlxOptions {
    generation_offset: u32,
    vector_length: u32,
    parents_count: u32,
    min_value: f32,
    max_value: f32,
}

@group(0) @binding(0) var<uniform> opts: BlxOptions;
@group(0) @binding(1) var<storage, read> population: array<f32>;
@group(0) @binding(2) var<storage, read> parents: array<u32>;
@group(0) @binding(3) var<storage, read> random: array<f32>;
@group(0) @binding(4) var<storage, read_write> next: array<f32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let first = population[parents[gid.y * opts.parents_count] * opts.vector_length + gid.x];
    var sum = first;
    var lo = first;
    var hi = first;
    for (var p = 1u; p < opts.parents_count; p = p + 1u) {
        let v = population[parents[gid.y * opts.parents_count + p] * opts.vector_length + gid.x];
        sum = sum + v;
        lo = min(lo, v);
        hi = max(hi, v);
    }
    let center = sum / f32(opts.parents_count);
    let u = random[gid.y * opts.vector_length + gid.x];
    let value = center + (hi - lo) * u;
    next[opts.generation_offset + gid.y * opts.vector_length + gid.x] = clamp(value, opts.min_value, opts.max_value);
}
`

// blxSource builds the crossover kernel. The offspring gene at component x is
// the parents' mean plus their range times the random draw at (y, x), clamped
// to the configured bounds. This is not textbook BLX-alpha: there is no
// alpha-expanded sampling interval, the draw scales the raw parent range.
func blxSource() gpu.KernelSource {
	return gpu.KernelSource{
		Name: "ga_blx_alpha",
		WGSL: blxWGSL,
		Layout: gpu.BindingLayout{
			{Slot: 0, Cap: gpu.Uniform},
			{Slot: 1, Cap: gpu.StorageRead},
			{Slot: 2, Cap: gpu.StorageRead},
			{Slot: 3, Cap: gpu.StorageRead},
			{Slot: 4, Cap: gpu.StorageReadWrite},
		},
		Mirror: blxMirror,
	}
}

func blxMirror(buffers []gpu.MirrorBuffer, grid gpu.Extent) error {
	opts := gpu.FromBytes[blxOptions](buffers[0].Bytes())[0]
	population := buffers[1].F32()
	parents := buffers[2].U32()
	random := buffers[3].F32()
	next := buffers[4].F32()

	vl := int(opts.VectorLength)
	pc := int(opts.ParentsCount)
	for y := 0; y < int(grid.Y); y++ {
		for x := 0; x < int(grid.X); x++ {
			first := population[int(parents[y*pc])*vl+x]
			sum, lo, hi := first, first, first
			for p := 1; p < pc; p++ {
				v := population[int(parents[y*pc+p])*vl+x]
				sum += v
				lo = min(lo, v)
				hi = max(hi, v)
			}
			center := sum / float32(pc)
			value := center + (hi-lo)*random[y*vl+x]
			next[int(opts.GenerationOffset)+y*vl+x] = clampf(value, opts.MinValue, opts.MaxValue)
		}
	}
	return nil
}

func clampf(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

// BLXAlpha is the blend crossover operator. K is the width of the uniform
// random scale: each offspring gene draws u from [-K/2, K/2) and becomes
// clamp(mean(parents) + range(parents)*u). K=1 keeps offspring inside the
// parents' span; larger K explores beyond it.
type BLXAlpha struct {
	K float32

	random  *gpu.Buffer
	uniform *gpu.Buffer
}

func (b *BLXAlpha) Apply(_ context.Context, g *GA) error {
	o := g.Options()
	if b.random == nil {
		if err := b.setup(g); err != nil {
			return err
		}
	}

	draws := make([]float32, o.GenerationSize*o.VectorLength)
	for i := range draws {
		draws[i] = g.uniform(-b.K/2, b.K/2)
	}
	if err := b.random.Write(gpu.ToBytes(draws)); err != nil {
		return err
	}

	kernel, err := g.Context().Compile(blxSource())
	if err != nil {
		return err
	}
	data := g.Data()
	bind, err := kernel.Bind(b.uniform, data.Population, data.Parents, b.random, data.Next)
	if err != nil {
		return err
	}
	_, err = g.Context().Submit(gpu.Compute(bind, gpu.Grid(o.VectorLength, o.GenerationSize)))
	return err
}

// Close releases the operator's device buffers. GA.Close calls it; call it
// directly only when the operator outlives its run.
func (b *BLXAlpha) Close() {
	if b.random != nil {
		b.random.Destroy()
		b.random = nil
	}
	if b.uniform != nil {
		b.uniform.Destroy()
		b.uniform = nil
	}
}

func (b *BLXAlpha) setup(g *GA) error {
	o := g.Options()
	random, err := g.Context().CreateBuffer("ga:blx-random", gpu.StorageRead, o.GenerationSize*o.VectorLength, 4)
	if err != nil {
		return err
	}
	uniform, err := gpu.CreateBufferInit(g.Context(), "ga:blx-options", gpu.Uniform, []blxOptions{{
		GenerationOffset: 0,
		VectorLength:     uint32(o.VectorLength),
		ParentsCount:     uint32(o.ParentsCount),
		MinValue:         o.MinValue,
		MaxValue:         o.MaxValue,
	}})
	if err != nil {
		random.Destroy()
		return err
	}
	b.random, b.uniform = random, uniform
	return nil
}
