package pn

import "github.com/openfluke/strand/gpu"

// pnOptions is the parameter block shared by all four kernels.
type pnOptions struct {
	ExamplesCount     uint32
	VectorLength      uint32
	VectorsCount      uint32
	SolutionsCount    uint32
	OutputsCount      uint32
	PermutationsCount uint32
}

const optionsWGSL = `
struct PnOptions {
    examples_count: u32,
    vector_length: u32,
    vectors_count: u32,
    solutions_count: u32,
    outputs_count: u32,
    permutations_count: u32,
}
`

// multiplySource computes, for every (solution vector, example) pair, their
// inner product. Grid: x over examples, y over solutions*vectors_count.
// Output layout: products[(s*vectors_count + v)*examples_count + e].
func multiplySource() gpu.KernelSource {
	return gpu.KernelSource{
		Name: "pn_multiply",
		WGSL: optionsWGSL + `
@group(0) @binding(0) var<uniform> opts: PnOptions;
@group(0) @binding(1) var<storage, read> examples: array<f32>;
@group(0) @binding(2) var<storage, read> solutions: array<f32>;
@group(0) @binding(3) var<storage, read_write> products: array<f32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    var sum = 0.0;
    let example_start = gid.x * opts.vector_length;
    let vector_start = gid.y * opts.vector_length;
    for (var k = 0u; k < opts.vector_length; k = k + 1u) {
        sum = sum + examples[example_start + k] * solutions[vector_start + k];
    }
    products[gid.y * opts.examples_count + gid.x] = sum;
}
`,
		Layout: gpu.BindingLayout{
			{Slot: 0, Cap: gpu.Uniform},
			{Slot: 1, Cap: gpu.StorageRead},
			{Slot: 2, Cap: gpu.StorageRead},
			{Slot: 3, Cap: gpu.StorageReadWrite},
		},
		Mirror: multiplyMirror,
	}
}

func multiplyMirror(buffers []gpu.MirrorBuffer, grid gpu.Extent) error {
	opts := gpu.FromBytes[pnOptions](buffers[0].Bytes())[0]
	examples := buffers[1].F32()
	solutions := buffers[2].F32()
	products := buffers[3].F32()

	vl := int(opts.VectorLength)
	for y := 0; y < int(grid.Y); y++ {
		for x := 0; x < int(grid.X); x++ {
			var sum float32
			for k := 0; k < vl; k++ {
				sum += examples[x*vl+k] * solutions[y*vl+k]
			}
			products[y*int(opts.ExamplesCount)+x] = sum
		}
	}
	return nil
}

// permutationsSource converts each example's dot products under one solution
// into a permutation code. The products are extended with an implicit zero
// element (so the permutation ranges over vectors_count+1 positions), sorted
// descending by an in-place exchange sort with a strict comparison, and the
// resulting index order is Lehmer-encoded. Grid: x over solutions, y over
// examples. Output layout: codes[s*examples_count + e].
func permutationsSource() gpu.KernelSource {
	return gpu.KernelSource{
		Name: "pn_permutations",
		WGSL: optionsWGSL + `
@group(0) @binding(0) var<uniform> opts: PnOptions;
@group(0) @binding(1) var<storage, read> products: array<f32>;
@group(0) @binding(2) var<storage, read_write> codes: array<u32>;

fn factorial(m: u32) -> u32 {
    var result = 1u;
    for (var i = 2u; i <= m; i = i + 1u) {
        result = result * i;
    }
    return result;
}

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let s = gid.x;
    let e = gid.y;
    let n = opts.vectors_count + 1u;

    var values: array<f32, 12>;
    var indices: array<u32, 12>;
    for (var v = 0u; v < opts.vectors_count; v = v + 1u) {
        values[v] = products[(s * opts.vectors_count + v) * opts.examples_count + e];
        indices[v] = v;
    }
    values[opts.vectors_count] = 0.0;
    indices[opts.vectors_count] = opts.vectors_count;

    for (var i = 0u; i + 1u < n; i = i + 1u) {
        for (var j = i + 1u; j < n; j = j + 1u) {
            if (values[j] > values[i]) {
                let value = values[i]; values[i] = values[j]; values[j] = value;
                let index = indices[i]; indices[i] = indices[j]; indices[j] = index;
            }
        }
    }

    var code = 0u;
    for (var i = 0u; i < n; i = i + 1u) {
        var smaller = 0u;
        for (var j = i + 1u; j < n; j = j + 1u) {
            if (indices[j] < indices[i]) {
                smaller = smaller + 1u;
            }
        }
        code = code + smaller * factorial(n - i - 1u);
    }
    codes[s * opts.examples_count + e] = code;
}
`,
		Layout: gpu.BindingLayout{
			{Slot: 0, Cap: gpu.Uniform},
			{Slot: 1, Cap: gpu.StorageRead},
			{Slot: 2, Cap: gpu.StorageReadWrite},
		},
		Mirror: permutationsMirror,
	}
}

func permutationsMirror(buffers []gpu.MirrorBuffer, grid gpu.Extent) error {
	opts := gpu.FromBytes[pnOptions](buffers[0].Bytes())[0]
	products := buffers[1].F32()
	codes := buffers[2].U32()

	vc := int(opts.VectorsCount)
	ec := int(opts.ExamplesCount)
	n := vc + 1
	for s := 0; s < int(grid.X); s++ {
		for e := 0; e < int(grid.Y); e++ {
			values := make([]float32, n)
			indices := make([]int, n)
			for v := 0; v < vc; v++ {
				values[v] = products[(s*vc+v)*ec+e]
				indices[v] = v
			}
			indices[vc] = vc

			for i := 0; i+1 < n; i++ {
				for j := i + 1; j < n; j++ {
					if values[j] > values[i] {
						values[i], values[j] = values[j], values[i]
						indices[i], indices[j] = indices[j], indices[i]
					}
				}
			}

			code, err := Encode(indices)
			if err != nil {
				return err
			}
			codes[s*ec+e] = code
		}
	}
	return nil
}

// resultsSource scores each solution during training. Per solution it zeroes
// its tally slice, counts (permutation code, true label) pairs over all
// examples, assigns each code the label with the highest tally (strict
// comparison, scanning labels in ascending order, so ties keep the lowest
// label), and writes the number of correctly labeled examples. The tallies
// stay in the tally buffer for the host to read a trained solution out.
// Grid: x over solutions.
func resultsSource() gpu.KernelSource {
	return gpu.KernelSource{
		Name: "pn_results",
		WGSL: optionsWGSL + `
@group(0) @binding(0) var<uniform> opts: PnOptions;
@group(0) @binding(1) var<storage, read> labels: array<u32>;
@group(0) @binding(2) var<storage, read> codes: array<u32>;
@group(0) @binding(3) var<storage, read_write> tallies: array<u32>;
@group(0) @binding(4) var<storage, read_write> results: array<f32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let s = gid.x;
    let base = s * opts.permutations_count * opts.outputs_count;

    for (var i = 0u; i < opts.permutations_count * opts.outputs_count; i = i + 1u) {
        tallies[base + i] = 0u;
    }
    for (var e = 0u; e < opts.examples_count; e = e + 1u) {
        let code = codes[s * opts.examples_count + e];
        tallies[base + code * opts.outputs_count + labels[e]] = tallies[base + code * opts.outputs_count + labels[e]] + 1u;
    }

    var matches = 0u;
    for (var e = 0u; e < opts.examples_count; e = e + 1u) {
        let start = base + codes[s * opts.examples_count + e] * opts.outputs_count;
        var best = 0u;
        var best_count = tallies[start];
        for (var o = 1u; o < opts.outputs_count; o = o + 1u) {
            if (tallies[start + o] > best_count) {
                best = o;
                best_count = tallies[start + o];
            }
        }
        if (best == labels[e]) {
            matches = matches + 1u;
        }
    }
    results[s] = f32(matches);
}
`,
		Layout: gpu.BindingLayout{
			{Slot: 0, Cap: gpu.Uniform},
			{Slot: 1, Cap: gpu.StorageRead},
			{Slot: 2, Cap: gpu.StorageRead},
			{Slot: 3, Cap: gpu.StorageReadWrite},
			{Slot: 4, Cap: gpu.StorageReadWrite},
		},
		Mirror: resultsMirror,
	}
}

func resultsMirror(buffers []gpu.MirrorBuffer, grid gpu.Extent) error {
	opts := gpu.FromBytes[pnOptions](buffers[0].Bytes())[0]
	labels := buffers[1].U32()
	codes := buffers[2].U32()
	tallies := buffers[3].U32()
	results := buffers[4].F32()

	ec := int(opts.ExamplesCount)
	oc := int(opts.OutputsCount)
	pc := int(opts.PermutationsCount)
	for s := 0; s < int(grid.X); s++ {
		base := s * pc * oc
		for i := 0; i < pc*oc; i++ {
			tallies[base+i] = 0
		}
		for e := 0; e < ec; e++ {
			tallies[base+int(codes[s*ec+e])*oc+int(labels[e])]++
		}

		matches := 0
		for e := 0; e < ec; e++ {
			start := base + int(codes[s*ec+e])*oc
			best, bestCount := 0, tallies[start]
			for o := 1; o < oc; o++ {
				if tallies[start+o] > bestCount {
					best, bestCount = o, tallies[start+o]
				}
			}
			if uint32(best) == labels[e] {
				matches++
			}
		}
		results[s] = float32(matches)
	}
	return nil
}

// testSource scores a solution against precomputed per-code labels instead of
// deriving them from the evaluated examples; this is how a trained solution
// is validated on held-out data. assigned[s*permutations_count + code] holds
// the label the training run assigned to the code. Grid: x over solutions.
func testSource() gpu.KernelSource {
	return gpu.KernelSource{
		Name: "pn_test",
		WGSL: optionsWGSL + `
@group(0) @binding(0) var<uniform> opts: PnOptions;
@group(0) @binding(1) var<storage, read> labels: array<u32>;
@group(0) @binding(2) var<storage, read> codes: array<u32>;
@group(0) @binding(3) var<storage, read> assigned: array<u32>;
@group(0) @binding(4) var<storage, read_write> results: array<f32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let s = gid.x;
    var matches = 0u;
    for (var e = 0u; e < opts.examples_count; e = e + 1u) {
        let code = codes[s * opts.examples_count + e];
        if (assigned[s * opts.permutations_count + code] == labels[e]) {
            matches = matches + 1u;
        }
    }
    results[s] = f32(matches);
}
`,
		Layout: gpu.BindingLayout{
			{Slot: 0, Cap: gpu.Uniform},
			{Slot: 1, Cap: gpu.StorageRead},
			{Slot: 2, Cap: gpu.StorageRead},
			{Slot: 3, Cap: gpu.StorageRead},
			{Slot: 4, Cap: gpu.StorageReadWrite},
		},
		Mirror: testMirror,
	}
}

func testMirror(buffers []gpu.MirrorBuffer, grid gpu.Extent) error {
	opts := gpu.FromBytes[pnOptions](buffers[0].Bytes())[0]
	labels := buffers[1].U32()
	codes := buffers[2].U32()
	assigned := buffers[3].U32()
	results := buffers[4].F32()

	ec := int(opts.ExamplesCount)
	for s := 0; s < int(grid.X); s++ {
		matches := 0
		for e := 0; e < ec; e++ {
			code := codes[s*ec+e]
			if assigned[s*int(opts.PermutationsCount)+int(code)] == labels[e] {
				matches++
			}
		}
		results[s] = float32(matches)
	}
	return nil
}
