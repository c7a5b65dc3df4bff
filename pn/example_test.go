package pn

// Shared fixture: ten 2-component examples on the x+y=9 diagonal, four label
// classes, five candidate solutions of two vectors each. Expected values were
// verified by hand against the kernel contracts.

func exampleOptions() pnOptions {
	return pnOptions{
		ExamplesCount:     10,
		VectorLength:      2,
		VectorsCount:      2,
		SolutionsCount:    5,
		OutputsCount:      4,
		PermutationsCount: 6,
	}
}

func exampleExamples() []float32 {
	return []float32{
		0, 9,
		1, 8,
		2, 7,
		3, 6,
		4, 5,
		5, 4,
		6, 3,
		7, 2,
		8, 1,
		9, 0,
	}
}

func exampleLabels() []uint32 {
	return []uint32{1, 1, 1, 2, 2, 2, 3, 3, 3, 0}
}

func exampleVectors() []float32 {
	return []float32{
		1.0, -0.5, -0.25, 0.5,
		1.0, 0.5, 0.25, 1.5,
		-1.0, -0.5, -0.25, -1.5,
		1.0, 1.0, -1.0, -1.0,
		0.0, 0.0, 0.0, 0.0,
	}
}

// exampleProducts computes the expected multiply output directly from the
// definition.
func exampleProducts() []float32 {
	opts := exampleOptions()
	examples := exampleExamples()
	vectors := exampleVectors()
	vl := int(opts.VectorLength)

	var products []float32
	for v := 0; v < int(opts.VectorsCount*opts.SolutionsCount); v++ {
		for e := 0; e < int(opts.ExamplesCount); e++ {
			var sum float32
			for k := 0; k < vl; k++ {
				sum += examples[e*vl+k] * vectors[v*vl+k]
			}
			products = append(products, sum)
		}
	}
	return products
}

func exampleCodes() []uint32 {
	return []uint32{
		3, 3, 3, 2, 0, 0, 0, 1, 1, 1,
		2, 2, 2, 2, 2, 2, 0, 0, 0, 0,
		4, 4, 4, 4, 4, 4, 5, 5, 5, 5,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
}

func exampleResults() []float32 {
	return []float32{8, 6, 6, 3, 3}
}
