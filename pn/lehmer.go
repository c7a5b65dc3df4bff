package pn

import "github.com/pkg/errors"

// MaxElements is the largest permutation size the Lehmer coding supports.
// 12! is the last factorial a u32 holds, and the kernels' scratch arrays are
// sized to match.
const MaxElements = 12

func factorial(n int) uint32 {
	result := uint32(1)
	for i := 2; i <= n; i++ {
		result *= uint32(i)
	}
	return result
}

// Encode converts a permutation of 0..len(perm)-1 into its Lehmer code, an
// integer in [0, len(perm)!): for each position, the number of later
// positions holding a smaller element, weighted by the factorial of the
// remaining length.
func Encode(perm []int) (uint32, error) {
	n := len(perm)
	if n < 1 || n > MaxElements {
		return 0, errors.Errorf("pn: permutation of %d elements, supported range is 1..%d", n, MaxElements)
	}
	var code uint32
	for i := 0; i < n; i++ {
		smaller := uint32(0)
		for j := i + 1; j < n; j++ {
			if perm[j] < perm[i] {
				smaller++
			}
		}
		code += smaller * factorial(n-i-1)
	}
	return code, nil
}

// Decode is the inverse of Encode: it reconstructs the permutation of n
// elements with the given Lehmer code.
func Decode(code uint32, n int) ([]int, error) {
	if n < 1 || n > MaxElements {
		return nil, errors.Errorf("pn: permutation of %d elements, supported range is 1..%d", n, MaxElements)
	}
	if code >= factorial(n) {
		return nil, errors.Errorf("pn: code %d out of range for %d elements", code, n)
	}

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}
	perm := make([]int, n)
	for i := 0; i < n; i++ {
		f := factorial(n - i - 1)
		digit := int(code / f)
		code %= f
		perm[i] = remaining[digit]
		remaining = append(remaining[:digit], remaining[digit+1:]...)
	}
	return perm, nil
}
