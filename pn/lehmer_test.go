package pn

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBijection(t *testing.T) {
	for n := 2; n <= 8; n++ {
		count := int(factorial(n))
		seen := make(map[uint32]bool, count)
		for code := 0; code < count; code++ {
			perm, err := Decode(uint32(code), n)
			require.NoError(t, err)
			back, err := Encode(perm)
			require.NoError(t, err)
			require.Equal(t, uint32(code), back, "n=%d", n)
			seen[back] = true
		}
		assert.Len(t, seen, count, "every code of n=%d must decode to a distinct permutation", n)
	}
}

// Descending dot products [0.5, 0.9, 0.1] order as indices [1, 0, 2], whose
// factorial-number-system code is 1*2! + 0*1! + 0*0! = 2.
func TestEncodeDotProductOrder(t *testing.T) {
	dots := []float32{0.5, 0.9, 0.1}
	indices := []int{0, 1, 2}
	sort.SliceStable(indices, func(a, b int) bool { return dots[indices[a]] > dots[indices[b]] })
	assert.Equal(t, []int{1, 0, 2}, indices)

	code, err := Encode(indices)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), code)
}

func TestEncodeDecodeBounds(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
	_, err = Encode(make([]int, MaxElements+1))
	assert.Error(t, err)

	_, err = Decode(0, 0)
	assert.Error(t, err)
	_, err = Decode(6, 3) // 3! == 6 is one past the last valid code
	assert.Error(t, err)

	perm, err := Decode(5, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, perm)
}
