package gpu

import "unsafe"

// ToBytes reinterprets a slice of fixed-size values as its raw bytes.
// The returned slice aliases s; it must not outlive it.
func ToBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// FromBytes reinterprets raw bytes as a slice of fixed-size values.
// len(b) must be a multiple of the element size.
func FromBytes[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/int(unsafe.Sizeof(zero)))
}

// StructBytes reinterprets a single struct as its raw bytes, for uploading
// uniform parameter blocks. The struct's field order and padding must match the
// WGSL-side layout exactly.
func StructBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}
