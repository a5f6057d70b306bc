// Package simd holds the unrolled vector kernels used by the cpu backend.
package simd

import "math"

// SumFloat32 returns the sum of x accumulated in float64.
func SumFloat32(x []float32) float64 {
	var s0, s1, s2, s3 float64
	i := 0
	for ; i <= len(x)-4; i += 4 {
		s0 += float64(x[i])
		s1 += float64(x[i+1])
		s2 += float64(x[i+2])
		s3 += float64(x[i+3])
	}
	for ; i < len(x); i++ {
		s0 += float64(x[i])
	}
	return (s0 + s1) + (s2 + s3)
}

// VecAdd performs dst += src for float64 vectors
func VecAdd(dst, src []float64) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

// Softmax normalizes row in place. The row max is subtracted first so large
// logits do not overflow.
func Softmax(row []float64) {
	if len(row) == 0 {
		return
	}
	maxv := row[0]
	for _, v := range row[1:] {
		if v > maxv {
			maxv = v
		}
	}

	var sum float64
	for i, v := range row {
		row[i] = math.Exp(v - maxv)
		sum += row[i]
	}

	inv := 1.0 / sum
	for i := range row {
		row[i] *= inv
	}
}

// ToFloat32 converts src into dst, which must be at least len(src) long.
func ToFloat32(dst []float32, src []float64) {
	for i, v := range src {
		dst[i] = float32(v)
	}
}
