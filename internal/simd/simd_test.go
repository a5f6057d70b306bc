package simd

import (
	"math"
	"testing"
)

func TestSumFloat32(t *testing.T) {
	for n := 0; n < 11; n++ {
		x := make([]float32, n)
		want := 0.0
		for i := range x {
			x[i] = float32(i) * 0.5
			want += float64(x[i])
		}
		if got := SumFloat32(x); math.Abs(got-want) > 1e-12 {
			t.Errorf("SumFloat32(len %d) = %f, want %f", n, got, want)
		}
	}
}

func TestVecAdd(t *testing.T) {
	dst := []float64{1, 2, 3, 4, 5}
	src := []float64{10, 20, 30, 40, 50}
	expected := []float64{11, 22, 33, 44, 55}

	VecAdd(dst, src)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecAdd(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestSoftmax(t *testing.T) {
	row := []float64{1, 0}
	Softmax(row)

	e := math.E
	if math.Abs(row[0]-e/(e+1)) > 1e-12 {
		t.Errorf("Softmax[0] = %f, want %f", row[0], e/(e+1))
	}
	if math.Abs(row[0]+row[1]-1) > 1e-12 {
		t.Errorf("Softmax does not sum to 1: %v", row)
	}
}

func TestSoftmax_LargeLogits(t *testing.T) {
	row := []float64{1000, 1000, 1000, 1000}
	Softmax(row)
	for i, v := range row {
		if math.IsNaN(v) || math.Abs(v-0.25) > 1e-12 {
			t.Errorf("Softmax[%d] = %f, want 0.25", i, v)
		}
	}

	Softmax(nil)
}

func TestToFloat32(t *testing.T) {
	dst := make([]float32, 3)
	ToFloat32(dst, []float64{0.5, 1.5, -2})
	if dst[0] != 0.5 || dst[1] != 1.5 || dst[2] != -2 {
		t.Errorf("ToFloat32 = %v", dst)
	}
}
