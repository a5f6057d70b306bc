package bench

// Dimensions of the synthesized image batch (NCHW).
const (
	InputChannels = 3
	InputHeight   = 224
	InputWidth    = 224
)

// InputShape returns [batch, 3, 224, 224].
func InputShape(batch int) []int {
	return []int{batch, InputChannels, InputHeight, InputWidth}
}

// SynthesizeInput returns a deterministic input batch and its shape.
// Element i is (i mod 255) * 0.1.
func SynthesizeInput(batch int) ([]float32, []int) {
	shape := InputShape(batch)
	data := make([]float32, batch*InputChannels*InputHeight*InputWidth)
	for i := range data {
		data[i] = float32(float64(i%255) * 0.1)
	}
	return data, shape
}
