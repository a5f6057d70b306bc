package engine

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat/distuv"
)

// ReferenceModel describes a generated cpu classifier.
type ReferenceModel struct {
	Name     string
	Channels int
	Classes  int
	Seed     uint64
}

// DefaultReferenceModel matches the 3x224x224 input the benchmark synthesizes.
func DefaultReferenceModel() ReferenceModel {
	return ReferenceModel{
		Name:     "reference-classifier",
		Channels: 3,
		Classes:  1000,
		Seed:     42,
	}
}

// WriteReferenceModel writes __model__ and __params__ with normally distributed
// weights into dir and returns their paths.
func WriteReferenceModel(dir string, m ReferenceModel) (modelPath, paramsPath string, err error) {
	desc := ModelDesc{
		Name:     m.Name,
		Inputs:   []TensorDesc{{Name: "x", Shape: []int{-1, m.Channels, -1, -1}}},
		Outputs:  []TensorDesc{{Name: "softmax_0.tmp_0", Shape: []int{-1, m.Classes}}},
		Channels: m.Channels,
		Classes:  m.Classes,
	}
	if err := desc.Validate(); err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	modelPath = filepath.Join(dir, ModelFileName)
	paramsPath = filepath.Join(dir, ParamsFileName)

	if err := WriteModelDesc(modelPath, desc); err != nil {
		return "", "", fmt.Errorf("write model: %w", err)
	}

	dist := distuv.Normal{Mu: 0, Sigma: 0.02, Src: rand.NewPCG(m.Seed, m.Seed^0x9e3779b97f4a7c15)}
	weights := make([]float32, m.Classes*m.Channels)
	for i := range weights {
		weights[i] = float32(dist.Rand())
	}
	bias := make([]float32, m.Classes)

	f, err := os.Create(paramsPath)
	if err != nil {
		return "", "", err
	}
	if err := WriteParams(f, weights, bias); err != nil {
		_ = f.Close()
		return "", "", fmt.Errorf("write params: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", err
	}
	return modelPath, paramsPath, nil
}
