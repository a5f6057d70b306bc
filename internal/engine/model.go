package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gonum.org/v1/gonum/mat"
)

// TensorDesc declares a model input or output. A -1 dimension is dynamic.
type TensorDesc struct {
	Name  string `cbor:"name"`
	Shape []int  `cbor:"shape"`
}

// ModelDesc is the model file of the cpu backend: a pooled linear classifier
// over NCHW images.
type ModelDesc struct {
	Name     string       `cbor:"name"`
	Inputs   []TensorDesc `cbor:"inputs"`
	Outputs  []TensorDesc `cbor:"outputs"`
	Channels int          `cbor:"channels"`
	Classes  int          `cbor:"classes"`
}

func (d ModelDesc) Validate() error {
	if d.Channels <= 0 {
		return fmt.Errorf("invalid channels: %d (must be positive)", d.Channels)
	}
	if d.Classes <= 0 {
		return fmt.Errorf("invalid classes: %d (must be positive)", d.Classes)
	}
	if len(d.Inputs) == 0 {
		return errors.New("model declares no inputs")
	}
	if len(d.Outputs) == 0 {
		return errors.New("model declares no outputs")
	}
	return nil
}

// ParamCount is the number of float32 values the params file must hold.
func (d ModelDesc) ParamCount() int {
	return d.Classes*d.Channels + d.Classes
}

// LoadModelDesc decodes a CBOR model file.
func LoadModelDesc(path string) (ModelDesc, error) {
	var d ModelDesc
	f, err := os.Open(path)
	if err != nil {
		return d, err
	}
	defer f.Close()

	if err := cbor.NewDecoder(f).Decode(&d); err != nil {
		return d, fmt.Errorf("decode model %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("model %s: %w", path, err)
	}
	return d, nil
}

// WriteModelDesc encodes d as CBOR to path.
func WriteModelDesc(path string, d ModelDesc) error {
	data, err := cbor.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadParams reads a raw little-endian float32 params file: the classes x channels
// weight matrix in row-major order followed by the classes bias values.
func LoadParams(path string, d ModelDesc) (*mat.Dense, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	weights := make([]float32, d.Classes*d.Channels)
	if err := binary.Read(f, binary.LittleEndian, weights); err != nil {
		return nil, nil, fmt.Errorf("failed to load weights: %w", err)
	}
	bias := make([]float32, d.Classes)
	if err := binary.Read(f, binary.LittleEndian, bias); err != nil {
		return nil, nil, fmt.Errorf("failed to load bias: %w", err)
	}

	// Trailing data means the params belong to a different model
	var extra [1]byte
	if n, _ := f.Read(extra[:]); n != 0 {
		return nil, nil, fmt.Errorf("params file %s larger than %d values", path, d.ParamCount())
	}

	w := mat.NewDense(d.Classes, d.Channels, nil)
	for i := 0; i < d.Classes; i++ {
		for j := 0; j < d.Channels; j++ {
			w.Set(i, j, float64(weights[i*d.Channels+j]))
		}
	}
	b := make([]float64, d.Classes)
	for i, v := range bias {
		b[i] = float64(v)
	}
	return w, b, nil
}

// WriteParams writes weights and bias in the LoadParams layout.
func WriteParams(w io.Writer, weights, bias []float32) error {
	if err := binary.Write(w, binary.LittleEndian, weights); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, bias)
}
