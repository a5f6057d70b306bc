package engine

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-batchstream/internal/device"
)

// writeModel stores a 3-channel, 2-class classifier whose class 0 follows
// channel 0 and class 1 follows channel 1.
func writeModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	desc := ModelDesc{
		Name:     "test",
		Inputs:   []TensorDesc{{Name: "image", Shape: []int{-1, 3, -1, -1}}},
		Outputs:  []TensorDesc{{Name: "prob", Shape: []int{-1, 2}}},
		Channels: 3,
		Classes:  2,
	}
	require.NoError(t, WriteModelDesc(filepath.Join(dir, ModelFileName), desc))

	var buf bytes.Buffer
	weights := []float32{
		1, 0, 0,
		0, 1, 0,
	}
	require.NoError(t, WriteParams(&buf, weights, []float32{0, 0}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ParamsFileName), buf.Bytes(), 0o644))
	return dir
}

func TestConfig_ModelPaths(t *testing.T) {
	t.Run("File pair wins over dir", func(t *testing.T) {
		cfg := NewConfig(BackendCPU)
		cfg.SetModelDir("/models/resnet")
		cfg.SetModel("/models/a.pdmodel", "/models/a.pdiparams")

		model, params, err := cfg.ModelPaths()
		require.NoError(t, err)
		assert.Equal(t, "/models/a.pdmodel", model)
		assert.Equal(t, "/models/a.pdiparams", params)
	})

	t.Run("Dir used when no model file", func(t *testing.T) {
		cfg := NewConfig(BackendCPU)
		cfg.SetModelDir("/models/resnet")
		cfg.SetModel("", "")

		model, params, err := cfg.ModelPaths()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/models/resnet", ModelFileName), model)
		assert.Equal(t, filepath.Join("/models/resnet", ParamsFileName), params)
	})

	t.Run("Nothing configured", func(t *testing.T) {
		_, _, err := NewConfig(BackendCPU).ModelPaths()
		assert.Error(t, err)
	})
}

func TestConfig_ModelSource(t *testing.T) {
	cfg := NewConfig("paddle")
	cfg.SetModelDir("/models/resnet")
	cfg.SetModel("", "")

	dir, model, params, err := cfg.ModelSource()
	require.NoError(t, err)
	assert.Equal(t, "/models/resnet", dir)
	assert.Empty(t, model)
	assert.Empty(t, params)

	cfg.SetModel("/models/a.pdmodel", "/models/a.pdiparams")
	dir, model, params, err = cfg.ModelSource()
	require.NoError(t, err)
	assert.Empty(t, dir)
	assert.Equal(t, "/models/a.pdmodel", model)
	assert.Equal(t, "/models/a.pdiparams", params)

	_, _, _, err = NewConfig("paddle").ModelSource()
	assert.Error(t, err)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(NewConfig("tensorrt"))
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, Backends(), BackendCPU)
}

func TestNew_MissingModel(t *testing.T) {
	cfg := NewConfig(BackendCPU)
	cfg.SetModel(filepath.Join(t.TempDir(), "missing"), "")
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestCPUPredictor_Forward(t *testing.T) {
	dir := writeModel(t)

	for _, memOptim := range []bool{false, true} {
		cfg := NewConfig(BackendCPU)
		cfg.SetModelDir(dir)
		cfg.EnableUseGPU(500, 0)
		if memOptim {
			cfg.EnableMemoryOptim()
		}

		p, err := New(cfg)
		require.NoError(t, err)

		require.Equal(t, []string{"image"}, p.InputNames())
		require.Equal(t, []string{"prob"}, p.OutputNames())

		in, err := p.InputHandle("image")
		require.NoError(t, err)
		// Batch of 2, 2x2 spatial. Image 0 is all channel 0, image 1 all channel 1.
		require.NoError(t, in.Reshape([]int{2, 3, 2, 2}))
		require.NoError(t, in.CopyFromHost([]float32{
			1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0,
		}))

		for i := 0; i < 3; i++ {
			require.NoError(t, p.Run())
		}

		out, err := p.OutputHandle("prob")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, out.Shape())

		got := make([]float32, NumElements(out.Shape()))
		require.NoError(t, out.CopyToHost(got))

		hi := float32(math.E / (math.E + 1))
		lo := float32(1 / (math.E + 1))
		assert.InDeltaSlice(t, []float32{hi, lo, lo, hi}, got, 1e-6)
		assert.InDelta(t, 1.0, got[0]+got[1], 1e-6)
		require.NoError(t, p.Close())
	}
}

func TestCPUPredictor_Reshape(t *testing.T) {
	cfg := NewConfig(BackendCPU)
	cfg.SetModelDir(writeModel(t))
	p, err := New(cfg)
	require.NoError(t, err)

	in, err := p.InputHandle("image")
	require.NoError(t, err)

	assert.Error(t, in.Reshape([]int{1, 4, 2, 2}), "channel count is fixed by the model")
	assert.Error(t, in.Reshape([]int{1, 3, 2}), "rank mismatch")
	assert.Error(t, in.Reshape([]int{0, 3, 2, 2}), "zero dimension")
	assert.NoError(t, in.Reshape([]int{1, 3, 8, 8}))
	assert.Error(t, in.CopyFromHost(make([]float32, 10)), "short buffer")

	_, err = p.InputHandle("label")
	assert.ErrorIs(t, err, ErrUnknownTensor)
	_, err = p.OutputHandle("logits")
	assert.ErrorIs(t, err, ErrUnknownTensor)
}

type foreignQueue struct{}

func (foreignQueue) ID() uint64         { return 99 }
func (foreignQueue) String() string     { return "foreign" }
func (foreignQueue) Synchronize() error { return nil }
func (foreignQueue) Close() error       { return nil }

func TestCPUPredictor_Queues(t *testing.T) {
	rt := device.NewHostRuntime()
	defer rt.Close()

	def, err := rt.NewQueue()
	require.NoError(t, err)
	other, err := rt.NewQueue()
	require.NoError(t, err)

	cfg := NewConfig(BackendCPU)
	cfg.SetModelDir(writeModel(t))
	cfg.SetExecQueue(def)
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, def.ID(), p.ExecQueue().ID())

	in, _ := p.InputHandle("image")
	require.NoError(t, in.Reshape([]int{1, 3, 1, 1}))
	require.NoError(t, in.CopyFromHost([]float32{1, 2, 3}))

	require.NoError(t, p.Run())
	assert.Equal(t, def.ID(), p.ExecQueue().ID())

	require.NoError(t, p.RunWithQueue(other))
	assert.Equal(t, other.ID(), p.ExecQueue().ID(), "RunWithQueue rebinds the exec queue")

	err = p.RunWithQueue(foreignQueue{})
	assert.ErrorIs(t, err, ErrQueueUnsupported)

	require.NoError(t, other.Close())
	err = p.RunWithQueue(other)
	assert.ErrorIs(t, err, device.ErrQueueClosed)
}

func TestCPUPredictor_ForwardErrors(t *testing.T) {
	cfg := NewConfig(BackendCPU)
	cfg.SetModelDir(writeModel(t))
	p, err := New(cfg)
	require.NoError(t, err)

	// Not shaped yet
	assert.Error(t, p.Run())

	in, _ := p.InputHandle("image")
	require.NoError(t, in.Reshape([]int{1, 3, 2, 2}))
	// Shaped but never copied
	assert.Error(t, p.Run())
}

func TestLoadParams_SizeMismatch(t *testing.T) {
	dir := writeModel(t)
	desc, err := LoadModelDesc(filepath.Join(dir, ModelFileName))
	require.NoError(t, err)

	short := filepath.Join(dir, "short")
	var buf bytes.Buffer
	require.NoError(t, WriteParams(&buf, []float32{1, 2, 3}, nil))
	require.NoError(t, os.WriteFile(short, buf.Bytes(), 0o644))
	_, _, err = LoadParams(short, desc)
	assert.Error(t, err)

	long := filepath.Join(dir, "long")
	buf.Reset()
	require.NoError(t, WriteParams(&buf, make([]float32, 6), make([]float32, 3)))
	require.NoError(t, os.WriteFile(long, buf.Bytes(), 0o644))
	_, _, err = LoadParams(long, desc)
	assert.Error(t, err)

	_, _, err = LoadParams(filepath.Join(dir, "non_existent_file"), desc)
	assert.Error(t, err)
}

func TestWriteReferenceModel(t *testing.T) {
	m := DefaultReferenceModel()
	m.Classes = 10
	modelPath, paramsPath, err := WriteReferenceModel(t.TempDir(), m)
	require.NoError(t, err)

	cfg := NewConfig(BackendCPU)
	cfg.SetModel(modelPath, paramsPath)
	cfg.EnableMemoryOptim()
	p, err := New(cfg)
	require.NoError(t, err)

	in, _ := p.InputHandle(p.InputNames()[0])
	require.NoError(t, in.Reshape([]int{1, 3, 224, 224}))
	require.NoError(t, in.CopyFromHost(make([]float32, 3*224*224)))
	require.NoError(t, p.Run())

	out, _ := p.OutputHandle(p.OutputNames()[0])
	assert.Equal(t, []int{1, 10}, out.Shape())
}

func TestNumElements(t *testing.T) {
	assert.Equal(t, 2*3*224*224, NumElements([]int{2, 3, 224, 224}))
	assert.Equal(t, 1, NumElements(nil))
}
