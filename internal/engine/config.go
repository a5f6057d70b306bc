package engine

import (
	"errors"
	"path/filepath"

	"github.com/23skdu/longbow-batchstream/internal/device"
)

// Default file names inside a model directory.
const (
	ModelFileName  = "__model__"
	ParamsFileName = "__params__"
)

// Config collects predictor options before construction.
type Config struct {
	backend string

	modelDir   string
	modelFile  string
	paramsFile string

	useGPU      bool
	gpuMemoryMB uint64
	deviceID    int

	queue    device.Queue
	memOptim bool
}

// NewConfig returns an empty config for the named backend.
func NewConfig(backend string) *Config {
	return &Config{backend: backend}
}

func (c *Config) Backend() string {
	return c.backend
}

// SetModelDir points the config at a directory holding __model__ and __params__.
func (c *Config) SetModelDir(dir string) {
	c.modelDir = dir
}

// SetModel points the config at a model file and its params file.
// A non-empty model file takes precedence over SetModelDir.
func (c *Config) SetModel(modelFile, paramsFile string) {
	c.modelFile = modelFile
	c.paramsFile = paramsFile
}

func (c *Config) ModelDir() string   { return c.modelDir }
func (c *Config) ModelFile() string  { return c.modelFile }
func (c *Config) ParamsFile() string { return c.paramsFile }

// ModelSource resolves what a backend should load: either a model directory
// or a file pair, never both. A non-empty model file wins; otherwise the
// directory is used.
func (c *Config) ModelSource() (dir, model, params string, err error) {
	if c.modelFile != "" {
		return "", c.modelFile, c.paramsFile, nil
	}
	if c.modelDir != "" {
		return c.modelDir, "", "", nil
	}
	return "", "", "", errors.New("engine: no model configured (set model file or model dir)")
}

// ModelPaths resolves the model and params files to load.
func (c *Config) ModelPaths() (model, params string, err error) {
	dir, model, params, err := c.ModelSource()
	if err != nil || dir == "" {
		return model, params, err
	}
	return filepath.Join(dir, ModelFileName), filepath.Join(dir, ParamsFileName), nil
}

// EnableUseGPU requests GPU execution with a memory pool hint in MB.
func (c *Config) EnableUseGPU(memoryPoolMB uint64, deviceID int) {
	c.useGPU = true
	c.gpuMemoryMB = memoryPoolMB
	c.deviceID = deviceID
}

func (c *Config) UseGPU() bool        { return c.useGPU }
func (c *Config) GPUMemoryMB() uint64 { return c.gpuMemoryMB }
func (c *Config) DeviceID() int       { return c.deviceID }

// SetExecQueue binds the queue runs execute on unless overridden per call.
func (c *Config) SetExecQueue(q device.Queue) {
	c.queue = q
}

func (c *Config) ExecQueue() device.Queue {
	return c.queue
}

// EnableMemoryOptim turns on buffer reuse between runs.
func (c *Config) EnableMemoryOptim() {
	c.memOptim = true
}

func (c *Config) MemoryOptimEnabled() bool {
	return c.memOptim
}
