package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/23skdu/longbow-batchstream/internal/device"
)

var (
	// ErrUnknownBackend is returned by New for unregistered backend names.
	ErrUnknownBackend = errors.New("engine: unknown backend")
	// ErrUnknownTensor is returned when a tensor slot name is not declared by the model.
	ErrUnknownTensor = errors.New("engine: unknown tensor")
	// ErrQueueUnsupported is returned when a backend cannot execute on the given queue.
	ErrQueueUnsupported = errors.New("engine: queue not supported by backend")
)

// Tensor is a named input or output slot of a loaded model.
type Tensor interface {
	Name() string

	// Reshape sets the slot's dimensions for the next run.
	Reshape(shape []int) error

	// Shape returns the current dimensions.
	Shape() []int

	// CopyFromHost copies product(Shape()) values from data into the slot.
	CopyFromHost(data []float32) error

	// CopyToHost copies product(Shape()) values from the slot into dst.
	CopyToHost(dst []float32) error
}

// Predictor is a loaded, configured model ready to execute forward passes.
// A Predictor binds one input and one output buffer per slot, so it must not
// be run from more than one goroutine at a time.
type Predictor interface {
	InputNames() []string
	OutputNames() []string

	InputHandle(name string) (Tensor, error)
	OutputHandle(name string) (Tensor, error)

	// Run executes one forward pass on the currently bound queue.
	Run() error

	// RunWithQueue binds q as the execution queue and executes one pass on it.
	// The binding persists for later calls to Run.
	RunWithQueue(q device.Queue) error

	// ExecQueue returns the currently bound queue.
	ExecQueue() device.Queue

	Close() error
}

// Factory builds a predictor from a config.
type Factory func(cfg *Config) (Predictor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available to New. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for backend " + name)
	}
	registry[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a predictor for cfg using the backend named in cfg.
func New(cfg *Config) (Predictor, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Backend()]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, cfg.Backend(), Backends())
	}

	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s predictor: %w", cfg.Backend(), err)
	}
	return p, nil
}

// NumElements returns the product of shape.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
