package device

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrQueueClosed is returned when work is submitted to a closed queue.
	ErrQueueClosed = errors.New("device: queue closed")
	// ErrUnsupported is returned when a runtime is not compiled into this binary.
	ErrUnsupported = errors.New("device: runtime not supported in this build")
)

// Queue is an opaque handle to an in-order execution queue on a device
// (a CUDA stream, or a host worker for the CPU runtime).
// Work submitted to one queue executes in submission order. No ordering is
// implied between different queues.
type Queue interface {
	// ID is unique per runtime.
	ID() uint64

	// String identifies the queue in logs.
	String() string

	// Synchronize blocks until all queued work has completed.
	Synchronize() error

	// Close releases the queue. Pending work is drained first.
	Close() error
}

// Submitter is implemented by queues that execute Go closures.
type Submitter interface {
	// Submit enqueues fn. The returned channel is closed once fn has run.
	Submit(fn func()) (<-chan struct{}, error)
}

// NativeQueue is implemented by queues backed by a driver object.
type NativeQueue interface {
	// Native returns the driver handle, e.g. a cudaStream_t.
	Native() unsafe.Pointer
}

// Runtime creates execution queues on one device.
type Runtime interface {
	Name() string

	// NewQueue creates an independent queue.
	NewQueue() (Queue, error)

	// Close destroys every queue created by this runtime.
	Close() error
}

const (
	RuntimeHost = "host"
	RuntimeCUDA = "cuda"
)

// Open returns the runtime named kind pinned to deviceID.
func Open(kind string, deviceID int) (Runtime, error) {
	switch kind {
	case RuntimeHost:
		return NewHostRuntime(), nil
	case RuntimeCUDA:
		rt, err := NewCudaRuntime(deviceID)
		if err != nil {
			return nil, err
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("device: unknown runtime %q", kind)
	}
}

func checkDeviceID(id, count int) error {
	if id < 0 || id >= count {
		return fmt.Errorf("device %d out of range (%d devices)", id, count)
	}
	return nil
}

// onDevice makes id current with set and then runs fn. fn is skipped when
// the device cannot be selected.
func onDevice(set func(id int) error, id int, fn func() error) error {
	if err := set(id); err != nil {
		return fmt.Errorf("select device %d: %w", id, err)
	}
	return fn()
}
