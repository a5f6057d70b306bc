//go:build linux && cuda

package device

/*
#cgo LDFLAGS: -lcudart
#include <cuda_runtime.h>
*/
import "C"
import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Check interface compliance
var _ Runtime = (*CudaRuntime)(nil)
var _ Queue = (*CudaQueue)(nil)
var _ NativeQueue = (*CudaQueue)(nil)

type CudaRuntime struct {
	device int
	nextID atomic.Uint64

	mu     sync.Mutex
	queues []*CudaQueue
}

func cudaError(op string, rc C.cudaError_t) error {
	return fmt.Errorf("cuda: %s: %s", op, C.GoString(C.cudaGetErrorString(rc)))
}

func setDevice(id int) error {
	if rc := C.cudaSetDevice(C.int(id)); rc != C.cudaSuccess {
		return cudaError("cudaSetDevice", rc)
	}
	return nil
}

// onCudaDevice runs fn on a locked OS thread whose current device is id.
// cudaSetDevice is per host thread, so every stream call goes through here.
func onCudaDevice(id int, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return onDevice(setDevice, id, fn)
}

// DeviceCount returns the number of visible CUDA devices.
func DeviceCount() (int, error) {
	var count C.int
	if rc := C.cudaGetDeviceCount(&count); rc != C.cudaSuccess {
		return 0, cudaError("cudaGetDeviceCount", rc)
	}
	return int(count), nil
}

// NewCudaRuntime creates queues on deviceID.
func NewCudaRuntime(deviceID int) (*CudaRuntime, error) {
	count, err := DeviceCount()
	if err != nil {
		return nil, err
	}
	if err := checkDeviceID(deviceID, count); err != nil {
		return nil, err
	}
	if err := onCudaDevice(deviceID, func() error { return nil }); err != nil {
		return nil, err
	}
	return &CudaRuntime{device: deviceID}, nil
}

func (r *CudaRuntime) Name() string {
	return RuntimeCUDA
}

// Device returns the device index streams are created on.
func (r *CudaRuntime) Device() int {
	return r.device
}

func (r *CudaRuntime) NewQueue() (Queue, error) {
	var stream C.cudaStream_t
	err := onCudaDevice(r.device, func() error {
		if rc := C.cudaStreamCreate(&stream); rc != C.cudaSuccess {
			return cudaError("cudaStreamCreate", rc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	q := &CudaQueue{id: r.nextID.Add(1), device: r.device, stream: stream}

	r.mu.Lock()
	r.queues = append(r.queues, q)
	r.mu.Unlock()

	queuesCreated.WithLabelValues(RuntimeCUDA).Inc()
	queuesActive.WithLabelValues(RuntimeCUDA).Inc()
	return q, nil
}

func (r *CudaRuntime) Close() error {
	r.mu.Lock()
	queues := r.queues
	r.queues = nil
	r.mu.Unlock()

	var errs []error
	for _, q := range queues {
		if err := q.Close(); err != nil && !errors.Is(err, ErrQueueClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CudaQueue wraps a cudaStream_t.
type CudaQueue struct {
	id     uint64
	device int
	stream C.cudaStream_t

	mu     sync.Mutex
	closed bool
}

func (q *CudaQueue) ID() uint64 {
	return q.id
}

// String prints the stream address, which is what the driver tools show.
func (q *CudaQueue) String() string {
	return fmt.Sprintf("%p", unsafe.Pointer(q.stream))
}

func (q *CudaQueue) Native() unsafe.Pointer {
	return unsafe.Pointer(q.stream)
}

func (q *CudaQueue) Synchronize() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	return onCudaDevice(q.device, func() error {
		if rc := C.cudaStreamSynchronize(q.stream); rc != C.cudaSuccess {
			return cudaError("cudaStreamSynchronize", rc)
		}
		return nil
	})
}

func (q *CudaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.closed = true
	queuesActive.WithLabelValues(RuntimeCUDA).Dec()
	return onCudaDevice(q.device, func() error {
		if rc := C.cudaStreamDestroy(q.stream); rc != C.cudaSuccess {
			return cudaError("cudaStreamDestroy", rc)
		}
		return nil
	})
}
