//go:build paddle

package paddle

/*
#cgo CXXFLAGS: -std=c++14
#cgo LDFLAGS: -lpaddle_inference -lcudart -lstdc++
#include <stdlib.h>
#include "paddle_bridge.h"
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-batchstream/internal/device"
	"github.com/23skdu/longbow-batchstream/internal/engine"
)

const maxRank = 8

func init() {
	engine.Register(Backend, New)
}

// Check interface compliance
var _ engine.Predictor = (*Predictor)(nil)
var _ engine.Tensor = (*tensor)(nil)

// Predictor wraps a paddle_infer::Predictor through the C bridge.
type Predictor struct {
	ref     C.PaddlePredictorRef
	inputs  []string
	outputs []string

	mu    sync.Mutex
	queue device.Queue
}

func nativeStream(q device.Queue) (unsafe.Pointer, error) {
	if q == nil {
		return nil, nil
	}
	nq, ok := q.(device.NativeQueue)
	if !ok {
		return nil, fmt.Errorf("%w: paddle backend needs a CUDA stream, got %s", engine.ErrQueueUnsupported, q)
	}
	return nq.Native(), nil
}

// New creates the predictor; GPU execution needs queues from the cuda runtime.
func New(cfg *engine.Config) (engine.Predictor, error) {
	stream, err := nativeStream(cfg.ExecQueue())
	if err != nil {
		return nil, err
	}

	dir, model, params, err := cfg.ModelSource()
	if err != nil {
		return nil, err
	}
	cDir := C.CString(dir)
	defer C.free(unsafe.Pointer(cDir))
	cModel := C.CString(model)
	defer C.free(unsafe.Pointer(cModel))
	cParams := C.CString(params)
	defer C.free(unsafe.Pointer(cParams))

	opts := C.PaddleOptions{
		model_dir:    cDir,
		model_file:   cModel,
		params_file:  cParams,
		gpu_mem_mb:   C.uint64_t(cfg.GPUMemoryMB()),
		device_id:    C.int(cfg.DeviceID()),
		exec_stream:  stream,
		use_gpu:      boolToC(cfg.UseGPU()),
		memory_optim: boolToC(cfg.MemoryOptimEnabled()),
	}

	var errBuf [512]C.char
	ref := C.Paddle_Create(&opts, &errBuf[0], C.int(len(errBuf)))
	if ref == nil {
		return nil, fmt.Errorf("paddle: %s", C.GoString(&errBuf[0]))
	}

	p := &Predictor{ref: ref, queue: cfg.ExecQueue()}
	p.inputs = names(ref, int(C.Paddle_NumInputs(ref)), false)
	p.outputs = names(ref, int(C.Paddle_NumOutputs(ref)), true)

	log.Info().
		Str("model_dir", dir).
		Str("model_file", model).
		Strs("inputs", p.inputs).
		Strs("outputs", p.outputs).
		Bool("gpu", cfg.UseGPU()).
		Msg("Loaded paddle model")
	return p, nil
}

// Backend is the registry name of this backend.
const Backend = "paddle"

func boolToC(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func names(ref C.PaddlePredictorRef, n int, outputs bool) []string {
	var buf [256]C.char
	res := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var l C.int
		if outputs {
			l = C.Paddle_OutputName(ref, C.int(i), &buf[0], C.int(len(buf)))
		} else {
			l = C.Paddle_InputName(ref, C.int(i), &buf[0], C.int(len(buf)))
		}
		if l < 0 {
			continue
		}
		res = append(res, C.GoStringN(&buf[0], l))
	}
	return res
}

func (p *Predictor) InputNames() []string  { return append([]string(nil), p.inputs...) }
func (p *Predictor) OutputNames() []string { return append([]string(nil), p.outputs...) }

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (p *Predictor) InputHandle(name string) (engine.Tensor, error) {
	if !contains(p.inputs, name) {
		return nil, fmt.Errorf("%w: input %q", engine.ErrUnknownTensor, name)
	}
	return &tensor{p: p, name: name}, nil
}

func (p *Predictor) OutputHandle(name string) (engine.Tensor, error) {
	if !contains(p.outputs, name) {
		return nil, fmt.Errorf("%w: output %q", engine.ErrUnknownTensor, name)
	}
	return &tensor{p: p, name: name, output: true}, nil
}

func (p *Predictor) ExecQueue() device.Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue
}

func (p *Predictor) Run() error {
	if C.Paddle_Run(p.ref) == 0 {
		return fmt.Errorf("paddle: run failed")
	}
	return nil
}

func (p *Predictor) RunWithQueue(q device.Queue) error {
	stream, err := nativeStream(q)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.queue = q
	p.mu.Unlock()

	if C.Paddle_RunWithExternalStream(p.ref, stream) == 0 {
		return fmt.Errorf("paddle: run on stream %s failed", q)
	}
	return nil
}

func (p *Predictor) Close() error {
	if p.ref != nil {
		C.Paddle_Destroy(p.ref)
		p.ref = nil
	}
	return nil
}

type tensor struct {
	p      *Predictor
	name   string
	output bool
}

func (t *tensor) Name() string {
	return t.name
}

func (t *tensor) Reshape(shape []int) error {
	if t.output {
		return fmt.Errorf("paddle: cannot reshape output %s", t.name)
	}
	if len(shape) == 0 || len(shape) > maxRank {
		return fmt.Errorf("paddle: reshape %s: unsupported rank %d", t.name, len(shape))
	}
	dims := make([]C.int32_t, len(shape))
	for i, d := range shape {
		dims[i] = C.int32_t(d)
	}
	cName := C.CString(t.name)
	defer C.free(unsafe.Pointer(cName))
	if C.Paddle_Reshape(t.p.ref, cName, &dims[0], C.int(len(dims))) == 0 {
		return fmt.Errorf("paddle: reshape %s to %v failed", t.name, shape)
	}
	return nil
}

func (t *tensor) Shape() []int {
	var dims [maxRank]C.int32_t
	cName := C.CString(t.name)
	defer C.free(unsafe.Pointer(cName))
	rank := C.Paddle_Shape(t.p.ref, cName, boolToC(t.output), &dims[0], maxRank)
	if rank < 0 {
		return nil
	}
	shape := make([]int, int(rank))
	for i := range shape {
		shape[i] = int(dims[i])
	}
	return shape
}

func (t *tensor) CopyFromHost(data []float32) error {
	n := engine.NumElements(t.Shape())
	if len(data) < n {
		return fmt.Errorf("paddle: copy to %s: %d values for %d elements", t.name, len(data), n)
	}
	if n == 0 {
		return nil
	}
	cName := C.CString(t.name)
	defer C.free(unsafe.Pointer(cName))
	if C.Paddle_CopyFromCpu(t.p.ref, cName, (*C.float)(unsafe.Pointer(&data[0]))) == 0 {
		return fmt.Errorf("paddle: copy to %s failed", t.name)
	}
	return nil
}

func (t *tensor) CopyToHost(dst []float32) error {
	n := engine.NumElements(t.Shape())
	if len(dst) < n {
		return fmt.Errorf("paddle: copy from %s: destination holds %d of %d values", t.name, len(dst), n)
	}
	if n == 0 {
		return nil
	}
	cName := C.CString(t.name)
	defer C.free(unsafe.Pointer(cName))
	if C.Paddle_CopyToCpu(t.p.ref, cName, (*C.float)(unsafe.Pointer(&dst[0]))) == 0 {
		return fmt.Errorf("paddle: copy from %s failed", t.name)
	}
	return nil
}
