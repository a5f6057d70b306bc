package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-batchstream/internal/device"
	"github.com/23skdu/longbow-batchstream/internal/simd"
)

// BackendCPU is the built-in reference backend.
const BackendCPU = "cpu"

func init() {
	Register(BackendCPU, NewCPUPredictor)
}

// ensure interface compliance
var _ Predictor = (*CPUPredictor)(nil)
var _ Tensor = (*cpuTensor)(nil)

type cpuTensor struct {
	desc  TensorDesc
	shape []int
	data  []float32
}

func (t *cpuTensor) Name() string {
	return t.desc.Name
}

func (t *cpuTensor) Reshape(shape []int) error {
	if len(t.desc.Shape) > 0 && len(shape) != len(t.desc.Shape) {
		return fmt.Errorf("reshape %s: rank %d, model declares %v", t.desc.Name, len(shape), t.desc.Shape)
	}
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("reshape %s: invalid dimension %d in %v", t.desc.Name, d, shape)
		}
		if len(t.desc.Shape) > 0 && t.desc.Shape[i] > 0 && t.desc.Shape[i] != d {
			return fmt.Errorf("reshape %s: dimension %d is %d, model requires %d", t.desc.Name, i, d, t.desc.Shape[i])
		}
	}
	t.shape = append(t.shape[:0], shape...)
	return nil
}

func (t *cpuTensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

func (t *cpuTensor) CopyFromHost(data []float32) error {
	if len(t.shape) == 0 {
		return fmt.Errorf("copy to %s: tensor has no shape", t.desc.Name)
	}
	n := NumElements(t.shape)
	if len(data) < n {
		return fmt.Errorf("copy to %s: %d values for %d elements", t.desc.Name, len(data), n)
	}
	if cap(t.data) < n {
		t.data = make([]float32, n)
	}
	t.data = t.data[:n]
	copy(t.data, data[:n])
	return nil
}

func (t *cpuTensor) CopyToHost(dst []float32) error {
	if len(dst) < len(t.data) {
		return fmt.Errorf("copy from %s: destination holds %d of %d values", t.desc.Name, len(dst), len(t.data))
	}
	copy(dst, t.data)
	return nil
}

// CPUPredictor runs a global-average-pool + dense + softmax classifier with gonum.
// Work executes on the bound host queue and every run waits for completion.
type CPUPredictor struct {
	desc    ModelDesc
	weights *mat.Dense // classes x channels
	bias    []float64
	pool    *BufferPool

	inputNames  []string
	outputNames []string
	inputs      map[string]*cpuTensor
	outputs     map[string]*cpuTensor

	mu    sync.Mutex
	queue device.Queue
}

// NewCPUPredictor loads the model and params named by cfg.
func NewCPUPredictor(cfg *Config) (Predictor, error) {
	modelPath, paramsPath, err := cfg.ModelPaths()
	if err != nil {
		return nil, err
	}
	desc, err := LoadModelDesc(modelPath)
	if err != nil {
		return nil, err
	}
	weights, bias, err := LoadParams(paramsPath, desc)
	if err != nil {
		return nil, fmt.Errorf("params %s: %w", paramsPath, err)
	}

	if cfg.UseGPU() {
		log.Debug().
			Uint64("gpu_mem_mb", cfg.GPUMemoryMB()).
			Int("device_id", cfg.DeviceID()).
			Msg("cpu backend ignores GPU request")
	}

	p := &CPUPredictor{
		desc:    desc,
		weights: weights,
		bias:    bias,
		inputs:  make(map[string]*cpuTensor, len(desc.Inputs)),
		outputs: make(map[string]*cpuTensor, len(desc.Outputs)),
		queue:   cfg.ExecQueue(),
	}
	if cfg.MemoryOptimEnabled() {
		p.pool = &BufferPool{}
	}
	for _, in := range desc.Inputs {
		p.inputNames = append(p.inputNames, in.Name)
		p.inputs[in.Name] = &cpuTensor{desc: in}
	}
	for _, out := range desc.Outputs {
		p.outputNames = append(p.outputNames, out.Name)
		p.outputs[out.Name] = &cpuTensor{desc: out}
	}

	log.Info().
		Str("model", desc.Name).
		Str("model_file", modelPath).
		Int("channels", desc.Channels).
		Int("classes", desc.Classes).
		Bool("memory_optim", p.pool != nil).
		Msg("Loaded cpu model")
	return p, nil
}

func (p *CPUPredictor) InputNames() []string {
	return append([]string(nil), p.inputNames...)
}

func (p *CPUPredictor) OutputNames() []string {
	return append([]string(nil), p.outputNames...)
}

func (p *CPUPredictor) InputHandle(name string) (Tensor, error) {
	t, ok := p.inputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: input %q", ErrUnknownTensor, name)
	}
	return t, nil
}

func (p *CPUPredictor) OutputHandle(name string) (Tensor, error) {
	t, ok := p.outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: output %q", ErrUnknownTensor, name)
	}
	return t, nil
}

func (p *CPUPredictor) ExecQueue() device.Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue
}

func (p *CPUPredictor) Run() error {
	return p.runOn(p.ExecQueue())
}

func (p *CPUPredictor) RunWithQueue(q device.Queue) error {
	p.mu.Lock()
	p.queue = q
	p.mu.Unlock()
	return p.runOn(q)
}

func (p *CPUPredictor) runOn(q device.Queue) error {
	start := time.Now()

	var err error
	if q == nil {
		err = p.forward()
	} else {
		sub, ok := q.(device.Submitter)
		if !ok {
			return fmt.Errorf("%w: cpu backend cannot run on %s", ErrQueueUnsupported, q)
		}
		completed, serr := sub.Submit(func() { err = p.forward() })
		if serr != nil {
			return fmt.Errorf("submit to %s: %w", q, serr)
		}
		<-completed
	}

	forwardDuration.WithLabelValues(BackendCPU).Observe(time.Since(start).Seconds())
	if err != nil {
		forwardErrors.WithLabelValues(BackendCPU).Inc()
		return err
	}
	return nil
}

func (p *CPUPredictor) getDense(r, c int) *mat.Dense {
	if p.pool != nil {
		return p.pool.GetDense(r, c)
	}
	return mat.NewDense(r, c, nil)
}

func (p *CPUPredictor) putDense(m *mat.Dense) {
	if p.pool != nil {
		p.pool.PutDense(m)
	}
}

func (p *CPUPredictor) forward() error {
	in := p.inputs[p.inputNames[0]]
	if len(in.shape) != 4 {
		return fmt.Errorf("input %s: expected NCHW shape, got %v", in.desc.Name, in.shape)
	}
	n, c, h, w := in.shape[0], in.shape[1], in.shape[2], in.shape[3]
	if c != p.desc.Channels {
		return fmt.Errorf("input %s: %d channels, model has %d", in.desc.Name, c, p.desc.Channels)
	}
	if len(in.data) != NumElements(in.shape) {
		return fmt.Errorf("input %s: holds %d values, shape %v needs %d", in.desc.Name, len(in.data), in.shape, NumElements(in.shape))
	}

	// Global average pool: (N, C, H, W) -> (N, C)
	spatial := h * w
	features := p.getDense(n, c)
	defer p.putDense(features)
	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			off := (i*c + ch) * spatial
			features.Set(i, ch, simd.SumFloat32(in.data[off:off+spatial])/float64(spatial))
		}
	}

	classes := p.desc.Classes
	logits := p.getDense(n, classes)
	defer p.putDense(logits)
	logits.Mul(features, p.weights.T())

	out := p.outputs[p.outputNames[0]]
	out.shape = append(out.shape[:0], n, classes)
	size := n * classes
	if p.pool != nil && cap(out.data) >= size {
		out.data = out.data[:size]
	} else {
		out.data = make([]float32, size)
	}

	for i := 0; i < n; i++ {
		row := logits.RawRowView(i)
		simd.VecAdd(row, p.bias)
		simd.Softmax(row)
		simd.ToFloat32(out.data[i*classes:(i+1)*classes], row)
	}
	return nil
}

func (p *CPUPredictor) Close() error {
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
	return nil
}
