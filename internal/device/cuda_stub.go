//go:build !(linux && cuda)

package device

// CudaRuntime is a placeholder on builds without CUDA.
type CudaRuntime struct{}

// NewCudaRuntime always fails. Build with -tags cuda on Linux.
func NewCudaRuntime(deviceID int) (*CudaRuntime, error) {
	return nil, ErrUnsupported
}

func (r *CudaRuntime) Name() string {
	return RuntimeCUDA
}

func (r *CudaRuntime) NewQueue() (Queue, error) {
	return nil, ErrUnsupported
}

func (r *CudaRuntime) Close() error {
	return nil
}
