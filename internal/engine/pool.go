package engine

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// BufferPool provides pooled matrices for intermediate computations.
// It is only used when memory optimization is enabled.
type BufferPool struct {
	dense sync.Pool // *[]float64 backing storage
}

// GetDense gets a zeroed rows x cols matrix, reusing pooled storage when it is large enough.
func (p *BufferPool) GetDense(rows, cols int) *mat.Dense {
	if v := p.dense.Get(); v != nil {
		buf := v.(*[]float64)
		if cap(*buf) >= rows*cols {
			raw := (*buf)[:rows*cols]
			clear(raw)
			poolHits.Inc()
			return mat.NewDense(rows, cols, raw)
		}
	}
	poolMisses.Inc()
	return mat.NewDense(rows, cols, nil)
}

// PutDense returns a matrix's storage to the pool.
func (p *BufferPool) PutDense(m *mat.Dense) {
	if m == nil {
		return
	}
	raw := m.RawMatrix().Data
	p.dense.Put(&raw)
}
