package toolbox

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ReLU zeroes every non-positive input.
type ReLU struct{}

type reluCache struct {
	rows, cols int

	// mask[k*cols+i] is set where the forward input was <= 0.
	mask []bool
}

var _ Layer = (*ReLU)(nil)

func (*ReLU) Forward(x mat.Matrix) (*mat.Dense, Cache, error) {
	rows, cols := x.Dims()
	mask := make([]bool, rows*cols)

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(k, i int, v float64) float64 {
		if v <= 0 {
			mask[k*cols+i] = true
			return 0
		}
		return v
	}, x)

	return out, &reluCache{rows: rows, cols: cols, mask: mask}, nil
}

func (*ReLU) Backward(dout mat.Matrix, cache Cache) (*mat.Dense, []ParamGrad, error) {
	c, ok := cache.(*reluCache)
	if !ok || c == nil {
		return nil, nil, fmt.Errorf("relu: backward without forward: %w", ErrInvalidState)
	}
	if r, cols := dout.Dims(); r != c.rows || cols != c.cols {
		return nil, nil, fmt.Errorf("relu: upstream gradient has shape (%d, %d), want (%d, %d): %w", r, cols, c.rows, c.cols, ErrShapeMismatch)
	}

	dx := mat.NewDense(c.rows, c.cols, nil)
	dx.Apply(func(k, i int, v float64) float64 {
		if c.mask[k*c.cols+i] {
			return 0
		}
		return v
	}, dout)

	return dx, nil, nil
}
