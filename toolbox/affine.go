package toolbox

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Affine computes x·W + b.
//
// W and B are references into the owning network's Params, not copies, so
// in-place updates to the parameters are seen by the next Forward.
type Affine struct {
	W *mat.Dense    // Shape (inputSize, outputSize)
	B *mat.VecDense // Shape (outputSize)

	wName, bName string
}

// NewAffine returns an affine layer whose gradients are reported under
// wName and bName.
func NewAffine(wName, bName string, w *mat.Dense, b *mat.VecDense) *Affine {
	return &Affine{
		W:     w,
		B:     b,
		wName: wName,
		bName: bName,
	}
}

type affineCache struct {
	x *mat.Dense
}

var _ Layer = (*Affine)(nil)

// x is the layer input.  Shape (batchSize, inputSize)
//
// Returns x·W + b.  Shape (batchSize, outputSize)
func (lay *Affine) Forward(x mat.Matrix) (*mat.Dense, Cache, error) {
	batchSize, inputSize := x.Dims()
	wIn, outputSize := lay.W.Dims()

	if inputSize != wIn {
		return nil, nil, fmt.Errorf("affine %s: input has %d features, want %d: %w", lay.wName, inputSize, wIn, ErrShapeMismatch)
	}
	if lay.B.Len() != outputSize {
		return nil, nil, fmt.Errorf("affine %s: bias has %d entries, want %d: %w", lay.bName, lay.B.Len(), outputSize, ErrShapeMismatch)
	}

	out := mat.NewDense(batchSize, outputSize, nil)
	out.Mul(x, lay.W)
	out.Apply(func(_, j int, v float64) float64 {
		return v + lay.B.AtVec(j)
	}, out)

	return out, &affineCache{x: mat.DenseCopyOf(x)}, nil
}

// dout is the gradient of the loss wrt the layer output.  Shape (batchSize, outputSize)
//
// Returns dout·Wᵀ, shape (batchSize, inputSize), along with dW = xᵀ·dout and
// db = the column sums of dout.
func (lay *Affine) Backward(dout mat.Matrix, cache Cache) (*mat.Dense, []ParamGrad, error) {
	c, ok := cache.(*affineCache)
	if !ok || c == nil {
		return nil, nil, fmt.Errorf("affine %s: backward without forward: %w", lay.wName, ErrInvalidState)
	}

	batchSize, inputSize := c.x.Dims()
	_, outputSize := lay.W.Dims()
	if r, cols := dout.Dims(); r != batchSize || cols != outputSize {
		return nil, nil, fmt.Errorf("affine %s: upstream gradient has shape (%d, %d), want (%d, %d): %w", lay.wName, r, cols, batchSize, outputSize, ErrShapeMismatch)
	}

	dx := mat.NewDense(batchSize, inputSize, nil)
	dx.Mul(dout, lay.W.T())

	dW := mat.NewDense(inputSize, outputSize, nil)
	dW.Mul(c.x.T(), dout)

	db := mat.NewVecDense(outputSize, nil)
	col := make([]float64, batchSize)
	for j := 0; j < outputSize; j++ {
		db.SetVec(j, floats.Sum(mat.Col(col, j, dout)))
	}

	return dx, []ParamGrad{
		{Name: lay.wName, Grad: dW},
		{Name: lay.bName, Grad: db},
	}, nil
}
