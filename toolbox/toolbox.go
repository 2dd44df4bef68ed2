// Package toolbox implements a two-layer feed-forward classifier
// (affine, ReLU, affine, softmax with cross-entropy) together with a
// central-difference gradient checker for its backpropagation.
package toolbox

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidState is returned when Backward is given a cache that did
	// not come from the same layer's Forward.
	ErrInvalidState = errors.New("invalid state")

	// ErrShapeMismatch is returned when array dimensions are incompatible.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNumericInstability is returned when the loss is not finite.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrUnknownParam is returned for parameter names outside ParamNames.
	ErrUnknownParam = errors.New("unknown parameter")
)

// ParamNames lists the parameter keys in their canonical order.
var ParamNames = []string{"W1", "b1", "W2", "b2"}

// DefaultWeightInitStd is the conventional scale for the initial weights.
const DefaultWeightInitStd = 0.01

// Params is the canonical parameter store of a TwoLayerNet.  The same type
// carries gradients, which have exactly the shapes of the parameters.
//
// The arrays are updated in place by callers but are never resized or
// replaced, since the network's layers hold references to them.
type Params struct {
	W1 *mat.Dense    // Shape (inputSize, hiddenSize)
	B1 *mat.VecDense // Shape (hiddenSize)
	W2 *mat.Dense    // Shape (hiddenSize, outputSize)
	B2 *mat.VecDense // Shape (outputSize)
}

// Raw returns the flat row-major storage of the named parameter.  The slice
// aliases the parameter; writes to it are visible to the network.
func (p *Params) Raw(name string) ([]float64, error) {
	switch name {
	case "W1":
		return p.W1.RawMatrix().Data, nil
	case "b1":
		return p.B1.RawVector().Data, nil
	case "W2":
		return p.W2.RawMatrix().Data, nil
	case "b2":
		return p.B2.RawVector().Data, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownParam)
}

// Shape returns {rows, cols} for weights and {n} for biases.
func (p *Params) Shape(name string) ([]int, error) {
	switch name {
	case "W1":
		r, c := p.W1.Dims()
		return []int{r, c}, nil
	case "b1":
		return []int{p.B1.Len()}, nil
	case "W2":
		r, c := p.W2.Dims()
		return []int{r, c}, nil
	case "b2":
		return []int{p.B2.Len()}, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownParam)
}

// zerosLike returns a zero-filled store with the same shapes as p.
func (p *Params) zerosLike() *Params {
	r1, c1 := p.W1.Dims()
	r2, c2 := p.W2.Dims()
	return &Params{
		W1: mat.NewDense(r1, c1, nil),
		B1: mat.NewVecDense(p.B1.Len(), nil),
		W2: mat.NewDense(r2, c2, nil),
		B2: mat.NewVecDense(p.B2.Len(), nil),
	}
}

// set copies a layer's gradient into the slot with the same name.
func (p *Params) set(pg ParamGrad) error {
	dst, err := p.Raw(pg.Name)
	if err != nil {
		return err
	}
	shape, _ := p.Shape(pg.Name)
	r, c := pg.Grad.Dims()
	want := shape[0]
	if len(shape) == 2 {
		want = shape[0] * shape[1]
		if r != shape[0] || c != shape[1] {
			return fmt.Errorf("gradient for %s has shape (%d, %d), want %v: %w", pg.Name, r, c, shape, ErrShapeMismatch)
		}
	}
	if r*c != want {
		return fmt.Errorf("gradient for %s has %d elements, want %d: %w", pg.Name, r*c, want, ErrShapeMismatch)
	}

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst[i*c+j] = pg.Grad.At(i, j)
		}
	}
	return nil
}

// ParamGrad is the gradient of the loss with respect to one named parameter.
type ParamGrad struct {
	Name string
	Grad mat.Matrix
}

// Cache is what a layer's Forward hands to its Backward.  Its concrete type
// is private to the layer that produced it.
type Cache any

// Layer is one stage of the network pipeline.  Implementations keep no
// per-call state: everything Backward needs travels in the Cache.
type Layer interface {
	// x is the layer input.  Shape (batchSize, inputSize)
	Forward(x mat.Matrix) (*mat.Dense, Cache, error)

	// dout is the gradient of the loss wrt the layer output.  Shape (batchSize, outputSize)
	//
	// Returns the gradient wrt the layer input and the gradients of any
	// parameters the layer reads.
	Backward(dout mat.Matrix, cache Cache) (*mat.Dense, []ParamGrad, error)
}

func randomDense(rows, cols int, std float64, r *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = std * r.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

// Labels reduces a target to one class index per sample.
//
// If t has the shape of the scores, (batchSize, numClasses), it is treated
// as one-hot rows and reduced with a per-row argmax.  Otherwise t must be a
// vector of batchSize integral class indices, stored as an (n, 1) or (1, n)
// matrix.
func Labels(t mat.Matrix, batchSize, numClasses int) ([]int, error) {
	r, c := t.Dims()

	if r == batchSize && c == numClasses {
		labels := make([]int, batchSize)
		row := make([]float64, numClasses)
		for k := 0; k < batchSize; k++ {
			labels[k] = floats.MaxIdx(mat.Row(row, k, t))
		}
		return labels, nil
	}

	var n int
	switch {
	case c == 1:
		n = r
	case r == 1:
		n = c
	default:
		return nil, fmt.Errorf("target has shape (%d, %d), want (%d, %d) or %d labels: %w", r, c, batchSize, numClasses, batchSize, ErrShapeMismatch)
	}
	if n != batchSize {
		return nil, fmt.Errorf("target has %d labels, want %d: %w", n, batchSize, ErrShapeMismatch)
	}

	labels := make([]int, batchSize)
	for k := 0; k < batchSize; k++ {
		var v float64
		if c == 1 {
			v = t.At(k, 0)
		} else {
			v = t.At(0, k)
		}
		if v != math.Trunc(v) || v < 0 || v >= float64(numClasses) {
			return nil, fmt.Errorf("label %v at sample %d is not a class index in [0, %d): %w", v, k, numClasses, ErrShapeMismatch)
		}
		labels[k] = int(v)
	}
	return labels, nil
}

// argmaxRows returns the index of the largest element of each row.
func argmaxRows(a mat.Matrix) []int {
	r, c := a.Dims()
	out := make([]int, r)
	row := make([]float64, c)
	for k := 0; k < r; k++ {
		out[k] = floats.MaxIdx(mat.Row(row, k, a))
	}
	return out
}
