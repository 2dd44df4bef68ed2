package toolbox

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// TwoLayerNet is affine, ReLU, affine, with a softmax cross-entropy loss.
//
// It is not safe for concurrent use: NumericalGradient perturbs Params in
// place while it runs.
type TwoLayerNet struct {
	Params *Params

	// Iterated forward in order, backward in reverse.
	layers    []Layer
	lastLayer *SoftmaxWithLoss
}

// NewTwoLayerNet draws the weights from N(0, weightInitStd²) using r and
// zero-fills the biases.
func NewTwoLayerNet(inputSize, hiddenSize, outputSize int, weightInitStd float64, r *rand.Rand) *TwoLayerNet {
	for _, s := range []int{inputSize, hiddenSize, outputSize} {
		if s <= 0 {
			panic(fmt.Sprintf("invalid shape: %v", []int{inputSize, hiddenSize, outputSize}))
		}
	}

	p := &Params{
		W1: randomDense(inputSize, hiddenSize, weightInitStd, r),
		B1: mat.NewVecDense(hiddenSize, nil),
		W2: randomDense(hiddenSize, outputSize, weightInitStd, r),
		B2: mat.NewVecDense(outputSize, nil),
	}

	return &TwoLayerNet{
		Params: p,
		layers: []Layer{
			NewAffine("W1", "b1", p.W1, p.B1),
			&ReLU{},
			NewAffine("W2", "b2", p.W2, p.B2),
		},
		lastLayer: &SoftmaxWithLoss{},
	}
}

// forward runs x through the pipeline, returning the class scores and the
// cache of every layer.
func (net *TwoLayerNet) forward(x mat.Matrix) (*mat.Dense, []Cache, error) {
	caches := make([]Cache, len(net.layers))
	var out *mat.Dense
	for l, layer := range net.layers {
		var err error
		out, caches[l], err = layer.Forward(x)
		if err != nil {
			return nil, nil, fmt.Errorf("while running layer %d forward: %w", l, err)
		}
		// This layer's output becomes the input for the next layer.
		x = out
	}
	return out, caches, nil
}

// x is the input.  Shape (batchSize, inputSize)
//
// Returns the class scores.  Shape (batchSize, outputSize)
func (net *TwoLayerNet) Predict(x mat.Matrix) (*mat.Dense, error) {
	y, _, err := net.forward(x)
	return y, err
}

// x is the input.  Shape (batchSize, inputSize)
// t is one-hot rows (batchSize, outputSize) or batchSize class indices.
func (net *TwoLayerNet) Loss(x, t mat.Matrix) (float64, error) {
	y, _, err := net.forward(x)
	if err != nil {
		return 0, err
	}
	loss, _, err := net.lastLayer.Forward(y, t)
	return loss, err
}

// Accuracy is the fraction of samples whose highest score is the target class.
func (net *TwoLayerNet) Accuracy(x, t mat.Matrix) (float64, error) {
	y, err := net.Predict(x)
	if err != nil {
		return 0, err
	}

	batchSize, numClasses := y.Dims()
	labels, err := Labels(t, batchSize, numClasses)
	if err != nil {
		return 0, fmt.Errorf("while reading targets: %w", err)
	}

	correct := 0
	for k, pred := range argmaxRows(y) {
		if pred == labels[k] {
			correct++
		}
	}
	return float64(correct) / float64(batchSize), nil
}

// NumericalGradient estimates the gradient of Loss for every parameter by
// central differences.  It costs two full forward passes per scalar
// parameter and exists to check BackpropGradient.
func (net *TwoLayerNet) NumericalGradient(x, t mat.Matrix) (*Params, error) {
	grads := net.Params.zerosLike()
	loss := func() (float64, error) {
		return net.Loss(x, t)
	}

	for _, name := range ParamNames {
		param, err := net.Params.Raw(name)
		if err != nil {
			return nil, err
		}
		g, err := NumericalGradient(loss, param)
		if err != nil {
			return nil, fmt.Errorf("while differentiating %s: %w", name, err)
		}
		dst, _ := grads.Raw(name)
		copy(dst, g)
	}
	return grads, nil
}

// BackpropGradient computes the gradient of Loss for every parameter by
// backpropagation.
func (net *TwoLayerNet) BackpropGradient(x, t mat.Matrix) (*Params, error) {
	y, caches, err := net.forward(x)
	if err != nil {
		return nil, err
	}
	_, lossCache, err := net.lastLayer.Forward(y, t)
	if err != nil {
		return nil, err
	}

	dout, err := net.lastLayer.Backward(1, lossCache)
	if err != nil {
		return nil, err
	}

	grads := net.Params.zerosLike()
	for l := len(net.layers) - 1; l >= 0; l-- {
		dx, pgs, err := net.layers[l].Backward(dout, caches[l])
		if err != nil {
			return nil, fmt.Errorf("while running layer %d backward: %w", l, err)
		}
		for _, pg := range pgs {
			if err := grads.set(pg); err != nil {
				return nil, err
			}
		}
		dout = dx
	}
	return grads, nil
}

// CheckGradient compares BackpropGradient against NumericalGradient.
func (net *TwoLayerNet) CheckGradient(x, t mat.Matrix) (GradientReport, error) {
	numerical, err := net.NumericalGradient(x, t)
	if err != nil {
		return nil, fmt.Errorf("while computing numerical gradient: %w", err)
	}
	backprop, err := net.BackpropGradient(x, t)
	if err != nil {
		return nil, fmt.Errorf("while computing backprop gradient: %w", err)
	}
	return CompareGradients(backprop, numerical)
}
