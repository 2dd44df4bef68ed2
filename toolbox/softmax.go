package toolbox

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// crossEntropyDelta keeps the log finite when a class probability is 0.
const crossEntropyDelta = 1e-7

// Softmax applies the softmax function to each row of x.
func Softmax(x mat.Matrix) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)

	row := make([]float64, cols)
	for k := 0; k < rows; k++ {
		mat.Row(row, k, x)

		// For stability, use the identity softmax(v) = softmax(v - c), and
		// subtract the maximum element of the row before exponentiating.
		//
		// https://stackoverflow.com/questions/42599498/numerically-stable-softmax
		floats.AddConst(-floats.Max(row), row)
		for i := range row {
			row[i] = math.Exp(row[i])
		}
		floats.Scale(1/floats.Sum(row), row)

		out.SetRow(k, row)
	}
	return out
}

// CrossEntropyError is the mean over the batch of -log(y[k, t_k]).
//
// y is the predicted class probabilities.  Shape (batchSize, numClasses)
// t is one-hot rows or class indices, see Labels.
func CrossEntropyError(y, t mat.Matrix) (float64, error) {
	batchSize, numClasses := y.Dims()
	labels, err := Labels(t, batchSize, numClasses)
	if err != nil {
		return 0, err
	}
	return crossEntropy(y, labels), nil
}

func crossEntropy(y mat.Matrix, labels []int) float64 {
	var loss float64
	for k, l := range labels {
		loss -= math.Log(y.At(k, l) + crossEntropyDelta)
	}
	return loss / float64(len(labels))
}

// SoftmaxWithLoss is the terminal node of the network: softmax followed by
// cross-entropy against the targets.
type SoftmaxWithLoss struct{}

// LossCache carries the softmax output and the targets, as class indices,
// from Forward to Backward.
type LossCache struct {
	y      *mat.Dense
	labels []int
}

// x is the class scores.  Shape (batchSize, numClasses)
// t is one-hot rows (batchSize, numClasses) or batchSize class indices.
func (*SoftmaxWithLoss) Forward(x, t mat.Matrix) (float64, *LossCache, error) {
	batchSize, numClasses := x.Dims()
	labels, err := Labels(t, batchSize, numClasses)
	if err != nil {
		return 0, nil, fmt.Errorf("softmax with loss: %w", err)
	}

	y := Softmax(x)
	loss := crossEntropy(y, labels)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, nil, fmt.Errorf("softmax with loss: loss is %v: %w", loss, ErrNumericInstability)
	}

	return loss, &LossCache{y: y, labels: labels}, nil
}

// Backward returns dout * (y - onehot(t)) / batchSize.  Shape (batchSize, numClasses)
func (*SoftmaxWithLoss) Backward(dout float64, c *LossCache) (*mat.Dense, error) {
	if c == nil {
		return nil, fmt.Errorf("softmax with loss: backward without forward: %w", ErrInvalidState)
	}

	batchSize, _ := c.y.Dims()
	dx := mat.DenseCopyOf(c.y)
	for k, l := range c.labels {
		dx.Set(k, l, dx.At(k, l)-1)
	}
	dx.Scale(dout/float64(batchSize), dx)

	return dx, nil
}
