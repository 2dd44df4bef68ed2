package toolbox

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// GradientStep is the perturbation used for central differences.
const GradientStep = 1e-4

// relErrorFloor is the magnitude below which a pair of gradient entries is
// judged on absolute difference alone.
const relErrorFloor = 1e-7

// NumericalGradient estimates the gradient of f with respect to x by central
// differences, (f(x+h) - f(x-h)) / 2h, one flat element at a time.
//
// f must read x in place (it takes no argument), which is how a loss sees a
// parameter array it closes over.  x is restored before returning.
func NumericalGradient(f func() (float64, error), x []float64) ([]float64, error) {
	orig := make([]float64, len(x))
	copy(orig, x)
	defer copy(x, orig)

	var ferr error
	eval := func(v []float64) float64 {
		if ferr != nil {
			return math.NaN()
		}
		copy(x, v)
		loss, err := f()
		if err != nil {
			ferr = err
			return math.NaN()
		}
		return loss
	}

	// f mutates shared state, so evaluations must stay serial.
	grad := fd.Gradient(nil, eval, orig, &fd.Settings{
		Formula: fd.Central,
		Step:    GradientStep,
	})
	if ferr != nil {
		return nil, fmt.Errorf("while evaluating perturbed loss: %w", ferr)
	}
	return grad, nil
}

// GradientDiff summarizes how far two gradients of one parameter disagree.
type GradientDiff struct {
	Name        string
	MeanAbsDiff float64
	MaxAbsDiff  float64

	// MaxRelError is the largest |a-b| / max(|a|, |b|) over the elements
	// where either magnitude reaches relErrorFloor.
	MaxRelError float64
}

// GradientReport holds one GradientDiff per parameter, in ParamNames order.
type GradientReport []GradientDiff

// MaxRelError is the worst relative error across all parameters.
func (r GradientReport) MaxRelError() float64 {
	var worst float64
	for _, d := range r {
		worst = math.Max(worst, d.MaxRelError)
	}
	return worst
}

// CompareGradients reports the element-wise disagreement between a and b.
func CompareGradients(a, b *Params) (GradientReport, error) {
	report := make(GradientReport, 0, len(ParamNames))
	for _, name := range ParamNames {
		ra, err := a.Raw(name)
		if err != nil {
			return nil, err
		}
		rb, err := b.Raw(name)
		if err != nil {
			return nil, err
		}
		if len(ra) != len(rb) {
			return nil, fmt.Errorf("%s: %d vs %d elements: %w", name, len(ra), len(rb), ErrShapeMismatch)
		}

		d := GradientDiff{
			Name:        name,
			MeanAbsDiff: floats.Distance(ra, rb, 1) / float64(len(ra)),
			MaxAbsDiff:  floats.Distance(ra, rb, math.Inf(1)),
		}
		for i := range ra {
			denom := math.Max(math.Abs(ra[i]), math.Abs(rb[i]))
			if denom < relErrorFloor {
				continue
			}
			d.MaxRelError = math.Max(d.MaxRelError, math.Abs(ra[i]-rb[i])/denom)
		}
		report = append(report, d)
	}
	return report, nil
}
