package toolbox

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAffineForward(t *testing.T) {
	w := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	b := mat.NewVecDense(3, []float64{1, 1, 1})
	lay := NewAffine("W1", "b1", w, b)

	x := mat.NewDense(1, 2, []float64{1, 2})
	out, _, err := lay.Forward(x)
	require.NoError(t, err)

	want := []float64{10, 13, 16}
	if diff := cmp.Diff(out.RawMatrix().Data, want); diff != "" {
		t.Fatalf("Wrong output; diff (-got +want)\n%s", diff)
	}
}

func TestAffineBackward(t *testing.T) {
	batchSize := 100
	inputSize := 33
	outputSize := 44

	w := mat.NewDense(inputSize, outputSize, ones(inputSize*outputSize))
	b := mat.NewVecDense(outputSize, nil)
	lay := NewAffine("W1", "b1", w, b)

	x := mat.NewDense(batchSize, inputSize, ones(batchSize*inputSize))
	_, cache, err := lay.Forward(x)
	require.NoError(t, err)

	dout := mat.NewDense(batchSize, outputSize, ones(batchSize*outputSize))
	dx, grads, err := lay.Backward(dout, cache)
	require.NoError(t, err)
	require.Len(t, grads, 2)

	if diff := cmp.Diff(dx.RawMatrix().Data, filled(batchSize*inputSize, 44)); diff != "" {
		t.Errorf("Wrong dx; diff (-got +want)\n%s", diff)
	}

	require.Equal(t, "W1", grads[0].Name)
	r, c := grads[0].Grad.Dims()
	require.Equal(t, []int{inputSize, outputSize}, []int{r, c})
	if diff := cmp.Diff(mat.DenseCopyOf(grads[0].Grad).RawMatrix().Data, filled(inputSize*outputSize, 100)); diff != "" {
		t.Errorf("Wrong dW; diff (-got +want)\n%s", diff)
	}

	require.Equal(t, "b1", grads[1].Name)
	db := grads[1].Grad.(*mat.VecDense)
	require.Equal(t, outputSize, db.Len())
	if diff := cmp.Diff(db.RawVector().Data, filled(outputSize, 100)); diff != "" {
		t.Errorf("Wrong db; diff (-got +want)\n%s", diff)
	}
}

func TestAffineSeesParameterUpdates(t *testing.T) {
	w := mat.NewDense(1, 1, []float64{2})
	b := mat.NewVecDense(1, []float64{0})
	lay := NewAffine("W1", "b1", w, b)
	x := mat.NewDense(1, 1, []float64{3})

	out, _, err := lay.Forward(x)
	require.NoError(t, err)
	require.Equal(t, 6.0, out.At(0, 0))

	w.Set(0, 0, 5)
	b.SetVec(0, 1)

	out, _, err = lay.Forward(x)
	require.NoError(t, err)
	require.Equal(t, 16.0, out.At(0, 0))
}

func TestAffineErrors(t *testing.T) {
	lay := NewAffine("W1", "b1", mat.NewDense(2, 3, nil), mat.NewVecDense(3, nil))

	_, _, err := lay.Forward(mat.NewDense(1, 4, nil))
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = lay.Backward(mat.NewDense(1, 3, nil), nil)
	require.ErrorIs(t, err, ErrInvalidState)

	_, reluCache, err := (&ReLU{}).Forward(mat.NewDense(1, 3, nil))
	require.NoError(t, err)
	_, _, err = lay.Backward(mat.NewDense(1, 3, nil), reluCache)
	require.ErrorIs(t, err, ErrInvalidState)

	_, cache, err := lay.Forward(mat.NewDense(2, 2, nil))
	require.NoError(t, err)
	_, _, err = lay.Backward(mat.NewDense(1, 3, nil), cache)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func ones(n int) []float64 {
	return filled(n, 1)
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}
