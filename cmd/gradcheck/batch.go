package main

import (
	"flag"
	"fmt"
	"math/rand"

	"github.com/ahmedtd/twolayernet/toolbox"
	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"
)

// netFlags are the flags shared by every command: the network topology, the
// initialization, and where the batch comes from.
type netFlags struct {
	inputSize     int
	hiddenSize    int
	outputSize    int
	weightInitStd float64
	seed          int64

	batchSize int
	dataFile  string
}

func (nf *netFlags) register(f *flag.FlagSet) {
	f.IntVar(&nf.inputSize, "input-size", 2, "Number of input features")
	f.IntVar(&nf.hiddenSize, "hidden-size", 3, "Number of hidden units")
	f.IntVar(&nf.outputSize, "output-size", 2, "Number of classes")
	f.Float64Var(&nf.weightInitStd, "weight-init-std", toolbox.DefaultWeightInitStd, "Standard deviation of the initial weights")
	f.Int64Var(&nf.seed, "seed", 12345, "Seed for weight initialization and the synthetic batch")

	f.IntVar(&nf.batchSize, "batch-size", 3, "Size of the synthetic batch (ignored with --data-file)")
	f.StringVar(&nf.dataFile, "data-file", "", "Path to an npz archive holding x.npy and t.npy")
}

// build returns the network along with the input batch x and its targets t.
func (nf *netFlags) build() (*toolbox.TwoLayerNet, *mat.Dense, mat.Matrix, error) {
	if nf.inputSize <= 0 || nf.hiddenSize <= 0 || nf.outputSize <= 0 {
		return nil, nil, nil, fmt.Errorf("sizes must be positive; got input=%d hidden=%d output=%d", nf.inputSize, nf.hiddenSize, nf.outputSize)
	}

	r := rand.New(rand.NewSource(nf.seed))
	net := toolbox.NewTwoLayerNet(nf.inputSize, nf.hiddenSize, nf.outputSize, nf.weightInitStd, r)

	if nf.dataFile == "" {
		if nf.batchSize <= 0 {
			return nil, nil, nil, fmt.Errorf("batch size must be positive; got %d", nf.batchSize)
		}
		x, t := syntheticBatch(r, nf.batchSize, nf.inputSize, nf.outputSize)
		return net, x, t, nil
	}

	x, t, err := loadBatch(nf.dataFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("while loading batch: %w", err)
	}
	if _, features := x.Dims(); features != nf.inputSize {
		return nil, nil, nil, fmt.Errorf("x.npy has %d features, --input-size is %d", features, nf.inputSize)
	}
	return net, x, t, nil
}

// syntheticBatch draws inputs from N(0, 1) and labels uniformly.
func syntheticBatch(r *rand.Rand, batchSize, inputSize, numClasses int) (x *mat.Dense, t *mat.VecDense) {
	x = mat.NewDense(batchSize, inputSize, nil)
	t = mat.NewVecDense(batchSize, nil)
	for k := 0; k < batchSize; k++ {
		for j := 0; j < inputSize; j++ {
			x.Set(k, j, r.NormFloat64())
		}
		t.SetVec(k, float64(r.Intn(numClasses)))
	}
	return x, t
}

func loadBatch(path string) (x, t *mat.Dense, err error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("while opening batch file: %w", err)
	}
	defer r.Close()

	x, err = loadArray(r, "x.npy")
	if err != nil {
		return nil, nil, fmt.Errorf("while reading x.npy: %w", err)
	}

	t, err = loadArray(r, "t.npy")
	if err != nil {
		return nil, nil, fmt.Errorf("while reading t.npy: %w", err)
	}

	return x, t, nil
}

func loadArray(r *npz.Reader, name string) (*mat.Dense, error) {
	header := r.Header(name)
	if header == nil {
		return nil, fmt.Errorf("no entry named %s", name)
	}

	return decodeArray(header.Descr.Type, header.Descr.Fortran, header.Descr.Shape, func(ptr interface{}) error {
		return r.Read(name, ptr)
	})
}

// decodeArray converts a 1-d or 2-d npy array to a matrix.  A 1-d array of
// length n becomes an (n, 1) column, which is how class labels are read.
func decodeArray(dtype string, fortran bool, shape []int, read func(ptr interface{}) error) (*mat.Dense, error) {
	// It seems like even though the npy format supports specifying a Fortran
	// layout, numpy will always write C-style layouts (row-major / last index
	// stored contiguously.)
	if fortran {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}

	var rows, cols int
	switch len(shape) {
	case 1:
		rows, cols = shape[0], 1
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		return nil, fmt.Errorf("unsupported shape %v", shape)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("bad shape %v", shape)
	}

	values := make([]float64, rows*cols)
	switch dtype {
	case "<f8":
		var raw []float64
		if err := read(&raw); err != nil {
			return nil, fmt.Errorf("while reading float64 array: %w", err)
		}
		copy(values, raw)
	case "<f4":
		var raw []float32
		if err := read(&raw); err != nil {
			return nil, fmt.Errorf("while reading float32 array: %w", err)
		}
		for i, v := range raw {
			values[i] = float64(v)
		}
	case "<i8":
		var raw []int64
		if err := read(&raw); err != nil {
			return nil, fmt.Errorf("while reading int64 array: %w", err)
		}
		for i, v := range raw {
			values[i] = float64(v)
		}
	case "|u1":
		var raw []uint8
		if err := read(&raw); err != nil {
			return nil, fmt.Errorf("while reading uint8 array: %w", err)
		}
		for i, v := range raw {
			values[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}

	return mat.NewDense(rows, cols, values), nil
}
