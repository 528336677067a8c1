package mnist

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// NumClasses is the number of digit classes.
const NumClasses = 10

// Epsilon guards the division when an image has zero variance.
const Epsilon = 1e-6

// Data holds standardized samples and implements the nnet.Data interface.
// Inputs are cached in memory: each image is scaled to [0,1] and z-scored
// using its own mean and variance, with an explicit trailing channel
// dimension of size 1.
type Data struct {
	Dims   []int
	Labels []int32
	Inputs []float64
}

func (d *Data) Len() int { return len(d.Labels) }

func (d *Data) Classes() int { return NumClasses }

func (d *Data) Shape() []int { return d.Dims }

func (d *Data) Label(index []int, labels []int32) {
	for i, ix := range index {
		labels[i] = d.Labels[ix]
	}
}

func (d *Data) Input(index []int, buf []float64) {
	nfeat := d.Dims[0] * d.Dims[1] * d.Dims[2]
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}

// Standardize applies the per image transform to every sample, fanning the
// work out across the available cores.
func Standardize(raw *RawData) *Data {
	nfeat := raw.Rows * raw.Cols
	d := &Data{
		Dims:   []int{raw.Rows, raw.Cols, 1},
		Labels: append([]int32{}, raw.Labels...),
		Inputs: make([]float64, raw.Len()*nfeat),
	}
	workers := runtime.NumCPU()
	chunk := (raw.Len() + workers - 1) / workers
	g := new(errgroup.Group)
	for start := 0; start < raw.Len(); start += chunk {
		start := start
		end := start + chunk
		if end > raw.Len() {
			end = raw.Len()
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				standardize(raw.Pixels[i*nfeat:(i+1)*nfeat], d.Inputs[i*nfeat:(i+1)*nfeat])
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail
	return d
}

// standardize scales one image to [0,1] and normalises it to zero mean and
// unit variance over all pixel positions.
func standardize(pix []uint8, out []float64) {
	for i, p := range pix {
		out[i] = float64(p) / 255
	}
	mean, variance := stat.PopMeanVariance(out, nil)
	std := math.Sqrt(variance) + Epsilon
	for i := range out {
		out[i] = (out[i] - mean) / std
	}
}
