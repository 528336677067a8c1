package num

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Fill sets every element to val.
func Fill(a *Array, val float64) {
	for i := range a.Data {
		a.Data[i] = val
	}
}

// Copy copies src into dst, sizes must match.
func Copy(dst, src *Array) {
	if len(dst.Data) != len(src.Data) {
		panic(fmt.Sprintf("num: Copy size mismatch: %v != %v", dst.dims, src.dims))
	}
	copy(dst.Data, src.Data)
}

// Axpy updates y += alpha*x.
func Axpy(alpha float64, x, y *Array) {
	floats.AddScaled(y.Data, alpha, x.Data)
}

// Scale multiplies every element by alpha.
func Scale(alpha float64, a *Array) {
	floats.Scale(alpha, a.Data)
}

// Sum returns the sum over all elements.
func Sum(a *Array) float64 {
	return floats.Sum(a.Data)
}

// Gemm computes c = a x b where either input may be transposed.
// c must have the result dimensions.
func Gemm(a, b, c *Array, transA, transB bool) {
	var ma, mb mat.Matrix = a.Matrix(), b.Matrix()
	if transA {
		ma = ma.T()
	}
	if transB {
		mb = mb.T()
	}
	c.Matrix().Mul(ma, mb)
}

// Onehot expands integer class labels into rows of the out array,
// one row per label with a single 1 entry.
func Onehot(labels []int32, out *Array, classes int) {
	if out.dims[0] != len(labels) || out.dims[1] != classes {
		panic("num: Onehot dimension mismatch")
	}
	Fill(out, 0)
	for i, l := range labels {
		out.Data[i*classes+int(l)] = 1
	}
}

// Unhot returns the predicted class per row as the argmax of each row.
func Unhot(a *Array, classes []int32) {
	rows := a.dims[0]
	cols := len(a.Data) / rows
	for i := 0; i < rows; i++ {
		row := a.Data[i*cols : (i+1)*cols]
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		classes[i] = int32(best)
	}
}

// Neq counts the entries where the two label slices differ.
func Neq(a, b []int32) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// Relu applies max(0, x) elementwise.
func Relu(src, dst *Array) {
	for i, v := range src.Data {
		if v > 0 {
			dst.Data[i] = v
		} else {
			dst.Data[i] = 0
		}
	}
}

// ReluD computes the relu gradient:  dst = grad where src > 0 else 0.
func ReluD(src, grad, dst *Array) {
	for i, v := range src.Data {
		if v > 0 {
			dst.Data[i] = grad.Data[i]
		} else {
			dst.Data[i] = 0
		}
	}
}

// Sigmoid applies 1/(1+exp(-x)) elementwise.
func Sigmoid(src, dst *Array) {
	for i, v := range src.Data {
		dst.Data[i] = 1 / (1 + math.Exp(-v))
	}
}

// SigmoidD computes the sigmoid gradient given the layer input.
func SigmoidD(src, grad, dst *Array) {
	for i, v := range src.Data {
		s := 1 / (1 + math.Exp(-v))
		dst.Data[i] = grad.Data[i] * s * (1 - s)
	}
}

// Tanh applies tanh(x) elementwise.
func Tanh(src, dst *Array) {
	for i, v := range src.Data {
		dst.Data[i] = math.Tanh(v)
	}
}

// TanhD computes the tanh gradient given the layer input.
func TanhD(src, grad, dst *Array) {
	for i, v := range src.Data {
		t := math.Tanh(v)
		dst.Data[i] = grad.Data[i] * (1 - t*t)
	}
}

// Softmax applies a row wise softmax with max subtraction for stability.
func Softmax(src, dst *Array) {
	rows := src.dims[0]
	cols := len(src.Data) / rows
	for i := 0; i < rows; i++ {
		in := src.Data[i*cols : (i+1)*cols]
		out := dst.Data[i*cols : (i+1)*cols]
		max := floats.Max(in)
		sum := 0.0
		for j, v := range in {
			e := math.Exp(v - max)
			out[j] = e
			sum += e
		}
		floats.Scale(1/sum, out)
	}
}

// SoftmaxLoss returns the categorical cross entropy per row given one hot
// targets and predicted probabilities.
func SoftmaxLoss(y1H, yPred *Array, loss []float64) {
	rows := y1H.dims[0]
	cols := len(y1H.Data) / rows
	for i := 0; i < rows; i++ {
		l := 0.0
		for j := 0; j < cols; j++ {
			if y := y1H.Data[i*cols+j]; y != 0 {
				p := yPred.Data[i*cols+j]
				l -= y * math.Log(math.Max(p, 1e-12))
			}
		}
		loss[i] = l
	}
}
