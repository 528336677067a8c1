package num

import (
	"math"
	"reflect"
	"testing"
)

const eps = 1e-10

func TestArray(t *testing.T) {
	x := NewArrayFrom([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if dim := x.Dims(); !reflect.DeepEqual(dim, []int{2, 3}) {
		t.Error("dims invalid: got", dim)
	}
	if n := x.Size(); n != 6 {
		t.Error("size invalid: got", n)
	}
	y := x.Reshape(3, -1)
	if dim := y.Dims(); !reflect.DeepEqual(dim, []int{3, 2}) {
		t.Error("reshape dims invalid: got", dim)
	}
	y.Data[0] = 9
	if x.Data[0] != 9 {
		t.Error("reshape should share data")
	}
	z := x.Copy()
	z.Data[0] = 1
	if x.Data[0] != 9 {
		t.Error("copy should not share data")
	}
}

func TestGemm(t *testing.T) {
	a := NewArrayFrom([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := NewArrayFrom([]float64{7, 8, 9, 10, 11, 12}, 3, 2)
	c := NewArray(2, 2)
	Gemm(a, b, c, false, false)
	expect := []float64{58, 64, 139, 154}
	if !reflect.DeepEqual(c.Data, expect) {
		t.Error("got", c.Data, "expect", expect)
	}
	ct := NewArray(3, 3)
	Gemm(a, b, ct, true, true)
	expect = []float64{39, 49, 59, 54, 68, 82, 69, 87, 105}
	if !reflect.DeepEqual(ct.Data, expect) {
		t.Error("transposed: got", ct.Data, "expect", expect)
	}
}

func TestSoftmax(t *testing.T) {
	src := NewArrayFrom([]float64{1, 2, 3, -1, 0, 1000}, 2, 3)
	dst := NewArray(2, 3)
	Softmax(src, dst)
	for i := 0; i < 2; i++ {
		sum := 0.0
		for j := 0; j < 3; j++ {
			v := dst.Data[i*3+j]
			if v < 0 || v > 1 {
				t.Error("probability out of range: got", v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Error("row", i, "sum: got", sum, "expect 1")
		}
	}
	// large input should not overflow
	if v := dst.Data[5]; math.Abs(v-1) > 1e-5 {
		t.Error("saturated entry: got", v, "expect 1")
	}
}

func TestSoftmaxLoss(t *testing.T) {
	y1H := NewArrayFrom([]float64{0, 1, 0, 1, 0, 0}, 2, 3)
	yPred := NewArrayFrom([]float64{0.2, 0.5, 0.3, 1, 0, 0}, 2, 3)
	loss := make([]float64, 2)
	SoftmaxLoss(y1H, yPred, loss)
	if math.Abs(loss[0]+math.Log(0.5)) > eps {
		t.Error("got", loss[0], "expect", -math.Log(0.5))
	}
	if loss[1] != 0 {
		t.Error("exact prediction: got", loss[1], "expect 0")
	}
}

func TestOnehot(t *testing.T) {
	labels := []int32{2, 0, 1}
	out := NewArray(3, 3)
	Onehot(labels, out, 3)
	expect := []float64{0, 0, 1, 1, 0, 0, 0, 1, 0}
	if !reflect.DeepEqual(out.Data, expect) {
		t.Error("got", out.Data, "expect", expect)
	}
	classes := make([]int32, 3)
	Unhot(out, classes)
	if !reflect.DeepEqual(classes, labels) {
		t.Error("unhot: got", classes, "expect", labels)
	}
	if n := Neq(classes, []int32{2, 1, 1}); n != 1 {
		t.Error("neq: got", n, "expect 1")
	}
}

func TestConvSize(t *testing.T) {
	if n := ConvSize(28, 5, 1, 0); n != 24 {
		t.Error("got", n, "expect 24")
	}
	if n := ConvSize(24, 2, 2, 0); n != 12 {
		t.Error("got", n, "expect 12")
	}
	if n := ConvSize(28, 5, 1, 2); n != 28 {
		t.Error("got", n, "expect 28")
	}
}

func TestIm2col(t *testing.T) {
	// 1 sample 3x3x1, 2x2 kernel, stride 1 => 4 patches of 4 values
	in := NewArrayFrom([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 3, 3, 1)
	cols := NewArray(4, 4)
	Im2col(in, 2, 1, 0, cols)
	expect := []float64{
		1, 2, 4, 5,
		2, 3, 5, 6,
		4, 5, 7, 8,
		5, 6, 8, 9,
	}
	if !reflect.DeepEqual(cols.Data, expect) {
		t.Error("got", cols.Data, "expect", expect)
	}
	// adjoint accumulates overlapping patches
	out := NewArray(1, 3, 3, 1)
	Col2im(cols, 2, 1, 0, out)
	expect = []float64{1, 4, 3, 8, 20, 12, 7, 16, 9}
	if !reflect.DeepEqual(out.Data, expect) {
		t.Error("col2im: got", out.Data, "expect", expect)
	}
}

func TestIm2colPadded(t *testing.T) {
	in := NewArrayFrom([]float64{1, 2, 3, 4}, 1, 2, 2, 1)
	oh := ConvSize(2, 2, 1, 1)
	cols := NewArray(oh*oh, 4)
	Im2col(in, 2, 1, 1, cols)
	// top left patch sees only the corner pixel
	expect := []float64{0, 0, 0, 1}
	if !reflect.DeepEqual(cols.Data[:4], expect) {
		t.Error("got", cols.Data[:4], "expect", expect)
	}
}

func TestMaxPool(t *testing.T) {
	in := NewArrayFrom([]float64{
		1, 5, 2, 0,
		3, 4, 1, 1,
		0, 0, 9, 2,
		1, 2, 3, 4,
	}, 1, 4, 4, 1)
	out := NewArray(1, 2, 2, 1)
	mask := make([]int, 4)
	MaxPool(in, 2, 2, out, mask)
	expect := []float64{5, 2, 2, 9}
	if !reflect.DeepEqual(out.Data, expect) {
		t.Error("got", out.Data, "expect", expect)
	}
	grad := NewArrayFrom([]float64{1, 1, 1, 1}, 1, 2, 2, 1)
	dsrc := NewArray(1, 4, 4, 1)
	MaxPoolD(grad, mask, dsrc)
	if got := Sum(dsrc); got != 4 {
		t.Error("gradient sum: got", got, "expect 4")
	}
	if dsrc.Data[1] != 1 || dsrc.Data[10] != 1 {
		t.Error("gradient routed to wrong positions:", dsrc.Data)
	}
}

func TestRelu(t *testing.T) {
	src := NewArrayFrom([]float64{-1, 0, 2}, 1, 3)
	dst := NewArray(1, 3)
	Relu(src, dst)
	if !reflect.DeepEqual(dst.Data, []float64{0, 0, 2}) {
		t.Error("got", dst.Data)
	}
	grad := NewArrayFrom([]float64{5, 5, 5}, 1, 3)
	ReluD(src, grad, dst)
	if !reflect.DeepEqual(dst.Data, []float64{0, 0, 5}) {
		t.Error("deriv: got", dst.Data)
	}
}
