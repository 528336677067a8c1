package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"digitnet/num"

	"gonum.org/v1/gonum/floats"
)

// Layer interface type represents one layer of the neural net.
type Layer interface {
	Init(inShape []int, rng *rand.Rand)
	OutShape(inShape []int) []int
	Fprop(in *num.Array, train bool) *num.Array
	Bprop(grad *num.Array) *num.Array
	Type() string
	String() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(rng *rand.Rand, init WeightInit)
	Params() (W, B *num.Array)
	ParamGrads() (dW, dB *num.Array)
	SetParams(W, B *num.Array)
}

// OutputLayer is the final layer in the stack
type OutputLayer interface {
	Layer
	Loss(yOneHot, yPred *num.Array) float64
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() Layer {
	switch l.Type {
	case "conv":
		cfg := new(Conv)
		unmarshal(l.Data, cfg)
		return &conv{Conv: *cfg}
	case "maxPool":
		cfg := new(MaxPool)
		unmarshal(l.Data, cfg)
		return &maxPool{MaxPool: *cfg}
	case "dropout":
		cfg := new(Dropout)
		unmarshal(l.Data, cfg)
		return &dropout{Dropout: *cfg}
	case "linear":
		cfg := new(Linear)
		unmarshal(l.Data, cfg)
		return &linear{Linear: *cfg}
	case "activation":
		cfg := new(Activation)
		unmarshal(l.Data, cfg)
		return newActivation(*cfg)
	case "flatten":
		return &flatten{}
	case "logRegression":
		return &logRegression{}
	default:
		panic("invalid layer type: " + l.Type)
	}
}

func (l LayerConfig) String() string {
	return l.Unmarshal().String()
}

// Convolutional layer config, 'valid' padding unless Pad is set.
type Conv struct {
	Nfeats, Size, Stride, Pad int
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

// Max pooling layer config, should follow a conv layer.
type MaxPool struct {
	Size, Stride int
}

func (c MaxPool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	return LayerConfig{Type: "maxPool", Data: marshal(c)}
}

// Dropout layer config: ratio is the fraction of units dropped at train time.
type Dropout struct {
	Ratio float64
}

func (c Dropout) Marshal() LayerConfig {
	return LayerConfig{Type: "dropout", Data: marshal(c)}
}

// Linear fully connected layer config.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

// Sigmoid, tanh or relu activation layer config.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

// LogRegression output layer with softmax activation and cross entropy loss.
type LogRegression struct{}

func (c LogRegression) Marshal() LayerConfig {
	return LayerConfig{Type: "logRegression"}
}

// Flatten layer reshapes the input to 2 dimensions.
type Flatten struct{}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten"}
}

// convolution layer implementation: im2col unroll followed by a matrix
// product so that gonum does the heavy lifting.
type conv struct {
	Conv
	paramBase
	inShape     []int
	src         *num.Array
	cols, dcols *num.Array
	dst, dsrc   *num.Array
}

func (l *conv) Type() string { return "conv" }

func (l *conv) String() string { return fmt.Sprintf("conv %+v", l.Conv) }

func (l *conv) OutShape(inShape []int) []int {
	return []int{
		num.ConvSize(inShape[0], l.Size, l.Stride, l.Pad),
		num.ConvSize(inShape[1], l.Size, l.Stride, l.Pad),
		l.Nfeats,
	}
}

func (l *conv) Init(inShape []int, rng *rand.Rand) {
	if len(inShape) != 3 {
		panic("conv: expect 3 dimensional input")
	}
	if l.Stride == 0 {
		l.Stride = 1
	}
	l.inShape = inShape
	kdim := l.Size * l.Size * inShape[2]
	l.paramBase = newParams([]int{kdim, l.Nfeats}, []int{l.Nfeats})
}

func (l *conv) InitParams(rng *rand.Rand, init WeightInit) {
	fanIn := l.Size * l.Size * l.inShape[2]
	fanOut := l.Size * l.Size * l.Nfeats
	l.paramBase.initParams(rng, init, fanIn, fanOut)
}

func (l *conv) Fprop(in *num.Array, train bool) *num.Array {
	n := in.Dims()[0]
	out := l.OutShape(l.inShape)
	rows := n * out[0] * out[1]
	kdim := l.Size * l.Size * l.inShape[2]
	l.src = in
	l.cols = sized(l.cols, rows, kdim)
	num.Im2col(in, l.Size, l.Stride, l.Pad, l.cols)
	l.dst = sized(l.dst, n, out[0], out[1], l.Nfeats)
	dst2 := l.dst.Reshape(rows, l.Nfeats)
	num.Gemm(l.cols, l.w, dst2, false, false)
	for r := 0; r < rows; r++ {
		floats.Add(dst2.Data[r*l.Nfeats:(r+1)*l.Nfeats], l.b.Data)
	}
	return l.dst
}

func (l *conv) Bprop(grad *num.Array) *num.Array {
	dims := grad.Dims()
	n := dims[0]
	rows := n * dims[1] * dims[2]
	g2 := grad.Reshape(rows, l.Nfeats)
	num.Gemm(l.cols, g2, l.dw, true, false)
	num.Fill(l.db, 0)
	for r := 0; r < rows; r++ {
		floats.Add(l.db.Data, g2.Data[r*l.Nfeats:(r+1)*l.Nfeats])
	}
	kdim := l.Size * l.Size * l.inShape[2]
	l.dcols = sized(l.dcols, rows, kdim)
	num.Gemm(g2, l.w, l.dcols, false, true)
	l.dsrc = sized(l.dsrc, n, l.inShape[0], l.inShape[1], l.inShape[2])
	num.Col2im(l.dcols, l.Size, l.Stride, l.Pad, l.dsrc)
	return l.dsrc
}

// max pooling layer implementation
type maxPool struct {
	MaxPool
	inShape   []int
	dst, dsrc *num.Array
	mask      []int
}

func (l *maxPool) Type() string { return "maxPool" }

func (l *maxPool) String() string { return fmt.Sprintf("maxPool %+v", l.MaxPool) }

func (l *maxPool) OutShape(inShape []int) []int {
	return []int{
		num.ConvSize(inShape[0], l.Size, l.Stride, 0),
		num.ConvSize(inShape[1], l.Size, l.Stride, 0),
		inShape[2],
	}
}

func (l *maxPool) Init(inShape []int, rng *rand.Rand) {
	if len(inShape) != 3 {
		panic("maxPool: expect 3 dimensional input")
	}
	if l.Stride == 0 {
		l.Stride = l.Size
	}
	l.inShape = inShape
}

func (l *maxPool) Fprop(in *num.Array, train bool) *num.Array {
	n := in.Dims()[0]
	out := l.OutShape(l.inShape)
	l.dst = sized(l.dst, n, out[0], out[1], out[2])
	if len(l.mask) < l.dst.Size() {
		l.mask = make([]int, l.dst.Size())
	}
	num.MaxPool(in, l.Size, l.Stride, l.dst, l.mask)
	return l.dst
}

func (l *maxPool) Bprop(grad *num.Array) *num.Array {
	n := grad.Dims()[0]
	l.dsrc = sized(l.dsrc, n, l.inShape[0], l.inShape[1], l.inShape[2])
	num.MaxPoolD(grad, l.mask, l.dsrc)
	return l.dsrc
}

// dropout layer: inverted dropout at train time, identity at inference.
type dropout struct {
	Dropout
	rng       *rand.Rand
	mask      []float64
	dst, dsrc *num.Array
}

func (l *dropout) Type() string { return "dropout" }

func (l *dropout) String() string { return fmt.Sprintf("dropout %+v", l.Dropout) }

func (l *dropout) OutShape(inShape []int) []int { return inShape }

func (l *dropout) Init(inShape []int, rng *rand.Rand) {
	l.rng = rng
}

func (l *dropout) Fprop(in *num.Array, train bool) *num.Array {
	if !train || l.Ratio <= 0 {
		return in
	}
	l.dst = sized(l.dst, in.Dims()...)
	if len(l.mask) < in.Size() {
		l.mask = make([]float64, in.Size())
	}
	scale := 1 / (1 - l.Ratio)
	for i, v := range in.Data {
		if l.rng.Float64() < l.Ratio {
			l.mask[i] = 0
		} else {
			l.mask[i] = scale
		}
		l.dst.Data[i] = v * l.mask[i]
	}
	return l.dst
}

func (l *dropout) Bprop(grad *num.Array) *num.Array {
	l.dsrc = sized(l.dsrc, grad.Dims()...)
	for i, g := range grad.Data {
		l.dsrc.Data[i] = g * l.mask[i]
	}
	return l.dsrc
}

// linear layer implementation
type linear struct {
	Linear
	paramBase
	nIn       int
	src       *num.Array
	dst, dsrc *num.Array
}

func (l *linear) Type() string { return "linear" }

func (l *linear) String() string { return fmt.Sprintf("linear %+v", l.Linear) }

func (l *linear) OutShape(inShape []int) []int { return []int{l.Nout} }

func (l *linear) Init(inShape []int, rng *rand.Rand) {
	if len(inShape) != 1 {
		panic("linear: expect flattened input")
	}
	l.nIn = inShape[0]
	l.paramBase = newParams([]int{l.nIn, l.Nout}, []int{l.Nout})
}

func (l *linear) InitParams(rng *rand.Rand, init WeightInit) {
	l.paramBase.initParams(rng, init, l.nIn, l.Nout)
}

func (l *linear) Fprop(in *num.Array, train bool) *num.Array {
	n := in.Dims()[0]
	l.src = in
	l.dst = sized(l.dst, n, l.Nout)
	num.Gemm(in, l.w, l.dst, false, false)
	for r := 0; r < n; r++ {
		floats.Add(l.dst.Data[r*l.Nout:(r+1)*l.Nout], l.b.Data)
	}
	return l.dst
}

func (l *linear) Bprop(grad *num.Array) *num.Array {
	n := grad.Dims()[0]
	num.Gemm(l.src, grad, l.dw, true, false)
	num.Fill(l.db, 0)
	for r := 0; r < n; r++ {
		floats.Add(l.db.Data, grad.Data[r*l.Nout:(r+1)*l.Nout])
	}
	l.dsrc = sized(l.dsrc, n, l.nIn)
	num.Gemm(grad, l.w, l.dsrc, false, true)
	return l.dsrc
}

// activation layer implementation
type activation struct {
	Activation
	activ     func(src, dst *num.Array)
	deriv     func(src, grad, dst *num.Array)
	src       *num.Array
	dst, dsrc *num.Array
}

func newActivation(c Activation) *activation {
	layer := &activation{Activation: c}
	switch c.Atype {
	case "sigmoid":
		layer.activ = num.Sigmoid
		layer.deriv = num.SigmoidD
	case "tanh":
		layer.activ = num.Tanh
		layer.deriv = num.TanhD
	case "relu":
		layer.activ = num.Relu
		layer.deriv = num.ReluD
	default:
		panic(fmt.Sprintf("activation type %s invalid", c.Atype))
	}
	return layer
}

func (l *activation) Type() string { return "activation" }

func (l *activation) String() string { return fmt.Sprintf("activation %+v", l.Activation) }

func (l *activation) OutShape(inShape []int) []int { return inShape }

func (l *activation) Init(inShape []int, rng *rand.Rand) {}

func (l *activation) Fprop(in *num.Array, train bool) *num.Array {
	l.src = in
	l.dst = sized(l.dst, in.Dims()...)
	l.activ(in, l.dst)
	return l.dst
}

func (l *activation) Bprop(grad *num.Array) *num.Array {
	l.dsrc = sized(l.dsrc, grad.Dims()...)
	l.deriv(l.src, grad, l.dsrc)
	return l.dsrc
}

// flatten layer implementation
type flatten struct {
	src *num.Array
}

func (l *flatten) Type() string { return "flatten" }

func (l *flatten) String() string { return "flatten" }

func (l *flatten) OutShape(inShape []int) []int {
	return []int{num.Prod(inShape)}
}

func (l *flatten) Init(inShape []int, rng *rand.Rand) {}

func (l *flatten) Fprop(in *num.Array, train bool) *num.Array {
	l.src = in
	return in.Reshape(in.Dims()[0], -1)
}

func (l *flatten) Bprop(grad *num.Array) *num.Array {
	return grad.Reshape(l.src.Dims()...)
}

// log regression output layer: softmax over classes
type logRegression struct {
	dst, dsrc *num.Array
	losses    []float64
}

func (l *logRegression) Type() string { return "logRegression" }

func (l *logRegression) String() string { return "logRegression" }

func (l *logRegression) OutShape(inShape []int) []int { return inShape }

func (l *logRegression) Init(inShape []int, rng *rand.Rand) {}

func (l *logRegression) Fprop(in *num.Array, train bool) *num.Array {
	l.dst = sized(l.dst, in.Dims()...)
	num.Softmax(in, l.dst)
	return l.dst
}

func (l *logRegression) Bprop(grad *num.Array) *num.Array {
	l.dsrc = sized(l.dsrc, grad.Dims()...)
	num.Copy(l.dsrc, grad)
	return l.dsrc
}

// Loss returns the total categorical cross entropy over the batch.
func (l *logRegression) Loss(yOneHot, yPred *num.Array) float64 {
	n := yPred.Dims()[0]
	if len(l.losses) < n {
		l.losses = make([]float64, n)
	}
	num.SoftmaxLoss(yOneHot, yPred, l.losses[:n])
	return floats.Sum(l.losses[:n])
}

// weight and bias parameters
type paramBase struct {
	w, b   *num.Array
	dw, db *num.Array
}

func newParams(wShape, bShape []int) paramBase {
	return paramBase{
		w:  num.NewArray(wShape...),
		b:  num.NewArray(bShape...),
		dw: num.NewArray(wShape...),
		db: num.NewArray(bShape...),
	}
}

func (p paramBase) Params() (W, B *num.Array) { return p.w, p.b }

func (p paramBase) ParamGrads() (dW, dB *num.Array) { return p.dw, p.db }

func (p paramBase) SetParams(W, B *num.Array) {
	num.Copy(p.w, W)
	num.Copy(p.b, B)
}

func (p paramBase) initParams(rng *rand.Rand, init WeightInit, fanIn, fanOut int) {
	switch init {
	case HeNormal:
		std := math.Sqrt(2 / float64(fanIn))
		for i := range p.w.Data {
			p.w.Data[i] = rng.NormFloat64() * std
		}
	case GlorotUniform:
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		for i := range p.w.Data {
			p.w.Data[i] = (2*rng.Float64() - 1) * limit
		}
	default:
		std := 1 / math.Sqrt(float64(fanIn))
		for i := range p.w.Data {
			p.w.Data[i] = rng.NormFloat64() * std
		}
	}
	num.Fill(p.b, 0)
}

// sized returns a unless it is nil or has different dimensions.
func sized(a *num.Array, dims ...int) *num.Array {
	if a != nil && num.Prod(a.Dims()) == num.Prod(dims) && a.Dims()[0] == dims[0] {
		return a.Reshape(dims...)
	}
	return num.NewArray(dims...)
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) {
	if err := json.Unmarshal(data, v); err != nil {
		panic(err)
	}
}
