// Package nnet contains routines for constructing, training and testing
// convolutional neural networks.
package nnet

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"digitnet/num"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers  []Layer
	InShape []int
	classes []int32
}

// New function creates a new network from the layer configuration with the
// given input sample shape (excluding the batch dimension).
func New(conf Config, inShape []int) *Network {
	n := &Network{Config: conf, InShape: append([]int{}, inShape...)}
	rng := rand.New(rand.NewSource(seed(conf.RandSeed)))
	shape := n.InShape
	for _, l := range conf.Layers {
		layer := l.Unmarshal()
		layer.Init(shape, rng)
		n.Layers = append(n.Layers, layer)
		shape = layer.OutShape(shape)
	}
	n.InitWeights(rng)
	return n
}

// Initialise network weights using the configured scheme.
func (n *Network) InitWeights(rng *rand.Rand) {
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			l.InitParams(rng, n.WeightInit)
		}
	}
}

// Accessor for the output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// Feed forward the input to get the predicted output
func (n *Network) Fprop(input *num.Array, train bool) *num.Array {
	pred := input
	for _, layer := range n.Layers {
		pred = layer.Fprop(pred, train)
	}
	return pred
}

// Back propagate the output gradient through all of the layers
func (n *Network) Bprop(grad *num.Array) {
	for i := len(n.Layers) - 1; i >= 0; i-- {
		grad = n.Layers[i].Bprop(grad)
	}
}

// Predict the output classes for one batch of input data
func (n *Network) Predict(input *num.Array, classes []int32) *num.Array {
	yPred := n.Fprop(input, false)
	num.Unhot(yPred, classes)
	return yPred
}

// Evaluate the average loss and accuracy over the given dataset.
func (n *Network) Evaluate(dset *Dataset) (loss, accuracy float64) {
	errs := 0
	dset.NextEpoch()
	for batch := 0; batch < dset.Batches; batch++ {
		x, y1H, labels := dset.NextBatch()
		size := x.Dims()[0]
		n.allocBuffers(size)
		yPred := n.Predict(x, n.classes[:size])
		loss += n.OutLayer().Loss(y1H, yPred)
		errs += num.Neq(n.classes[:size], labels)
	}
	samples := float64(dset.Samples)
	return loss / samples, 1 - float64(errs)/samples
}

// Weights returns a copy of all layer weights and biases in layer order.
func (n *Network) Weights() [][]float64 {
	var res [][]float64
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			res = append(res, append([]float64{}, W.Data...))
			res = append(res, append([]float64{}, B.Data...))
		}
	}
	return res
}

// SetWeights restores layer weights from a snapshot taken with Weights.
func (n *Network) SetWeights(weights [][]float64) {
	i := 0
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			copy(W.Data, weights[i])
			copy(B.Data, weights[i+1])
			i += 2
		}
	}
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	shape := n.InShape
	for i, layer := range n.Layers {
		s[i] = fmt.Sprintf("%2d: %-24s %v", i, layer, shape)
		shape = layer.OutShape(shape)
	}
	return fmt.Sprintf("%s\n%s", n.Config, strings.Join(s, "\n"))
}

func (n *Network) allocBuffers(size int) {
	if len(n.classes) < size {
		n.classes = make([]int32, size)
	}
}

func seed(s int64) int64 {
	if s <= 0 {
		return time.Now().UTC().UnixNano()
	}
	return s
}

// Set random number seed, or seed from the clock if seed <= 0
func SetSeed(s int64) *rand.Rand {
	return rand.New(rand.NewSource(seed(s)))
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
