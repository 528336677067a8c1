package nnet

import "math"

// Adam optimiser with bias corrected first and second moment estimates.
// State is exported so that a trained model can be checkpointed and resumed.
type Adam struct {
	Eta     float64
	Beta1   float64
	Beta2   float64
	Epsilon float64
	Step    int
	M, V    [][]float64
}

// NewAdam creates an optimiser with the given learning rate and the usual
// defaults for the decay rates.
func NewAdam(eta float64) *Adam {
	return &Adam{Eta: eta, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

// Update applies one optimisation step to every parameter layer in the
// network. Gradients are expected to be batch means.
func (o *Adam) Update(net *Network) {
	params, grads := netParams(net)
	if o.M == nil {
		o.M = make([][]float64, len(params))
		o.V = make([][]float64, len(params))
		for i, p := range params {
			o.M[i] = make([]float64, len(p))
			o.V[i] = make([]float64, len(p))
		}
	}
	o.Step++
	t := float64(o.Step)
	alpha := o.Eta * math.Sqrt(1-math.Pow(o.Beta2, t)) / (1 - math.Pow(o.Beta1, t))
	for i, p := range params {
		m, v, g := o.M[i], o.V[i], grads[i]
		for j := range p {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g[j]
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g[j]*g[j]
			p[j] -= alpha * m[j] / (math.Sqrt(v[j]) + o.Epsilon)
		}
	}
}

// netParams returns the live parameter and gradient slices in layer order,
// weights then biases for each parameter layer.
func netParams(net *Network) (params, grads [][]float64) {
	for _, layer := range net.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			dW, dB := l.ParamGrads()
			params = append(params, W.Data, B.Data)
			grads = append(grads, dW.Data, dB.Data)
		}
	}
	return params, grads
}
