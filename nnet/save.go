package nnet

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Model archive: everything needed to rebuild the trained network and resume
// or redeploy it - the layer configuration, the input shape, all weights and
// the optimiser state.
type modelData struct {
	Conf    Config
	InShape []int
	Weights [][]float64
	Opt     *Adam
}

// SaveModel writes the trained network and optimiser state to a single gob
// encoded archive file.
func SaveModel(path string, net *Network, opt *Adam) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	defer f.Close()
	data := modelData{Conf: net.Config, InShape: net.InShape, Weights: net.Weights(), Opt: opt}
	if err := gob.NewEncoder(f).Encode(&data); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	return nil
}

// LoadModel reads a model archive written by SaveModel and reconstructs an
// equivalent network and optimiser.
func LoadModel(path string) (*Network, *Adam, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	defer f.Close()
	var data modelData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("load model %s: %w", path, err)
	}
	net := New(data.Conf, data.InShape)
	net.SetWeights(data.Weights)
	return net, data.Opt, nil
}
