package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Weight initialisation scheme for conv and linear layers.
type WeightInit int

const (
	LecunNormal WeightInit = iota
	HeNormal
	GlorotUniform
)

func (w WeightInit) String() string {
	switch w {
	case HeNormal:
		return "heNormal"
	case GlorotUniform:
		return "glorotUniform"
	default:
		return "lecunNormal"
	}
}

// Training configuration settings
type Config struct {
	DataSet    string
	Eta        float64
	TrainBatch int
	TestBatch  int
	MaxEpoch   int
	StopAfter  int
	MinLoss    float64
	Shuffle    bool
	WeightInit WeightInit
	RandSeed   int64
	LogEvery   int
	Layers     []LayerConfig
}

// Append layers to the config struct
func (c Config) AddLayers(layers ...ConfigLayer) Config {
	for _, l := range layers {
		c.Layers = append(c.Layers, l.Marshal())
	}
	return c
}

// Load network config from JSON file
func LoadConfig(path string) (c Config, err error) {
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()
	if err = json.NewDecoder(f).Decode(&c); err != nil {
		return c, fmt.Errorf("load config %s: %w", path, err)
	}
	return c, nil
}

// Save config as indented JSON
func (c Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func (c Config) String() string {
	s := []string{"== Config =="}
	s = append(s,
		fmt.Sprintf("%-14s: %s", "DataSet", c.DataSet),
		fmt.Sprintf("%-14s: %g", "Eta", c.Eta),
		fmt.Sprintf("%-14s: %d", "TrainBatch", c.TrainBatch),
		fmt.Sprintf("%-14s: %d", "TestBatch", c.TestBatch),
		fmt.Sprintf("%-14s: %d", "MaxEpoch", c.MaxEpoch),
		fmt.Sprintf("%-14s: %d", "StopAfter", c.StopAfter),
		fmt.Sprintf("%-14s: %v", "Shuffle", c.Shuffle),
		fmt.Sprintf("%-14s: %s", "WeightInit", c.WeightInit),
	)
	if c.Layers != nil {
		s = append(s, "== Network ==")
		for i, layer := range c.Layers {
			s = append(s, fmt.Sprintf("%2d: %s", i, layer))
		}
	}
	return strings.Join(s, "\n")
}
