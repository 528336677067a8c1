package nnet

import (
	"math"
	"reflect"
	"testing"
)

func smallConfig() Config {
	conf := Config{
		Eta:        0.1,
		TrainBatch: 4,
		TestBatch:  4,
		MaxEpoch:   50,
		StopAfter:  5,
		WeightInit: HeNormal,
		RandSeed:   42,
		LogEvery:   10,
	}
	return conf.AddLayers(Linear{Nout: 2}, LogRegression{})
}

// two point clouds either side of the origin, class is the sign of the first
// feature.
type signData struct{ inputs []float64 }

func newSignData() signData {
	return signData{inputs: []float64{1, 0.5, 2, -0.5, -1, 0.5, -2, -0.5}}
}

func (d signData) Len() int { return 4 }

func (d signData) Classes() int { return 2 }

func (d signData) Shape() []int { return []int{2} }

func (d signData) Input(index []int, buf []float64) {
	for i, ix := range index {
		copy(buf[i*2:i*2+2], d.inputs[ix*2:ix*2+2])
	}
}

func (d signData) Label(index []int, labels []int32) {
	for i, ix := range index {
		if d.inputs[ix*2] > 0 {
			labels[i] = 0
		} else {
			labels[i] = 1
		}
	}
}

func TestEarlyStopping(t *testing.T) {
	conf := smallConfig()
	net := New(conf, []int{2})
	stop := NewEarlyStopping(conf.StopAfter)

	weightsAt := map[int][][]float64{}
	valLoss := []float64{0.5, 0.4, 0.45, 0.45, 0.45, 0.45, 0.45}
	for epoch := 1; epoch <= len(valLoss); epoch++ {
		net.InitWeights(SetSeed(int64(epoch)))
		weightsAt[epoch] = net.Weights()
		done := stop.Step(net, epoch, valLoss[epoch-1])
		if epoch < len(valLoss) && done {
			t.Fatal("stopped early at epoch", epoch)
		}
		if epoch == len(valLoss) && !done {
			t.Fatal("expect stop at epoch", epoch)
		}
	}
	if !stop.Stopped() {
		t.Error("expect stopped flag set")
	}
	if e := stop.BestEpoch(); e != 2 {
		t.Error("best epoch: got", e, "expect 2")
	}
	if !reflect.DeepEqual(net.Weights(), weightsAt[2]) {
		t.Error("weights not restored from best epoch")
	}
}

func TestEarlyStoppingImproving(t *testing.T) {
	net := New(smallConfig(), []int{2})
	stop := NewEarlyStopping(5)
	for epoch := 1; epoch <= 20; epoch++ {
		if stop.Step(net, epoch, 1/float64(epoch)) {
			t.Fatal("stopped at epoch", epoch, "while still improving")
		}
	}
	if stop.Stopped() {
		t.Error("stopped flag should not be set")
	}
}

func TestTrain(t *testing.T) {
	conf := smallConfig()
	net := New(conf, []int{2})
	rng := SetSeed(conf.RandSeed)
	data := newSignData()
	trainData := NewDataset(data, conf.TrainBatch, false, rng)
	testData := NewDataset(data, conf.TestBatch, false, rng)

	test := NewTestLogger(testData, NewEarlyStopping(conf.StopAfter))
	Train(net, trainData, NewAdam(conf.Eta), test)

	epochs := len(test.Stats)
	if epochs == 0 {
		t.Fatal("no epochs recorded")
	}
	for _, key := range HistoryKeys {
		if n := len(test.Hist[key]); n != epochs {
			t.Errorf("history %s: got %d entries, expect %d", key, n, epochs)
		}
	}
	first, last := test.Stats[0], test.Stats[epochs-1]
	if last.Loss >= first.Loss {
		t.Error("train loss did not decrease: got", first.Loss, "->", last.Loss)
	}
	if last.ValAcc != 1 {
		t.Error("expect linearly separable data to be fit, accuracy:", last.ValAcc)
	}
	trainData.Wait()
	testData.Wait()
}

func TestTrainOneEpoch(t *testing.T) {
	conf := smallConfig()
	conf.MaxEpoch = 1
	net := New(conf, []int{2})
	rng := SetSeed(conf.RandSeed)
	data := newSignData()
	trainData := NewDataset(data, 2, false, rng)
	testData := NewDataset(data, 2, false, rng)
	opt := NewAdam(conf.Eta)

	test := NewTestLogger(testData, nil)
	Train(net, trainData, opt, test)

	if n := len(test.Stats); n != 1 {
		t.Fatal("epochs: got", n, "expect 1")
	}
	for _, key := range HistoryKeys {
		if n := len(test.Hist[key]); n != 1 {
			t.Errorf("history %s: got %d entries, expect 1", key, n)
		}
	}
	path := t.TempDir() + "/toy.net"
	if err := SaveModel(path, net, opt); err != nil {
		t.Fatal(err)
	}
	net2, _, err := LoadModel(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(net.Weights(), net2.Weights()) {
		t.Error("reloaded model differs")
	}
	trainData.Wait()
	testData.Wait()
}

func TestEvaluate(t *testing.T) {
	conf := smallConfig()
	net := New(conf, []int{2})
	data := newSignData()
	dset := NewDataset(data, 2, false, SetSeed(42))
	loss, acc := net.Evaluate(dset)
	if math.IsNaN(loss) || loss <= 0 {
		t.Error("loss: got", loss)
	}
	if acc < 0 || acc > 1 {
		t.Error("accuracy out of range: got", acc)
	}
	dset.Wait()
}
