// Command mnist_cnn trains a convolutional network on the MNIST handwritten
// digit dataset and saves the trained model and learning curves.
package main

import (
	"flag"
	"fmt"
	"log"

	"digitnet/mnist"
	"digitnet/nnet"
	"digitnet/report"
	"digitnet/web"
)

const (
	modelFile  = "mnist_cnn.net"
	configFile = "mnist_cnn.conf"
	curvesFile = "mnist_cnn_curves.png"
)

func config() nnet.Config {
	conf := nnet.Config{
		DataSet:    "mnist",
		Eta:        0.001,
		TrainBatch: 128,
		TestBatch:  128,
		MaxEpoch:   50,
		StopAfter:  5,
		Shuffle:    true,
		WeightInit: nnet.HeNormal,
		LogEvery:   1,
	}
	return conf.AddLayers(
		nnet.Conv{Nfeats: 32, Size: 5},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{Size: 2},
		nnet.Dropout{Ratio: 0.15},
		nnet.Conv{Nfeats: 64, Size: 5},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{Size: 2},
		nnet.Dropout{Ratio: 0.15},
		nnet.Flatten{},
		nnet.Linear{Nout: 1024},
		nnet.Activation{Atype: "relu"},
		nnet.Dropout{Ratio: 0.15},
		nnet.Linear{Nout: mnist.NumClasses},
		nnet.LogRegression{},
	)
}

func main() {
	log.SetFlags(0)
	var webAddr string
	var seed int64
	flag.StringVar(&webAddr, "web", "", "serve live training monitor on this address, e.g. :8080")
	flag.Int64Var(&seed, "seed", 0, "random number seed - set randomly if <= 0")
	flag.Parse()

	conf := config()
	conf.RandSeed = seed
	fmt.Println(conf)
	nnet.CheckErr(conf.Save(configFile))

	rawTrain, rawTest, err := mnist.Load(mnist.DataDir)
	nnet.CheckErr(err)
	log.Println("train:", rawTrain.Summary())
	log.Println("test: ", rawTest.Summary())

	rng := nnet.SetSeed(conf.RandSeed)
	trainData := nnet.NewDataset(mnist.Standardize(rawTrain), conf.TrainBatch, conf.Shuffle, rng)
	testData := nnet.NewDataset(mnist.Standardize(rawTest), conf.TestBatch, false, rng)

	net := nnet.New(conf, []int{rawTrain.Rows, rawTrain.Cols, 1})
	fmt.Println(net)

	var listeners []nnet.Listener
	if webAddr != "" {
		monitor := web.NewMonitor("MNIST CNN", conf.MaxEpoch)
		go func() { nnet.CheckErr(monitor.ListenAndServe(webAddr)) }()
		listeners = append(listeners, monitor)
	}

	opt := nnet.NewAdam(conf.Eta)
	test := nnet.NewTestLogger(testData, nnet.NewEarlyStopping(conf.StopAfter), listeners...)
	nnet.Train(net, trainData, opt, test)

	loss, acc := net.Evaluate(testData)
	fmt.Printf("final test loss: %.4f  accuracy: %.4f\n", loss, acc)

	nnet.CheckErr(report.SaveCurves(test.Hist, curvesFile))
	log.Println("saved learning curves to", curvesFile)
	nnet.CheckErr(nnet.SaveModel(modelFile, net, opt))
	log.Println("saved model to", modelFile)
}
