package nnet

import (
	"math/rand"
	"sync"

	"digitnet/num"
)

// Data interface type represents the raw samples for a training or test set.
type Data interface {
	Len() int
	Classes() int
	Shape() []int
	Input(index []int, buf []float64)
	Label(index []int, labels []int32)
}

// Dataset type encapsulates a set of training or test data. Batches are
// assembled on a background goroutine with double buffering so that the next
// batch is prefetched while the current one is being processed.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	shuffle   bool
	rng       *rand.Rand
	indexes   []int
	xBuffer   [2][]float64
	yBuffer   [2][]int32
	x, y1H    [2]*num.Array
	labels    [2][]int32
	batch     int
	buf       int
	sync.WaitGroup
}

// Create a new Dataset with the given batch size. If shuffle is set the
// sample order is permuted at the start of each epoch.
func NewDataset(data Data, batchSize int, shuffle bool, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, Samples: data.Len(), shuffle: shuffle, rng: rng}
	if batchSize <= 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	d.Batches = d.Samples / d.BatchSize
	if d.Samples%d.BatchSize != 0 {
		d.Batches++
	}
	nfeat := num.Prod(data.Shape())
	for i := range d.xBuffer {
		d.xBuffer[i] = make([]float64, nfeat*d.BatchSize)
		d.yBuffer[i] = make([]int32, d.BatchSize)
	}
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	return d
}

// Shuffle the sample order
func (d *Dataset) Shuffle() {
	d.indexes = d.rng.Perm(d.Samples)
}

// Called at the start of each epoch: rewinds to the first batch and kicks off
// the prefetch of batch 0.
func (d *Dataset) NextEpoch() {
	d.Wait()
	d.batch = 0
	if d.shuffle {
		d.Shuffle()
	}
	d.loadBatch()
}

// Get the next batch of data: input array, one hot labels and class labels.
// The batch dimension of the returned arrays is the actual batch size, which
// is smaller for the final batch if it does not divide evenly.
func (d *Dataset) NextBatch() (x, yOneHot *num.Array, labels []int32) {
	d.Wait()
	x, yOneHot, labels = d.x[d.buf], d.y1H[d.buf], d.labels[d.buf]
	d.batch = (d.batch + 1) % d.Batches
	d.buf = (d.buf + 1) % 2
	d.loadBatch()
	return
}

// kick off load of next batch of data in background
func (d *Dataset) loadBatch() {
	d.Add(1)
	go func() {
		buf := d.buf
		start := d.batch * d.BatchSize
		end := start + d.BatchSize
		if end > d.Samples {
			end = d.Samples
		}
		n := end - start
		nfeat := num.Prod(d.Shape())
		index := d.indexes[start:end]
		d.Input(index, d.xBuffer[buf][:n*nfeat])
		d.Label(index, d.yBuffer[buf][:n])
		dims := append([]int{n}, d.Shape()...)
		d.x[buf] = num.NewArrayFrom(d.xBuffer[buf][:n*nfeat], dims...)
		d.y1H[buf] = sized(d.y1H[buf], n, d.Classes())
		num.Onehot(d.yBuffer[buf][:n], d.y1H[buf], d.Classes())
		d.labels[buf] = d.yBuffer[buf][:n]
		d.Done()
	}()
}
