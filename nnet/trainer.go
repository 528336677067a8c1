package nnet

import (
	"fmt"
	"time"

	"digitnet/num"
	"digitnet/stats"
)

// History metric names in reporting order.
var HistoryKeys = []string{"accuracy", "loss", "val_accuracy", "val_loss"}

// Training statistics for one epoch
type Stats struct {
	Epoch   int
	Loss    float64
	Acc     float64
	ValLoss float64
	ValAcc  float64
	Elapsed time.Duration
}

func (s Stats) Format() string {
	return fmt.Sprintf("epoch %3d:  loss =%7.4f  accuracy =%6.2f%%  val_loss =%7.4f  val_accuracy =%6.2f%%",
		s.Epoch, s.Loss, s.Acc*100, s.ValLoss, s.ValAcc*100)
}

// History maps a metric name to its per epoch values, in the same layout as
// the usual fit history: accuracy, loss, val_accuracy, val_loss.
type History map[string][]float64

func NewHistory() History {
	h := History{}
	for _, key := range HistoryKeys {
		h[key] = []float64{}
	}
	return h
}

// Append the metrics for one epoch.
func (h History) Append(s Stats) {
	h["accuracy"] = append(h["accuracy"], s.Acc)
	h["loss"] = append(h["loss"], s.Loss)
	h["val_accuracy"] = append(h["val_accuracy"], s.ValAcc)
	h["val_loss"] = append(h["val_loss"], s.ValLoss)
}

// Epochs returns the number of completed epochs.
func (h History) Epochs() int { return len(h["loss"]) }

// EarlyStopping monitors the validation loss and stops training once it has
// failed to improve for Patience epochs, restoring the weights from the best
// observed epoch.
type EarlyStopping struct {
	Patience  int
	best      float64
	bestEpoch int
	weights   [][]float64
	stopped   bool
}

func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience}
}

// Step records the validation loss for this epoch, snapshotting the weights
// on improvement. It returns true when training should stop, in which case
// the best weights have been restored to the network.
func (e *EarlyStopping) Step(net *Network, epoch int, valLoss float64) bool {
	if e.weights == nil || valLoss < e.best {
		e.best = valLoss
		e.bestEpoch = epoch
		e.weights = net.Weights()
		return false
	}
	if epoch-e.bestEpoch >= e.Patience {
		net.SetWeights(e.weights)
		e.stopped = true
		return true
	}
	return false
}

// BestEpoch returns the epoch with the lowest validation loss so far.
func (e *EarlyStopping) BestEpoch() int { return e.bestEpoch }

// Stopped reports whether training was halted before the epoch limit.
func (e *EarlyStopping) Stopped() bool { return e.stopped }

// Listener receives the stats for each completed epoch.
type Listener interface {
	Publish(s Stats)
}

// Tester interface to evaluate the performance after each epoch, Test method
// returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss, acc float64, start time.Time) bool
}

// Tester which evaluates loss and accuracy on the validation set and updates
// the stats and history.
type TestBase struct {
	Data  *Dataset
	Stop  *EarlyStopping
	Stats []Stats
	Hist  History
}

// Create a new base tester for the given validation data.
func NewTestBase(data *Dataset, stop *EarlyStopping) *TestBase {
	return &TestBase{Data: data, Stop: stop, Hist: NewHistory()}
}

// Test the network performance, called on completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss, acc float64, start time.Time) bool {
	valLoss, valAcc := net.Evaluate(t.Data)
	s := Stats{Epoch: epoch, Loss: loss, Acc: acc, ValLoss: valLoss, ValAcc: valAcc, Elapsed: time.Since(start)}
	t.Stats = append(t.Stats, s)
	t.Hist.Append(s)
	done := epoch >= net.MaxEpoch || loss <= net.MinLoss
	if t.Stop != nil && t.Stop.Step(net, epoch, valLoss) {
		done = true
	}
	return done
}

// Tester which logs the stats for each epoch to stdout.
type TestLogger struct {
	*TestBase
	Listeners []Listener
	epochTime stats.EMA
	prevTime  time.Duration
}

func NewTestLogger(data *Dataset, stop *EarlyStopping, listeners ...Listener) *TestLogger {
	return &TestLogger{TestBase: NewTestBase(data, stop), Listeners: listeners}
}

func (t *TestLogger) Test(net *Network, epoch int, loss, acc float64, start time.Time) bool {
	done := t.TestBase.Test(net, epoch, loss, acc, start)
	s := t.Stats[len(t.Stats)-1]
	t.epochTime = stats.EMA(t.epochTime.Add((s.Elapsed - t.prevTime).Seconds(), 10))
	t.prevTime = s.Elapsed
	for _, l := range t.Listeners {
		l.Publish(s)
	}
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		fmt.Println(s.Format())
	}
	if done {
		if t.Stop != nil && t.Stop.Stopped() {
			fmt.Printf("early stop: restored weights from epoch %d\n", t.Stop.BestEpoch())
		}
		fmt.Printf("run time: %s  avg epoch: %.2fs\n", s.Elapsed.Round(10*time.Millisecond), float64(t.epochTime))
	}
	return done
}

// Train the network on the given training set by updating the weights with
// the optimiser after each batch, evaluating via the tester after each epoch.
func Train(net *Network, dset *Dataset, opt *Adam, test Tester) {
	start := time.Now()
	done := false
	for epoch := 1; epoch <= net.MaxEpoch && !done; epoch++ {
		loss, acc := TrainEpoch(net, dset, opt)
		done = test.Test(net, epoch, loss, acc, start)
	}
}

// Perform one training epoch on the dataset, returns the average loss and
// accuracy accumulated over the batches prior to each weight update.
func TrainEpoch(net *Network, dset *Dataset, opt *Adam) (loss, accuracy float64) {
	errs := 0
	dset.NextEpoch()
	for batch := 0; batch < dset.Batches; batch++ {
		x, y1H, labels := dset.NextBatch()
		size := x.Dims()[0]
		yPred := net.Fprop(x, true)
		loss += net.OutLayer().Loss(y1H, yPred)
		net.allocBuffers(size)
		num.Unhot(yPred, net.classes[:size])
		errs += num.Neq(net.classes[:size], labels)
		// output gradient is softmax minus target, scaled to a batch mean
		grad := yPred.Copy()
		num.Axpy(-1, y1H, grad)
		num.Scale(1/float64(size), grad)
		net.Bprop(grad)
		opt.Update(net)
	}
	samples := float64(dset.Samples)
	return loss / samples, 1 - float64(errs)/samples
}
