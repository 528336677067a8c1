// Package report renders training curves from the fit history.
package report

import (
	"bytes"
	"fmt"
	"os"

	"digitnet/nnet"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Curves builds the accuracy and loss plots from the training history:
// train and validation accuracy per epoch, train and validation loss per epoch.
func Curves(h nnet.History) (acc, loss *plot.Plot) {
	acc = newPlot("Accuracy Curve", "Accuracy")
	addLine(acc, "Train Accuracy", h["accuracy"], 0, 1)
	addLine(acc, "Test Accuracy", h["val_accuracy"], 1, 1)
	loss = newPlot("Loss Curve", "Loss")
	addLine(loss, "Train Loss", h["loss"], 0, 0)
	addLine(loss, "Test Loss", h["val_loss"], 1, 0)
	return acc, loss
}

// SaveCurves writes the two plots side by side to a PNG file.
func SaveCurves(h nnet.History, path string) error {
	acc, loss := Curves(h)
	img := vgimg.New(12*vg.Inch, 5*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: 5 * vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{acc, loss}}, tiles, dc)
	acc.Draw(canvases[0][0])
	loss.Draw(canvases[0][1])
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save curves: %w", err)
	}
	defer f.Close()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return fmt.Errorf("save curves %s: %w", path, err)
	}
	return nil
}

// WriteSVG renders a single plot as SVG markup for embedding in a page.
func WriteSVG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	writer, err := p.WriterTo(w, h, "svg")
	if err != nil {
		return nil, fmt.Errorf("write plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epochs"
	p.Y.Label.Text = ylabel
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Tick.Label.Font.Size = 10
	p.Y.Tick.Label.Font.Size = 10
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func addLine(p *plot.Plot, name string, vals []float64, ix int, ymax float64) {
	line := newLinePlot(vals, ix, ymax)
	p.Add(line)
	p.Legend.Add(name, line.Line)
}

func newLinePlot(vals []float64, ix int, ymax float64) linePlot {
	pts := make(plotter.XYs, len(vals))
	xmax := 1.0
	for i, v := range vals {
		pts[i].X, pts[i].Y = float64(i+1), v
		if pts[i].X > xmax {
			xmax = pts[i].X
		}
		if v > ymax {
			ymax = v
		}
	}
	l, _ := plotter.NewLine(pts)
	l.Width = 2
	l.Color = plotutil.Color(ix)
	return linePlot{Line: l, xmin: 1, xmax: xmax, ymin: 0, ymax: ymax}
}

// modified plotter.Line with a fixed scale
type linePlot struct {
	*plotter.Line
	xmin, xmax, ymin, ymax float64
}

func (l linePlot) DataRange() (xmin, xmax, ymin, ymax float64) {
	return l.xmin, l.xmax, l.ymin, l.ymax
}
