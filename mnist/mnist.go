// Package mnist fetches and decodes the MNIST handwritten digit dataset and
// prepares it for training.
package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"digitnet/stats"
)

// DataDir is the local cache directory for the dataset files.
var DataDir = "data"

var mirrors = []string{
	"https://storage.googleapis.com/cvdf-datasets/mnist/",
	"https://ossci-datasets.s3.amazonaws.com/mnist/",
}

const (
	imageMagic = 2051
	labelMagic = 2049
)

type imageHeader struct{ Magic, Num, Rows, Cols uint32 }

type labelHeader struct{ Magic, Num uint32 }

// Raw sample set straight from the IDX files: one byte per pixel.
type RawData struct {
	Rows, Cols int
	Labels     []int32
	Pixels     []uint8
}

func (d *RawData) Len() int { return len(d.Labels) }

// Summary returns the pixel mean and stddev over the whole set, scaled to [0,1].
func (d *RawData) Summary() string {
	avg := new(stats.Average)
	for _, p := range d.Pixels {
		avg.Add(float64(p) / 255)
	}
	return fmt.Sprintf("%d images %dx%d  pixel mean=%.3f stddev=%.3f",
		d.Len(), d.Rows, d.Cols, avg.Mean, avg.StdDev)
}

// Load returns the raw training and test sets, fetching and caching the
// dataset files under dir if they are not already present. Any failure to
// fetch or decode is returned as an error and should abort the run.
func Load(dir string) (train, test *RawData, err error) {
	if train, err = load(dir, "train-images-idx3-ubyte", "train-labels-idx1-ubyte"); err != nil {
		return nil, nil, err
	}
	if test, err = load(dir, "t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte"); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func load(dir, imageFile, labelFile string) (*RawData, error) {
	raw, err := fetch(dir, imageFile)
	if err != nil {
		return nil, err
	}
	d, err := readImages(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mnist: %s: %w", imageFile, err)
	}
	raw, err = fetch(dir, labelFile)
	if err != nil {
		return nil, err
	}
	if d.Labels, err = readLabels(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("mnist: %s: %w", labelFile, err)
	}
	if len(d.Labels)*d.Rows*d.Cols != len(d.Pixels) {
		return nil, fmt.Errorf("mnist: %s: %d labels for %d images", labelFile,
			len(d.Labels), len(d.Pixels)/(d.Rows*d.Cols))
	}
	return d, nil
}

// fetch returns the cached file contents, downloading and decompressing from
// the mirror list on a cache miss.
func fetch(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mnist: %w", err)
	}
	var lastErr error
	for _, mirror := range mirrors {
		url := mirror + name + ".gz"
		data, err := download(url)
		if err != nil {
			lastErr = err
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("mnist: cache %s: %w", path, err)
		}
		fmt.Printf("downloaded %s (%d bytes)\n", url, len(data))
		return data, nil
	}
	return nil, fmt.Errorf("mnist: fetch %s: %w", name, lastErr)
}

func download(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: %s", url, resp.Status)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func readImages(r io.Reader) (*RawData, error) {
	var head imageHeader
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, err
	}
	if head.Magic != imageMagic {
		return nil, fmt.Errorf("bad image magic %d", head.Magic)
	}
	d := &RawData{Rows: int(head.Rows), Cols: int(head.Cols)}
	d.Pixels = make([]uint8, int(head.Num)*d.Rows*d.Cols)
	if _, err := io.ReadFull(r, d.Pixels); err != nil {
		return nil, err
	}
	return d, nil
}

func readLabels(r io.Reader) ([]int32, error) {
	var head labelHeader
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, err
	}
	if head.Magic != labelMagic {
		return nil, fmt.Errorf("bad label magic %d", head.Magic)
	}
	bytes := make([]byte, head.Num)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return nil, err
	}
	labels := make([]int32, head.Num)
	for i, label := range bytes {
		labels[i] = int32(label)
	}
	return labels, nil
}
