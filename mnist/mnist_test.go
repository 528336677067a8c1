package mnist

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func imageBytes(t *testing.T, num, rows, cols int, pixels []uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	head := imageHeader{Magic: imageMagic, Num: uint32(num), Rows: uint32(rows), Cols: uint32(cols)}
	if err := binary.Write(&buf, binary.BigEndian, head); err != nil {
		t.Fatal(err)
	}
	buf.Write(pixels)
	return buf.Bytes()
}

func labelBytes(t *testing.T, labels []uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	head := labelHeader{Magic: labelMagic, Num: uint32(len(labels))}
	if err := binary.Write(&buf, binary.BigEndian, head); err != nil {
		t.Fatal(err)
	}
	buf.Write(labels)
	return buf.Bytes()
}

func TestReadImages(t *testing.T) {
	pixels := []uint8{0, 128, 255, 64, 32, 16, 8, 4}
	data := imageBytes(t, 2, 2, 2, pixels)
	d, err := readImages(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if d.Rows != 2 || d.Cols != 2 {
		t.Error("dims: got", d.Rows, d.Cols, "expect 2 2")
	}
	if !reflect.DeepEqual(d.Pixels, pixels) {
		t.Error("got", d.Pixels, "expect", pixels)
	}
}

func TestReadImagesBadMagic(t *testing.T) {
	data := imageBytes(t, 1, 1, 1, []uint8{42})
	data[3] = 99
	if _, err := readImages(bytes.NewReader(data)); err == nil {
		t.Error("expect error for bad magic number")
	}
}

func TestReadImagesTruncated(t *testing.T) {
	data := imageBytes(t, 2, 2, 2, []uint8{1, 2, 3})
	if _, err := readImages(bytes.NewReader(data)); err == nil {
		t.Error("expect error for truncated pixel data")
	}
}

func TestReadLabels(t *testing.T) {
	data := labelBytes(t, []uint8{7, 0, 9})
	labels, err := readLabels(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(labels, []int32{7, 0, 9}) {
		t.Error("got", labels)
	}
}

func TestStandardize(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	raw := &RawData{Rows: 28, Cols: 28, Labels: make([]int32, 8)}
	raw.Pixels = make([]uint8, 8*28*28)
	for i := range raw.Pixels {
		raw.Pixels[i] = uint8(rng.Intn(256))
	}
	d := Standardize(raw)
	if !reflect.DeepEqual(d.Shape(), []int{28, 28, 1}) {
		t.Fatal("shape: got", d.Shape())
	}
	nfeat := 28 * 28
	for i := 0; i < raw.Len(); i++ {
		img := d.Inputs[i*nfeat : (i+1)*nfeat]
		mean, variance := stat.PopMeanVariance(img, nil)
		if math.Abs(mean) > 1e-10 {
			t.Error("image", i, "mean: got", mean, "expect 0")
		}
		if math.Abs(math.Sqrt(variance)-1) > 1e-3 {
			t.Error("image", i, "stddev: got", math.Sqrt(variance), "expect 1")
		}
	}
}

func TestStandardizeConstant(t *testing.T) {
	raw := &RawData{Rows: 2, Cols: 2, Labels: []int32{0}, Pixels: []uint8{128, 128, 128, 128}}
	d := Standardize(raw)
	for _, v := range d.Inputs {
		if v != 0 {
			t.Error("constant image should map to zero: got", v)
		}
	}
}

func TestDataInterface(t *testing.T) {
	raw := &RawData{Rows: 2, Cols: 2, Labels: []int32{3, 1}, Pixels: make([]uint8, 8)}
	for i := range raw.Pixels {
		raw.Pixels[i] = uint8(i * 30)
	}
	d := Standardize(raw)
	if n := d.Len(); n != 2 {
		t.Error("len: got", n)
	}
	if c := d.Classes(); c != NumClasses {
		t.Error("classes: got", c)
	}
	labels := make([]int32, 2)
	d.Label([]int{1, 0}, labels)
	if !reflect.DeepEqual(labels, []int32{1, 3}) {
		t.Error("labels: got", labels)
	}
	buf := make([]float64, 4)
	d.Input([]int{1}, buf)
	if !reflect.DeepEqual(buf, d.Inputs[4:8]) {
		t.Error("input: got", buf, "expect", d.Inputs[4:8])
	}
}
