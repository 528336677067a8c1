// Package num contains the dense array type and numeric primitives used by the
// network layers. Matrix products are delegated to gonum.
package num

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Array is a dense n dimensional array of float64 values in row major order.
// The first dimension is the batch dimension.
type Array struct {
	dims []int
	Data []float64
}

// NewArray allocates a zeroed array with the given dimensions.
func NewArray(dims ...int) *Array {
	return &Array{dims: append([]int{}, dims...), Data: make([]float64, Prod(dims))}
}

// NewArrayFrom wraps an existing slice, which must match the dimensions.
func NewArrayFrom(data []float64, dims ...int) *Array {
	if len(data) != Prod(dims) {
		panic(fmt.Sprintf("num: NewArrayFrom size mismatch: %d != %v", len(data), dims))
	}
	return &Array{dims: append([]int{}, dims...), Data: data}
}

// Dims returns the array dimensions.
func (a *Array) Dims() []int { return a.dims }

// Size returns the total number of elements.
func (a *Array) Size() int { return len(a.Data) }

// Reshape returns a view on the same data with new dimensions. One dimension
// may be -1 in which case it is inferred from the size.
func (a *Array) Reshape(dims ...int) *Array {
	d := append([]int{}, dims...)
	wild := -1
	size := 1
	for i, n := range d {
		if n == -1 {
			if wild >= 0 {
				panic("num: Reshape with multiple -1 dims")
			}
			wild = i
		} else {
			size *= n
		}
	}
	if wild >= 0 {
		d[wild] = len(a.Data) / size
		size *= d[wild]
	}
	if size != len(a.Data) {
		panic(fmt.Sprintf("num: Reshape size mismatch: %v -> %v", a.dims, dims))
	}
	return &Array{dims: d, Data: a.Data}
}

// Matrix returns a 2 dimensional gonum view with the batch dimension as rows.
func (a *Array) Matrix() *mat.Dense {
	rows := a.dims[0]
	return mat.NewDense(rows, len(a.Data)/rows, a.Data)
}

// Copy returns a deep copy of the array.
func (a *Array) Copy() *Array {
	b := NewArray(a.dims...)
	copy(b.Data, a.Data)
	return b
}

// String formats the array for debug output.
func (a *Array) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v ", a.dims)
	n := len(a.Data)
	if n > 16 {
		n = 16
	}
	for _, v := range a.Data[:n] {
		fmt.Fprintf(&sb, " %.4g", v)
	}
	if n < len(a.Data) {
		sb.WriteString(" ...")
	}
	return sb.String()
}

// Prod returns the product of the dimensions.
func Prod(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// SameShape reports whether two arrays have identical dimensions.
func SameShape(a, b *Array) bool {
	if len(a.dims) != len(b.dims) {
		return false
	}
	for i := range a.dims {
		if a.dims[i] != b.dims[i] {
			return false
		}
	}
	return true
}
