package num

import "math"

// ConvSize returns the output length of a convolution or pooling along one
// spatial axis.
func ConvSize(in, size, stride, pad int) int {
	return (in+2*pad-size)/stride + 1
}

// Im2col unrolls image patches of an NHWC input into the rows of the cols
// matrix so that a convolution becomes a single matrix product.
// cols must have dims [n*outH*outW, size*size*channels].
func Im2col(in *Array, size, stride, pad int, cols *Array) {
	n, h, w, c := in.dims[0], in.dims[1], in.dims[2], in.dims[3]
	oh, ow := ConvSize(h, size, stride, pad), ConvSize(w, size, stride, pad)
	kdim := size * size * c
	for b := 0; b < n; b++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				row := (((b*oh)+oy)*ow + ox) * kdim
				for ky := 0; ky < size; ky++ {
					y := oy*stride + ky - pad
					for kx := 0; kx < size; kx++ {
						x := ox*stride + kx - pad
						dst := cols.Data[row+(ky*size+kx)*c : row+(ky*size+kx)*c+c]
						if y >= 0 && y < h && x >= 0 && x < w {
							src := ((b*h+y)*w + x) * c
							copy(dst, in.Data[src:src+c])
						} else {
							for i := range dst {
								dst[i] = 0
							}
						}
					}
				}
			}
		}
	}
}

// Col2im is the adjoint of Im2col: patch rows are scattered back and
// accumulated into the NHWC out array. out is zeroed first.
func Col2im(cols *Array, size, stride, pad int, out *Array) {
	n, h, w, c := out.dims[0], out.dims[1], out.dims[2], out.dims[3]
	oh, ow := ConvSize(h, size, stride, pad), ConvSize(w, size, stride, pad)
	kdim := size * size * c
	Fill(out, 0)
	for b := 0; b < n; b++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				row := (((b*oh)+oy)*ow + ox) * kdim
				for ky := 0; ky < size; ky++ {
					y := oy*stride + ky - pad
					if y < 0 || y >= h {
						continue
					}
					for kx := 0; kx < size; kx++ {
						x := ox*stride + kx - pad
						if x < 0 || x >= w {
							continue
						}
						src := row + (ky*size+kx)*c
						dst := ((b*h+y)*w + x) * c
						for i := 0; i < c; i++ {
							out.Data[dst+i] += cols.Data[src+i]
						}
					}
				}
			}
		}
	}
}

// MaxPool applies max pooling per channel over size x size windows of the
// NHWC input. mask records the flat input index of each maximum for the
// backward pass.
func MaxPool(in *Array, size, stride int, out *Array, mask []int) {
	n, h, w, c := in.dims[0], in.dims[1], in.dims[2], in.dims[3]
	oh, ow := ConvSize(h, size, stride, 0), ConvSize(w, size, stride, 0)
	for b := 0; b < n; b++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				for ch := 0; ch < c; ch++ {
					best := math.Inf(-1)
					bestIx := -1
					for ky := 0; ky < size; ky++ {
						y := oy*stride + ky
						if y >= h {
							continue
						}
						for kx := 0; kx < size; kx++ {
							x := ox*stride + kx
							if x >= w {
								continue
							}
							ix := ((b*h+y)*w+x)*c + ch
							if v := in.Data[ix]; v > best {
								best, bestIx = v, ix
							}
						}
					}
					oix := ((b*oh+oy)*ow+ox)*c + ch
					out.Data[oix] = best
					mask[oix] = bestIx
				}
			}
		}
	}
}

// MaxPoolD routes the pooled gradient back to the input positions recorded
// in mask. dst is zeroed first.
func MaxPoolD(grad *Array, mask []int, dst *Array) {
	Fill(dst, 0)
	for i, ix := range mask[:len(grad.Data)] {
		dst.Data[ix] += grad.Data[i]
	}
}
