package grid

import (
	"fmt"
)

// DenseArray is a row-major multi-dimensional array of float64. One is
// built per output name, shaped per the canonical axis order.
type DenseArray struct {
	shape  []int
	stride []int
	data   []float64
}

// NewDenseArray allocates a zero-filled array with the given shape.
func NewDenseArray(shape ...int) *DenseArray {
	n := 1
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("grid: invalid dimension size %d", s))
		}
		n *= s
	}
	a := &DenseArray{
		shape: append([]int(nil), shape...),
		data:  make([]float64, n),
	}
	a.stride = rowMajorStrides(a.shape)
	return a
}

// FromData wraps an existing row-major float64 slice. The slice is not
// copied; its length must match the product of the shape.
func FromData(data []float64, shape ...int) (*DenseArray, error) {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != len(data) {
		return nil, fmt.Errorf("grid: data length %d does not match shape %v", len(data), shape)
	}
	a := &DenseArray{
		shape: append([]int(nil), shape...),
		data:  data,
	}
	a.stride = rowMajorStrides(a.shape)
	return a, nil
}

func rowMajorStrides(shape []int) []int {
	stride := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = s
		s *= shape[i]
	}
	return stride
}

// Shape returns the dimension sizes. The caller must not mutate it.
func (a *DenseArray) Shape() []int { return a.shape }

// NumDim returns the number of dimensions.
func (a *DenseArray) NumDim() int { return len(a.shape) }

// Size returns the total number of elements.
func (a *DenseArray) Size() int { return len(a.data) }

// Data returns the backing row-major slice. The caller must not resize
// it.
func (a *DenseArray) Data() []float64 { return a.data }

func (a *DenseArray) flatIndex(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("grid: index rank %d does not match array rank %d", len(idx), len(a.shape)))
	}
	flat := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("grid: index %d out of range [0,%d) on axis %d", v, a.shape[i], i))
		}
		flat += v * a.stride[i]
	}
	return flat
}

// At returns the element at the given multi-index.
func (a *DenseArray) At(idx ...int) float64 { return a.data[a.flatIndex(idx)] }

// Set stores v at the given multi-index.
func (a *DenseArray) Set(v float64, idx ...int) { a.data[a.flatIndex(idx)] = v }

// LeadingBlock returns the contiguous sub-slice obtained by fixing the
// first len(idx) dimensions at idx and spanning all remaining
// dimensions. Row-major layout makes this a view, not a copy.
func (a *DenseArray) LeadingBlock(idx ...int) []float64 {
	if len(idx) > len(a.shape) {
		panic("grid: too many leading indices")
	}
	offset := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("grid: index %d out of range [0,%d) on axis %d", v, a.shape[i], i))
		}
		offset += v * a.stride[i]
	}
	n := 1
	for _, s := range a.shape[len(idx):] {
		n *= s
	}
	return a.data[offset : offset+n]
}

// SwapAxes exchanges dimensions i and j, moving the data so array
// contents stay consistent with their axis labels.
func (a *DenseArray) SwapAxes(i, j int) {
	if i == j {
		return
	}
	newShape := append([]int(nil), a.shape...)
	newShape[i], newShape[j] = newShape[j], newShape[i]
	newStride := rowMajorStrides(newShape)
	newData := make([]float64, len(a.data))

	idx := make([]int, len(a.shape))
	for flat := range a.data {
		// decompose flat index in the old layout
		rem := flat
		for d, st := range a.stride {
			idx[d] = rem / st
			rem %= st
		}
		idx[i], idx[j] = idx[j], idx[i]
		dst := 0
		for d, v := range idx {
			dst += v * newStride[d]
		}
		newData[dst] = a.data[flat]
		idx[i], idx[j] = idx[j], idx[i]
	}

	a.shape = newShape
	a.stride = newStride
	a.data = newData
}

// Clone returns a deep copy of the array.
func (a *DenseArray) Clone() *DenseArray {
	out := &DenseArray{
		shape:  append([]int(nil), a.shape...),
		stride: append([]int(nil), a.stride...),
		data:   append([]float64(nil), a.data...),
	}
	return out
}
