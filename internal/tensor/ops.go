package tensor

import (
	"fmt"
)

// BroadcastShape picks the result shape of an element-wise operation over
// the given operands. Equal shapes pass through; a single-element operand
// stretches over the others.
func BroadcastShape(arrs ...Array) ([]int, error) {
	var out Array
	for i, a := range arrs {
		if i == 0 {
			out = a
			continue
		}
		switch {
		case SameShape(out.shape, a.shape):
		case len(out.data) == 1 && len(a.data) == 1:
			if len(a.shape) > len(out.shape) {
				out = a
			}
		case len(out.data) == 1:
			out = a
		case len(a.data) == 1:
		default:
			return nil, fmt.Errorf("operands with shapes %v and %v cannot be broadcast together", out.shape, a.shape)
		}
	}
	return out.Shape(), nil
}

// Concat flattens every array and joins them into one vector.
func Concat(arrs ...Array) Array {
	n := 0
	for _, a := range arrs {
		n += len(a.data)
	}
	data := make([]float64, 0, n)
	for _, a := range arrs {
		data = append(data, a.data...)
	}
	return Array{shape: []int{n}, data: data}
}

// Slice returns a copy of the half-open element range [start, end) as a
// vector.
func (a Array) Slice(start, end int) (Array, error) {
	if start < 0 || end > len(a.data) || start > end {
		return Array{}, fmt.Errorf("slice [%d:%d] out of range for %d elements", start, end, len(a.data))
	}
	return Vector(a.data[start:end]...), nil
}
