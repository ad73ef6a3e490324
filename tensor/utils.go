package tensor

import (
	"fmt"
	"math"
	"strings"
)

func (t *Tensor) Clone() *Tensor {
	clone := &Tensor{
		Shape:    make([]int, len(t.Shape)),
		Strides:  make([]int, len(t.Strides)),
		Data:     make([]float32, len(t.Data)),
		NumElems: t.NumElems,
	}
	copy(clone.Shape, t.Shape)
	copy(clone.Strides, t.Strides)
	copy(clone.Data, t.Data)
	return clone
}

func (t *Tensor) Numel() int {
	return t.NumElems
}

func (t *Tensor) Dim() int {
	return len(t.Shape)
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) Equal(other *Tensor) bool {
	if !t.SameShape(other) {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// MinMax returns the smallest and largest element. An empty tensor yields
// (0, 0).
func (t *Tensor) MinMax() (float32, float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	lo, hi := t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// MaxAbsDiff returns the largest absolute element difference between two
// same-shaped tensors.
func (t *Tensor) MaxAbsDiff(other *Tensor) (float64, error) {
	if !t.SameShape(other) {
		return 0, fmt.Errorf("shape mismatch: %v vs %v", t.Shape, other.Shape)
	}
	m := 0.0
	for i := range t.Data {
		d := math.Abs(float64(t.Data[i] - other.Data[i]))
		if d > m {
			m = d
		}
	}
	return m, nil
}

// Nested returns a freshly allocated [c][y][x] copy of a (1, C, H, W) tensor.
func (t *Tensor) Nested() ([][][]float32, error) {
	c, h, w, err := t.CHW()
	if err != nil {
		return nil, err
	}

	out := make([][][]float32, c)
	for ci := 0; ci < c; ci++ {
		plane := make([][]float32, h)
		for y := 0; y < h; y++ {
			row := make([]float32, w)
			copy(row, t.Data[t.Index(ci, y, 0):t.Index(ci, y, 0)+w])
			plane[y] = row
		}
		out[ci] = plane
	}
	return out, nil
}

// PrintData renders the shape and at most maxElements leading values.
func (t *Tensor) PrintData(maxElements int) string {
	var sb strings.Builder
	sb.WriteString(t.String())
	sb.WriteString(" [")

	limit := len(t.Data)
	if maxElements > 0 && maxElements < limit {
		limit = maxElements
	}
	for i := 0; i < limit; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%.4f", t.Data[i]))
	}
	if limit < len(t.Data) {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}
