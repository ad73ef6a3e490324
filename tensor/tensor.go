// Package tensor holds the dense float32 activations that flow between
// layers during a visualization run.
//
// Tensors are laid out row-major. Most of the system works with the logical
// shape (1, C, H, W); batch size is always 1. A tensor is never mutated after
// it has been handed to another component: every operation that produces
// values returns a fresh tensor.
package tensor

import (
	"fmt"
)

type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float32
	NumElems int
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, t.NumElems)
}

// Dims4 returns the (batch, channels, height, width) of a 4-D tensor.
func (t *Tensor) Dims4() (n, c, h, w int, err error) {
	if len(t.Shape) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("expected 4-D tensor, got shape %v", t.Shape)
	}
	return t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3], nil
}

// CHW returns channels, height and width of a (1, C, H, W) tensor.
func (t *Tensor) CHW() (c, h, w int, err error) {
	n, c, h, w, err := t.Dims4()
	if err != nil {
		return 0, 0, 0, err
	}
	if n != 1 {
		return 0, 0, 0, fmt.Errorf("expected batch size 1, got %d", n)
	}
	return c, h, w, nil
}

// Index returns the flat offset of a (1, C, H, W) element.
func (t *Tensor) Index(c, y, x int) int {
	return c*t.Strides[1] + y*t.Strides[2] + x*t.Strides[3]
}

// At4 reads the element at (0, c, y, x) without bounds checks beyond the
// slice access itself.
func (t *Tensor) At4(c, y, x int) float32 {
	return t.Data[t.Index(c, y, x)]
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: no dimensions")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}
