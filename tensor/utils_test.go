package tensor

import (
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("with data", func(t *testing.T) {
		tt, err := NewTensor([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if tt.NumElems != 6 {
			t.Errorf("NumElems = %d, expected 6", tt.NumElems)
		}
		if !reflect.DeepEqual(tt.Strides, []int{3, 1}) {
			t.Errorf("Strides = %v, expected [3 1]", tt.Strides)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 2}, []float32{1, 2, 3}); err == nil {
			t.Error("expected error for mismatched data length")
		}
	})

	t.Run("shape is copied", func(t *testing.T) {
		shape := []int{1, 1, 2, 2}
		tt, _ := NewTensor(shape, nil)
		shape[2] = 99
		if tt.Shape[2] != 2 {
			t.Errorf("tensor shape aliased caller slice: %v", tt.Shape)
		}
	})
}

func TestFull(t *testing.T) {
	tt, err := Full([]int{1, 1, 2, 2}, 3.5)
	if err != nil {
		t.Fatalf("Full failed: %v", err)
	}
	for i, v := range tt.Data {
		if v != 3.5 {
			t.Errorf("Data[%d] = %f, expected 3.5", i, v)
		}
	}
}

func TestRandomNormalDeterministic(t *testing.T) {
	a, _ := RandomNormal([]int{1, 2, 3, 3}, 0, 1, rand.New(rand.NewSource(7)))
	b, _ := RandomNormal([]int{1, 2, 3, 3}, 0, 1, rand.New(rand.NewSource(7)))
	if !a.Equal(b) {
		t.Error("same seed produced different tensors")
	}
}

func TestClone(t *testing.T) {
	original, _ := NewTensor([]int{1, 1, 2, 3}, []float32{1, 2, 3, 4, 5, 6})
	clone := original.Clone()

	if !clone.Equal(original) {
		t.Fatal("clone differs from original")
	}

	original.Data[0] = 100
	if clone.Data[0] != 1 {
		t.Errorf("clone shares data with original")
	}
	original.Shape[0] = 7
	if clone.Shape[0] != 1 {
		t.Errorf("clone shares shape with original")
	}
}

func TestMinMax(t *testing.T) {
	tt, _ := NewTensor([]int{1, 1, 1, 5}, []float32{3, -2, 7, 0, 7})
	lo, hi := tt.MinMax()
	if lo != -2 || hi != 7 {
		t.Errorf("MinMax = (%f, %f), expected (-2, 7)", lo, hi)
	}

	empty := &Tensor{}
	lo, hi = empty.MinMax()
	if lo != 0 || hi != 0 {
		t.Errorf("empty MinMax = (%f, %f), expected (0, 0)", lo, hi)
	}
}

func TestMaxAbsDiff(t *testing.T) {
	a, _ := NewTensor([]int{1, 1, 1, 3}, []float32{1, 2, 3})
	b, _ := NewTensor([]int{1, 1, 1, 3}, []float32{1, 2.5, 2})
	d, err := a.MaxAbsDiff(b)
	if err != nil {
		t.Fatalf("MaxAbsDiff failed: %v", err)
	}
	if math.Abs(d-1) > 1e-6 {
		t.Errorf("MaxAbsDiff = %f, expected 1", d)
	}

	c, _ := NewTensor([]int{3}, []float32{1, 2, 3})
	if _, err := a.MaxAbsDiff(c); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestNested(t *testing.T) {
	tt, _ := NewTensor([]int{1, 2, 2, 3}, []float32{
		1, 2, 3,
		4, 5, 6,

		7, 8, 9,
		10, 11, 12,
	})

	nested, err := tt.Nested()
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}
	if nested[1][0][2] != 9 {
		t.Errorf("nested[1][0][2] = %f, expected 9", nested[1][0][2])
	}

	nested[0][0][0] = 42
	if tt.Data[0] != 1 {
		t.Error("Nested must return a copy")
	}
}

func TestPrintData(t *testing.T) {
	tt, _ := NewTensor([]int{1, 1, 1, 4}, []float32{1, 2, 3, 4})
	s := tt.PrintData(2)
	if !strings.Contains(s, "1.0000, 2.0000, ...") {
		t.Errorf("unexpected PrintData output: %s", s)
	}
}
