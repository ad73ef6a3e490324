package compute

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tsawler/go-netviz/checkpoints"
	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/tensor"
)

func cifarModel(t *testing.T, backend Backend) *Model {
	t.Helper()
	spec, err := layers.CIFARFeatures()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	checkpoint, err := checkpoints.NewRandomCheckpoint(spec, 3)
	if err != nil {
		t.Fatalf("random checkpoint failed: %v", err)
	}
	// Non-zero biases so the bias path is exercised.
	for i := range checkpoint.Weights {
		if checkpoint.Weights[i].Type == "bias" {
			for j := range checkpoint.Weights[i].Data {
				checkpoint.Weights[i].Data[j] = float32(j%3) * 0.1
			}
		}
	}
	model, err := NewModelFromCheckpoint(checkpoint, backend)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	return model
}

func TestNewBackend(t *testing.T) {
	for name, want := range map[string]string{"": "gorgonia", "gorgonia": "gorgonia", "CPU": "cpu"} {
		b, err := NewBackend(name)
		if err != nil {
			t.Fatalf("NewBackend(%q) failed: %v", name, err)
		}
		if b.Name() != want {
			t.Errorf("NewBackend(%q).Name() = %s, expected %s", name, b.Name(), want)
		}
	}
	if _, err := NewBackend("metal"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBackendsAgree(t *testing.T) {
	cpu := cifarModel(t, NewCPUBackend())
	gg := cifarModel(t, NewGorgoniaBackend())

	input, _ := tensor.RandomNormal(cpu.InputShape(), 0, 1, rand.New(rand.NewSource(11)))

	want, err := cpu.Forward(input)
	if err != nil {
		t.Fatalf("cpu forward failed: %v", err)
	}
	got, err := gg.Forward(input)
	if err != nil {
		t.Fatalf("gorgonia forward failed: %v", err)
	}

	for i := range want {
		diff, err := got[i].MaxAbsDiff(want[i])
		if err != nil {
			t.Fatalf("layer %d: %v", i, err)
		}
		if diff > 1e-4 {
			t.Errorf("layer %d (%s): backends differ by %g", i, cpu.Layer(i).Name, diff)
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	for _, backend := range []Backend{NewCPUBackend(), NewGorgoniaBackend()} {
		t.Run(backend.Name(), func(t *testing.T) {
			model := cifarModel(t, backend)
			input, _ := tensor.RandomNormal(model.InputShape(), 0, 1, rand.New(rand.NewSource(5)))
			before := input.Clone()

			if _, err := model.Forward(input); err != nil {
				t.Fatalf("forward failed: %v", err)
			}
			if !input.Equal(before) {
				t.Error("forward pass modified its input tensor")
			}
		})
	}
}

func TestReLUNoNegativeZero(t *testing.T) {
	input, _ := tensor.NewTensor([]int{1, 1, 1, 3}, []float32{-2, 3, -0.5})
	out, err := NewGorgoniaBackend().ReLU(input)
	if err != nil {
		t.Fatalf("ReLU failed: %v", err)
	}
	for i, v := range out.Data {
		if math.Signbit(float64(v)) {
			t.Errorf("out[%d] = %v, expected non-negative zero or positive", i, v)
		}
	}
}

func TestApplyErrors(t *testing.T) {
	model := cifarModel(t, NewCPUBackend())

	if _, err := model.Apply(99, nil); err == nil {
		t.Error("expected out-of-range error")
	}

	wrong, _ := tensor.Zeros([]int{1, 1, 32, 32})
	if _, err := model.Apply(0, wrong); err == nil {
		t.Error("expected input shape error")
	}
}

func TestNewModelValidatesWeights(t *testing.T) {
	spec, _ := layers.CIFARFeatures()
	checkpoint, _ := checkpoints.NewRandomCheckpoint(spec, 1)

	t.Run("missing", func(t *testing.T) {
		if _, err := NewModel(spec, checkpoint.Weights[1:], nil); err == nil {
			t.Error("expected error for missing conv1.weight")
		}
	})

	t.Run("wrong shape", func(t *testing.T) {
		weights := append([]checkpoints.WeightTensor(nil), checkpoint.Weights...)
		weights[0].Shape = []int{8, 3, 2, 2}
		if _, err := NewModel(spec, weights, nil); err == nil {
			t.Error("expected error for mismatched kernel shape")
		}
	})

	t.Run("uncompiled", func(t *testing.T) {
		if _, err := NewModel(&layers.ModelSpec{}, nil, nil); err == nil {
			t.Error("expected error for uncompiled spec")
		}
	})

	t.Run("default backend", func(t *testing.T) {
		m, err := NewModel(spec, checkpoint.Weights, nil)
		if err != nil {
			t.Fatalf("NewModel failed: %v", err)
		}
		if m.Backend().Name() != "gorgonia" {
			t.Errorf("default backend = %s", m.Backend().Name())
		}
	})
}

func TestLoader(t *testing.T) {
	spec, _ := layers.CIFARFeatures()
	checkpoint, _ := checkpoints.NewRandomCheckpoint(spec, 9)
	path := filepath.Join(t.TempDir(), "features.onnx")
	if err := checkpoints.Save(checkpoint, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	model, err := Loader{Backend: NewCPUBackend()}.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if model.NumLayers() != 6 {
		t.Errorf("NumLayers = %d, expected 6", model.NumLayers())
	}
	if !reflect.DeepEqual(model.InputShape(), []int{1, 3, 32, 32}) {
		t.Errorf("InputShape = %v", model.InputShape())
	}

	_, err = Loader{}.Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, checkpoints.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
