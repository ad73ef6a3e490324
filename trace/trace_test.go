package trace

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/tensor"
)

func compileLayer(t *testing.T, inputShape []int, build func(*layers.ModelBuilder) *layers.ModelBuilder) layers.LayerSpec {
	t.Helper()
	spec, err := build(layers.NewModelBuilder(inputShape)).Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return spec.Layers[0]
}

// ramp returns a tensor whose elements count up from start.
func ramp(t *testing.T, shape []int, start float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.Zeros(shape)
	if err != nil {
		t.Fatal(err)
	}
	for i := range tt.Data {
		tt.Data[i] = start + float32(i)
	}
	return tt
}

func TestNewLayerInfo(t *testing.T) {
	first := NewLayerInfo(0, layers.LayerSpec{})
	if first.Name != "0" || first.PrevName != "input" {
		t.Errorf("layer 0 = %+v", first)
	}
	third := NewLayerInfo(2, layers.LayerSpec{})
	if third.Name != "2" || third.PrevName != "1" {
		t.Errorf("layer 2 = %+v", third)
	}
}

func TestConvTrace(t *testing.T) {
	spec := compileLayer(t, []int{1, 1, 5, 5}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddConv2D(2, 3, 2, 1, true, "conv")
	})
	in := ramp(t, []int{1, 1, 5, 5}, 0)
	out := ramp(t, []int{1, 2, 3, 3}, -4)

	steps, err := Generate(NewLayerInfo(1, spec), in, out, Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(steps) != 2*3*3 {
		t.Fatalf("step count = %d, expected 18", len(steps))
	}

	i := 0
	for c := 0; c < 2; c++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 3; x++ {
				step, ok := steps[i].(ConvStep)
				if !ok {
					t.Fatalf("step %d is %T, expected ConvStep", i, steps[i])
				}
				if step.OutputCoord != [3]int{c, y, x} {
					t.Errorf("step %d output coord = %v, expected %v", i, step.OutputCoord, [3]int{c, y, x})
				}
				if want := [2]int{y*2 - 1, x*2 - 1}; step.InputStartCoords != want {
					t.Errorf("step %d start = %v, expected %v", i, step.InputStartCoords, want)
				}
				if step.OutputValue != out.At4(c, y, x) {
					t.Errorf("step %d value = %f, expected %f", i, step.OutputValue, out.At4(c, y, x))
				}
				if step.MinVal != -4 || step.ValRange != 17 {
					t.Errorf("step %d normalization = (%f, %f), expected (-4, 17)", i, step.MinVal, step.ValRange)
				}
				if step.KernelSize != 3 || step.InputLayerName != "0" || step.OutputLayerName != "1" {
					t.Errorf("step %d = %+v", i, step)
				}
				i++
			}
		}
	}

	if first := steps[0].(ConvStep); first.InputStartCoords != [2]int{-1, -1} {
		t.Errorf("first step start = %v, expected [-1 -1]", first.InputStartCoords)
	}
}

func TestPoolTrace(t *testing.T) {
	spec := compileLayer(t, []int{1, 2, 4, 4}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddMaxPool2D(2, 2, "pool")
	})
	in := ramp(t, []int{1, 2, 4, 4}, 0)
	out, _ := tensor.MaxPool2D(in, 2, 2)

	steps, err := Generate(NewLayerInfo(0, spec), in, out, Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(steps) != out.Numel() {
		t.Fatalf("step count = %d, expected %d", len(steps), out.Numel())
	}

	for i, s := range steps {
		step := s.(PoolStep)
		c, y, x := step.OutputCoord[0], step.OutputCoord[1], step.OutputCoord[2]
		if want := [2]int{y * 2, x * 2}; step.InputStartCoords != want {
			t.Errorf("step %d start = %v, expected %v", i, step.InputStartCoords, want)
		}
		if step.OutputValue != out.At4(c, y, x) {
			t.Errorf("step %d value mismatch", i)
		}
		if step.WinnerCoordInPatch != nil {
			t.Errorf("step %d has winner coords without the option", i)
		}
		if step.InputLayerName != "input" || step.PoolSize != 2 {
			t.Errorf("step %d = %+v", i, step)
		}
	}
	if last := steps[len(steps)-1].(PoolStep); last.OutputCoord != [3]int{1, 1, 1} {
		t.Errorf("last coord = %v, expected [1 1 1]", last.OutputCoord)
	}

	data, _ := json.Marshal(steps[0])
	if strings.Contains(string(data), "winner_coord_in_patch") {
		t.Errorf("winner field should be omitted: %s", data)
	}
}

func TestPoolWinnerCoords(t *testing.T) {
	spec := compileLayer(t, []int{1, 1, 2, 4}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddMaxPool2D(2, 2, "pool")
	})
	in, _ := tensor.NewTensor([]int{1, 1, 2, 4}, []float32{
		1, 3, 7, 7,
		3, 2, 7, 0,
	})
	out, _ := tensor.MaxPool2D(in, 2, 2)

	steps, err := Generate(NewLayerInfo(0, spec), in, out, Options{WinnerCoords: true})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// ties resolve to the first maximum in row-major order
	expected := [][2]int{{0, 1}, {0, 0}}
	for i, want := range expected {
		got := steps[i].(PoolStep).WinnerCoordInPatch
		if got == nil || *got != want {
			t.Errorf("window %d winner = %v, expected %v", i, got, want)
		}
	}
}

func TestFlatOutputRange(t *testing.T) {
	spec := compileLayer(t, []int{1, 1, 3, 3}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddConv2D(1, 3, 1, 1, false, "conv")
	})
	in := ramp(t, []int{1, 1, 3, 3}, 0)
	out, _ := tensor.Full([]int{1, 1, 3, 3}, 0.25)

	steps, err := Generate(NewLayerInfo(0, spec), in, out, Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i, s := range steps {
		step := s.(ConvStep)
		if step.ValRange != 1.0 || step.MinVal != 0.25 {
			t.Errorf("step %d normalization = (%f, %f), expected (0.25, 1)", i, step.MinVal, step.ValRange)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		data     []float32
		minVal   float32
		valRange float32
	}{
		{[]float32{-1, 0, 3}, -1, 4},
		{[]float32{2, 2, 2}, 2, 1},
		{[]float32{0, 0.000001, 0}, 0, 1},
	}
	for _, test := range tests {
		tt, _ := tensor.NewTensor([]int{1, 1, 1, 3}, test.data)
		minVal, valRange := Normalize(tt)
		if minVal != test.minVal || valRange != test.valRange {
			t.Errorf("Normalize(%v) = (%f, %f), expected (%f, %f)", test.data, minVal, valRange, test.minVal, test.valRange)
		}
	}
}

func TestActivationTrace(t *testing.T) {
	spec := compileLayer(t, []int{1, 2, 2, 2}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddReLU("relu")
	})
	in, _ := tensor.NewTensor([]int{1, 2, 2, 2}, []float32{-3, 1, 0, 2, 5, -1, -2, 4})
	out, _ := tensor.ReLU(in)

	steps, err := Generate(NewLayerInfo(3, spec), in, out, Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("step count = %d, expected 1", len(steps))
	}

	update, ok := steps[0].(ActivationUpdate)
	if !ok {
		t.Fatalf("step is %T, expected ActivationUpdate", steps[0])
	}
	if update.LayerNameToUpdate != "2" {
		t.Errorf("layer_name_to_update = %s, expected the previous layer 2", update.LayerNameToUpdate)
	}
	if update.MinVal != 0 {
		t.Errorf("min_val = %f, expected 0", update.MinVal)
	}
	if update.ValRange != 5 {
		t.Errorf("val_range = %f, expected 5", update.ValRange)
	}
	expected := [][][]float32{
		{{0, 1}, {0, 2}},
		{{5, 0}, {0, 4}},
	}
	if !reflect.DeepEqual(update.Activations, expected) {
		t.Errorf("activations = %v, expected %v", update.Activations, expected)
	}
	if StepCount(NewLayerInfo(3, spec), out) != 1 {
		t.Error("StepCount for rectification should be 1")
	}
}

func TestDeterministicAndNonMutating(t *testing.T) {
	spec := compileLayer(t, []int{1, 1, 4, 4}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddMaxPool2D(2, 2, "pool")
	})
	in := ramp(t, []int{1, 1, 4, 4}, -8)
	out, _ := tensor.MaxPool2D(in, 2, 2)
	inBefore, outBefore := in.Clone(), out.Clone()

	encode := func() []byte {
		steps, err := Generate(NewLayerInfo(0, spec), in, out, Options{WinnerCoords: true})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		data, err := json.Marshal(steps)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		return data
	}

	if a, b := encode(), encode(); string(a) != string(b) {
		t.Error("two traces of the same tensors differ")
	}
	if !in.Equal(inBefore) || !out.Equal(outBefore) {
		t.Error("trace generation modified its tensors")
	}
}

func TestWalkStopsOnError(t *testing.T) {
	spec := compileLayer(t, []int{1, 1, 10, 10}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddConv2D(1, 3, 1, 1, true, "conv")
	})
	in := ramp(t, []int{1, 1, 10, 10}, 0)
	out := ramp(t, []int{1, 1, 10, 10}, 0)

	errBoom := errors.New("boom")
	calls := 0
	err := Walk(NewLayerInfo(0, spec), in, out, Options{}, func(Step) error {
		calls++
		if calls == 5 {
			return errBoom
		}
		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("Walk error = %v, expected boom", err)
	}
	if calls != 5 {
		t.Errorf("callback ran %d times, expected 5", calls)
	}
}

func TestShapeErrors(t *testing.T) {
	conv := compileLayer(t, []int{1, 1, 4, 4}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddConv2D(2, 3, 1, 1, true, "conv")
	})
	pool := compileLayer(t, []int{1, 1, 4, 4}, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddMaxPool2D(2, 2, "pool")
	})
	in := ramp(t, []int{1, 1, 4, 4}, 0)

	tests := []struct {
		name  string
		layer layers.LayerSpec
		in    *tensor.Tensor
		out   *tensor.Tensor
	}{
		{"conv wrong channels", conv, in, ramp(t, []int{1, 3, 4, 4}, 0)},
		{"conv wrong size", conv, in, ramp(t, []int{1, 2, 3, 3}, 0)},
		{"pool wrong size", pool, in, ramp(t, []int{1, 1, 3, 3}, 0)},
		{"wrong input", conv, ramp(t, []int{1, 1, 5, 5}, 0), ramp(t, []int{1, 2, 4, 4}, 0)},
		{"batch of two", pool, ramp(t, []int{2, 1, 4, 4}, 0), ramp(t, []int{2, 1, 2, 2}, 0)},
		{"missing output", pool, in, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			calls := 0
			err := Walk(NewLayerInfo(0, test.layer), test.in, test.out, Options{}, func(Step) error {
				calls++
				return nil
			})
			if err == nil {
				t.Error("expected shape error")
			}
			if calls != 0 {
				t.Errorf("%d steps emitted before the error", calls)
			}
		})
	}

	t.Run("uncompiled relu shape change", func(t *testing.T) {
		relu := layers.LayerSpec{Type: layers.ReLU, Name: "relu"}
		if _, err := Generate(NewLayerInfo(0, relu), in, ramp(t, []int{1, 1, 2, 2}, 0), Options{}); err == nil {
			t.Error("expected error for rectification changing shape")
		}
	})

	t.Run("window larger than input", func(t *testing.T) {
		small := ramp(t, []int{1, 1, 2, 2}, 0)
		oversized := []layers.LayerSpec{
			{Type: layers.MaxPool2D, Name: "pool", Parameters: map[string]interface{}{"kernel_size": 3, "stride": 3}},
			{Type: layers.Conv2D, Name: "conv", Parameters: map[string]interface{}{"output_channels": 1, "kernel_size": 5, "stride": 4}},
		}
		for _, layer := range oversized {
			calls := 0
			err := Walk(NewLayerInfo(0, layer), small, ramp(t, []int{1, 1, 1, 1}, 0), Options{}, func(Step) error {
				calls++
				return nil
			})
			if err == nil || calls != 0 {
				t.Errorf("%s: err = %v after %d steps, expected a fit error before any step", layer.Name, err, calls)
			}
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		odd := layers.LayerSpec{Type: layers.LayerType(99), Name: "odd"}
		if _, err := Generate(NewLayerInfo(0, odd), in, in, Options{}); err == nil {
			t.Error("expected error for unknown layer type")
		}
	})
}
