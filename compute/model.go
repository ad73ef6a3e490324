package compute

import (
	"fmt"
	"reflect"

	"github.com/tsawler/go-netviz/checkpoints"
	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/tensor"
)

// Model is a compiled feature stack bound to its weights and a backend.
type Model struct {
	spec    *layers.ModelSpec
	backend Backend

	kernels map[int]*tensor.Tensor
	biases  map[int][]float32
}

// NewModel checks every convolution's weights against the compiled spec.
// A nil backend selects gorgonia.
func NewModel(spec *layers.ModelSpec, weights []checkpoints.WeightTensor, backend Backend) (*Model, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}
	if backend == nil {
		backend = NewGorgoniaBackend()
	}

	byName := make(map[string]checkpoints.WeightTensor, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}

	m := &Model{
		spec:    spec,
		backend: backend,
		kernels: make(map[int]*tensor.Tensor),
		biases:  make(map[int][]float32),
	}

	for i, layer := range spec.Layers {
		if layer.Type != layers.Conv2D {
			continue
		}

		wantKernel := []int{layer.OutputChannels(), layer.InputChannels(), layer.KernelSize(), layer.KernelSize()}
		name := checkpoints.WeightName(layer.Name, "weight")
		w, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("layer %d (%s): missing weight %s", i, layer.Name, name)
		}
		if !reflect.DeepEqual(w.Shape, wantKernel) {
			return nil, fmt.Errorf("layer %d (%s): weight shape %v, expected %v", i, layer.Name, w.Shape, wantKernel)
		}
		kernel, err := tensor.NewTensor(w.Shape, append([]float32(nil), w.Data...))
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
		}
		m.kernels[i] = kernel

		if !layer.UseBias() {
			continue
		}
		name = checkpoints.WeightName(layer.Name, "bias")
		b, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("layer %d (%s): missing bias %s", i, layer.Name, name)
		}
		if len(b.Data) != layer.OutputChannels() {
			return nil, fmt.Errorf("layer %d (%s): bias has %d values, expected %d", i, layer.Name, len(b.Data), layer.OutputChannels())
		}
		m.biases[i] = append([]float32(nil), b.Data...)
	}

	return m, nil
}

// NewModelFromCheckpoint is shorthand for NewModel over a loaded checkpoint.
func NewModelFromCheckpoint(checkpoint *checkpoints.Checkpoint, backend Backend) (*Model, error) {
	return NewModel(checkpoint.ModelSpec, checkpoint.Weights, backend)
}

func (m *Model) NumLayers() int              { return len(m.spec.Layers) }
func (m *Model) Layer(i int) layers.LayerSpec { return m.spec.Layers[i] }
func (m *Model) Spec() *layers.ModelSpec      { return m.spec }
func (m *Model) Backend() Backend             { return m.backend }

func (m *Model) InputShape() []int {
	return append([]int(nil), m.spec.InputShape...)
}

// Apply runs layer i on in and returns a new tensor. The input must have the
// layer's compiled input shape.
func (m *Model) Apply(i int, in *tensor.Tensor) (*tensor.Tensor, error) {
	if i < 0 || i >= len(m.spec.Layers) {
		return nil, fmt.Errorf("layer index %d out of range [0, %d)", i, len(m.spec.Layers))
	}
	layer := m.spec.Layers[i]
	if !reflect.DeepEqual(in.Shape, layer.InputShape) {
		return nil, fmt.Errorf("layer %d (%s): input shape %v, expected %v", i, layer.Name, in.Shape, layer.InputShape)
	}

	var (
		out *tensor.Tensor
		err error
	)
	switch layer.Type {
	case layers.Conv2D:
		out, err = m.backend.Conv2D(in, m.kernels[i], m.biases[i], layer.Stride(), layer.Padding())
	case layers.ReLU:
		out, err = m.backend.ReLU(in)
	case layers.MaxPool2D:
		out, err = m.backend.MaxPool2D(in, layer.KernelSize(), layer.Stride())
	default:
		return nil, fmt.Errorf("layer %d: unsupported layer type %s", i, layer.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("layer %d (%s) on %s backend: %w", i, layer.Name, m.backend.Name(), err)
	}

	if !reflect.DeepEqual(out.Shape, layer.OutputShape) {
		return nil, fmt.Errorf("layer %d (%s): backend produced shape %v, expected %v", i, layer.Name, out.Shape, layer.OutputShape)
	}
	return out, nil
}

// Forward folds the input through every layer and returns each output.
func (m *Model) Forward(in *tensor.Tensor) ([]*tensor.Tensor, error) {
	outputs := make([]*tensor.Tensor, 0, len(m.spec.Layers))
	current := in
	for i := range m.spec.Layers {
		out, err := m.Apply(i, current)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
		current = out
	}
	return outputs, nil
}

// Loader reads weights artifacts and binds them to a backend.
type Loader struct {
	Backend Backend
}

// Load reads a JSON or ONNX checkpoint. A missing file returns an error
// matching checkpoints.ErrNotFound.
func (l Loader) Load(path string) (*Model, error) {
	checkpoint, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	return NewModelFromCheckpoint(checkpoint, l.Backend)
}
