package compute

import (
	"fmt"

	"gorgonia.org/gorgonia"
	gtensor "gorgonia.org/tensor"

	"github.com/tsawler/go-netviz/tensor"
)

// GorgoniaBackend builds a small expression graph per layer call and runs it
// on a tape machine. Graphs are not cached; the visualizer applies each layer
// once per run.
type GorgoniaBackend struct{}

func NewGorgoniaBackend() *GorgoniaBackend {
	return &GorgoniaBackend{}
}

func (b *GorgoniaBackend) Name() string { return "gorgonia" }

func (b *GorgoniaBackend) Conv2D(input, kernel *tensor.Tensor, bias []float32, stride, padding int) (*tensor.Tensor, error) {
	if len(kernel.Shape) != 4 || kernel.Shape[2] != kernel.Shape[3] {
		return nil, fmt.Errorf("kernel must be [out, in, k, k], got %v", kernel.Shape)
	}
	if len(input.Shape) != 4 || input.Shape[1] != kernel.Shape[1] {
		return nil, fmt.Errorf("kernel shape %v incompatible with input %v", kernel.Shape, input.Shape)
	}

	g := gorgonia.NewGraph()
	x := b.node(g, input, "x")
	w := b.node(g, kernel, "w")
	k := kernel.Shape[2]

	conv, err := gorgonia.Conv2d(x, w, gtensor.Shape{k, k}, []int{padding, padding}, []int{stride, stride}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("failed to build conv graph: %w", err)
	}

	out, err := b.run(g, conv)
	if err != nil {
		return nil, err
	}
	if bias == nil {
		return out, nil
	}
	return tensor.AddChannelBias(out, bias)
}

func (b *GorgoniaBackend) MaxPool2D(input *tensor.Tensor, size, stride int) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("pool input must be 4-D, got %v", input.Shape)
	}
	if size > input.Shape[2] || size > input.Shape[3] {
		return nil, fmt.Errorf("pool size %d too large for input %v", size, input.Shape)
	}

	g := gorgonia.NewGraph()
	x := b.node(g, input, "x")

	pool, err := gorgonia.MaxPool2D(x, gtensor.Shape{size, size}, []int{0, 0}, []int{stride, stride})
	if err != nil {
		return nil, fmt.Errorf("failed to build pool graph: %w", err)
	}
	return b.run(g, pool)
}

func (b *GorgoniaBackend) ReLU(input *tensor.Tensor) (*tensor.Tensor, error) {
	g := gorgonia.NewGraph()
	x := b.node(g, input, "x")

	relu, err := gorgonia.Rectify(x)
	if err != nil {
		return nil, fmt.Errorf("failed to build relu graph: %w", err)
	}

	out, err := b.run(g, relu)
	if err != nil {
		return nil, err
	}
	// Rectify masks by multiplication, which leaves -0 for negative inputs.
	for i, v := range out.Data {
		if v == 0 {
			out.Data[i] = 0
		}
	}
	return out, nil
}

// node binds a copy of t to a new graph input.
func (b *GorgoniaBackend) node(g *gorgonia.ExprGraph, t *tensor.Tensor, name string) *gorgonia.Node {
	backing := make([]float32, len(t.Data))
	copy(backing, t.Data)
	value := gtensor.New(gtensor.WithShape(t.Shape...), gtensor.WithBacking(backing))
	return gorgonia.NewTensor(g, gtensor.Float32, len(t.Shape),
		gorgonia.WithShape(t.Shape...),
		gorgonia.WithValue(value),
		gorgonia.WithName(name))
}

func (b *GorgoniaBackend) run(g *gorgonia.ExprGraph, out *gorgonia.Node) (*tensor.Tensor, error) {
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("gorgonia run failed: %w", err)
	}

	value := out.Value()
	if value == nil {
		return nil, fmt.Errorf("gorgonia produced no value for %s", out.Name())
	}
	data, ok := value.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected gorgonia output type %T", value.Data())
	}

	shape := append([]int(nil), value.Shape()...)
	result := make([]float32, len(data))
	copy(result, data)
	return tensor.NewTensor(shape, result)
}
