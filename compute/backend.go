// Package compute turns a compiled layer stack and its weights into the
// tensors the visualizer walks through. The numeric work is delegated to a
// Backend; the default one runs on gorgonia.
package compute

import (
	"fmt"
	"strings"

	"github.com/tsawler/go-netviz/tensor"
)

// Backend applies single layers to (1, C, H, W) tensors. Implementations
// must be deterministic and must not modify their inputs.
type Backend interface {
	Name() string
	Conv2D(input, kernel *tensor.Tensor, bias []float32, stride, padding int) (*tensor.Tensor, error)
	MaxPool2D(input *tensor.Tensor, size, stride int) (*tensor.Tensor, error)
	ReLU(input *tensor.Tensor) (*tensor.Tensor, error)
}

// NewBackend returns the backend registered under name ("gorgonia" or
// "cpu"). An empty name selects gorgonia.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "gorgonia":
		return NewGorgoniaBackend(), nil
	case "cpu":
		return NewCPUBackend(), nil
	default:
		return nil, fmt.Errorf("unknown compute backend %q", name)
	}
}

// CPUBackend computes layers with plain loops. It is slow but has no
// dependencies, and serves as the reference the gorgonia backend is
// checked against.
type CPUBackend struct{}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

func (b *CPUBackend) Name() string { return "cpu" }

func (b *CPUBackend) Conv2D(input, kernel *tensor.Tensor, bias []float32, stride, padding int) (*tensor.Tensor, error) {
	return tensor.Conv2D(input, kernel, bias, stride, padding)
}

func (b *CPUBackend) MaxPool2D(input *tensor.Tensor, size, stride int) (*tensor.Tensor, error) {
	return tensor.MaxPool2D(input, size, stride)
}

func (b *CPUBackend) ReLU(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLU(input)
}
