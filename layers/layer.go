package layers

import (
	"fmt"
	"strings"
)

// LayerType represents the type of neural network layer. The set is closed:
// every consumer switches over all three kinds.
type LayerType int

const (
	Conv2D LayerType = iota
	ReLU
	MaxPool2D
)

func (lt LayerType) String() string {
	switch lt {
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case MaxPool2D:
		return "MaxPool2D"
	default:
		return "Unknown"
	}
}

// WireName is the kind string the renderer keys its prefabs on.
func (lt LayerType) WireName() string {
	switch lt {
	case Conv2D:
		return "Conv2d"
	case ReLU:
		return "ReLU"
	case MaxPool2D:
		return "MaxPool2d"
	default:
		return "Unknown"
	}
}

func (lt LayerType) Valid() bool {
	return lt >= Conv2D && lt <= MaxPool2D
}

func (lt LayerType) MarshalText() ([]byte, error) {
	if !lt.Valid() {
		return nil, fmt.Errorf("unknown layer type %d", int(lt))
	}
	return []byte(lt.String()), nil
}

func (lt *LayerType) UnmarshalText(text []byte) error {
	parsed, err := ParseLayerType(string(text))
	if err != nil {
		return err
	}
	*lt = parsed
	return nil
}

// ParseLayerType accepts the canonical names plus the renderer and ONNX
// spellings.
func ParseLayerType(s string) (LayerType, error) {
	switch strings.ToLower(s) {
	case "conv2d", "conv":
		return Conv2D, nil
	case "relu":
		return ReLU, nil
	case "maxpool2d", "maxpool":
		return MaxPool2D, nil
	default:
		return 0, fmt.Errorf("unsupported layer type %q", s)
	}
}

// LayerSpec defines layer configuration.
// This is pure configuration - no execution logic
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

func (l LayerSpec) KernelSize() int { return getIntParam(l.Parameters, "kernel_size", 1) }

// Stride defaults to 1 for convolutions and to the window size for pooling.
func (l LayerSpec) Stride() int {
	def := 1
	if l.Type == MaxPool2D {
		def = l.KernelSize()
	}
	return getIntParam(l.Parameters, "stride", def)
}

func (l LayerSpec) Padding() int        { return getIntParam(l.Parameters, "padding", 0) }
func (l LayerSpec) InputChannels() int  { return getIntParam(l.Parameters, "input_channels", 0) }
func (l LayerSpec) OutputChannels() int { return getIntParam(l.Parameters, "output_channels", 0) }
func (l LayerSpec) UseBias() bool       { return getBoolParam(l.Parameters, "use_bias", true) }

// Details renders the layer parameters the way PyTorch prints modules.
func (l LayerSpec) Details() string {
	switch l.Type {
	case Conv2D:
		k, s, p := l.KernelSize(), l.Stride(), l.Padding()
		d := fmt.Sprintf("Conv2d(%d, %d, kernel_size=(%d, %d), stride=(%d, %d), padding=(%d, %d)",
			l.InputChannels(), l.OutputChannels(), k, k, s, s, p, p)
		if !l.UseBias() {
			d += ", bias=False"
		}
		return d + ")"
	case ReLU:
		return "ReLU()"
	case MaxPool2D:
		return fmt.Sprintf("MaxPool2d(kernel_size=%d, stride=%d, padding=%d)",
			l.KernelSize(), l.Stride(), l.Padding())
	default:
		return l.Type.String()
	}
}

// ModelSpec defines a complete neural network model as layer configuration
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder helps construct neural network models
type ModelBuilder struct {
	layers     []LayerSpec
	inputShape []int
	compiled   bool
}

// NewModelBuilder creates a new model builder for a (batch, channels,
// height, width) input.
func NewModelBuilder(inputShape []int) *ModelBuilder {
	return &ModelBuilder{
		layers:     make([]LayerSpec, 0),
		inputShape: inputShape,
		compiled:   false,
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	if layer.Parameters == nil {
		layer.Parameters = map[string]interface{}{}
	}
	mb.layers = append(mb.layers, layer)
	mb.compiled = false // Invalidate compilation
	return mb
}

// AddConv2D adds a Conv2D layer to the model
func (mb *ModelBuilder) AddConv2D(
	outputChannels, kernelSize, stride, padding int,
	useBias bool, name string,
) *ModelBuilder {
	layer := LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"stride":          stride,
			"padding":         padding,
			"use_bias":        useBias,
		},
	}
	return mb.AddLayer(layer)
}

// AddReLU adds a ReLU activation to the model
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	layer := LayerSpec{
		Type:       ReLU,
		Name:       name,
		Parameters: map[string]interface{}{},
	}
	return mb.AddLayer(layer)
}

// AddMaxPool2D adds a max pooling layer. A stride of 0 means "same as the
// window".
func (mb *ModelBuilder) AddMaxPool2D(kernelSize, stride int, name string) *ModelBuilder {
	if stride <= 0 {
		stride = kernelSize
	}
	layer := LayerSpec{
		Type: MaxPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"kernel_size": kernelSize,
			"stride":      stride,
			"padding":     0,
		},
	}
	return mb.AddLayer(layer)
}

// Compile compiles the model and computes shapes and parameter counts
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if len(mb.inputShape) != 4 {
		return nil, fmt.Errorf("input shape must be [batch, channels, height, width], got %v", mb.inputShape)
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: append([]int(nil), mb.inputShape...),
		Compiled:   false,
	}

	// Parameters maps are cloned so compiling never writes into the
	// builder's layers.
	for i, l := range mb.layers {
		params := make(map[string]interface{}, len(l.Parameters))
		for k, v := range l.Parameters {
			params[k] = v
		}
		l.Parameters = params
		model.Layers[i] = l
	}

	currentShape := mb.inputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range model.Layers {
		layer := &model.Layers[i]

		layer.InputShape = make([]int, len(currentShape))
		copy(layer.InputShape, currentShape)

		outputShape, paramShapes, paramCount, err := computeLayerInfo(layer, currentShape)
		if err != nil {
			return nil, fmt.Errorf("failed to compute layer %d (%s) info: %v", i, layer.Name, err)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount

		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	return model, nil
}

// Recompile recomputes shapes for a spec that was decoded from disk, where
// the stored shapes cannot be trusted.
func (ms *ModelSpec) Recompile() (*ModelSpec, error) {
	builder := NewModelBuilder(ms.InputShape)
	for _, l := range ms.Layers {
		builder.AddLayer(LayerSpec{Type: l.Type, Name: l.Name, Parameters: l.Parameters})
	}
	return builder.Compile()
}

// computeLayerInfo computes output shape and parameter information for a layer
func computeLayerInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Conv2D:
		return computeConv2DInfo(layer, inputShape)
	case MaxPool2D:
		return computeMaxPool2DInfo(layer, inputShape)
	case ReLU:
		return computeActivationInfo(layer, inputShape)
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
}

// computeConv2DInfo computes Conv2D layer information
func computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("Conv2D layer requires 4D input [batch, channels, height, width]")
	}

	outputChannels, ok := intParam(layer.Parameters, "output_channels")
	if !ok || outputChannels <= 0 {
		return nil, nil, 0, fmt.Errorf("missing output_channels parameter")
	}

	kernelSize, ok := intParam(layer.Parameters, "kernel_size")
	if !ok || kernelSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing kernel_size parameter")
	}

	stride := layer.Stride()
	padding := layer.Padding()
	if stride <= 0 || padding < 0 {
		return nil, nil, 0, fmt.Errorf("invalid stride %d or padding %d", stride, padding)
	}

	batchSize := inputShape[0]
	inputChannels := inputShape[1]
	inputHeight := inputShape[2]
	inputWidth := inputShape[3]

	if declared, ok := intParam(layer.Parameters, "input_channels"); ok && declared != inputChannels {
		return nil, nil, 0, fmt.Errorf("input_channels %d does not match incoming channels %d", declared, inputChannels)
	}
	layer.Parameters["input_channels"] = inputChannels

	outputHeight, okH := WindowOutputSize(inputHeight, kernelSize, stride, padding)
	outputWidth, okW := WindowOutputSize(inputWidth, kernelSize, stride, padding)
	if !okH || !okW {
		return nil, nil, 0, fmt.Errorf("kernel %d does not fit input %dx%d with padding %d", kernelSize, inputHeight, inputWidth, padding)
	}

	outputShape := []int{batchSize, outputChannels, outputHeight, outputWidth}

	var paramShapes [][]int
	paramCount := int64(0)

	// Weight tensor: [outputChannels, inputChannels, kernelSize, kernelSize]
	weightShape := []int{outputChannels, inputChannels, kernelSize, kernelSize}
	paramShapes = append(paramShapes, weightShape)
	paramCount += int64(outputChannels * inputChannels * kernelSize * kernelSize)

	if layer.UseBias() {
		paramShapes = append(paramShapes, []int{outputChannels})
		paramCount += int64(outputChannels)
	}

	return outputShape, paramShapes, paramCount, nil
}

// computeMaxPool2DInfo computes pooling output shape; windows never overhang
// the input.
func computeMaxPool2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D layer requires 4D input [batch, channels, height, width]")
	}

	kernelSize, ok := intParam(layer.Parameters, "kernel_size")
	if !ok || kernelSize <= 0 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D layer missing kernel_size parameter")
	}
	stride := layer.Stride()
	if stride <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid stride %d", stride)
	}
	if layer.Padding() != 0 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D padding is not supported")
	}
	layer.Parameters["stride"] = stride

	outputHeight, okH := WindowOutputSize(inputShape[2], kernelSize, stride, 0)
	outputWidth, okW := WindowOutputSize(inputShape[3], kernelSize, stride, 0)
	if !okH || !okW {
		return nil, nil, 0, fmt.Errorf("pool window %d does not fit input %dx%d", kernelSize, inputShape[2], inputShape[3])
	}

	return []int{inputShape[0], inputShape[1], outputHeight, outputWidth}, [][]int{}, 0, nil
}

// WindowOutputSize is the number of positions a window of size k with the
// given stride takes along an axis of length in padded by p on both sides.
// It reports false when the window is larger than the padded axis.
func WindowOutputSize(in, k, stride, p int) (int, bool) {
	if k < 1 || stride < 1 || p < 0 || k > in+2*p {
		return 0, false
	}
	return (in+2*p-k)/stride + 1, true
}

func computeActivationInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	// Activation layers don't change shape and have no parameters
	outputShape := make([]int, len(inputShape))
	copy(outputShape, inputShape)

	return outputShape, [][]int{}, 0, nil
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	sb.WriteString("Model Summary:\n")
	sb.WriteString(fmt.Sprintf("Input Shape: %v\n", ms.InputShape))
	sb.WriteString(fmt.Sprintf("Output Shape: %v\n", ms.OutputShape))
	sb.WriteString(fmt.Sprintf("Total Parameters: %d\n", ms.TotalParameters))
	sb.WriteString(fmt.Sprintf("Layers: %d\n\n", len(ms.Layers)))

	for i, layer := range ms.Layers {
		sb.WriteString(fmt.Sprintf("Layer %d: %s (%s)\n", i, layer.Name, layer.Type.String()))
		sb.WriteString(fmt.Sprintf("  Input:  %v\n", layer.InputShape))
		sb.WriteString(fmt.Sprintf("  Output: %v\n", layer.OutputShape))
		sb.WriteString(fmt.Sprintf("  Params: %d\n", layer.ParameterCount))
		sb.WriteString(fmt.Sprintf("  Config: %s\n\n", layer.Details()))
	}

	return sb.String()
}

// Helper functions for parameter extraction. Values decoded from JSON
// arrive as float64.
func intParam(params map[string]interface{}, key string) (int, bool) {
	val, exists := params[key]
	if !exists {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	}
	return 0, false
}

func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if v, ok := intParam(params, key); ok {
		return v
	}
	return defaultValue
}

func getBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, exists := params[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultValue
}
