package checkpoints

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-netviz/layers"
)

// ONNX field numbers for the subset of onnx.proto the feature stack needs.
// Only Conv, Relu and MaxPool nodes with float32 initializers are handled.
const (
	modelIRVersion       protowire.Number = 1
	modelProducerName    protowire.Number = 2
	modelProducerVersion protowire.Number = 3
	modelVersion         protowire.Number = 5
	modelGraph           protowire.Number = 7
	modelOpsetImport     protowire.Number = 8

	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	nodeInput     protowire.Number = 1
	nodeOutput    protowire.Number = 2
	nodeName      protowire.Number = 3
	nodeOpType    protowire.Number = 4
	nodeAttribute protowire.Number = 5

	attrName protowire.Number = 1
	attrF    protowire.Number = 2
	attrI    protowire.Number = 3
	attrInts protowire.Number = 8
	attrType protowire.Number = 20

	tensorDims      protowire.Number = 1
	tensorDataType  protowire.Number = 2
	tensorFloatData protowire.Number = 4
	tensorName      protowire.Number = 8
	tensorRawData   protowire.Number = 9

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensorType protowire.Number = 1
	tensorElemType protowire.Number = 1
	tensorShape    protowire.Number = 2
	shapeDim       protowire.Number = 1
	dimValue       protowire.Number = 1
)

const (
	onnxIRVersion    = 8
	onnxOpsetVersion = 13

	attributeTypeInts = 7

	dataTypeFloat = 1
)

// graph is the decoded subset of an ONNX GraphProto.
type graph struct {
	name        string
	nodes       []node
	initializer map[string]WeightTensor
	inputs      []valueInfo
	outputs     []valueInfo
}

type node struct {
	name   string
	opType string
	input  []string
	output []string
	attrs  map[string]attribute
}

type attribute struct {
	i    int64
	f    float32
	ints []int64
}

type valueInfo struct {
	name  string
	shape []int64
}

// ONNXExporter writes a checkpoint as an ONNX model
type ONNXExporter struct {
	producerName    string
	producerVersion string
}

// NewONNXExporter creates a new ONNX exporter
func NewONNXExporter() *ONNXExporter {
	return &ONNXExporter{
		producerName:    "go-netviz",
		producerVersion: "1.0.0",
	}
}

// ExportToONNX converts a checkpoint to ONNX format and writes it to path
func (oe *ONNXExporter) ExportToONNX(checkpoint *Checkpoint, path string) error {
	data, err := oe.Marshal(checkpoint)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write ONNX file: %w", err)
	}
	return nil
}

// Marshal encodes a checkpoint as ONNX ModelProto bytes
func (oe *ONNXExporter) Marshal(checkpoint *Checkpoint) ([]byte, error) {
	if checkpoint == nil || checkpoint.ModelSpec == nil || !checkpoint.ModelSpec.Compiled {
		return nil, fmt.Errorf("checkpoint must carry a compiled model spec")
	}

	g, err := oe.encodeGraph(checkpoint)
	if err != nil {
		return nil, err
	}

	var opset []byte
	opset = protowire.AppendTag(opset, opsetDomain, protowire.BytesType)
	opset = protowire.AppendString(opset, "")
	opset = protowire.AppendTag(opset, opsetVersion, protowire.VarintType)
	opset = protowire.AppendVarint(opset, onnxOpsetVersion)

	var b []byte
	b = protowire.AppendTag(b, modelIRVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, onnxIRVersion)
	b = protowire.AppendTag(b, modelProducerName, protowire.BytesType)
	b = protowire.AppendString(b, oe.producerName)
	b = protowire.AppendTag(b, modelProducerVersion, protowire.BytesType)
	b = protowire.AppendString(b, oe.producerVersion)
	b = protowire.AppendTag(b, modelVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, modelGraph, protowire.BytesType)
	b = protowire.AppendBytes(b, g)
	b = protowire.AppendTag(b, modelOpsetImport, protowire.BytesType)
	b = protowire.AppendBytes(b, opset)
	return b, nil
}

func (oe *ONNXExporter) encodeGraph(checkpoint *Checkpoint) ([]byte, error) {
	spec := checkpoint.ModelSpec

	var b []byte
	b = protowire.AppendTag(b, graphName, protowire.BytesType)
	b = protowire.AppendString(b, "features")

	current := "input"
	for _, layer := range spec.Layers {
		output := layer.Name + "_output"
		n := node{name: layer.Name, input: []string{current}, output: []string{output}}

		switch layer.Type {
		case layers.Conv2D:
			k, s, p := int64(layer.KernelSize()), int64(layer.Stride()), int64(layer.Padding())
			n.opType = "Conv"
			n.attrs = map[string]attribute{
				"kernel_shape": {ints: []int64{k, k}},
				"strides":      {ints: []int64{s, s}},
				"pads":         {ints: []int64{p, p, p, p}},
			}

			names := []string{WeightName(layer.Name, "weight")}
			if layer.UseBias() {
				names = append(names, WeightName(layer.Name, "bias"))
			}
			for _, name := range names {
				w, ok := checkpoint.Lookup(name)
				if !ok {
					return nil, fmt.Errorf("missing weight tensor %s", name)
				}
				n.input = append(n.input, name)
				b = protowire.AppendTag(b, graphInitializer, protowire.BytesType)
				b = protowire.AppendBytes(b, encodeTensor(w))
			}
		case layers.ReLU:
			n.opType = "Relu"
		case layers.MaxPool2D:
			k, s := int64(layer.KernelSize()), int64(layer.Stride())
			n.opType = "MaxPool"
			n.attrs = map[string]attribute{
				"kernel_shape": {ints: []int64{k, k}},
				"strides":      {ints: []int64{s, s}},
			}
		default:
			return nil, fmt.Errorf("unsupported layer type for ONNX export: %s", layer.Type)
		}

		b = protowire.AppendTag(b, graphNode, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeNode(n))
		current = output
	}

	b = protowire.AppendTag(b, graphInput, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeValueInfo("input", spec.InputShape))
	b = protowire.AppendTag(b, graphOutput, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeValueInfo(current, spec.OutputShape))
	return b, nil
}

func encodeNode(n node) []byte {
	var b []byte
	for _, in := range n.input {
		b = protowire.AppendTag(b, nodeInput, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.output {
		b = protowire.AppendTag(b, nodeOutput, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = protowire.AppendTag(b, nodeName, protowire.BytesType)
	b = protowire.AppendString(b, n.name)
	b = protowire.AppendTag(b, nodeOpType, protowire.BytesType)
	b = protowire.AppendString(b, n.opType)

	// Fixed order keeps exports byte-for-byte reproducible.
	for _, name := range []string{"kernel_shape", "strides", "pads"} {
		attr, ok := n.attrs[name]
		if !ok {
			continue
		}
		var a []byte
		a = protowire.AppendTag(a, attrName, protowire.BytesType)
		a = protowire.AppendString(a, name)
		for _, v := range attr.ints {
			a = protowire.AppendTag(a, attrInts, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(v))
		}
		a = protowire.AppendTag(a, attrType, protowire.VarintType)
		a = protowire.AppendVarint(a, attributeTypeInts)

		b = protowire.AppendTag(b, nodeAttribute, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	return b
}

func encodeTensor(w WeightTensor) []byte {
	var b []byte
	for _, d := range w.Shape {
		b = protowire.AppendTag(b, tensorDims, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d))
	}
	b = protowire.AppendTag(b, tensorDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, dataTypeFloat)

	packed := make([]byte, 0, 4*len(w.Data))
	for _, v := range w.Data {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, tensorFloatData, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)

	b = protowire.AppendTag(b, tensorName, protowire.BytesType)
	b = protowire.AppendString(b, w.Name)
	return b
}

func encodeValueInfo(name string, shape []int) []byte {
	var dims []byte
	for _, d := range shape {
		var dim []byte
		dim = protowire.AppendTag(dim, dimValue, protowire.VarintType)
		dim = protowire.AppendVarint(dim, uint64(d))
		dims = protowire.AppendTag(dims, shapeDim, protowire.BytesType)
		dims = protowire.AppendBytes(dims, dim)
	}

	var tt []byte
	tt = protowire.AppendTag(tt, tensorElemType, protowire.VarintType)
	tt = protowire.AppendVarint(tt, dataTypeFloat)
	tt = protowire.AppendTag(tt, tensorShape, protowire.BytesType)
	tt = protowire.AppendBytes(tt, dims)

	var typ []byte
	typ = protowire.AppendTag(typ, typeTensorType, protowire.BytesType)
	typ = protowire.AppendBytes(typ, tt)

	var b []byte
	b = protowire.AppendTag(b, valueInfoName, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, valueInfoType, protowire.BytesType)
	b = protowire.AppendBytes(b, typ)
	return b
}

// ONNXImporter reads the leading Conv/Relu/MaxPool chain of an ONNX model.
// Nodes after the feature stack (Flatten, Gemm and friends) are ignored, so
// a full classifier export loads as its feature extractor.
type ONNXImporter struct{}

// NewONNXImporter creates a new ONNX importer
func NewONNXImporter() *ONNXImporter {
	return &ONNXImporter{}
}

// ImportFromONNX reads an ONNX file into a checkpoint
func (oi *ONNXImporter) ImportFromONNX(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX file: %w", err)
	}
	return oi.Unmarshal(data)
}

// Unmarshal decodes ONNX ModelProto bytes into a checkpoint
func (oi *ONNXImporter) Unmarshal(data []byte) (*Checkpoint, error) {
	var (
		producer, version string
		g                 *graph
	)
	err := forEachField(data, func(f field) error {
		switch f.num {
		case modelProducerName:
			producer = string(f.bytes)
		case modelProducerVersion:
			version = string(f.bytes)
		case modelGraph:
			parsed, err := decodeGraph(f.bytes)
			if err != nil {
				return err
			}
			g = parsed
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode ONNX model: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("ONNX model has no graph")
	}

	spec, weights, err := oi.convertGraph(g)
	if err != nil {
		return nil, fmt.Errorf("failed to convert ONNX graph: %w", err)
	}

	if producer == "" {
		producer = "onnx"
	}
	return &Checkpoint{
		ModelSpec: spec,
		Weights:   weights,
		Metadata: CheckpointMetadata{
			Version:     version,
			Framework:   producer,
			CreatedAt:   time.Now(),
			Description: fmt.Sprintf("Imported from ONNX graph %q", g.name),
		},
	}, nil
}

func (oi *ONNXImporter) convertGraph(g *graph) (*layers.ModelSpec, []WeightTensor, error) {
	var input *valueInfo
	for i := range g.inputs {
		if _, isWeight := g.initializer[g.inputs[i].name]; !isWeight {
			input = &g.inputs[i]
			break
		}
	}
	if input == nil {
		return nil, nil, fmt.Errorf("ONNX model has no data input")
	}
	if len(input.shape) != 4 {
		return nil, nil, fmt.Errorf("expected 4D NCHW input, got %d dims", len(input.shape))
	}
	inputShape := make([]int, 4)
	for i, d := range input.shape {
		// Symbolic or missing dims only make sense for the batch axis.
		if d <= 0 {
			if i != 0 {
				return nil, nil, fmt.Errorf("input dimension %d is not fixed", i)
			}
			d = 1
		}
		inputShape[i] = int(d)
	}

	builder := layers.NewModelBuilder(inputShape)
	var weights []WeightTensor
	current := input.name
	count := 0

	for i, n := range g.nodes {
		if n.opType == "Identity" || n.opType == "Dropout" {
			if len(n.input) > 0 && n.input[0] == current && len(n.output) > 0 {
				current = n.output[0]
			}
			continue
		}
		if n.opType != "Conv" && n.opType != "Relu" && n.opType != "MaxPool" {
			break
		}
		if len(n.input) == 0 || n.input[0] != current || len(n.output) == 0 {
			return nil, nil, fmt.Errorf("node %d (%s) does not continue the sequential chain", i, n.opType)
		}

		name := n.name
		if name == "" {
			name = fmt.Sprintf("%s_%d", n.opType, i)
		}

		switch n.opType {
		case "Conv":
			layerWeights, err := oi.addConv(builder, n, name, g.initializer)
			if err != nil {
				return nil, nil, err
			}
			weights = append(weights, layerWeights...)
		case "Relu":
			builder.AddReLU(name)
		case "MaxPool":
			if err := oi.addMaxPool(builder, n, name); err != nil {
				return nil, nil, err
			}
		}
		current = n.output[0]
		count++
	}

	if count == 0 {
		return nil, nil, fmt.Errorf("graph has no Conv/Relu/MaxPool layers")
	}

	spec, err := builder.Compile()
	if err != nil {
		return nil, nil, err
	}
	return spec, weights, nil
}

func (oi *ONNXImporter) addConv(builder *layers.ModelBuilder, n node, name string, inits map[string]WeightTensor) ([]WeightTensor, error) {
	if len(n.input) < 2 {
		return nil, fmt.Errorf("conv %s has no weight input", name)
	}
	w, ok := inits[n.input[1]]
	if !ok {
		return nil, fmt.Errorf("conv %s weight %s is not an initializer", name, n.input[1])
	}
	if len(w.Shape) != 4 || w.Shape[2] != w.Shape[3] {
		return nil, fmt.Errorf("conv %s weight must be [out, in, k, k], got %v", name, w.Shape)
	}

	k := w.Shape[2]
	if ks, ok := n.attrs["kernel_shape"]; ok {
		if len(ks.ints) != 2 || ks.ints[0] != ks.ints[1] || int(ks.ints[0]) != k {
			return nil, fmt.Errorf("conv %s kernel_shape %v does not match weight", name, ks.ints)
		}
	}
	stride, err := squareAttr(n, "strides", 1)
	if err != nil {
		return nil, fmt.Errorf("conv %s: %w", name, err)
	}
	padding, err := symmetricPads(n)
	if err != nil {
		return nil, fmt.Errorf("conv %s: %w", name, err)
	}
	if d, ok := n.attrs["dilations"]; ok {
		for _, v := range d.ints {
			if v != 1 {
				return nil, fmt.Errorf("conv %s: dilation %v is not supported", name, d.ints)
			}
		}
	}
	if g, ok := n.attrs["group"]; ok && g.i > 1 {
		return nil, fmt.Errorf("conv %s: grouped convolution is not supported", name)
	}

	useBias := len(n.input) > 2 && n.input[2] != ""
	builder.AddLayer(layers.LayerSpec{
		Type: layers.Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"input_channels":  w.Shape[1],
			"output_channels": w.Shape[0],
			"kernel_size":     k,
			"stride":          stride,
			"padding":         padding,
			"use_bias":        useBias,
		},
	})

	w.Name = WeightName(name, "weight")
	w.Layer = name
	w.Type = "weight"
	out := []WeightTensor{w}

	if useBias {
		bias, ok := inits[n.input[2]]
		if !ok {
			return nil, fmt.Errorf("conv %s bias %s is not an initializer", name, n.input[2])
		}
		bias.Name = WeightName(name, "bias")
		bias.Layer = name
		bias.Type = "bias"
		out = append(out, bias)
	}
	return out, nil
}

func (oi *ONNXImporter) addMaxPool(builder *layers.ModelBuilder, n node, name string) error {
	ks, ok := n.attrs["kernel_shape"]
	if !ok || len(ks.ints) != 2 || ks.ints[0] != ks.ints[1] {
		return fmt.Errorf("maxpool %s needs a square kernel_shape", name)
	}
	k := int(ks.ints[0])
	stride, err := squareAttr(n, "strides", k)
	if err != nil {
		return fmt.Errorf("maxpool %s: %w", name, err)
	}
	padding, err := symmetricPads(n)
	if err != nil {
		return fmt.Errorf("maxpool %s: %w", name, err)
	}
	if padding != 0 {
		return fmt.Errorf("maxpool %s: padding is not supported", name)
	}
	builder.AddMaxPool2D(k, stride, name)
	return nil
}

func squareAttr(n node, name string, def int) (int, error) {
	a, ok := n.attrs[name]
	if !ok || len(a.ints) == 0 {
		return def, nil
	}
	if len(a.ints) != 2 || a.ints[0] != a.ints[1] {
		return 0, fmt.Errorf("%s %v must be square", name, a.ints)
	}
	return int(a.ints[0]), nil
}

func symmetricPads(n node) (int, error) {
	a, ok := n.attrs["pads"]
	if !ok || len(a.ints) == 0 {
		return 0, nil
	}
	for _, v := range a.ints {
		if v != a.ints[0] {
			return 0, fmt.Errorf("asymmetric pads %v are not supported", a.ints)
		}
	}
	return int(a.ints[0]), nil
}

// field is one decoded wire field. Only the member matching typ is set.
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	bytes   []byte
}

func forEachField(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// appendInt64s handles both encodings of a repeated int64; proto2 writers
// such as the PyTorch exporter emit them unpacked.
func appendInt64s(dst []int64, f field) ([]int64, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, int64(f.varint)), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			dst = append(dst, int64(v))
			b = b[n:]
		}
		return dst, nil
	}
	return dst, nil
}

func decodeGraph(b []byte) (*graph, error) {
	g := &graph{initializer: make(map[string]WeightTensor)}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case graphName:
			g.name = string(f.bytes)
		case graphNode:
			n, err := decodeNode(f.bytes)
			if err != nil {
				return err
			}
			g.nodes = append(g.nodes, n)
		case graphInitializer:
			t, err := decodeTensor(f.bytes)
			if err != nil {
				return err
			}
			g.initializer[t.Name] = t
		case graphInput, graphOutput:
			vi, err := decodeValueInfo(f.bytes)
			if err != nil {
				return err
			}
			if f.num == graphInput {
				g.inputs = append(g.inputs, vi)
			} else {
				g.outputs = append(g.outputs, vi)
			}
		}
		return nil
	})
	return g, err
}

func decodeNode(b []byte) (node, error) {
	n := node{attrs: make(map[string]attribute)}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case nodeInput:
			n.input = append(n.input, string(f.bytes))
		case nodeOutput:
			n.output = append(n.output, string(f.bytes))
		case nodeName:
			n.name = string(f.bytes)
		case nodeOpType:
			n.opType = string(f.bytes)
		case nodeAttribute:
			name, attr, err := decodeAttribute(f.bytes)
			if err != nil {
				return err
			}
			n.attrs[name] = attr
		}
		return nil
	})
	return n, err
}

func decodeAttribute(b []byte) (string, attribute, error) {
	var (
		name string
		attr attribute
	)
	err := forEachField(b, func(f field) error {
		var err error
		switch f.num {
		case attrName:
			name = string(f.bytes)
		case attrF:
			attr.f = math.Float32frombits(f.fixed32)
		case attrI:
			attr.i = int64(f.varint)
		case attrInts:
			attr.ints, err = appendInt64s(attr.ints, f)
		}
		return err
	})
	return name, attr, err
}

func decodeTensor(b []byte) (WeightTensor, error) {
	var (
		w        WeightTensor
		dims     []int64
		dataType uint64 = dataTypeFloat
		raw      []byte
	)
	err := forEachField(b, func(f field) error {
		var err error
		switch f.num {
		case tensorDims:
			dims, err = appendInt64s(dims, f)
		case tensorDataType:
			dataType = f.varint
		case tensorName:
			w.Name = string(f.bytes)
		case tensorRawData:
			raw = f.bytes
		case tensorFloatData:
			switch f.typ {
			case protowire.Fixed32Type:
				w.Data = append(w.Data, math.Float32frombits(f.fixed32))
			case protowire.BytesType:
				p := f.bytes
				for len(p) > 0 {
					v, n := protowire.ConsumeFixed32(p)
					if n < 0 {
						return protowire.ParseError(n)
					}
					w.Data = append(w.Data, math.Float32frombits(v))
					p = p[n:]
				}
			}
		}
		return err
	})
	if err != nil {
		return w, err
	}
	if dataType != dataTypeFloat {
		return w, fmt.Errorf("initializer %s has data type %d, only float32 is supported", w.Name, dataType)
	}

	if raw != nil {
		if len(raw)%4 != 0 {
			return w, fmt.Errorf("initializer %s raw_data length %d is not a multiple of 4", w.Name, len(raw))
		}
		w.Data = make([]float32, len(raw)/4)
		for i := range w.Data {
			w.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}

	w.Shape = make([]int, len(dims))
	size := 1
	for i, d := range dims {
		w.Shape[i] = int(d)
		size *= int(d)
	}
	if size != len(w.Data) {
		return w, fmt.Errorf("initializer %s has %d values for shape %v", w.Name, len(w.Data), w.Shape)
	}
	return w, nil
}

func decodeValueInfo(b []byte) (valueInfo, error) {
	var vi valueInfo
	err := forEachField(b, func(f field) error {
		switch f.num {
		case valueInfoName:
			vi.name = string(f.bytes)
		case valueInfoType:
			return forEachField(f.bytes, func(tf field) error {
				if tf.num != typeTensorType {
					return nil
				}
				return forEachField(tf.bytes, func(tt field) error {
					if tt.num != tensorShape {
						return nil
					}
					return forEachField(tt.bytes, func(sf field) error {
						if sf.num != shapeDim {
							return nil
						}
						// A dim_param leaves the value at zero.
						var d int64
						err := forEachField(sf.bytes, func(df field) error {
							if df.num == dimValue && df.typ == protowire.VarintType {
								d = int64(df.varint)
							}
							return nil
						})
						vi.shape = append(vi.shape, d)
						return err
					})
				})
			})
		}
		return nil
	})
	return vi, err
}
