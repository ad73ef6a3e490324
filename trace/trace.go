// Package trace re-derives the individual compute steps of a layer from its
// precomputed input and output tensors.
//
// No layer math happens here. A convolution or pooling step only says which
// input window produced which output cell and what value came out; a
// rectification layer is a single snapshot of its output. Every step of a
// layer carries the same min_val/val_range pair so a viewer that joins late
// can still normalize colours.
package trace

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/tensor"
)

// InputNodeName names the synthetic node that holds the network input.
const InputNodeName = "input"

// flatRangeEpsilon is the smallest value spread that is not treated as a
// constant tensor.
const flatRangeEpsilon = 1e-5

// LayerInfo identifies a layer on the wire.
type LayerInfo struct {
	Spec     layers.LayerSpec
	Name     string
	PrevName string
}

// NewLayerInfo names layer i by its index and links it to its predecessor.
func NewLayerInfo(i int, spec layers.LayerSpec) LayerInfo {
	prev := InputNodeName
	if i > 0 {
		prev = strconv.Itoa(i - 1)
	}
	return LayerInfo{Spec: spec, Name: strconv.Itoa(i), PrevName: prev}
}

// Options tune what goes into each step.
type Options struct {
	// WinnerCoords adds the window-relative arg-max to pooling steps.
	WinnerCoords bool
}

// Step is one of ConvStep, PoolStep or ActivationUpdate.
type Step interface {
	step()
}

// ConvStep reports one convolution output cell and the top-left corner of
// its input window, which is negative inside the padding.
type ConvStep struct {
	InputLayerName   string  `json:"input_layer_name"`
	OutputLayerName  string  `json:"output_layer_name"`
	InputStartCoords [2]int  `json:"input_start_coords"`
	KernelSize       int     `json:"kernel_size"`
	OutputCoord      [3]int  `json:"output_coord"`
	OutputValue      float32 `json:"output_value"`
	MinVal           float32 `json:"min_val"`
	ValRange         float32 `json:"val_range"`
}

// PoolStep reports one pooling output cell and its input window.
type PoolStep struct {
	InputLayerName     string  `json:"input_layer_name"`
	OutputLayerName    string  `json:"output_layer_name"`
	InputStartCoords   [2]int  `json:"input_start_coords"`
	PoolSize           int     `json:"pool_size"`
	OutputCoord        [3]int  `json:"output_coord"`
	WinnerCoordInPatch *[2]int `json:"winner_coord_in_patch,omitempty"`
	OutputValue        float32 `json:"output_value"`
	MinVal             float32 `json:"min_val"`
	ValRange           float32 `json:"val_range"`
}

// ActivationUpdate replaces the values shown for LayerNameToUpdate with the
// rectified activations.
type ActivationUpdate struct {
	LayerNameToUpdate string        `json:"layer_name_to_update"`
	Activations       [][][]float32 `json:"activations"`
	MinVal            float32       `json:"min_val"`
	ValRange          float32       `json:"val_range"`
}

func (ConvStep) step()         {}
func (PoolStep) step()         {}
func (ActivationUpdate) step() {}

// Normalize returns the minimum of out and its value spread, with a spread
// below 1e-5 reported as 1.
func Normalize(out *tensor.Tensor) (minVal, valRange float32) {
	lo, hi := out.MinMax()
	valRange = hi - lo
	if valRange < flatRangeEpsilon {
		valRange = 1.0
	}
	return lo, valRange
}

// StepCount is the number of steps Walk emits for a layer with output out.
func StepCount(layer LayerInfo, out *tensor.Tensor) int {
	if layer.Spec.Type == layers.ReLU {
		return 1
	}
	return out.Numel()
}

// Walk emits the steps of one layer in channel, row, column order and stops
// at the first error returned by fn. Shape problems are reported before any
// step is emitted. Neither tensor is modified.
func Walk(layer LayerInfo, in, out *tensor.Tensor, opts Options, fn func(Step) error) error {
	if err := validate(layer, in, out); err != nil {
		return fmt.Errorf("layer %s (%s): %w", layer.Name, layer.Spec.Type, err)
	}

	switch layer.Spec.Type {
	case layers.Conv2D:
		return walkConv(layer, out, fn)
	case layers.MaxPool2D:
		return walkPool(layer, in, out, opts, fn)
	case layers.ReLU:
		return walkActivation(layer, out, fn)
	default:
		return fmt.Errorf("layer %s: no trace for layer type %s", layer.Name, layer.Spec.Type)
	}
}

// Generate collects the steps of Walk.
func Generate(layer LayerInfo, in, out *tensor.Tensor, opts Options) ([]Step, error) {
	var steps []Step
	err := Walk(layer, in, out, opts, func(s Step) error {
		steps = append(steps, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func walkConv(layer LayerInfo, out *tensor.Tensor, fn func(Step) error) error {
	c, h, w, _ := out.CHW()
	s, p, k := layer.Spec.Stride(), layer.Spec.Padding(), layer.Spec.KernelSize()
	minVal, valRange := Normalize(out)

	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				err := fn(ConvStep{
					InputLayerName:   layer.PrevName,
					OutputLayerName:  layer.Name,
					InputStartCoords: [2]int{y*s - p, x*s - p},
					KernelSize:       k,
					OutputCoord:      [3]int{ch, y, x},
					OutputValue:      out.At4(ch, y, x),
					MinVal:           minVal,
					ValRange:         valRange,
				})
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func walkPool(layer LayerInfo, in, out *tensor.Tensor, opts Options, fn func(Step) error) error {
	c, h, w, _ := out.CHW()
	s, k := layer.Spec.Stride(), layer.Spec.KernelSize()
	minVal, valRange := Normalize(out)

	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				st := PoolStep{
					InputLayerName:   layer.PrevName,
					OutputLayerName:  layer.Name,
					InputStartCoords: [2]int{y * s, x * s},
					PoolSize:         k,
					OutputCoord:      [3]int{ch, y, x},
					OutputValue:      out.At4(ch, y, x),
					MinVal:           minVal,
					ValRange:         valRange,
				}
				if opts.WinnerCoords {
					winner := argmaxInWindow(in, ch, y*s, x*s, k)
					st.WinnerCoordInPatch = &winner
				}
				if err := fn(st); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func walkActivation(layer LayerInfo, out *tensor.Tensor, fn func(Step) error) error {
	activations, err := out.Nested()
	if err != nil {
		return err
	}
	_, valRange := Normalize(out)

	return fn(ActivationUpdate{
		LayerNameToUpdate: layer.PrevName,
		Activations:       activations,
		MinVal:            0,
		ValRange:          valRange,
	})
}

// argmaxInWindow returns the window-relative (row, col) of the largest
// value; the first one in row-major order wins ties.
func argmaxInWindow(in *tensor.Tensor, ch, top, left, k int) [2]int {
	_, h, w, _ := in.CHW()
	best := [2]int{0, 0}
	bestVal := in.At4(ch, top, left)
	for dy := 0; dy < k && top+dy < h; dy++ {
		for dx := 0; dx < k && left+dx < w; dx++ {
			if v := in.At4(ch, top+dy, left+dx); v > bestVal {
				bestVal = v
				best = [2]int{dy, dx}
			}
		}
	}
	return best
}

func validate(layer LayerInfo, in, out *tensor.Tensor) error {
	if in == nil || out == nil {
		return fmt.Errorf("missing input or output tensor")
	}
	inC, inH, inW, err := in.CHW()
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	outC, outH, outW, err := out.CHW()
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}

	spec := layer.Spec
	if len(spec.InputShape) == 4 && !reflect.DeepEqual(in.Shape, spec.InputShape) {
		return fmt.Errorf("input shape %v, layer expects %v", in.Shape, spec.InputShape)
	}
	if len(spec.OutputShape) == 4 && !reflect.DeepEqual(out.Shape, spec.OutputShape) {
		return fmt.Errorf("output shape %v, layer produces %v", out.Shape, spec.OutputShape)
	}

	switch spec.Type {
	case layers.Conv2D:
		k, s, p := spec.KernelSize(), spec.Stride(), spec.Padding()
		if s < 1 || k < 1 || p < 0 {
			return fmt.Errorf("invalid kernel %d, stride %d or padding %d", k, s, p)
		}
		if oc := spec.OutputChannels(); oc > 0 && oc != outC {
			return fmt.Errorf("output has %d channels, layer has %d", outC, oc)
		}
		wantH, okH := layers.WindowOutputSize(inH, k, s, p)
		wantW, okW := layers.WindowOutputSize(inW, k, s, p)
		if !okH || !okW {
			return fmt.Errorf("kernel %d does not fit input %dx%d with padding %d", k, inH, inW, p)
		}
		if outH != wantH || outW != wantW {
			return fmt.Errorf("output %dx%d does not match convolution of %dx%d (expected %dx%d)", outH, outW, inH, inW, wantH, wantW)
		}
	case layers.MaxPool2D:
		k, s := spec.KernelSize(), spec.Stride()
		if s < 1 || k < 1 {
			return fmt.Errorf("invalid pool size %d or stride %d", k, s)
		}
		if outC != inC {
			return fmt.Errorf("pooling changed channels from %d to %d", inC, outC)
		}
		wantH, okH := layers.WindowOutputSize(inH, k, s, 0)
		wantW, okW := layers.WindowOutputSize(inW, k, s, 0)
		if !okH || !okW {
			return fmt.Errorf("pool window %d does not fit input %dx%d", k, inH, inW)
		}
		if outH != wantH || outW != wantW {
			return fmt.Errorf("output %dx%d does not match pooling of %dx%d (expected %dx%d)", outH, outW, inH, inW, wantH, wantW)
		}
	case layers.ReLU:
		if !in.SameShape(out) {
			return fmt.Errorf("rectification changed shape from %v to %v", in.Shape, out.Shape)
		}
	}
	return nil
}
