package tensor

import (
	"fmt"
	"math"
)

func ReLU(t *Tensor) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		if t.Data[i] > 0 {
			result.Data[i] = t.Data[i]
		}
	}
	return result, nil
}

// AddChannelBias adds bias[c] to every element of channel c of a
// (1, C, H, W) tensor.
func AddChannelBias(t *Tensor, bias []float32) (*Tensor, error) {
	c, h, w, err := t.CHW()
	if err != nil {
		return nil, err
	}
	if len(bias) != c {
		return nil, fmt.Errorf("bias length %d does not match %d channels", len(bias), c)
	}

	result := t.Clone()
	plane := h * w
	for ch := 0; ch < c; ch++ {
		for i := ch * plane; i < (ch+1)*plane; i++ {
			result.Data[i] += bias[ch]
		}
	}
	return result, nil
}

// Conv2D cross-correlates a (1, Cin, H, W) input with a (Cout, Cin, K, K)
// kernel using square stride and zero padding. bias may be nil.
func Conv2D(input, kernel *Tensor, bias []float32, stride, padding int) (*Tensor, error) {
	inC, inH, inW, err := input.CHW()
	if err != nil {
		return nil, fmt.Errorf("conv input: %w", err)
	}
	outC, kC, kH, kW, err := kernel.Dims4()
	if err != nil {
		return nil, fmt.Errorf("conv kernel: %w", err)
	}
	if kC != inC || kH != kW {
		return nil, fmt.Errorf("kernel shape %v incompatible with input %v", kernel.Shape, input.Shape)
	}
	if bias != nil && len(bias) != outC {
		return nil, fmt.Errorf("bias length %d does not match %d output channels", len(bias), outC)
	}
	if stride < 1 || padding < 0 {
		return nil, fmt.Errorf("invalid stride %d or padding %d", stride, padding)
	}

	k := kH
	if k > inH+2*padding || k > inW+2*padding {
		return nil, fmt.Errorf("kernel %d too large for input %dx%d with padding %d", k, inH, inW, padding)
	}
	outH := (inH+2*padding-k)/stride + 1
	outW := (inW+2*padding-k)/stride + 1

	result, err := Zeros([]int{1, outC, outH, outW})
	if err != nil {
		return nil, err
	}

	for oc := 0; oc < outC; oc++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				var sum float32
				if bias != nil {
					sum = bias[oc]
				}
				for ic := 0; ic < inC; ic++ {
					for ky := 0; ky < k; ky++ {
						iy := oy*stride - padding + ky
						if iy < 0 || iy >= inH {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := ox*stride - padding + kx
							if ix < 0 || ix >= inW {
								continue
							}
							sum += input.Data[(ic*inH+iy)*inW+ix] * kernel.Data[((oc*inC+ic)*k+ky)*k+kx]
						}
					}
				}
				result.Data[(oc*outH+oy)*outW+ox] = sum
			}
		}
	}
	return result, nil
}

// MaxPool2D takes the maximum over unpadded k x k windows of a
// (1, C, H, W) tensor.
func MaxPool2D(input *Tensor, k, stride int) (*Tensor, error) {
	c, inH, inW, err := input.CHW()
	if err != nil {
		return nil, fmt.Errorf("pool input: %w", err)
	}
	if k < 1 || stride < 1 {
		return nil, fmt.Errorf("invalid pool size %d or stride %d", k, stride)
	}

	if k > inH || k > inW {
		return nil, fmt.Errorf("pool size %d too large for input %dx%d", k, inH, inW)
	}
	outH := (inH-k)/stride + 1
	outW := (inW-k)/stride + 1

	result, err := Zeros([]int{1, c, outH, outW})
	if err != nil {
		return nil, err
	}

	for ch := 0; ch < c; ch++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				best := float32(math.Inf(-1))
				for ky := 0; ky < k; ky++ {
					for kx := 0; kx < k; kx++ {
						if v := input.At4(ch, oy*stride+ky, ox*stride+kx); v > best {
							best = v
						}
					}
				}
				result.Data[(ch*outH+oy)*outW+ox] = best
			}
		}
	}
	return result, nil
}
