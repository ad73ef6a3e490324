package preprocessing

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/tsawler/go-netviz/tensor"
)

// Normalization is the per-channel (v - mean) / std applied after scaling
// pixel bytes to [0, 1].
type Normalization struct {
	Mean []float32 `json:"mean"`
	Std  []float32 `json:"std"`
}

// CIFARNormalization maps [0, 1] to [-1, 1] on every RGB channel.
func CIFARNormalization() Normalization {
	return Normalization{
		Mean: []float32{0.5, 0.5, 0.5},
		Std:  []float32{0.5, 0.5, 0.5},
	}
}

// IsZero reports whether no normalization is configured.
func (n Normalization) IsZero() bool {
	return len(n.Mean) == 0 && len(n.Std) == 0
}

func (n Normalization) validate(channels int) error {
	if n.IsZero() {
		return nil
	}
	if len(n.Mean) != channels || len(n.Std) != channels {
		return fmt.Errorf("normalization has %d means and %d stds for %d channels", len(n.Mean), len(n.Std), channels)
	}
	for i, s := range n.Std {
		if s == 0 {
			return fmt.Errorf("normalization std for channel %d is zero", i)
		}
	}
	return nil
}

// DecodeImage decodes PNG, JPEG, GIF, BMP or WebP data.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decoded %s image is empty", format)
	}
	return img, nil
}

// DecodeFile opens and decodes an image file.
func DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := DecodeImage(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Resize scales img to width x height with nearest-neighbour sampling.
// Images already at the target size are returned unchanged.
func Resize(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == width && srcH == height {
		return img
	}

	target := image.NewNRGBA(image.Rect(0, 0, width, height))
	scaleX := float64(srcW) / float64(width)
	scaleY := float64(srcH) / float64(height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcX := int(float64(x) * scaleX)
			srcY := int(float64(y) * scaleY)

			if srcX >= srcW {
				srcX = srcW - 1
			}
			if srcY >= srcH {
				srcY = srcH - 1
			}

			target.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return target
}

// rgb8 returns the straight (not alpha-premultiplied) colour of c.
// Transparency is dropped.
func rgb8(c color.Color) (r, g, b uint8) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R, n.G, n.B
}

// PixelBytes flattens img to R, G, B values in 0-255, pixel by pixel in
// row-major order.
func PixelBytes(img image.Image) []int {
	bounds := img.Bounds()
	pixels := make([]int, 0, 3*bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := rgb8(img.At(x, y))
			pixels = append(pixels, int(r), int(g), int(b))
		}
	}
	return pixels
}

// ToTensor converts img to a (1, channels, H, W) tensor of v/255 values,
// normalized per channel. One channel uses luminance; three use RGB.
func ToTensor(img image.Image, channels int, norm Normalization) (*tensor.Tensor, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	if err := norm.validate(channels); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			idx := y*width + x

			if channels == 1 {
				gray := color.GrayModel.Convert(c).(color.Gray)
				data[idx] = float32(gray.Y) / 255.0
				continue
			}

			r, g, b := rgb8(c)
			data[0*plane+idx] = float32(r) / 255.0 // R channel
			data[1*plane+idx] = float32(g) / 255.0 // G channel
			data[2*plane+idx] = float32(b) / 255.0 // B channel
		}
	}

	if !norm.IsZero() {
		for ch := 0; ch < channels; ch++ {
			mean, std := norm.Mean[ch], norm.Std[ch]
			for i := ch * plane; i < (ch+1)*plane; i++ {
				data[i] = (data[i] - mean) / std
			}
		}
	}

	return tensor.NewTensor([]int{1, channels, height, width}, data)
}

// ImageProcessor prepares dataset samples for a network with a fixed input
// shape.
type ImageProcessor struct {
	width         int
	height        int
	channels      int
	normalization Normalization
}

// NewImageProcessor creates a processor for (1, C, H, W) network inputs
func NewImageProcessor(inputShape []int, norm Normalization) (*ImageProcessor, error) {
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("input shape must be [batch, channels, height, width], got %v", inputShape)
	}
	if err := norm.validate(inputShape[1]); err != nil {
		return nil, err
	}
	return &ImageProcessor{
		channels:      inputShape[1],
		height:        inputShape[2],
		width:         inputShape[3],
		normalization: norm,
	}, nil
}

// ProcessedImage is a sample ready for both the network and the viewer.
type ProcessedImage struct {
	Pixels []int
	Width  int
	Height int
	Tensor *tensor.Tensor
}

// Process resizes img to the network input and produces both views of it.
func (p *ImageProcessor) Process(img image.Image) (*ProcessedImage, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image is empty")
	}

	resized := Resize(img, p.width, p.height)
	t, err := ToTensor(resized, p.channels, p.normalization)
	if err != nil {
		return nil, err
	}

	return &ProcessedImage{
		Pixels: PixelBytes(resized),
		Width:  p.width,
		Height: p.height,
		Tensor: t,
	}, nil
}
