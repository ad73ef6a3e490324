package preprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
)

// createTestImage creates a small image with a distinct colour per pixel
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(10 * x), uint8(10 * y), 200, 255})
		}
	}
	return img
}

func TestDecodeImage(t *testing.T) {
	img := createTestImage(4, 3)

	t.Run("png", func(t *testing.T) {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		decoded, err := DecodeImage(&buf)
		if err != nil {
			t.Fatalf("DecodeImage failed: %v", err)
		}
		if !reflect.DeepEqual(PixelBytes(decoded), PixelBytes(img)) {
			t.Error("png pixels changed across decode")
		}
	})

	t.Run("bmp", func(t *testing.T) {
		var buf bytes.Buffer
		if err := bmp.Encode(&buf, img); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		decoded, err := DecodeImage(&buf)
		if err != nil {
			t.Fatalf("DecodeImage failed: %v", err)
		}
		if decoded.Bounds().Dx() != 4 || decoded.Bounds().Dy() != 3 {
			t.Errorf("bmp bounds = %v", decoded.Bounds())
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := DecodeImage(strings.NewReader("not an image")); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.png")
	var buf bytes.Buffer
	png.Encode(&buf, createTestImage(2, 2))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeFile(path); err != nil {
		t.Errorf("DecodeFile failed: %v", err)
	}
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPixelBytes(t *testing.T) {
	img := createTestImage(2, 2)
	expected := []int{
		0, 0, 200, 10, 0, 200,
		0, 10, 200, 10, 10, 200,
	}
	if got := PixelBytes(img); !reflect.DeepEqual(got, expected) {
		t.Errorf("PixelBytes = %v, expected %v", got, expected)
	}
}

func TestPixelBytesIgnoresAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
	img.Set(1, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	expected := []int{200, 100, 50, 200, 100, 50}
	if got := PixelBytes(img); !reflect.DeepEqual(got, expected) {
		t.Errorf("PixelBytes = %v, expected %v", got, expected)
	}

	x, err := ToTensor(img, 3, Normalization{})
	if err != nil {
		t.Fatalf("ToTensor failed: %v", err)
	}
	if x.At4(0, 0, 0) != x.At4(0, 0, 1) {
		t.Errorf("half-transparent pixel darkened: %f vs %f", x.At4(0, 0, 0), x.At4(0, 0, 1))
	}

	resized := Resize(img, 4, 1)
	if got := PixelBytes(resized)[:3]; !reflect.DeepEqual(got, []int{200, 100, 50}) {
		t.Errorf("resized half-transparent pixel = %v", got)
	}
}

func TestResize(t *testing.T) {
	img := createTestImage(4, 4)

	if Resize(img, 4, 4) != image.Image(img) {
		t.Error("same-size resize should return the input")
	}

	small := Resize(img, 2, 2)
	if small.Bounds().Dx() != 2 || small.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", small.Bounds())
	}
	// nearest neighbour picks source (2, 2) for target (1, 1)
	r, g, _ := rgb8(small.At(1, 1))
	if r != 20 || g != 20 {
		t.Errorf("pixel (1,1) = (%d, %d), expected (20, 20)", r, g)
	}
}

func TestToTensor(t *testing.T) {
	img := createTestImage(3, 2)

	t.Run("rgb unnormalized", func(t *testing.T) {
		tt, err := ToTensor(img, 3, Normalization{})
		if err != nil {
			t.Fatalf("ToTensor failed: %v", err)
		}
		if !reflect.DeepEqual(tt.Shape, []int{1, 3, 2, 3}) {
			t.Fatalf("shape = %v", tt.Shape)
		}
		if got := tt.At4(0, 0, 2); math.Abs(float64(got)-20.0/255.0) > 1e-6 {
			t.Errorf("R at (0,2) = %f", got)
		}
		if got := tt.At4(1, 1, 0); math.Abs(float64(got)-10.0/255.0) > 1e-6 {
			t.Errorf("G at (1,0) = %f", got)
		}
	})

	t.Run("cifar normalization", func(t *testing.T) {
		tt, err := ToTensor(img, 3, CIFARNormalization())
		if err != nil {
			t.Fatalf("ToTensor failed: %v", err)
		}
		// R = 0 maps to -1, B = 200 maps to 2*200/255 - 1
		if got := tt.At4(0, 0, 0); got != -1 {
			t.Errorf("R at origin = %f, expected -1", got)
		}
		want := 2*200.0/255.0 - 1
		if got := tt.At4(2, 0, 0); math.Abs(float64(got)-want) > 1e-5 {
			t.Errorf("B at origin = %f, expected %f", got, want)
		}
	})

	t.Run("grayscale", func(t *testing.T) {
		gray := image.NewGray(image.Rect(0, 0, 2, 1))
		gray.SetGray(1, 0, color.Gray{Y: 255})
		tt, err := ToTensor(gray, 1, Normalization{})
		if err != nil {
			t.Fatalf("ToTensor failed: %v", err)
		}
		if !reflect.DeepEqual(tt.Data, []float32{0, 1}) {
			t.Errorf("gray data = %v", tt.Data)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := ToTensor(img, 4, Normalization{}); err == nil {
			t.Error("expected error for 4 channels")
		}
		bad := Normalization{Mean: []float32{0.5}, Std: []float32{0.5}}
		if _, err := ToTensor(img, 3, bad); err == nil {
			t.Error("expected error for short normalization")
		}
		zero := Normalization{Mean: []float32{0, 0, 0}, Std: []float32{1, 0, 1}}
		if _, err := ToTensor(img, 3, zero); err == nil {
			t.Error("expected error for zero std")
		}
	})
}

func TestImageProcessor(t *testing.T) {
	processor, err := NewImageProcessor([]int{1, 3, 2, 2}, CIFARNormalization())
	if err != nil {
		t.Fatalf("NewImageProcessor failed: %v", err)
	}

	processed, err := processor.Process(createTestImage(4, 4))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processed.Width != 2 || processed.Height != 2 {
		t.Errorf("size = %dx%d, expected 2x2", processed.Width, processed.Height)
	}
	if len(processed.Pixels) != 12 {
		t.Errorf("pixel count = %d, expected 12", len(processed.Pixels))
	}
	if !reflect.DeepEqual(processed.Tensor.Shape, []int{1, 3, 2, 2}) {
		t.Errorf("tensor shape = %v", processed.Tensor.Shape)
	}

	if _, err := processor.Process(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("expected error for empty image")
	}
	if _, err := NewImageProcessor([]int{3, 32, 32}, Normalization{}); err == nil {
		t.Error("expected error for 3-D input shape")
	}
}
