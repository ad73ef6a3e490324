package layers

// CIFARFeatures returns the two-block feature extractor the visualizer was
// built around: 32x32 RGB in, 16x8x8 out.
func CIFARFeatures() (*ModelSpec, error) {
	return NewModelBuilder([]int{1, 3, 32, 32}).
		AddConv2D(8, 3, 1, 1, true, "conv1").
		AddReLU("relu1").
		AddMaxPool2D(2, 2, "pool1").
		AddConv2D(16, 3, 1, 1, true, "conv2").
		AddReLU("relu2").
		AddMaxPool2D(2, 2, "pool2").
		Compile()
}
