package director

import (
	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/protocol"
)

var explanations = map[layers.LayerType]protocol.Explanation{
	layers.Conv2D: {
		Title: "Convolution",
		Text: "Each filter slides over the previous layer. At every position it multiplies the " +
			"window by its weights and sums the result into one output cell, so each output " +
			"channel is a map of where that filter's pattern appears.",
	},
	layers.ReLU: {
		Title: "ReLU Activation",
		Text: "Every negative value is replaced by zero and positive values pass through " +
			"unchanged. Only the features a filter actually found stay lit.",
	},
	layers.MaxPool2D: {
		Title: "Max Pooling",
		Text: "A small window moves across each channel and keeps only its largest value. " +
			"The map shrinks while the strongest responses survive.",
	},
}

// ExplanationFor returns the text shown before a layer of kind t streams.
func ExplanationFor(t layers.LayerType) (protocol.Explanation, bool) {
	e, ok := explanations[t]
	return e, ok
}
