// Package dataset provides the sample images a visualization run starts
// from.
package dataset

import (
	"fmt"
	"image"
	"math/rand"
)

// SampleProvider yields labelled images by index.
type SampleProvider interface {
	Len() int
	Sample(index int) (image.Image, int, error)
	ClassNames() []string
}

// ClassName returns the name of label, or its number when the provider has
// no name for it.
func ClassName(p SampleProvider, label int) string {
	names := p.ClassNames()
	if label >= 0 && label < len(names) {
		return names[label]
	}
	return fmt.Sprintf("class %d", label)
}

// PickIndex returns index when it is non-negative and a uniformly random
// index otherwise.
func PickIndex(p SampleProvider, index int, rng *rand.Rand) (int, error) {
	n := p.Len()
	if n == 0 {
		return 0, fmt.Errorf("dataset is empty")
	}
	if index < 0 {
		if rng == nil {
			return rand.Intn(n), nil
		}
		return rng.Intn(n), nil
	}
	if index >= n {
		return 0, fmt.Errorf("sample index %d out of range [0, %d)", index, n)
	}
	return index, nil
}
