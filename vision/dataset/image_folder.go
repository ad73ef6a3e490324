package dataset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsawler/go-netviz/vision/preprocessing"
)

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp"}

// ImageFolderDataset serves images laid out as root/<class>/<file>. Classes
// are labelled in directory name order.
type ImageFolderDataset struct {
	root    string
	paths   []string
	labels  []int
	classes []string
	counts  []int
}

// NewImageFolderDataset scans root for class directories. Files are matched
// on extension, case-insensitively; hidden entries are skipped.
func NewImageFolderDataset(root string, extensions []string) (*ImageFolderDataset, error) {
	if len(extensions) == 0 {
		extensions = defaultImageExtensions
	}
	accept := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		accept[strings.ToLower(ext)] = true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	d := &ImageFolderDataset{root: root}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list class %s: %w", entry.Name(), err)
		}

		label := len(d.classes)
		d.classes = append(d.classes, entry.Name())
		d.counts = append(d.counts, 0)
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") || !accept[strings.ToLower(filepath.Ext(name))] {
				continue
			}
			d.paths = append(d.paths, filepath.Join(root, entry.Name(), name))
			d.labels = append(d.labels, label)
			d.counts[label]++
		}
	}

	if len(d.paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}
	return d, nil
}

func (d *ImageFolderDataset) Len() int {
	return len(d.paths)
}

// Path returns the file and label of sample index.
func (d *ImageFolderDataset) Path(index int) (string, int, error) {
	if index < 0 || index >= len(d.paths) {
		return "", 0, fmt.Errorf("index %d out of range [0, %d)", index, len(d.paths))
	}
	return d.paths[index], d.labels[index], nil
}

// Sample decodes the image at index.
func (d *ImageFolderDataset) Sample(index int) (image.Image, int, error) {
	path, label, err := d.Path(index)
	if err != nil {
		return nil, 0, err
	}
	img, err := preprocessing.DecodeFile(path)
	if err != nil {
		return nil, 0, err
	}
	return img, label, nil
}

func (d *ImageFolderDataset) ClassNames() []string {
	return d.classes
}

// ClassCounts returns the number of samples per label. Empty class
// directories still take a label and count zero.
func (d *ImageFolderDataset) ClassCounts() []int {
	return append([]int(nil), d.counts...)
}

// Describe summarizes the folder for a startup banner, largest classes
// first.
func (d *ImageFolderDataset) Describe() string {
	order := make([]int, len(d.classes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return d.counts[order[a]] > d.counts[order[b]] })

	parts := make([]string, 0, len(order))
	for _, label := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", d.classes[label], d.counts[label]))
	}
	return fmt.Sprintf("%s: %d images in %d classes (%s)", d.root, len(d.paths), len(d.classes), strings.Join(parts, ", "))
}
