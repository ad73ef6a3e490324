package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
)

const (
	cifarSide       = 32
	cifarPlane      = cifarSide * cifarSide
	cifarRecordSize = 1 + 3*cifarPlane
)

var defaultCIFAR10Classes = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}

// CIFAR10Dataset reads the binary distribution of CIFAR-10: records of one
// label byte followed by 1024 red, 1024 green and 1024 blue bytes.
type CIFAR10Dataset struct {
	records    []byte
	count      int
	classNames []string
}

// NewCIFAR10Dataset loads test_batch.bin from dir, or data_batch_1..5.bin
// when train is set. Class names come from batches.meta.txt if present.
func NewCIFAR10Dataset(dir string, train bool) (*CIFAR10Dataset, error) {
	files := []string{"test_batch.bin"}
	if train {
		files = []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin"}
	}

	var paths []string
	for _, f := range files {
		path := filepath.Join(dir, f)
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CIFAR-10 batch files in %s: %w", dir, os.ErrNotExist)
	}

	d, err := LoadCIFAR10Batches(paths...)
	if err != nil {
		return nil, err
	}

	names, err := readClassNames(filepath.Join(dir, "batches.meta.txt"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if len(names) > 0 {
		d.classNames = names
	}
	return d, nil
}

// LoadCIFAR10Batches reads the given batch files in order.
func LoadCIFAR10Batches(paths ...string) (*CIFAR10Dataset, error) {
	d := &CIFAR10Dataset{classNames: defaultCIFAR10Classes}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CIFAR-10 batch: %w", err)
		}
		if len(data)%cifarRecordSize != 0 {
			return nil, fmt.Errorf("%s: size %d is not a multiple of the %d-byte record", path, len(data), cifarRecordSize)
		}
		d.records = append(d.records, data...)
	}
	d.count = len(d.records) / cifarRecordSize
	return d, nil
}

func readClassNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	return names, scanner.Err()
}

func (d *CIFAR10Dataset) Len() int { return d.count }

func (d *CIFAR10Dataset) ClassNames() []string { return d.classNames }

// Sample returns record index as a 32x32 RGBA image.
func (d *CIFAR10Dataset) Sample(index int) (image.Image, int, error) {
	if index < 0 || index >= d.count {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", index, d.count)
	}

	record := d.records[index*cifarRecordSize : (index+1)*cifarRecordSize]
	label := int(record[0])
	if label >= len(d.classNames) {
		return nil, 0, fmt.Errorf("record %d has label %d, only %d classes", index, label, len(d.classNames))
	}

	planes := record[1:]
	img := image.NewRGBA(image.Rect(0, 0, cifarSide, cifarSide))
	for y := 0; y < cifarSide; y++ {
		for x := 0; x < cifarSide; x++ {
			i := y*cifarSide + x
			img.SetRGBA(x, y, color.RGBA{
				R: planes[i],
				G: planes[cifarPlane+i],
				B: planes[2*cifarPlane+i],
				A: 255,
			})
		}
	}
	return img, label, nil
}
