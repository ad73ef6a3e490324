package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tsawler/go-netviz/layers"
)

// ErrNotFound is returned when the weights artifact does not exist.
// It wraps os.ErrNotExist.
var ErrNotFound = fmt.Errorf("checkpoint not found: %w", os.ErrNotExist)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatONNX
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatONNX:
		return "ONNX"
	default:
		return "Unknown"
	}
}

// FormatForPath picks the format from the file extension; anything that is
// not .onnx is read as JSON.
func FormatForPath(path string) CheckpointFormat {
	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		return FormatONNX
	}
	return FormatJSON
}

// Checkpoint represents a trained feature stack: architecture plus weights.
type Checkpoint struct {
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// WeightName is the parameter naming convention shared by both formats.
func WeightName(layer, kind string) string {
	return fmt.Sprintf("%s.%s", layer, kind)
}

// Lookup returns the named weight tensor.
func (c *Checkpoint) Lookup(name string) (WeightTensor, bool) {
	for _, w := range c.Weights {
		if w.Name == name {
			return w, true
		}
	}
	return WeightTensor{}, false
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// Load reads a checkpoint, choosing the format from the path. A missing file
// yields an error matching ErrNotFound.
func Load(path string) (*Checkpoint, error) {
	return NewCheckpointSaver(FormatForPath(path)).LoadCheckpoint(path)
}

// Save writes a checkpoint, choosing the format from the path.
func Save(checkpoint *Checkpoint, path string) error {
	return NewCheckpointSaver(FormatForPath(path)).SaveCheckpoint(checkpoint, path)
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil || checkpoint.ModelSpec == nil {
		return fmt.Errorf("checkpoint has no model spec")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatONNX:
		return cs.saveONNX(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a model checkpoint and recompiles its spec so that
// shapes are derived rather than trusted.
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	var (
		checkpoint *Checkpoint
		err        error
	)
	switch cs.format {
	case FormatJSON:
		checkpoint, err = cs.loadJSON(path)
	case FormatONNX:
		checkpoint, err = cs.loadONNX(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
	if err != nil {
		return nil, err
	}
	if checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint %s has no model spec", path)
	}

	compiled, err := checkpoint.ModelSpec.Recompile()
	if err != nil {
		return nil, fmt.Errorf("invalid model spec in %s: %w", path, err)
	}
	checkpoint.ModelSpec = compiled
	return checkpoint, nil
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-netviz"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return &checkpoint, nil
}

// saveONNX saves checkpoint in ONNX format
func (cs *CheckpointSaver) saveONNX(checkpoint *Checkpoint, path string) error {
	exporter := NewONNXExporter()
	return exporter.ExportToONNX(checkpoint, path)
}

// loadONNX loads checkpoint from ONNX format
func (cs *CheckpointSaver) loadONNX(path string) (*Checkpoint, error) {
	importer := NewONNXImporter()
	return importer.ImportFromONNX(path)
}

// NewRandomCheckpoint creates He-initialized weights with zero biases for a
// compiled spec. It stands in for a training run when only the
// visualization matters.
func NewRandomCheckpoint(spec *layers.ModelSpec, seed int64) (*Checkpoint, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}

	rng := rand.New(rand.NewSource(seed))
	checkpoint := &Checkpoint{
		ModelSpec: spec,
		Metadata: CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "go-netviz",
			CreatedAt:   time.Now(),
			Description: fmt.Sprintf("random He initialization (seed %d)", seed),
		},
	}

	for _, layer := range spec.Layers {
		if layer.Type != layers.Conv2D {
			continue
		}

		inC, outC, k := layer.InputChannels(), layer.OutputChannels(), layer.KernelSize()
		fanIn := inC * k * k
		stddev := float32(math.Sqrt(2.0 / float64(fanIn)))

		kernel := make([]float32, outC*fanIn)
		for i := range kernel {
			kernel[i] = float32(rng.NormFloat64()) * stddev
		}
		checkpoint.Weights = append(checkpoint.Weights, WeightTensor{
			Name:  WeightName(layer.Name, "weight"),
			Shape: []int{outC, inC, k, k},
			Data:  kernel,
			Layer: layer.Name,
			Type:  "weight",
		})

		if layer.UseBias() {
			checkpoint.Weights = append(checkpoint.Weights, WeightTensor{
				Name:  WeightName(layer.Name, "bias"),
				Shape: []int{outC},
				Data:  make([]float32, outC),
				Layer: layer.Name,
				Type:  "bias",
			})
		}
	}

	return checkpoint, nil
}
