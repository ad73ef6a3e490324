// Package progress renders PyTorch-style progress lines and model
// architecture listings on a terminal.
package progress

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tsawler/go-netviz/layers"
)

// ProgressBar provides PyTorch-style progress visualization
type ProgressBar struct {
	out         io.Writer
	description string
	unit        string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
	now         func() time.Time
}

// NewProgressBar creates a progress bar that draws on out
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		unit:        "step",
		total:       total,
		startTime:   time.Now(),
		width:       40,
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
		now:         time.Now,
	}
}

// WithUnit sets the rate unit, e.g. "msg".
func (pb *ProgressBar) WithUnit(unit string) *ProgressBar {
	pb.unit = unit
	return pb
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Increment advances by one step.
func (pb *ProgressBar) Increment() {
	pb.current++
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	fmt.Fprint(pb.out, pb.Line())
}

// Line returns the current progress line, starting with a carriage return
// so it overwrites the previous one.
func (pb *ProgressBar) Line() string {
	percentage := 1.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := pb.now().Sub(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 && elapsed > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			eta = time.Duration(float64(elapsed)/percentage) - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d",
		pb.description, percentage*100, bar, pb.current, pb.total)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s", formatDuration(elapsed), formatDuration(eta))
	} else {
		line += fmt.Sprintf(" [%s<00:00", formatDuration(elapsed))
	}

	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2f%s/s", rate, pb.unit)
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		line += fmt.Sprintf(", %s=%.3f", key, pb.metrics[key])
	}

	return line + "]"
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// ModelArchitecturePrinter prints PyTorch-style model architecture
type ModelArchitecturePrinter struct {
	modelName string
}

func NewModelArchitecturePrinter(modelName string) *ModelArchitecturePrinter {
	return &ModelArchitecturePrinter{modelName: modelName}
}

// PrintArchitecture prints the layers the way PyTorch prints a Sequential,
// keyed by the index the layer is streamed under.
func (p *ModelArchitecturePrinter) PrintArchitecture(w io.Writer, modelSpec *layers.ModelSpec) {
	fmt.Fprintf(w, "Model Architecture:\n")
	fmt.Fprintf(w, "%s(\n", p.modelName)
	for i, layer := range modelSpec.Layers {
		fmt.Fprintf(w, "  (%d): %s  -> %v\n", i, layer.Details(), layer.OutputShape)
	}
	fmt.Fprintf(w, ")\n\n")

	fmt.Fprintf(w, "Total parameters: %s\n", formatParameterCount(modelSpec.TotalParameters))
	fmt.Fprintf(w, "Input size (MB): %.3f\n", tensorSizeMB(modelSpec.InputShape))
	fmt.Fprintf(w, "Activations size (MB): %.3f\n", activationsSizeMB(modelSpec))
	fmt.Fprintf(w, "Params size (MB): %.3f\n", float64(modelSpec.TotalParameters*4)/1024/1024)
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}

func tensorSizeMB(shape []int) float64 {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return float64(size*4) / 1024 / 1024 // 4 bytes per float32
}

// activationsSizeMB is the memory held by every layer output at once,
// which is what a full visualization run keeps around at worst.
func activationsSizeMB(modelSpec *layers.ModelSpec) float64 {
	total := 0.0
	for _, layer := range modelSpec.Layers {
		total += tensorSizeMB(layer.OutputShape)
	}
	return total
}
