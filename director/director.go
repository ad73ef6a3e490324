// Package director drives one visualization run: it loads the model, picks a
// sample, announces the topology and then streams every layer's trace to the
// connected renderer at a pace the renderer can animate.
package director

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/progress"
	"github.com/tsawler/go-netviz/protocol"
	"github.com/tsawler/go-netviz/tensor"
	"github.com/tsawler/go-netviz/trace"
	"github.com/tsawler/go-netviz/vision/dataset"
	"github.com/tsawler/go-netviz/vision/preprocessing"
)

var (
	// ErrMissingArtifact means the weights file does not exist.
	ErrMissingArtifact = errors.New("weights artifact not found")
	// ErrMalformedSample means the chosen sample could not be decoded or
	// preprocessed.
	ErrMalformedSample = errors.New("malformed sample")

	// ErrPeerDisconnected is protocol.ErrPeerDisconnected.
	ErrPeerDisconnected = protocol.ErrPeerDisconnected
)

// TensorSource computes layer outputs.
type TensorSource interface {
	NumLayers() int
	Layer(i int) layers.LayerSpec
	InputShape() []int
	Apply(i int, in *tensor.Tensor) (*tensor.Tensor, error)
}

// ModelLoader opens the weights artifact at path. A missing artifact must
// be reported with an error matching os.ErrNotExist.
type ModelLoader interface {
	Load(path string) (TensorSource, error)
}

// ModelLoaderFunc adapts a plain function to ModelLoader.
type ModelLoaderFunc func(path string) (TensorSource, error)

func (f ModelLoaderFunc) Load(path string) (TensorSource, error) { return f(path) }

// State is the phase a run is in.
type State int

const (
	Idle State = iota
	Listening
	Connected
	TopologySent
	ImageSent
	Explaining
	Streaming
	Advancing
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case TopologySent:
		return "topology_sent"
	case ImageSent:
		return "image_sent"
	case Explaining:
		return "explaining"
	case Streaming:
		return "streaming"
	case Advancing:
		return "advancing"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Report describes how a run ended.
type Report struct {
	State           State
	SampleIndex     int
	Label           int
	ClassName       string
	LayersCompleted int
	StepsSent       int
	Stats           protocol.Stats
	Duration        time.Duration
}

func (r *Report) String() string {
	return fmt.Sprintf("%s after %d layers, %d steps, sample %d (%s), %s in %s",
		r.State, r.LayersCompleted, r.StepsSent, r.SampleIndex, r.ClassName, r.Stats, r.Duration.Round(time.Millisecond))
}

// Director runs visualizations. Runs are strictly sequential.
type Director struct {
	cfg     Config
	models  ModelLoader
	samples dataset.SampleProvider
	logger  *slog.Logger
	rng     *rand.Rand

	mu    sync.Mutex
	state State
}

// New creates a Director. A nil cfg.Logger logs text to stderr and a zero
// cfg.Seed seeds sample selection from the clock.
func New(cfg Config, models ModelLoader, samples dataset.SampleProvider) *Director {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.LogLevel,
		}))
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.ProgressOut == nil {
		cfg.ProgressOut = os.Stderr
	}
	return &Director{
		cfg:     cfg,
		models:  models,
		samples: samples,
		logger:  logger,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// State returns the state of the current or last run.
func (d *Director) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Director) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.logger.Debug("state", "state", s)
}

// Topology folds a copy of input through every layer and describes each
// output.
func Topology(src TensorSource, input *tensor.Tensor) ([]protocol.LayerDescriptor, error) {
	descriptors := make([]protocol.LayerDescriptor, 0, src.NumLayers())
	x := input.Clone()
	for i := 0; i < src.NumLayers(); i++ {
		out, err := src.Apply(i, x)
		if err != nil {
			return nil, err
		}
		layer := src.Layer(i)
		descriptors = append(descriptors, protocol.LayerDescriptor{
			Name:        trace.NewLayerInfo(i, layer).Name,
			Type:        layer.Type.WireName(),
			OutputShape: append([]int(nil), out.Shape...),
			Details:     layer.Details(),
		})
		x = out
	}
	return descriptors, nil
}

// Run performs one complete visualization over w. Any error ends the run;
// nothing is retried and no completion message follows a failure.
func (d *Director) Run(ctx context.Context, w io.Writer) (*Report, error) {
	start := time.Now()
	report := &Report{SampleIndex: -1, Label: -1}
	session := protocol.NewSession(w)
	d.setState(Connected)

	err := d.run(ctx, session, report)

	report.Stats = session.Stats()
	report.Duration = time.Since(start)
	if err != nil {
		report.State = Aborted
		d.setState(Aborted)
		return report, err
	}
	report.State = Completed
	d.setState(Completed)
	return report, nil
}

func (d *Director) run(ctx context.Context, session *protocol.Session, report *Report) error {
	model, err := d.models.Load(d.cfg.WeightsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrMissingArtifact, err)
		}
		return fmt.Errorf("failed to load model: %w", err)
	}
	if model.NumLayers() == 0 {
		return fmt.Errorf("model has no layers")
	}

	sample, err := d.prepareSample(model, report)
	if err != nil {
		return err
	}

	topology, err := Topology(model, sample.Tensor)
	if err != nil {
		return fmt.Errorf("failed to compute topology: %w", err)
	}
	if err := session.SendTopology(topology); err != nil {
		return err
	}
	d.setState(TopologySent)
	d.logger.Info("topology sent", "layers", len(topology))
	if err := sleep(ctx, d.cfg.Pacing.Topology); err != nil {
		return err
	}

	err = session.SendInputImage(protocol.InputImage{
		Pixels: sample.Pixels,
		Width:  sample.Width,
		Height: sample.Height,
	})
	if err != nil {
		return err
	}
	d.setState(ImageSent)
	if err := sleep(ctx, d.cfg.Pacing.Image); err != nil {
		return err
	}

	running := sample.Tensor
	for i := 0; i < model.NumLayers(); i++ {
		out, err := d.streamLayer(ctx, session, model, i, running, report)
		if err != nil {
			return err
		}
		running = out
		report.LayersCompleted++
	}

	if err := session.SendComplete(); err != nil {
		return err
	}
	d.logger.Info("visualization complete", "steps", report.StepsSent, "messages", session.Stats().Messages)
	return nil
}

func (d *Director) prepareSample(model TensorSource, report *Report) (*preprocessing.ProcessedImage, error) {
	index, err := dataset.PickIndex(d.samples, d.cfg.SampleIndex, d.rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSample, err)
	}
	img, label, err := d.samples.Sample(index)
	if err != nil {
		return nil, fmt.Errorf("%w: sample %d: %w", ErrMalformedSample, index, err)
	}

	processor, err := preprocessing.NewImageProcessor(model.InputShape(), d.cfg.Normalize)
	if err != nil {
		return nil, err
	}
	processed, err := processor.Process(img)
	if err != nil {
		return nil, fmt.Errorf("%w: sample %d: %w", ErrMalformedSample, index, err)
	}

	report.SampleIndex = index
	report.Label = label
	report.ClassName = dataset.ClassName(d.samples, label)
	d.logger.Info("sample selected", "index", index, "class", report.ClassName)
	if d.logger.Enabled(context.Background(), slog.LevelDebug) {
		d.logger.Debug("input tensor", "tensor", processed.Tensor.PrintData(8))
	}
	return processed, nil
}

// streamLayer sends one layer: its explanation, every trace step and the
// trailing pause. It returns the layer output.
func (d *Director) streamLayer(ctx context.Context, session *protocol.Session, model TensorSource, i int, in *tensor.Tensor, report *Report) (*tensor.Tensor, error) {
	layer := model.Layer(i)
	info := trace.NewLayerInfo(i, layer)
	logger := d.logger.With("layer", info.Name, "kind", layer.Type.WireName())

	if explanation, ok := ExplanationFor(layer.Type); ok {
		d.setState(Explaining)
		if err := session.SendExplanation(explanation); err != nil {
			return nil, err
		}
		if err := sleep(ctx, d.cfg.Pacing.Explanation); err != nil {
			return nil, err
		}
	}

	out, err := model.Apply(i, in)
	if err != nil {
		return nil, err
	}

	d.setState(Streaming)
	total := trace.StepCount(info, out)
	logger.Info("streaming layer", "steps", total)

	var bar *progress.ProgressBar
	if d.cfg.ShowProgress {
		bar = progress.NewProgressBar(d.cfg.ProgressOut, fmt.Sprintf("Layer %s (%s)", info.Name, layer.Type.WireName()), total).WithUnit("msg")
	}

	opts := trace.Options{WinnerCoords: d.cfg.WinnerCoords}
	err = trace.Walk(info, in, out, opts, func(step trace.Step) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := session.SendStep(step); err != nil {
			return err
		}
		report.StepsSent++
		if bar != nil {
			bar.Increment()
		}
		return nil
	})
	if err != nil {
		logger.Warn("layer aborted", "sent", report.StepsSent, "error", err)
		return nil, err
	}
	if bar != nil {
		bar.Finish()
	}

	d.setState(Advancing)
	if err := sleep(ctx, d.cfg.Pacing.Layer); err != nil {
		return nil, err
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
