package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tsawler/go-netviz/checkpoints"
	"github.com/tsawler/go-netviz/compute"
	"github.com/tsawler/go-netviz/director"
	"github.com/tsawler/go-netviz/layers"
	"github.com/tsawler/go-netviz/progress"
	"github.com/tsawler/go-netviz/protocol"
	"github.com/tsawler/go-netviz/vision/dataset"
)

const usage = `netviz streams a CNN forward pass to a 3D renderer.

Usage:
  netviz serve [flags]          wait for the renderer and stream a run
  netviz init-weights [flags]   write a freshly initialized checkpoint
  netviz summary [flags]        print the architecture of a checkpoint
  netviz schema                 print the JSON Schema of every message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "init-weights":
		err = runInitWeights(os.Args[2:])
	case "summary":
		err = runSummary(os.Args[2:])
	case "schema":
		err = runSchema()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	defaults := director.DefaultConfig()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file applied before flags")
	addr := fs.String("addr", defaults.Addr, "listen address")
	weights := fs.String("weights", defaults.WeightsPath, "weights artifact (.json or .onnx)")
	cifarDir := fs.String("cifar", "", "directory with CIFAR-10 binary batches")
	imagesDir := fs.String("images", "", "class-per-directory image folder")
	index := fs.Int("index", defaults.SampleIndex, "sample index, negative picks one at random")
	seed := fs.Int64("seed", 0, "seed for random sample selection")
	backendName := fs.String("backend", "gorgonia", "compute backend: gorgonia or cpu")
	pacingScale := fs.Float64("pacing-scale", 1, "multiply every pause by this factor")
	winnerCoords := fs.Bool("winner-coords", defaults.WinnerCoords, "include pooling arg-max coordinates")
	once := fs.Bool("once", defaults.Once, "exit after the first run")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	showProgress := fs.Bool("progress", false, "draw a progress bar per layer")
	fs.Parse(args)

	cfg := defaults
	if *configPath != "" {
		var err error
		if cfg, err = director.LoadConfig(*configPath); err != nil {
			return err
		}
	}

	// explicitly set flags win over the config file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "weights":
			cfg.WeightsPath = *weights
		case "index":
			cfg.SampleIndex = *index
		case "seed":
			cfg.Seed = *seed
		case "pacing-scale":
			cfg.Pacing = cfg.Pacing.Scale(*pacingScale)
		case "winner-coords":
			cfg.WinnerCoords = *winnerCoords
		case "once":
			cfg.Once = *once
		case "progress":
			cfg.ShowProgress = *showProgress
		}
	})
	if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend, err := compute.NewBackend(*backendName)
	if err != nil {
		return err
	}
	loader := compute.Loader{Backend: backend}
	models := director.ModelLoaderFunc(func(path string) (director.TensorSource, error) {
		m, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		return m, nil
	})

	samples, err := openSamples(*cifarDir, *imagesDir)
	if err != nil {
		return err
	}
	folder, isFolder := samples.(*dataset.ImageFolderDataset)
	if !cfg.Once {
		samples = dataset.NewCachedProvider(samples, 16)
	}

	fmt.Println("🧠 netviz visualization director")
	fmt.Printf("   Weights:  %s (%s backend)\n", cfg.WeightsPath, backend.Name())
	if isFolder {
		fmt.Printf("   Samples:  %s\n", folder.Describe())
	} else {
		fmt.Printf("   Samples:  %d (%s)\n", samples.Len(), strings.Join(samples.ClassNames(), ", "))
	}
	fmt.Printf("   Pacing:   topology %s, image %s, explanation %s, layer %s\n",
		cfg.Pacing.Topology, cfg.Pacing.Image, cfg.Pacing.Explanation, cfg.Pacing.Layer)
	fmt.Printf("📡 Waiting for the renderer on %s...\n", cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = director.New(cfg, models, samples).ListenAndServe(ctx)
	if errors.Is(err, director.ErrMissingArtifact) {
		return fmt.Errorf("%w\n   Create one with: netviz init-weights -out %s", err, cfg.WeightsPath)
	}
	if err != nil {
		return err
	}
	if cached, ok := samples.(*dataset.CachedProvider); ok {
		fmt.Printf("🗂  Sample cache: %s\n", cached.Stats())
	}
	fmt.Println("✅ Done")
	return nil
}

func openSamples(cifarDir, imagesDir string) (dataset.SampleProvider, error) {
	switch {
	case cifarDir != "" && imagesDir != "":
		return nil, fmt.Errorf("use either -cifar or -images, not both")
	case cifarDir != "":
		return dataset.NewCIFAR10Dataset(cifarDir, false)
	case imagesDir != "":
		return dataset.NewImageFolderDataset(imagesDir, nil)
	default:
		return nil, fmt.Errorf("no samples: pass -cifar or -images")
	}
}

func runInitWeights(args []string) error {
	fs := flag.NewFlagSet("init-weights", flag.ExitOnError)
	out := fs.String("out", director.DefaultConfig().WeightsPath, "output path (.json or .onnx)")
	seed := fs.Int64("seed", 1, "initialization seed")
	fs.Parse(args)

	spec, err := layers.CIFARFeatures()
	if err != nil {
		return err
	}
	fmt.Println("📋 Creating model architecture...")
	fmt.Print(spec.Summary())

	checkpoint, err := checkpoints.NewRandomCheckpoint(spec, *seed)
	if err != nil {
		return err
	}
	checkpoint.Metadata.Description = "He-initialized CIFAR-10 feature extractor"
	checkpoint.Metadata.Tags = []string{"cifar10", "untrained"}

	if err := checkpoints.Save(checkpoint, *out); err != nil {
		return err
	}
	fmt.Printf("💾 Saved %d weight tensors to %s (%s)\n", len(checkpoint.Weights), *out, checkpoints.FormatForPath(*out))
	return nil
}

func runSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	weights := fs.String("weights", director.DefaultConfig().WeightsPath, "weights artifact (.json or .onnx)")
	fs.Parse(args)

	checkpoint, err := checkpoints.Load(*weights)
	if err != nil {
		return err
	}
	progress.NewModelArchitecturePrinter("Features").PrintArchitecture(os.Stdout, checkpoint.ModelSpec)
	if m := checkpoint.Metadata; m.Description != "" {
		fmt.Printf("\n%s (%s %s)\n", m.Description, m.Framework, m.Version)
	}
	return nil
}

func runSchema() error {
	data, err := protocol.SchemaJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
