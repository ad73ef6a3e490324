package director

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tsawler/go-netviz/vision/preprocessing"
)

// Pacing holds the pauses that give the renderer time to build and animate
// what it was just sent. There is no acknowledgement message, so these are
// blind delays.
type Pacing struct {
	Topology    time.Duration
	Image       time.Duration
	Explanation time.Duration
	Layer       time.Duration
}

// DefaultPacing returns the delays the renderer was tuned against.
func DefaultPacing() Pacing {
	return Pacing{
		Topology:    10 * time.Second,
		Image:       1500 * time.Millisecond,
		Explanation: 1 * time.Second,
		Layer:       2 * time.Second,
	}
}

// Scale multiplies every delay by f. Scale(0) disables pacing.
func (p Pacing) Scale(f float64) Pacing {
	scale := func(d time.Duration) time.Duration { return time.Duration(float64(d) * f) }
	return Pacing{
		Topology:    scale(p.Topology),
		Image:       scale(p.Image),
		Explanation: scale(p.Explanation),
		Layer:       scale(p.Layer),
	}
}

type pacingJSON struct {
	Topology    string `json:"topology,omitempty"`
	Image       string `json:"image,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Layer       string `json:"layer,omitempty"`
}

// MarshalJSON writes delays as duration strings ("1.5s").
func (p Pacing) MarshalJSON() ([]byte, error) {
	return json.Marshal(pacingJSON{
		Topology:    p.Topology.String(),
		Image:       p.Image.String(),
		Explanation: p.Explanation.String(),
		Layer:       p.Layer.String(),
	})
}

// UnmarshalJSON reads duration strings. Missing fields keep their value.
func (p *Pacing) UnmarshalJSON(data []byte) error {
	var raw pacingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"topology", raw.Topology, &p.Topology},
		{"image", raw.Image, &p.Image},
		{"explanation", raw.Explanation, &p.Explanation},
		{"layer", raw.Layer, &p.Layer},
	}
	for _, f := range fields {
		if f.in == "" {
			continue
		}
		d, err := time.ParseDuration(f.in)
		if err != nil {
			return fmt.Errorf("pacing %s: %w", f.name, err)
		}
		*f.out = d
	}
	return nil
}

// Config contains configuration for the director
type Config struct {
	Addr        string `json:"addr"`
	WeightsPath string `json:"weights_path"`

	// SampleIndex selects the dataset sample; negative picks one at random.
	SampleIndex int `json:"sample_index"`

	// Seed makes random sample selection reproducible; 0 seeds from the clock.
	Seed int64 `json:"seed"`

	Normalize    preprocessing.Normalization `json:"normalize"`
	Pacing       Pacing                      `json:"pacing"`
	WinnerCoords bool                        `json:"winner_coords"`

	// Once stops the listener after the first run.
	Once bool `json:"once"`

	ShowProgress bool `json:"show_progress"`

	Logger      *slog.Logger `json:"-"`
	LogLevel    slog.Level   `json:"-"` // Defaults to 0 (slog.LevelInfo)
	ProgressOut io.Writer    `json:"-"`
}

// DefaultConfig returns default configuration for the director
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:65432",
		WeightsPath:  "weights/features.json",
		SampleIndex:  -1,
		Normalize:    preprocessing.CIFARNormalization(),
		Pacing:       DefaultPacing(),
		WinnerCoords: true,
		Once:         true,
	}
}

// LoadConfig overlays the JSON file at path on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the config can start a server.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.WeightsPath == "" {
		return fmt.Errorf("weights path is empty")
	}
	p := c.Pacing
	if p.Topology < 0 || p.Image < 0 || p.Explanation < 0 || p.Layer < 0 {
		return fmt.Errorf("pacing delays must not be negative")
	}
	return nil
}
