package main

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/bytering-platform/bytering/common/go/logging"
)

// Config is the streaming configuration.
type Config struct {
	// Capacity is the channel buffer capacity.
	Capacity datasize.ByteSize `yaml:"capacity"`
	// FrameSize is the size of each produced frame.
	FrameSize datasize.ByteSize `yaml:"frame_size"`
	// FrameInterval is the pacing between produced frames. Zero produces
	// as fast as backpressure allows.
	FrameInterval time.Duration `yaml:"frame_interval"`
	// Output is the path the drained stream is written to.
	Output string `yaml:"output"`
	// Logging configures the logging subsystem.
	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns the configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Capacity:      64 * datasize.KB,
		FrameSize:     4 * datasize.KB,
		FrameInterval: 0,
		Output:        "stream.out",
		Logging: logging.Config{
			Level: zapcore.InfoLevel,
		},
	}
}

// LoadConfig reads the configuration from the given path, applying defaults
// for unset fields. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
