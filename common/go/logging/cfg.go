package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the minimum level that gets emitted.
	Level zapcore.Level `yaml:"level"`
	// Encoding selects the output encoder. Defaults to "console".
	Encoding string `yaml:"encoding"`
}
