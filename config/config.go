// Package config holds the environment driven configuration of the simulator logger plugin.
package config

import (
	"os"

	"github.com/a8m/envsubst/parse"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"

	"go.viam.com/simlogger/logging"
)

const (
	// WorkspaceDirEnvVar points at the workspace whose logs directory receives the CSV files.
	WorkspaceDirEnvVar = "NAAD_WS_DIR"
	// LatestRunEnvVar, when present in the environment, makes the plugin write into the most
	// recently modified run directory under the logs directory instead of a timestamped file.
	LatestRunEnvVar = "NAAD_CONFIG_LOGS"

	// DefaultSampleEvery is the number of primary ticks between two samples.
	DefaultSampleEvery = 50
	// DefaultCollisionTarget is the scene object collisions are counted for.
	DefaultCollisionTarget = "MiR100"
)

// Config is the plugin configuration.
type Config struct {
	WorkspaceDir string `env:"NAAD_WS_DIR"`
	// LatestRun is true when LatestRunEnvVar is present, whatever its value.
	LatestRun bool
	// OutputDir overrides the directory CSV files are written to. ${VAR} references are expanded.
	OutputDir       string `env:"SIMLOGGER_OUTPUT_DIR"`
	SampleEvery     int    `env:"SIMLOGGER_SAMPLE_EVERY" envDefault:"50"`
	CollisionTarget string `env:"SIMLOGGER_COLLISION_TARGET" envDefault:"MiR100"`
	// LogFile, when set, also writes plugin logs to a rotated file.
	LogFile  string        `env:"SIMLOGGER_LOG_FILE"`
	LogLevel logging.Level `env:"SIMLOGGER_LOG_LEVEL" envDefault:"info"`
}

// Default returns a config with every default applied and no workspace.
func Default() Config {
	return Config{
		SampleEvery:     DefaultSampleEvery,
		CollisionTarget: DefaultCollisionTarget,
		LogLevel:        logging.INFO,
	}
}

// FromEnv reads the config from the process environment.
func FromEnv() (Config, error) {
	return FromEnvironment(env.ToMap(os.Environ()))
}

// FromEnvironment reads the config from the given environment.
func FromEnvironment(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	_, cfg.LatestRun = environ[LatestRunEnvVar]

	if cfg.OutputDir != "" {
		expanded, err := expand(cfg.OutputDir, environ)
		if err != nil {
			return Config{}, errors.Wrapf(err, "expanding SIMLOGGER_OUTPUT_DIR %q", cfg.OutputDir)
		}
		cfg.OutputDir = expanded
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns an error if the config cannot drive a logging session.
func (cfg Config) Validate() error {
	if cfg.SampleEvery < 1 {
		return errors.Errorf("sample interval must be at least 1 tick, got %d", cfg.SampleEvery)
	}
	return nil
}

// expand substitutes ${VAR} references in s with values from environ.
func expand(s string, environ map[string]string) (string, error) {
	pairs := make([]string, 0, len(environ))
	for k, v := range environ {
		pairs = append(pairs, k+"="+v)
	}
	return parse.New("config", pairs, parse.Relaxed).Parse(s)
}
