// Package config loads the optional pulse.yaml next to a project's go.mod.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/go-drift/pulse/pkg/engine"
	"github.com/go-drift/pulse/pkg/logging"
)

// FileName is the configuration file looked up in the project root.
const FileName = "pulse.yaml"

// Config represents the optional pulse.yaml configuration.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
}

// AppConfig contains application metadata.
type AppConfig struct {
	Name string `yaml:"name,omitempty"`
}

// EngineConfig contains engine settings. Zero values take the engine
// defaults.
type EngineConfig struct {
	Version      string `yaml:"version,omitempty"`
	Workers      int    `yaml:"workers,omitempty"`
	QueueDepth   int    `yaml:"queue_depth,omitempty"`
	TickPeriod   string `yaml:"tick_period,omitempty"`
	TraceSamples *int   `yaml:"trace_samples,omitempty"`
	Debug        bool   `yaml:"debug,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Resolved contains resolved configuration values.
type Resolved struct {
	Root          string
	ModulePath    string
	AppName       string
	EngineVersion string
	Engine        engine.Config
	LogLevel      logiface.Level
}

// LoadOptional reads pulse.yaml if present.
func LoadOptional(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	return Parse(data)
}

// Parse decodes pulse.yaml content. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Resolve loads pulse.yaml (if present) from dir and resolves defaults.
// dir must contain a go.mod.
func Resolve(dir string) (*Resolved, error) {
	modulePath, err := modulePath(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	return cfg.resolve(dir, modulePath)
}

// ResolveStandalone is Resolve for a directory outside any module. The
// module path is left empty.
func ResolveStandalone(dir string) (*Resolved, error) {
	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	return cfg.resolve(dir, "")
}

func (cfg *Config) resolve(dir, modulePath string) (*Resolved, error) {
	appName := strings.TrimSpace(cfg.App.Name)
	if appName == "" {
		appName = defaultAppName(modulePath, dir)
	}

	engineVersion := strings.TrimSpace(cfg.Engine.Version)
	if engineVersion == "" {
		engineVersion = "latest"
	}
	if err := validateVersion(engineVersion); err != nil {
		return nil, err
	}

	ec, err := cfg.Engine.engineConfig()
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	return &Resolved{
		Root:          dir,
		ModulePath:    modulePath,
		AppName:       appName,
		EngineVersion: engineVersion,
		Engine:        ec,
		LogLevel:      level,
	}, nil
}

func (c EngineConfig) engineConfig() (engine.Config, error) {
	ec := engine.DefaultConfig()
	if c.Workers != 0 {
		ec.Workers = c.Workers
	}
	if c.QueueDepth != 0 {
		ec.QueueDepth = c.QueueDepth
	}
	if p := strings.TrimSpace(c.TickPeriod); p != "" {
		d, err := time.ParseDuration(p)
		if err != nil {
			return ec, fmt.Errorf("engine.tick_period: %w", err)
		}
		ec.TickPeriod = d
	}
	if c.TraceSamples != nil {
		ec.TraceSamples = *c.TraceSamples
	}
	ec.Debug = c.Debug
	if err := ec.Validate(); err != nil {
		return ec, err
	}
	return ec, nil
}

// FindProjectRoot walks up from the current directory to find go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindProjectRootFrom(dir)
}

// FindProjectRootFrom walks up from dir to find go.mod.
func FindProjectRootFrom(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoModule
		}
		dir = parent
	}
}

// ErrNoModule is returned when no go.mod is found.
var ErrNoModule = errors.New("not in a Go module (no go.mod found)")

func modulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("could not determine module path from go.mod")
	}
	return path, nil
}

func defaultAppName(modulePath, dir string) string {
	base := filepath.Base(dir)
	if modulePath != "" {
		modName, _, ok := module.SplitPathVersion(modulePath)
		if ok {
			parts := strings.Split(modName, "/")
			base = parts[len(parts)-1]
		}
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "pulse_app"
	}
	return base
}

func validateVersion(v string) error {
	if v == "latest" {
		return nil
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("engine.version must be \"latest\" or a semantic version like v1.2.3 (got %q)", v)
	}
	if semver.Build(v) != "" {
		return fmt.Errorf("engine.version cannot carry build metadata (got %q)", v)
	}
	return nil
}
