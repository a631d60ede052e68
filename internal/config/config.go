// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names accepted by inference.backend.
const (
	BackendLlamaCpp = "llamacpp"
	BackendOllama   = "ollama"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete localchat configuration.
type Config struct {
	Model     ModelConfig     `toml:"model"`
	Inference InferenceConfig `toml:"inference"`
	LlamaCpp  LlamaCppConfig  `toml:"llamacpp"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Log       LogConfig       `toml:"log"`
	UI        UIConfig        `toml:"ui"`

	// envErrs holds environment overrides that could not be parsed;
	// Validate reports them.
	envErrs ValidateErrors
}

// ModelConfig locates the model artifact.
type ModelConfig struct {
	// Path is the GGUF file loaded by the llama.cpp backend (read-only).
	Path string `toml:"path"`
	// Name is the model tag used by the Ollama backend.
	Name string `toml:"name"`
}

// InferenceConfig holds the parameters handed to the inference session.
type InferenceConfig struct {
	// Backend selects the session implementation: "llamacpp" or "ollama".
	Backend string `toml:"backend"`
	// ContextSize is the context-window token budget.
	ContextSize int `toml:"context_size"`
	// BatchSize is the logical batch size for prompt processing.
	BatchSize int `toml:"batch_size"`
	// MicroBatchSize is the physical batch size for prompt processing.
	MicroBatchSize int `toml:"micro_batch_size"`
	// Temperature is the sampling temperature.
	Temperature float64 `toml:"temperature"`
	// GPULayers is the number of layers offloaded to the GPU; -1 means all.
	GPULayers int `toml:"gpu_layers"`
	// Verbose enables debug output from the backend and debug logging.
	Verbose bool `toml:"verbose"`
	// Timeout bounds a single completion; zero means no timeout.
	Timeout Duration `toml:"timeout"`
}

// LlamaCppConfig controls the llama-server child process.
type LlamaCppConfig struct {
	// ServerPath is the llama-server executable; empty means search PATH.
	ServerPath string `toml:"server_path"`
	// Host is the loopback address the server binds.
	Host string `toml:"host"`
	// Port is the listen port; zero picks a free port.
	Port int `toml:"port"`
	// StartupTimeout bounds model loading.
	StartupTimeout Duration `toml:"startup_timeout"`
	// ShutdownGrace is how long Close waits before killing the server.
	ShutdownGrace Duration `toml:"shutdown_grace"`
	// ExtraArgs are appended verbatim to the server command line.
	ExtraArgs []string `toml:"extra_args"`
}

// OllamaConfig controls the Ollama backend.
type OllamaConfig struct {
	URL string `toml:"url"`
	// AutoStart runs `ollama serve` when no server answers.
	AutoStart bool `toml:"auto_start"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	// Path is the log file; "-" logs to stderr.
	Path string `toml:"path"`
	// Level is one of debug, info, warn, error. Empty follows inference.verbose.
	Level string `toml:"level"`
}

// UIConfig controls the chat window.
type UIConfig struct {
	Title string `toml:"title"`
	// Markdown renders the display through glamour.
	Markdown bool `toml:"markdown"`
	// AltScreen runs the window in the alternate screen buffer.
	AltScreen bool `toml:"alt_screen"`
	// Mouse enables click and wheel handling.
	Mouse bool `toml:"mouse"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path: "Dolphin3.0-Llama3.1-8B_Q5_K_M.gguf",
			Name: "dolphin3:8b",
		},
		Inference: InferenceConfig{
			Backend:        BackendLlamaCpp,
			ContextSize:    2048,
			BatchSize:      1024,
			MicroBatchSize: 1024,
			Temperature:    0.4,
			GPULayers:      -1,
			Verbose:        true,
		},
		LlamaCpp: LlamaCppConfig{
			Host:           "127.0.0.1",
			StartupTimeout: Duration{2 * time.Minute},
			ShutdownGrace:  Duration{5 * time.Second},
		},
		Ollama: OllamaConfig{
			URL:       "http://127.0.0.1:11434",
			AutoStart: true,
		},
		UI: UIConfig{
			Title:     "Custom LLM Assistant",
			AltScreen: true,
			Mouse:     true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the localchat configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".localchat"), nil
}

// DefaultPath returns ~/.localchat/config.toml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LogPath returns the log file path, resolving the default location.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "localchat.log"), nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load builds the configuration. An explicit path must exist; with an empty
// path the default file is read when present. Environment overrides are
// applied last and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Inference.Backend = strings.ToLower(strings.TrimSpace(cfg.Inference.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies LOCALCHAT_* environment variables:
//   - LOCALCHAT_BACKEND: overrides inference.backend
//   - LOCALCHAT_MODEL: overrides the model of the selected backend (see SetModel)
//   - LOCALCHAT_GPU_LAYERS: overrides inference.gpu_layers
//   - LOCALCHAT_LLAMA_SERVER: overrides llamacpp.server_path
//   - LOCALCHAT_OLLAMA_URL: overrides ollama.url
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LOCALCHAT_BACKEND"); v != "" {
		c.Inference.Backend = v
	}
	if v := os.Getenv("LOCALCHAT_MODEL"); v != "" {
		c.SetModel(v)
	}
	if v := os.Getenv("LOCALCHAT_GPU_LAYERS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			c.envErrs = append(c.envErrs, ValidationError{
				Field:   "LOCALCHAT_GPU_LAYERS",
				Message: fmt.Sprintf("not an integer: %q", v),
			})
		} else {
			c.Inference.GPULayers = n
		}
	}
	if v := os.Getenv("LOCALCHAT_LLAMA_SERVER"); v != "" {
		c.LlamaCpp.ServerPath = v
	}
	if v := os.Getenv("LOCALCHAT_OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
}

// SetModel points the selected backend at ref: the GGUF path for llamacpp,
// the model tag for ollama.
func (c *Config) SetModel(ref string) {
	if strings.EqualFold(strings.TrimSpace(c.Inference.Backend), BackendOllama) {
		c.Model.Name = ref
		return
	}
	c.Model.Path = ref
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	errs := append(ValidateErrors(nil), c.envErrs...)
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(c.Inference.Backend) {
	case BackendLlamaCpp:
		if c.Model.Path == "" {
			add("model.path", "required for the llamacpp backend")
		}
	case BackendOllama:
		if c.Model.Name == "" {
			add("model.name", "required for the ollama backend")
		}
		if c.Ollama.URL == "" {
			add("ollama.url", "required for the ollama backend")
		}
	default:
		add("inference.backend", "invalid backend '%s', must be one of: %s, %s",
			c.Inference.Backend, BackendLlamaCpp, BackendOllama)
	}

	if c.Inference.ContextSize <= 0 {
		add("inference.context_size", "must be positive, got %d", c.Inference.ContextSize)
	}
	if c.Inference.BatchSize <= 0 {
		add("inference.batch_size", "must be positive, got %d", c.Inference.BatchSize)
	}
	if c.Inference.MicroBatchSize <= 0 || c.Inference.MicroBatchSize > c.Inference.BatchSize {
		add("inference.micro_batch_size", "must be in 1..batch_size, got %d", c.Inference.MicroBatchSize)
	}
	if c.Inference.Temperature < 0 || c.Inference.Temperature > 2 {
		add("inference.temperature", "must be between 0.0 and 2.0, got %g", c.Inference.Temperature)
	}
	if c.Inference.Timeout.Duration < 0 {
		add("inference.timeout", "must not be negative")
	}

	if c.LlamaCpp.Port < 0 || c.LlamaCpp.Port > 65535 {
		add("llamacpp.port", "out of range: %d", c.LlamaCpp.Port)
	}
	if c.LlamaCpp.StartupTimeout.Duration <= 0 {
		add("llamacpp.startup_timeout", "must be positive")
	}

	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "debug", "info", "warn", "error":
		default:
			add("log.level", "invalid level '%s'", c.Log.Level)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LogLevel returns the effective log level name.
func (c *Config) LogLevel() string {
	if c.Log.Level != "" {
		return strings.ToLower(c.Log.Level)
	}
	if c.Inference.Verbose {
		return "debug"
	}
	return "info"
}
