package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai"},
}

// validWindowModes are the accepted matching.window_mode values.
var validWindowModes = []string{"", "periodic", "per-fragment"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.5
	}
	if cfg.Matching.WindowMode == "" {
		cfg.Matching.WindowMode = "periodic"
	}
	if cfg.Matching.FlushIntervalSeconds == 0 {
		cfg.Matching.FlushIntervalSeconds = 30
	}
	if cfg.Matching.MatchTimeoutSeconds == 0 {
		cfg.Matching.MatchTimeoutSeconds = 10
	}
	if cfg.Matching.LLMTimeoutSeconds == 0 {
		cfg.Matching.LLMTimeoutSeconds = 5
	}
	if cfg.Matching.LLMRateLimit == 0 {
		cfg.Matching.LLMRateLimit = 10
	}
	if cfg.Matching.LLMRateBurst == 0 {
		cfg.Matching.LLMRateBurst = 20
	}
	if cfg.Dispatch.TickSeconds == 0 {
		cfg.Dispatch.TickSeconds = 5
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 10
	}
	if cfg.Completion.TimeoutSeconds == 0 {
		cfg.Completion.TimeoutSeconds = 15
	}
	if cfg.Completion.MaxRetries == 0 {
		cfg.Completion.MaxRetries = 2
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.LLM.Name == "" && cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no remote scoring provider configured; similarity will use the lexical path only")
	}

	// Matching
	if cfg.Matching.Threshold < 0 || cfg.Matching.Threshold > 1 {
		errs = append(errs, fmt.Errorf("matching.threshold %.2f is out of range [0, 1]", cfg.Matching.Threshold))
	}
	if !slices.Contains(validWindowModes, cfg.Matching.WindowMode) {
		errs = append(errs, fmt.Errorf("matching.window_mode %q is invalid; valid values: periodic, per-fragment", cfg.Matching.WindowMode))
	}
	if cfg.Matching.FlushIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("matching.flush_interval_seconds %d must not be negative", cfg.Matching.FlushIntervalSeconds))
	}
	if cfg.Matching.LLMRateLimit < 0 {
		errs = append(errs, fmt.Errorf("matching.llm_rate_limit %.2f must not be negative", cfg.Matching.LLMRateLimit))
	}
	if cfg.Matching.LLMRateBurst < 0 {
		errs = append(errs, fmt.Errorf("matching.llm_rate_burst %d must not be negative", cfg.Matching.LLMRateBurst))
	}

	// Dispatch
	if cfg.Dispatch.TickSeconds < 0 {
		errs = append(errs, fmt.Errorf("dispatch.tick_seconds %d must not be negative", cfg.Dispatch.TickSeconds))
	}
	if cfg.Dispatch.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("dispatch.batch_size %d must not be negative", cfg.Dispatch.BatchSize))
	}

	// Completion
	if cfg.Completion.Endpoint == "" {
		errs = append(errs, errors.New("completion.endpoint is required"))
	}
	if cfg.Completion.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("completion.max_retries %d must not be negative", cfg.Completion.MaxRetries))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
