// Package config provides the configuration schema, loader, and file watcher
// for the voxtask pipeline.
package config

import "time"

// LogLevel controls log verbosity for the voxtask server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxtask.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Matching   MatchingConfig   `yaml:"matching"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Completion CompletionConfig `yaml:"completion"`
}

// ServerConfig holds network and logging settings for the voxtask server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares the external model providers the scorer chain may
// use. Both entries are optional: with neither configured, scoring runs on
// the lexical path alone.
type ProvidersConfig struct {
	// LLM selects the completion provider used for remote similarity scoring.
	LLM ProviderEntry `yaml:"llm"`

	// Embeddings selects the embedding provider used as a secondary remote
	// scoring path.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`
}

// MatchingConfig tunes the similarity scoring and accumulation behaviour.
type MatchingConfig struct {
	// Threshold is the minimum similarity for a task to count as matched.
	// Watched for runtime changes. Default: 0.5.
	Threshold float64 `yaml:"threshold"`

	// WindowMode selects when accumulation windows flush: "periodic" or
	// "per-fragment". Default: "periodic".
	WindowMode string `yaml:"window_mode"`

	// FlushIntervalSeconds is the periodic flush interval. Default: 30.
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`

	// MatchTimeoutSeconds bounds one full match sweep. Default: 10.
	MatchTimeoutSeconds int `yaml:"match_timeout_seconds"`

	// LLMTimeoutSeconds bounds one remote similarity call. Default: 5.
	LLMTimeoutSeconds int `yaml:"llm_timeout_seconds"`

	// LLMRateLimit caps remote similarity calls per second across the whole
	// process. Default: 10.
	LLMRateLimit float64 `yaml:"llm_rate_limit"`

	// LLMRateBurst is the rate limiter burst. A burst at least the expected
	// open-task count keeps a single match sweep unthrottled. Default: 20.
	LLMRateBurst int `yaml:"llm_rate_burst"`

	// Keywords extends the built-in domain keyword list used by the lexical
	// scorer's bonus weighting.
	Keywords []string `yaml:"keywords"`
}

// FlushInterval returns the periodic flush interval as a duration.
func (m MatchingConfig) FlushInterval() time.Duration {
	return time.Duration(m.FlushIntervalSeconds) * time.Second
}

// MatchTimeout returns the match sweep deadline as a duration.
func (m MatchingConfig) MatchTimeout() time.Duration {
	return time.Duration(m.MatchTimeoutSeconds) * time.Second
}

// LLMTimeout returns the remote scoring deadline as a duration.
func (m MatchingConfig) LLMTimeout() time.Duration {
	return time.Duration(m.LLMTimeoutSeconds) * time.Second
}

// DispatchConfig tunes the update queue.
type DispatchConfig struct {
	// TickSeconds is the periodic batch interval. Default: 5.
	TickSeconds int `yaml:"tick_seconds"`

	// BatchSize caps how many queued requests one batch drains. Default: 10.
	BatchSize int `yaml:"batch_size"`
}

// Tick returns the batch interval as a duration.
func (d DispatchConfig) Tick() time.Duration {
	return time.Duration(d.TickSeconds) * time.Second
}

// CompletionConfig points at the external service that records task
// completions.
type CompletionConfig struct {
	// Endpoint is the URL completions are POSTed to. Required.
	Endpoint string `yaml:"endpoint"`

	// TimeoutSeconds bounds one completion request. Default: 15.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxRetries is how many times a transient failure is retried. Default: 2.
	MaxRetries int `yaml:"max_retries"`
}

// Timeout returns the completion request deadline as a duration.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
