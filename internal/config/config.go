// Package config defines the daemon configuration and its loading layers.
//
// Conventions:
//   - Keys are flat snake_case so env vars map onto them one to one.
//   - Durations are carried as integer milliseconds (*_ms) and exposed as
//     time.Duration through accessor methods.
//   - Validation errors wrap ErrInvalidConfig, loading errors ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"time"
)

// Error policies accepted by OnError.
const (
	OnErrorHalt     = "halt"
	OnErrorContinue = "continue"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// NATSURL and Subject locate the coherence event stream.
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`

	// ConnectTimeoutMS bounds the initial broker dial.
	ConnectTimeoutMS int `koanf:"connect_timeout_ms"`

	// ReceiveTimeoutMS bounds each wait for an event; 0 waits indefinitely.
	ReceiveTimeoutMS int `koanf:"receive_timeout_ms"`

	// RetryBackoffMS is the first pause after a failed receive under
	// on_error=continue; it doubles per consecutive failure up to
	// RetryBackoffMaxMS.
	RetryBackoffMS    int `koanf:"retry_backoff_ms"`
	RetryBackoffMaxMS int `koanf:"retry_backoff_max_ms"`

	// LedgerPath is the JSONL audit log.
	LedgerPath string `koanf:"ledger_path"`

	// LedgerSync opens the ledger with O_SYNC.
	LedgerSync bool `koanf:"ledger_sync"`

	// DedupeSize bounds the remembered event IDs; 0 disables deduplication.
	DedupeSize int `koanf:"dedupe_size"`

	// OnError is "halt" or "continue".
	OnError string `koanf:"on_error"`

	// Git working tree and branch settings.
	RepoDir      string `koanf:"repo_dir"`
	Remote       string `koanf:"remote"`
	BaseBranch   string `koanf:"base_branch"`
	BranchPrefix string `koanf:"branch_prefix"`

	// GitHub target for pull requests.
	RepoOwner     string `koanf:"repo_owner"`
	RepoName      string `koanf:"repo_name"`
	GitHubToken   string `koanf:"github_token"`
	GitHubBaseURL string `koanf:"github_base_url"`

	// PublishTimeoutMS bounds one publish; 0 disables the bound.
	PublishTimeoutMS int `koanf:"publish_timeout_ms"`
}

// New returns a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		NATSURL:           "nats://127.0.0.1:4222",
		Subject:           "coherence.>",
		ConnectTimeoutMS:  2_000,
		ReceiveTimeoutMS:  0,
		RetryBackoffMS:    500,
		RetryBackoffMaxMS: 30_000,
		LedgerPath:        "data/empathy-ledger.jsonl",
		DedupeSize:        10_000,
		OnError:           OnErrorHalt,
		RepoDir:           ".",
		Remote:            "origin",
		BaseBranch:        "main",
		BranchPrefix:      "auto",
		PublishTimeoutMS:  120_000,
	}
}

// ConnectTimeout returns ConnectTimeoutMS as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// ReceiveTimeout returns ReceiveTimeoutMS as a duration.
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMS) * time.Millisecond
}

// RetryBackoff returns RetryBackoffMS as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// RetryBackoffMax returns RetryBackoffMaxMS as a duration.
func (c *Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.RetryBackoffMaxMS) * time.Millisecond
}

// PublishTimeout returns PublishTimeoutMS as a duration.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	required := []struct {
		key, val string
	}{
		{"addr", c.Addr},
		{"nats_url", c.NATSURL},
		{"subject", c.Subject},
		{"ledger_path", c.LedgerPath},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidConfig, r.key)
		}
	}

	if c.OnError != OnErrorHalt && c.OnError != OnErrorContinue {
		return fmt.Errorf("%w: on_error must be %q or %q, got %q", ErrInvalidConfig, OnErrorHalt, OnErrorContinue, c.OnError)
	}

	timeouts := []struct {
		key string
		val int
	}{
		{"connect_timeout_ms", c.ConnectTimeoutMS},
		{"receive_timeout_ms", c.ReceiveTimeoutMS},
		{"publish_timeout_ms", c.PublishTimeoutMS},
		{"retry_backoff_ms", c.RetryBackoffMS},
		{"retry_backoff_max_ms", c.RetryBackoffMaxMS},
	}
	for _, t := range timeouts {
		if t.val < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, t.key)
		}
	}

	if c.RetryBackoffMaxMS < c.RetryBackoffMS {
		return fmt.Errorf("%w: retry_backoff_max_ms must not be below retry_backoff_ms", ErrInvalidConfig)
	}

	if c.DedupeSize < 0 {
		return fmt.Errorf("%w: dedupe_size must not be negative", ErrInvalidConfig)
	}
	return nil
}
