// Package config defines the runtime configuration for a decommissioning
// run and the Loader abstraction used to obtain it.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that YAML decodes from strings accepted by
// time.ParseDuration, such as "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// BackendConfig names one hypervisor manager instance. Discovery searches
// instances in the order they appear here; first match wins.
type BackendConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Endpoint string `yaml:"endpoint"`
}

// ConfirmationTokens holds the operator confirmation tokens gating the
// destructive phases. Tokens are compared case-sensitively; the delete token
// must differ from the clean token so one confirmation can never be reused
// for the stronger action.
type ConfirmationTokens struct {
	Clean  string `yaml:"clean" validate:"required"`
	Delete string `yaml:"delete" validate:"required,nefield=Clean"`
}

// Config represents the top-level configuration for a batch run.
type Config struct {
	// Backends lists the hypervisor manager instances, in search order.
	Backends []BackendConfig `yaml:"backends" validate:"dive"`

	// DirectorySearchRoot is the directory subtree computer lookups are
	// scoped to.
	DirectorySearchRoot string `yaml:"directory_search_root" validate:"required"`

	// DNSZone is the forward zone A records are removed from.
	DNSZone string `yaml:"dns_zone" validate:"required"`

	// ConfirmationTokens gate the clean and delete phases.
	ConfirmationTokens ConfirmationTokens `yaml:"confirmation_tokens"`

	// ConcurrencyLimit bounds the phase executor worker pool. Unbounded
	// parallelism is rejected to avoid overwhelming the external backends.
	ConcurrencyLimit int `yaml:"concurrency_limit" validate:"min=1"`

	// PerCallTimeout bounds every individual collaborator call so one
	// unresponsive backend cannot stall a whole batch.
	PerCallTimeout Duration `yaml:"per_call_timeout" validate:"gt=0"`

	// BrokerCleanup opts the run into virtual desktop broker cleanup.
	BrokerCleanup bool `yaml:"broker_cleanup"`

	// RatePerSecond throttles collaborator calls across the worker pool.
	// Zero disables throttling.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"min=0"`

	// RateBurst is the burst size for the call rate limiter.
	RateBurst int `yaml:"rate_burst" validate:"min=0"`
}

// Validate checks the configuration for structural problems. A batch run
// must refuse to start on an invalid configuration, before any phase
// executes.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
