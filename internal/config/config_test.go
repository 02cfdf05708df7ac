package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Backends: []BackendConfig{
			{Name: "vcenter-1", Endpoint: "https://vcenter-1.example.net"},
			{Name: "vcenter-2"},
		},
		DirectorySearchRoot: "OU=Servers,DC=example,DC=net",
		DNSZone:             "corp.example.net",
		ConfirmationTokens: ConfirmationTokens{
			Clean:  "clean-me",
			Delete: "delete-me",
		},
		ConcurrencyLimit: 4,
		PerCallTimeout:   Duration(30 * time.Second),
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	var out struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 2m30s"), &out))
	assert.Equal(t, Duration(150*time.Second), out.Timeout)

	err := yaml.Unmarshal([]byte("timeout: soon"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing search root", mutate: func(c *Config) { c.DirectorySearchRoot = "" }},
		{name: "missing dns zone", mutate: func(c *Config) { c.DNSZone = "" }},
		{name: "missing clean token", mutate: func(c *Config) { c.ConfirmationTokens.Clean = "" }},
		{name: "missing delete token", mutate: func(c *Config) { c.ConfirmationTokens.Delete = "" }},
		{name: "identical tokens", mutate: func(c *Config) {
			c.ConfirmationTokens.Clean = "same"
			c.ConfirmationTokens.Delete = "same"
		}},
		{name: "unbounded concurrency", mutate: func(c *Config) { c.ConcurrencyLimit = 0 }},
		{name: "negative concurrency", mutate: func(c *Config) { c.ConcurrencyLimit = -1 }},
		{name: "zero call timeout", mutate: func(c *Config) { c.PerCallTimeout = 0 }},
		{name: "unnamed backend", mutate: func(c *Config) { c.Backends[0].Name = "" }},
		{name: "negative rate", mutate: func(c *Config) { c.RatePerSecond = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
