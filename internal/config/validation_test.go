package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "negative timeout", mutate: func(c *Config) { c.Provider.Timeout = -1 }, wantErr: "provider.timeout"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "keychain" }, wantErr: "store.backend"},
		{name: "negative increment", mutate: func(c *Config) { c.Polling.SlowDownIncrement = -1 }, wantErr: "polling.slowDownIncrement"},
		{name: "negative max duration", mutate: func(c *Config) { c.Polling.MaxDuration = -1 }, wantErr: "polling.maxDuration"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "unknown log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(&config)
			err := Validate(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("a", "is bad", 1)
	assert.Equal(t, "field 'a': is bad", errs.Error())

	errs.Add("b", "is worse", 2)
	assert.Equal(t, "validation failed: field 'a': is bad; field 'b': is worse", errs.Error())
}
