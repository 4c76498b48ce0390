package config

import (
	"fmt"
	"strings"

	"github.com/ebu/cpa-go/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) {
	*ve = append(*ve, ValidationError{Field: field, Value: value, Message: message})
}

// Validate checks value ranges and enumerations. An empty provider URL is
// allowed here; commands that contact the provider require it.
func Validate(config Config) error {
	var errs ValidationErrors

	if config.Provider.Timeout < 0 {
		errs.Add("provider.timeout", "must not be negative", config.Provider.Timeout)
	}
	if err := validateOneOf("store.backend", config.Store.Backend, []string{"memory", "file", "sqlite"}); err != nil {
		errs = append(errs, *err)
	}
	if config.Polling.SlowDownIncrement < 0 {
		errs.Add("polling.slowDownIncrement", "must not be negative", config.Polling.SlowDownIncrement)
	}
	if config.Polling.MaxDuration < 0 {
		errs.Add("polling.maxDuration", "must not be negative", config.Polling.MaxDuration)
	}
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		errs.Add("logging.level", err.Error(), config.Logging.Level)
	}
	if err := validateOneOf("logging.format", config.Logging.Format, []string{string(logging.FormatText), string(logging.FormatJSON)}); err != nil {
		errs = append(errs, *err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateOneOf(field, value string, allowed []string) *ValidationError {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}
