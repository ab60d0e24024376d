// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validate accumulates configuration validation errors so a bad
// config file is reported in one pass rather than field by field.
package validate

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error is a single rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the aggregate returned by Validator.Err. It unwraps to
// the individual field errors.
type ValidationError struct {
	errs []Error
}

func (e ValidationError) Errors() []Error { return e.errs }

func (e ValidationError) Error() string {
	var b strings.Builder
	for i, fe := range e.errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Error())
	}
	return b.String()
}

func (e ValidationError) Unwrap() []error {
	out := make([]error, len(e.errs))
	for i, fe := range e.errs {
		out[i] = fe
	}
	return out
}

// Validator collects field errors. The zero value is ready to use.
type Validator struct {
	errs []Error
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool   { return len(v.errs) == 0 }
func (v *Validator) Errors() []Error { return v.errs }

// Err returns nil when nothing was rejected, otherwise a ValidationError
// holding a copy of the collected errors.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ValidationError{errs: slices.Clone(v.errs)}
}

// URL requires an absolute URL with a host. An empty allowedSchemes accepts
// any scheme.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
	}
}

// HostPort accepts listen addresses such as "127.0.0.1:9464" or ":9464".
func (v *Validator) HostPort(field, value string) {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), value)
		return
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 1 and 65535, got %q", port), value)
	}
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
	}
}

// Custom records the error returned by check, if any.
func (v *Validator) Custom(field string, value any, check func(any) error) {
	if err := check(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}

// Range requires lo <= value <= hi.
func Range[T cmp.Ordered](v *Validator, field string, value, lo, hi T) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("value must be between %v and %v, got %v", lo, hi, value), value)
	}
}

// Min requires value >= lo.
func Min[T cmp.Ordered](v *Validator, field string, value, lo T) {
	if value < lo {
		v.AddError(field, fmt.Sprintf("value must be at least %v, got %v", lo, value), value)
	}
}

// Positive requires value > 0. Durations are reported in their String form.
func Positive[T int | int64 | float64 | time.Duration](v *Validator, field string, value T) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %v", value), value)
	}
}

// LogLevels are the level names the daemon accepts.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// LogLevel accepts a LogLevels entry, case-insensitively.
func (v *Validator) LogLevel(field, value string) {
	v.OneOf(field, strings.ToLower(strings.TrimSpace(value)), LogLevels)
}
