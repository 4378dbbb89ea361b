// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/constraints"
)

// FieldError is a validation error of one configuration key.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects all field errors of a configuration.
type ValidationErrors []*FieldError

func (ve ValidationErrors) Error() string {
	var b strings.Builder
	for i, e := range ve {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// OrNil returns nil when there are no errors.
func (ve ValidationErrors) OrNil() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

// add appends err unless it is nil.
func (ve *ValidationErrors) add(err *FieldError) {
	if err != nil {
		*ve = append(*ve, err)
	}
}

func invalid(field, msg string) *FieldError {
	return &FieldError{Field: field, Message: msg}
}

func mustBeGreaterThan[T constraints.Ordered](field string, value, limit T) *FieldError {
	if value <= limit {
		return invalid(field, fmt.Sprintf("must be greater than %v", limit))
	}
	return nil
}

func mustBeNonNegative[T constraints.Ordered](field string, value T) *FieldError {
	var zero T
	if value < zero {
		return invalid(field, "must be non-negative")
	}
	return nil
}

func mustBeOneOf(field, value string, allowed []string) *FieldError {
	if slices.Contains(allowed, value) {
		return nil
	}
	return invalid(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

func mustNotBeEmpty(field, value string) *FieldError {
	if value == "" {
		return invalid(field, "must not be empty")
	}
	return nil
}
