package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched through errors.Is against the typed errors below.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrConfiguration  = errors.New("configuration error")
	ErrUnknownVariant = errors.New("unknown variant")
)

// FieldIssue describes one rejected field.
type FieldIssue struct {
	Field  string
	Value  any
	Reason string
}

func (i FieldIssue) String() string {
	if i.Value == nil {
		return fmt.Sprintf("%s: %s", i.Field, i.Reason)
	}
	return fmt.Sprintf("%s: %s (got %v)", i.Field, i.Reason, i.Value)
}

// ValidationError is raised while constructing a shape instance, before any
// persistence interaction. It carries every offending field.
type ValidationError struct {
	Kind    EntityKind
	Variant Discriminant
	Shape   string
	Issues  []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	target := e.Shape
	if target == "" {
		target = fmt.Sprintf("%s %s", e.Variant, e.Kind)
	}
	return fmt.Sprintf("invalid %s: %s", target, strings.Join(parts, "; "))
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add appends an issue.
func (e *ValidationError) Add(field string, value any, reason string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Value: value, Reason: reason})
}

// OrNil returns nil when no issues were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// NotFoundError is returned when a referenced identity does not exist.
type NotFoundError struct {
	Kind EntityKind
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is returned when an update's discriminant disagrees with the
// stored record. The record is left unmodified.
type ConflictError struct {
	Kind      EntityKind
	ID        string
	Stored    Discriminant
	Requested Discriminant
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s is of type %s; cannot update type to %s", e.Kind, e.ID, e.Stored, e.Requested)
}

// Is matches ErrConflict.
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// ConfigurationError reports an inconsistent registry, mapping or encoder
// table. It is raised while wiring the process, never per request.
type ConfigurationError struct {
	Component string
	Detail    string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Component, e.Detail)
}

// Is matches ErrConfiguration.
func (e ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configurationf builds a ConfigurationError with a formatted detail.
func Configurationf(component, format string, args ...any) ConfigurationError {
	return ConfigurationError{Component: component, Detail: fmt.Sprintf(format, args...)}
}

// UnknownVariantError is returned when a discriminant is not registered for a kind.
type UnknownVariantError struct {
	Kind         EntityKind
	Discriminant Discriminant
}

func (e UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s variant %q", e.Kind, e.Discriminant)
}

// Is matches ErrUnknownVariant.
func (e UnknownVariantError) Is(target error) bool { return target == ErrUnknownVariant }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
