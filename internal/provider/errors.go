package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// ProviderError is a delivery failure, classified as transient or permanent.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "delivery error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ValidationError reports that the recipient lacks a contact field the
// transport needs. It never reaches the remote side.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrValidation
}

// IsTransient reports whether an error might succeed on a later run.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// FailureDetail is the serializable form of a failed delivery, stored as the
// notes of the attempt.
type FailureDetail struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"statusCode,omitempty"`
	Transient  bool   `json:"transient"`
}

// DescribeFailure classifies err for the attempt notes.
func DescribeFailure(err error) FailureDetail {
	detail := FailureDetail{Kind: "error"}
	if err == nil {
		return detail
	}

	detail.Error = err.Error()
	detail.Transient = IsTransient(err)

	var validationErr *ValidationError
	var providerErr *ProviderError
	switch {
	case errors.As(err, &validationErr):
		detail.Kind = "validation"
	case errors.As(err, &providerErr):
		detail.Kind = "delivery"
		detail.StatusCode = providerErr.StatusCode
	}

	return detail
}
