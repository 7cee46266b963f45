// Package apperr holds the error taxonomy shared by every component.
//
// Call sites wrap one of the sentinels with an oops builder so the error keeps its
// domain, context attributes and a public message; callers match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrMalformedExtraction = errors.New("malformed extraction result")
	ErrUpstream            = errors.New("upstream service failure")
	ErrPersistence         = errors.New("persistence failure")
	ErrNotFound            = errors.New("not found")
)

const (
	CodeInvalidInput        = "invalid_input"
	CodeMalformedExtraction = "malformed_extraction_result"
	CodeUpstream            = "upstream_service_failure"
	CodePersistence         = "persistence_failure"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal_error"
)

const (
	ApologyMessage     = "I'm having trouble responding right now. Please try again later."
	PersistenceMessage = "Your call data may not have been saved. Please try again."
)

func InvalidInput(domain, format string, args ...any) error {
	return oops.In(domain).
		Code(CodeInvalidInput).
		Public(formatPublic(format, args...)).
		Wrapf(ErrInvalidInput, format, args...)
}

func NotFound(domain, format string, args ...any) error {
	return oops.In(domain).
		Code(CodeNotFound).
		Public(formatPublic(format, args...)).
		Wrapf(ErrNotFound, format, args...)
}

// MalformedExtraction keeps the raw model payload as an error attribute so it ends up in logs.
func MalformedExtraction(domain, payload string, cause error) error {
	builder := oops.In(domain).
		Code(CodeMalformedExtraction).
		With("payload", payload).
		Public(ApologyMessage)

	if cause == nil {
		return builder.Wrap(ErrMalformedExtraction)
	}

	return builder.Wrap(fmt.Errorf("%w: %w", ErrMalformedExtraction, cause))
}

func Upstream(domain string, cause error) error {
	return oops.In(domain).
		Code(CodeUpstream).
		Public(ApologyMessage).
		Wrap(fmt.Errorf("%w: %w", ErrUpstream, cause))
}

func Persistence(domain string, cause error) error {
	return oops.In(domain).
		Code(CodePersistence).
		Public(PersistenceMessage).
		Wrap(fmt.Errorf("%w: %w", ErrPersistence, cause))
}

// Code returns the machine-readable error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrMalformedExtraction):
		return CodeMalformedExtraction
	case errors.Is(err, ErrUpstream):
		return CodeUpstream
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	default:
		return CodeInternal
	}
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch Code(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMalformedExtraction, CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the user-facing text attached to err.
func PublicMessage(err error) string {
	switch Code(err) {
	case CodePersistence:
		return oops.GetPublic(err, PersistenceMessage)
	default:
		return oops.GetPublic(err, ApologyMessage)
	}
}

func formatPublic(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}

	return fmt.Sprintf(format, args...)
}
