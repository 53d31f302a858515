// SPDX-License-Identifier: MIT

package provider

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("provider: resource not found")
	ErrUnsupported         = errors.New("provider: operation not supported")
	ErrNoProvider          = errors.New("provider: no provider for league")
	ErrUpstreamUnavailable = errors.New("provider: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("provider: internal error (5xx)")
	ErrUpstreamBadResponse = errors.New("provider: invalid response format or malformed data")
	ErrTimeout             = errors.New("provider: request timed out")
)

// APIError wraps the sentinel errors with request context.
type APIError struct {
	Sentinel  error
	Provider  string
	Operation string
	Status    int
	Body      string
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Provider, e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}
