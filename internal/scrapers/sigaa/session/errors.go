package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var ErrSessionExpired = errors.New("session expired")

type UnexpectedResponseError struct {
	Code int
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response: status %d", e.Code)
}

const (
	TRANSPORT_TIMEOUT       = "ETIMEDOUT"
	TRANSPORT_NOT_FOUND     = "ENOTFOUND"
	TRANSPORT_REFUSED       = "ECONNREFUSED"
	TRANSPORT_RESET         = "ECONNRESET"
	TRANSPORT_UNKNOWN_ERROR = "EUNKNOWN"
)

// TransportError is a connection level failure, the request never produced
// a response.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Code, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(err error) *TransportError {
	code := TRANSPORT_UNKNOWN_ERROR

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = TRANSPORT_TIMEOUT
	case errors.As(err, &dnsErr):
		code = TRANSPORT_NOT_FOUND
	case errors.Is(err, syscall.ECONNREFUSED):
		code = TRANSPORT_REFUSED
	case errors.Is(err, syscall.ECONNRESET):
		code = TRANSPORT_RESET
	case errors.As(err, &netErr) && netErr.Timeout():
		code = TRANSPORT_TIMEOUT
	}

	return &TransportError{Code: code, Err: err}
}

// ValidationError is returned by NewClient when ClientOptions are malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid client options: %s: %s", e.Field, e.Reason)
}
