package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

type baseError struct {
	msg string
	err error
}

func (e *baseError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *baseError) Unwrap() error { return e.err }

// NetworkError covers timeouts, DNS failures and broken connections.
type NetworkError struct{ baseError }

// CertificateError is a TLS handshake or certificate verification failure.
type CertificateError struct{ baseError }

type ConnectionRefusedError struct{ baseError }

// AuthError is a 401 or 403 from the agent.
type AuthError struct {
	baseError
	Code int
}

// ServerError is any other status >= 400.
type ServerError struct {
	baseError
	Code int
}

type ParseError struct{ baseError }

type UnknownError struct{ baseError }

func newBase(msg string, err error) baseError { return baseError{msg: msg, err: err} }

// Classify maps err onto the client error taxonomy. Context cancellation and
// deadline errors are returned unchanged, as are already classified errors.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isClassified(err) {
		return err
	}

	if isCertificateError(err) {
		return &CertificateError{newBase("certificate error", err)}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &ConnectionRefusedError{newBase("connection refused", err)}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &NetworkError{newBase("cannot resolve host", err)}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return &NetworkError{newBase("network error", err)}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ParseError{newBase("invalid response", err)}
	}
	return &UnknownError{newBase("unexpected error", err)}
}

// statusError classifies a non-2xx response. msg is the agent's error text, if any.
func statusError(code int, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("status %d", code)
	}
	switch code {
	case 401, 403:
		return &AuthError{baseError: newBase(msg, nil), Code: code}
	default:
		return &ServerError{baseError: newBase(msg, nil), Code: code}
	}
}

func isClassified(err error) bool {
	var (
		ne *NetworkError
		ce *CertificateError
		re *ConnectionRefusedError
		ae *AuthError
		se *ServerError
		pe *ParseError
		ue *UnknownError
	)
	return errors.As(err, &ne) || errors.As(err, &ce) || errors.As(err, &re) ||
		errors.As(err, &ae) || errors.As(err, &se) || errors.As(err, &pe) || errors.As(err, &ue)
}

func isCertificateError(err error) bool {
	var (
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalid     x509.CertificateInvalidError
		verify      *tls.CertificateVerificationError
		record      tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuth) || errors.As(err, &hostname) || errors.As(err, &invalid) ||
		errors.As(err, &verify) || errors.As(err, &record) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:")
}
