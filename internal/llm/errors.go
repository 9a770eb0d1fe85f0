package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindProtocol       ErrorKind = "protocol"
	KindTransport      ErrorKind = "transport"
)

// errMalformedLine marks a stream line that does not parse as the expected envelope.
// Such lines are skipped.
var errMalformedLine = errors.New("malformed stream line")

// maxErrorBody bounds how much of a failed response body is kept in an Error
const maxErrorBody = 2048

// Error is returned by provider clients when a chat request fails
type Error struct {
	Kind       ErrorKind
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s error", e.Backend, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a provider Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func authError(backend, message string) *Error {
	return &Error{Kind: KindAuthentication, Backend: backend, Message: message}
}

func protocolError(backend, message string) *Error {
	if message == "" {
		message = "request failed"
	}
	return &Error{Kind: KindProtocol, Backend: backend, Message: message}
}

func transportError(backend string, err error) *Error {
	return &Error{Kind: KindTransport, Backend: backend, Err: err}
}

// statusError builds an Error from a non-success response and closes its body
func statusError(backend string, resp *http.Response) *Error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	kind := KindProtocol
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = KindAuthentication
	}
	return &Error{
		Kind:       kind,
		Backend:    backend,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}
