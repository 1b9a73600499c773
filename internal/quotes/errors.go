package quotes

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind is the three-way-plus classification the pipeline acts on.
type ErrorKind string

const (
	KindAuth         ErrorKind = "auth"         // sticky, disables real calls for the session
	KindRateLimited  ErrorKind = "rate_limited" // transient, feeds the limiter cooldown
	KindTimeout      ErrorKind = "timeout"
	KindMalformed    ErrorKind = "malformed" // empty or all-zero payload
	KindUnclassified ErrorKind = "unclassified"
)

// QuoteError carries an explicit classification populated by the network
// layer, so the pipeline never has to guess from error text for its own
// errors. Classify still understands opaque third-party errors.
type QuoteError struct {
	Kind    ErrorKind
	Status  int // HTTP status when known, 0 otherwise
	Message string
	Cause   error
}

func (e *QuoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *QuoteError) Unwrap() error { return e.Cause }

func newAuthError(status int, message string) *QuoteError {
	return &QuoteError{Kind: KindAuth, Status: status, Message: message}
}

func newRateLimitedError(message string) *QuoteError {
	return &QuoteError{Kind: KindRateLimited, Status: 429, Message: message}
}

func newTimeoutError(message string, cause error) *QuoteError {
	return &QuoteError{Kind: KindTimeout, Message: message, Cause: cause}
}

func newMalformedError(message string) *QuoteError {
	return &QuoteError{Kind: KindMalformed, Message: message}
}

func newUpstreamError(status int, message string, cause error) *QuoteError {
	return &QuoteError{Kind: KindUnclassified, Status: status, Message: message, Cause: cause}
}

// Classify tags a failure from the network layer. Structured *QuoteError
// values classify themselves; for anything else the HTTP-less fallbacks
// (context deadlines, net timeouts, legacy error text) keep the three-way
// contract intact. Unrecognized errors are generic transient failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnclassified
	}

	var qe *QuoteError
	if errors.As(err, &qe) {
		return qe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	// Text heuristics only for errors from layers we do not control.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "token"),
		strings.Contains(msg, "api_key"):
		return KindAuth
	case strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return KindTimeout
	default:
		return KindUnclassified
	}
}
