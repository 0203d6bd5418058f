package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrorKind describes the failure mode behind an error.
type ErrorKind int

const (
	// KindUnknown is any error that could not be classified.
	KindUnknown ErrorKind = iota
	// KindTimeout is a deadline or I/O timeout.
	KindTimeout
	// KindConnection is a refused, reset, or otherwise broken connection.
	KindConnection
	// KindClientError is a 4xx-class rejection by the remote.
	KindClientError
	// KindServerError is a 5xx-class failure of the remote.
	KindServerError
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Classification is the verdict for a single error.
type Classification struct {
	Retryable bool
	Kind      ErrorKind
}

// Classifier maps an error to a Classification.
type Classifier func(err error) Classification

// Retryable reports whether c considers err retryable.
func (c Classifier) Retryable(err error) bool {
	if err == nil {
		return false
	}
	return c(err).Retryable
}

// DefaultClassifier retries timeouts, connection failures and 5xx statuses.
// 4xx statuses, PermanentError, context.Canceled and unrecognised errors are
// terminal.
func DefaultClassifier(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		inner := Classification{}
		if perm.Err != nil {
			inner = DefaultClassifier(perm.Err)
		}
		return Classification{Retryable: false, Kind: inner.Kind}
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return Classification{Retryable: true, Kind: transient.Kind}
	}

	var status *StatusError
	if errors.As(err, &status) {
		return ClassifyStatus(status.StatusCode)
	}

	if errors.Is(err, context.Canceled) {
		return Classification{Kind: KindUnknown}
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, ErrTimeout) {
		return Classification{Retryable: true, Kind: KindTimeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Retryable: true, Kind: KindTimeout}
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return Classification{Retryable: true, Kind: KindConnection}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Retryable: true, Kind: KindConnection}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Retryable: dnsErr.IsTemporary || dnsErr.IsTimeout, Kind: KindConnection}
	}

	return Classification{Kind: KindUnknown}
}

// ClassifyStatus classifies an HTTP status code.
func ClassifyStatus(code int) Classification {
	switch {
	case code >= 500 && code <= 599:
		return Classification{Retryable: true, Kind: KindServerError}
	case code >= 400 && code <= 499:
		return Classification{Retryable: false, Kind: KindClientError}
	default:
		return Classification{Kind: KindUnknown}
	}
}
