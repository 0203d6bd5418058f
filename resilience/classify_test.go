package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      ErrorKind
	}{
		{"nil", nil, false, KindUnknown},
		{"plain", errors.New("boom"), false, KindUnknown},
		{"canceled", context.Canceled, false, KindUnknown},
		{"deadline", context.DeadlineExceeded, true, KindTimeout},
		{"os deadline", os.ErrDeadlineExceeded, true, KindTimeout},
		{"attempt timeout", ErrTimeout, true, KindTimeout},
		{"net timeout", timeoutErr{}, true, KindTimeout},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true, KindConnection},
		{"reset", syscall.ECONNRESET, true, KindConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, true, KindConnection},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("no route")}, true, KindConnection},
		{"500", &StatusError{StatusCode: 500}, true, KindServerError},
		{"503 wrapped", fmt.Errorf("users.get: %w", &StatusError{StatusCode: 503}), true, KindServerError},
		{"400", &StatusError{StatusCode: 400}, false, KindClientError},
		{"404", &StatusError{StatusCode: 404}, false, KindClientError},
		{"429", &StatusError{StatusCode: 429}, false, KindClientError},
		{"transient", Transient(KindServerError, errors.New("x")), true, KindServerError},
		{"permanent timeout", Permanent(context.DeadlineExceeded), false, KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultClassifier(tt.err)
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.kind)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	if c := ClassifyStatus(200); c.Retryable || c.Kind != KindUnknown {
		t.Errorf("ClassifyStatus(200) = %+v", c)
	}
	if c := ClassifyStatus(502); !c.Retryable || c.Kind != KindServerError {
		t.Errorf("ClassifyStatus(502) = %+v", c)
	}
	if c := ClassifyStatus(401); c.Retryable || c.Kind != KindClientError {
		t.Errorf("ClassifyStatus(401) = %+v", c)
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := map[ErrorKind]string{
		KindUnknown:     "unknown",
		KindTimeout:     "timeout",
		KindConnection:  "connection",
		KindClientError: "client_error",
		KindServerError: "server_error",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
