// Package lxderr categorizes the errors that cross component boundaries in
// lxddns, so that callers can decide what to do with a failure (tear down a
// stream, requeue a delivery, abort the process) without string-matching.
package lxderr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Category identifies the kind of failure an error represents.
type Category int

const (
	// OK is the zero value, returned by GetCategory for a nil error.
	OK Category = iota

	// InvalidConfiguration means a builder was run with a required field missing.
	InvalidConfiguration
	// UnsafeName means ContainerName rejected the input.
	UnsafeName
	// LocalExecution means the container-manager command failed to run or exited non-zero.
	LocalExecution
	// LocalOutput means the container-manager produced output that could not be parsed.
	LocalOutput
	// QueueConnectionError means a bus transport operation (dial, publish, consume) failed.
	QueueConnectionError
	// AcknowledgementError means an ack/reject/requeue on a bus delivery failed.
	AcknowledgementError
	// MessageQueueTaint means a RemoteQuery failed; the containing stream must be torn down.
	MessageQueueTaint
	// DuplicateCorrelationId means a freshly generated correlation id collided with one in flight.
	DuplicateCorrelationId
	// HttpServerError means the HTTPS responder endpoint failed to serve.
	HttpServerError
	// HttpRequestError means an HTTP RemoteQuery request failed at the transport level.
	HttpRequestError
	// UnixServerError means the unix socket frontend failed.
	UnixServerError
	// UnixServerClosed means the unix socket listener closed while the frontend was still running.
	UnixServerClosed
	// ResponderError means the bus responder failed.
	ResponderError
	// ResponderClosed means the bus responder's delivery channel closed while it was still running.
	ResponderClosed
)

var names = map[Category]string{
	OK:                     "ok",
	InvalidConfiguration:   "invalid configuration",
	UnsafeName:             "unsafe name",
	LocalExecution:         "local execution failed",
	LocalOutput:            "local output unparsable",
	QueueConnectionError:   "queue connection error",
	AcknowledgementError:   "acknowledgement error",
	MessageQueueTaint:      "message queue taint",
	DuplicateCorrelationId: "duplicate correlation id",
	HttpServerError:        "http server error",
	HttpRequestError:       "http request error",
	UnixServerError:        "unix server error",
	UnixServerClosed:       "unix server closed",
	ResponderError:         "responder error",
	ResponderClosed:        "responder closed",
}

func (c Category) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unknown"
}

type categorized struct {
	error
	category Category
}

// New wraps err, tagging it with category c and attaching a stack trace
// via github.com/pkg/errors so the top-level "caused by:" chain the
// binaries print on a fatal error has something to walk beyond the bare
// message.
func (c Category) New(err error) error {
	if err == nil {
		return nil
	}
	return &categorized{error: pkgerrors.WithStack(err), category: c}
}

// Newf creates a new categorized error from a format string, the way
// fmt.Errorf does ('%w' works for wrapping).
func (c Category) Newf(format string, a ...interface{}) error {
	return &categorized{error: pkgerrors.WithStack(fmt.Errorf(format, a...)), category: c}
}

func (ce *categorized) Unwrap() error {
	return ce.error
}

// Cause implements github.com/pkg/errors' Causer interface, so callers
// walking the chain with pkgerrors.Cause (or the equivalent hand-rolled
// loop in cmd/*/main.go) see through both the category wrapper and the
// stack-trace wrapper New attaches, straight to the wrapped error.
func (ce *categorized) Cause() error {
	if c, ok := ce.error.(interface{ Cause() error }); ok {
		return c.Cause()
	}
	return ce.error
}

// GetCategory walks the error chain looking for a categorized error,
// returning OK for nil and -1 if no ancestor was ever categorized.
func GetCategory(err error) Category {
	if err == nil {
		return OK
	}
	var ce *categorized
	if errors.As(err, &ce) {
		return ce.category
	}
	return -1
}
