package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies archive failures by how far they propagate.
type ErrorKind string

const (
	// ErrorKindNotFound aborts the job before any transfer.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindTransientFetch empties one subtree; the job continues.
	ErrorKindTransientFetch ErrorKind = "transient_fetch"
	// ErrorKindTransfer fails one leaf; siblings continue.
	ErrorKindTransfer ErrorKind = "transfer"
	// ErrorKindValidation rejects a request before a job exists.
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindCancelled  ErrorKind = "cancelled"
	ErrorKindInternal   ErrorKind = "internal"
)

// Sentinel errors, use with errors.Is()
var (
	ErrNotFound       = errors.New("not found")
	ErrTransientFetch = errors.New("transient fetch failure")
	ErrTransfer       = errors.New("transfer failed")
	ErrValidation     = errors.New("validation failed")
	// ErrPermanent marks provider or store rejections that a retry cannot fix
	// (authentication, malformed request).
	ErrPermanent = errors.New("permanent failure")
)

// ArchiveError carries the failure kind, the operation and node involved, and the cause.
type ArchiveError struct {
	Kind   ErrorKind
	Op     string
	NodeID string
	Err    error
}

func (e *ArchiveError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.NodeID != "" {
		msg += fmt.Sprintf(" (node %s)", e.NodeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Is allows errors.Is() to match the sentinel for the error's kind.
func (e *ArchiveError) Is(target error) bool {
	switch e.Kind {
	case ErrorKindNotFound:
		return target == ErrNotFound
	case ErrorKindTransientFetch:
		return target == ErrTransientFetch
	case ErrorKindTransfer:
		return target == ErrTransfer
	case ErrorKindValidation:
		return target == ErrValidation
	}
	return false
}

// StatusCode maps the error onto an HTTP status.
func (e *ArchiveError) StatusCode() int {
	switch e.Kind {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindValidation:
		return http.StatusBadRequest
	case ErrorKindTransientFetch, ErrorKindTransfer:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func NewNotFound(op, nodeID string, err error) error {
	return &ArchiveError{Kind: ErrorKindNotFound, Op: op, NodeID: nodeID, Err: err}
}

func NewTransientFetch(op, nodeID string, err error) error {
	return &ArchiveError{Kind: ErrorKindTransientFetch, Op: op, NodeID: nodeID, Err: err}
}

func NewTransfer(op, nodeID string, err error) error {
	return &ArchiveError{Kind: ErrorKindTransfer, Op: op, NodeID: nodeID, Err: err}
}

func NewValidation(msg string) error {
	return &ArchiveError{Kind: ErrorKindValidation, Err: errors.New(msg)}
}

// KindOf classifies any error. Context cancellation wins over the wrapped kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindCancelled
	}
	var ae *ArchiveError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	}
	return ErrorKindInternal
}

// IsRetryable reports whether err is worth another attempt. Not-found,
// validation, permanent provider rejections and cancellation never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case ErrorKindNotFound, ErrorKindValidation, ErrorKindCancelled:
		return false
	}
	return !errors.Is(err, ErrPermanent)
}
