// Package errs defines the typed failures surfaced by render and export
// operations. Element-level problems are logged and contained; anything
// returned as an *Error aborts the job it belongs to.
package errs

import (
	"errors"
	"fmt"
)

type Type string

const (
	TypeAsset      Type = "asset"
	TypeGraph      Type = "graph"
	TypeEngine     Type = "engine"
	TypeCleanup    Type = "cleanup"
	TypeValidation Type = "validation"
	TypeCancelled  Type = "cancelled"
	TypeInternal   Type = "internal"
)

var (
	ErrNothingToRender    = errors.New("nothing to render")
	ErrExportInProgress   = errors.New("export already in progress")
	ErrJobNotFound        = errors.New("export job not found")
	ErrCancelled          = errors.New("export cancelled")
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	ErrAssetMissing       = errors.New("asset source missing")
)

type Error struct {
	Type    Type
	Op      string
	JobID   string
	AssetID string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.JobID != "":
		return fmt.Sprintf("%s error in %s for job %s: %v", e.Type, e.Op, e.JobID, e.Err)
	case e.AssetID != "":
		return fmt.Sprintf("%s error in %s for asset %s: %v", e.Type, e.Op, e.AssetID, e.Err)
	default:
		return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(t Type, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

func (e *Error) WithJob(id string) *Error {
	e.JobID = id
	return e
}

func Asset(op string, id string, err error) *Error {
	return &Error{Type: TypeAsset, Op: op, AssetID: id, Err: err}
}

func Graph(op string, err error) *Error {
	return New(TypeGraph, op, err)
}

func Engine(op string, err error) *Error {
	return New(TypeEngine, op, err)
}

func Cleanup(op string, err error) *Error {
	return New(TypeCleanup, op, err)
}

func Validation(op string, err error) *Error {
	return New(TypeValidation, op, err)
}

func Cancelled(op string) *Error {
	return New(TypeCancelled, op, ErrCancelled)
}

func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// AssetIDOf returns the asset that caused err, if any.
func AssetIDOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Type == TypeAsset && e.AssetID != "" {
		return e.AssetID, true
	}
	return "", false
}

// Retryable reports whether a software fallback may succeed where err failed.
func Retryable(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return false
	}
	return TypeOf(err) == TypeEngine
}
