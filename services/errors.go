package services

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

type ErrorKind string

const (
	KindInvalidTransition  ErrorKind = "InvalidTransition"
	KindNotOwner           ErrorKind = "NotOwner"
	KindForbidden          ErrorKind = "Forbidden"
	KindDeadlinePassed     ErrorKind = "DeadlinePassed"
	KindNoEligibleReviewer ErrorKind = "NoEligibleReviewer"
	KindNoCompletedReview  ErrorKind = "NoCompletedReview"
	KindScoreOutOfRange    ErrorKind = "ScoreOutOfRange"
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindNotFound           ErrorKind = "NotFound"
	KindStorageUnavailable ErrorKind = "StorageUnavailable"
)

// Error is returned by every service operation. Guard and validation kinds
// are caller errors and must not be retried; StorageUnavailable may be.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind so callers can compare against the sentinel values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrNotOwner           = &Error{Kind: KindNotOwner}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrDeadlinePassed     = &Error{Kind: KindDeadlinePassed}
	ErrNoEligibleReviewer = &Error{Kind: KindNoEligibleReviewer}
	ErrNoCompletedReview  = &Error{Kind: KindNoCompletedReview}
	ErrScoreOutOfRange    = &Error{Kind: KindScoreOutOfRange}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or StorageUnavailable for anything
// that did not originate in this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageUnavailable
}

// storageError classifies a gorm error. Record-not-found becomes NotFound for
// the named entity; everything else is a storage fault with a stack attached.
func storageError(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Message: what + " not found", cause: err}
	}
	return &Error{
		Kind:    KindStorageUnavailable,
		Message: what,
		cause:   pkgerrors.Wrap(err, what),
	}
}
