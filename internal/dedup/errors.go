package dedup

import (
	"errors"
	"fmt"
)

// Kind classifies coordinator failures.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindNotFound           Kind = "not_found"
	KindInvariantViolation Kind = "invariant_violation"
	KindStorageIO          Kind = "storage_io"
	KindInternal           Kind = "internal"
)

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeSizeMismatch    = 1001
	ErrCodeDigestMismatch  = 1002
	ErrCodeTooLarge        = 1003

	// Domain state (2xxx)
	ErrCodeReferenceNotFound = 2001

	// Limits (3xxx)
	ErrCodeQuotaExceeded = 3003

	// Internal/system (4xxx)
	ErrCodeInternal           = 4001
	ErrCodeStoreFailure       = 4002
	ErrCodeInvariantViolation = 4003
	ErrCodeStorageIO          = 4004
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation         = errors.New("validation failed")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrNotFound           = errors.New("not found")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrStorageIO          = errors.New("storage io failure")
)

// Error is the structured failure returned by every Service operation.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	sentinel := kindSentinel(e.Kind)
	return sentinel != nil && target == sentinel
}

func kindSentinel(kind Kind) error {
	switch kind {
	case KindValidation:
		return ErrValidation
	case KindQuotaExceeded:
		return ErrQuotaExceeded
	case KindNotFound:
		return ErrNotFound
	case KindInvariantViolation:
		return ErrInvariantViolation
	case KindStorageIO:
		return ErrStorageIO
	default:
		return nil
	}
}

func defaultErrorCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return ErrCodeInvalidArgument
	case KindQuotaExceeded:
		return ErrCodeQuotaExceeded
	case KindNotFound:
		return ErrCodeReferenceNotFound
	case KindInvariantViolation:
		return ErrCodeInvariantViolation
	case KindStorageIO:
		return ErrCodeStorageIO
	default:
		return ErrCodeStoreFailure
	}
}

func makeError(op string, kind Kind, code int, err error) error {
	if err == nil {
		err = kindSentinel(kind)
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind != "" {
		return err
	}
	if code == 0 {
		code = defaultErrorCode(kind)
	}
	return &Error{Kind: kind, Op: op, Code: code, Err: err}
}

func validationError(op string, code int, format string, args ...any) error {
	return makeError(op, KindValidation, code, fmt.Errorf(format, args...))
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the numeric error code carried by err.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code > 0 {
		return e.Code
	}
	if err == nil {
		return 0
	}
	return ErrCodeInternal
}
