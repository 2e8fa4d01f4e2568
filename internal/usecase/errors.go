package usecase

import (
	"errors"
	"fmt"
)

type ErrKind int

const (
	KindUnknown ErrKind = iota
	KindValidation
	KindNotFound
	KindAuthentication
	KindAuthorization
	KindConflict
	KindInternal
)

func (k ErrKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error codes surfaced to clients.
const (
	CodeInvalidInput         = "invalid_input"
	CodeInvalidGrade         = "invalid_grade"
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeFileTooLarge         = "file_too_large"
	CodeEmptyFile            = "empty_file"
	CodeBookNotFound         = "book_not_found"
	CodeUnauthenticated      = "unauthenticated"
	CodeNotOwner             = "not_owner"
	CodeDuplicateRating      = "duplicate_rating"
	CodeWriteConflict        = "write_conflict"
	CodeConversionFailed     = "conversion_failed"
	CodeStorageFailed        = "storage_failed"
	CodeStoreFailed          = "store_failed"
)

// Error is the single error type returned by the usecase layer. The
// transport maps Kind to a response without reinterpreting it.
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the client may repeat the same request.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict && e.Code == CodeWriteConflict
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func ValidationError(code, msg string, err error) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg, Err: err}
}

func NotFoundError(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func AuthenticationError(msg string, err error) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeUnauthenticated, Message: msg, Err: err}
}

func AuthorizationError(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: msg}
}

func ConflictError(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func InternalError(code, msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: msg, Err: err}
}

// Sentinels returned by the Repository implementation.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
)
