package engine

import (
	"fmt"
)

// ErrorName identifies the kind of an engine error
type ErrorName string

const (
	NotFoundError            ErrorName = "NotFoundError"
	ConstraintError          ErrorName = "ConstraintError"
	DataError                ErrorName = "DataError"
	ReadOnlyError            ErrorName = "ReadOnlyError"
	TransactionInactiveError ErrorName = "TransactionInactiveError"
	InvalidStateError        ErrorName = "InvalidStateError"
	InvalidAccessError       ErrorName = "InvalidAccessError"
	VersionError             ErrorName = "VersionError"
	AbortError               ErrorName = "AbortError"
	UnknownError             ErrorName = "UnknownError"
)

// Code returns the numeric code of an error name
func (n ErrorName) Code() int {
	switch n {
	case NotFoundError:
		return 8
	case ConstraintError:
		return 9
	case DataError:
		return 10
	case ReadOnlyError:
		return 11
	case TransactionInactiveError:
		return 12
	case InvalidStateError:
		return 13
	case InvalidAccessError:
		return 14
	case VersionError:
		return 15
	case AbortError:
		return 20
	default:
		return 1
	}
}

// Error is the error type of every engine failure
type Error struct {
	Name    ErrorName
	Code    int
	Message string
	Err     error // underlying cause, for example a backend error
}

// NewError creates an engine error with a formatted message
func NewError(name ErrorName, format string, args ...any) *Error {
	return &Error{Name: name, Code: name.Code(), Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an engine error caused by err
func WrapError(name ErrorName, err error, msg string) *Error {
	return &Error{Name: name, Code: name.Code(), Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same name, so errors.Is(err, engine.ErrConstraint) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

// Sentinels for errors.Is
var (
	ErrNotFound            = &Error{Name: NotFoundError, Code: NotFoundError.Code()}
	ErrConstraint          = &Error{Name: ConstraintError, Code: ConstraintError.Code()}
	ErrData                = &Error{Name: DataError, Code: DataError.Code()}
	ErrReadOnly            = &Error{Name: ReadOnlyError, Code: ReadOnlyError.Code()}
	ErrTransactionInactive = &Error{Name: TransactionInactiveError, Code: TransactionInactiveError.Code()}
	ErrInvalidState        = &Error{Name: InvalidStateError, Code: InvalidStateError.Code()}
	ErrInvalidAccess       = &Error{Name: InvalidAccessError, Code: InvalidAccessError.Code()}
	ErrVersion             = &Error{Name: VersionError, Code: VersionError.Code()}
	ErrAbort               = &Error{Name: AbortError, Code: AbortError.Code()}
	ErrUnknown             = &Error{Name: UnknownError, Code: UnknownError.Code()}
)
