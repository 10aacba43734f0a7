package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindValidationFailed   Kind = "ValidationFailed"
	KindPreconditionFailed Kind = "PreconditionFailed"
	KindConflict           Kind = "Conflict"
	KindUnauthenticated    Kind = "Unauthenticated"
	KindInternal           Kind = "Internal"
)

// Error is a domain failure with a stable machine-readable code.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches on Code so that errors built by constructors with a custom
// message still compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrEntryNotFound   = newError(KindNotFound, "EntryNotFound", "book not found")
	ErrAccountNotFound = newError(KindNotFound, "AccountNotFound", "user not found")

	ErrNotAvailable        = newError(KindPreconditionFailed, "NotAvailable", "book is not available for borrowing")
	ErrNoCopiesAvailable   = newError(KindPreconditionFailed, "NoCopiesAvailable", "no copies available")
	ErrNotBorrowedByUser   = newError(KindPreconditionFailed, "NotBorrowedByUser", "book is not borrowed by this user")
	ErrNotBorrowed         = newError(KindPreconditionFailed, "NotBorrowed", "you have not borrowed this book")
	ErrBorrowLimitExceeded = newError(KindPreconditionFailed, "BorrowLimitExceeded", "borrowing limit reached")
	ErrAlreadyBorrowed     = newError(KindPreconditionFailed, "AlreadyBorrowed", "you have already borrowed this book")
	ErrHasActiveLoans      = newError(KindPreconditionFailed, "HasActiveLoans", "cannot delete book that is currently borrowed")
	ErrAccountInactive     = newError(KindPreconditionFailed, "AccountInactive", "account is deactivated")

	ErrValidation     = newError(KindValidationFailed, "ValidationFailed", "validation failed")
	ErrDuplicateCode  = newError(KindValidationFailed, "DuplicateCode", "book with this ISBN already exists")
	ErrDuplicateEmail = newError(KindValidationFailed, "DuplicateEmail", "user with this email already exists")

	ErrConflict = newError(KindConflict, "Conflict", "concurrent modification, please retry")

	ErrInvalidCredentials = newError(KindUnauthenticated, "InvalidCredentials", "invalid email or password")
)

// BorrowLimitExceeded states the role's limit in the message.
func BorrowLimitExceeded(role string, limit int) error {
	return newError(KindPreconditionFailed, ErrBorrowLimitExceeded.Code,
		fmt.Sprintf("borrowing limit reached: %s accounts may hold at most %d books", role, limit))
}

func Validation(msg string) error {
	return newError(KindValidationFailed, ErrValidation.Code, msg)
}

// KindOf returns KindInternal for anything that is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

type Response struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`
	Code    string `json:"code,omitempty"`
}
