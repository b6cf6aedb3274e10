package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindReferential
	KindConflict
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindReferential:
		return "referential"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the classified error every core operation returns.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to the response code handlers use.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindReferential:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgExclusionViolation  = "23P01"
)

// classifyStoreError turns a storage failure into the error taxonomy.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, ErrTherapistNotFound):
		return &Error{Kind: KindReferential, Message: "invalid therapist or organization", Err: err}
	case errors.Is(err, ErrSlotTaken):
		return &Error{Kind: KindConflict, Message: "slot may already be booked", Err: err}
	case errors.Is(err, ErrNotFound):
		return &Error{Kind: KindNotFound, Message: op + ": not found", Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return &Error{Kind: KindReferential, Message: "invalid therapist or organization", Err: err}
		case pgUniqueViolation, pgExclusionViolation:
			return &Error{Kind: KindConflict, Message: "slot may already be booked", Err: err}
		}
	}
	return &Error{Kind: KindInternal, Message: op, Err: err}
}
