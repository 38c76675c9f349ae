package service

import (
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/units"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Code identifies a business rule violation. Codes are stable and are what
// clients switch on; messages are for humans.
type Code string

const (
	CodeAlreadyClosed        Code = "ALREADY_CLOSED"
	CodeKitchenPending       Code = "KITCHEN_PENDING"
	CodeInsufficientPayment  Code = "INSUFFICIENT_PAYMENT"
	CodeNoOpenSession        Code = "NO_OPEN_SESSION"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeInvalidMove          Code = "INVALID_MOVE"
	CodeIncompatibleUnit     Code = "INCOMPATIBLE_UNIT"
	CodeUnknownUnit          Code = "UNKNOWN_UNIT"
	CodeOrderNotOpen         Code = "ORDER_NOT_OPEN"
	CodeTableOccupied        Code = "TABLE_OCCUPIED"
	CodeHasPayments          Code = "HAS_PAYMENTS"
	CodeSessionAlreadyOpen   Code = "SESSION_ALREADY_OPEN"
	CodeRefundExceedsPayment Code = "REFUND_EXCEEDS_PAYMENT"
	CodeConflict             Code = "CONFLICT"
	CodeNotFound             Code = "NOT_FOUND"
	CodeValidation           Code = "VALIDATION"
)

// Error is a business error. Due is only set for CodeInsufficientPayment.
type Error struct {
	Code    Code
	Message string
	Due     decimal.Decimal
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, service.ErrAlreadyClosed) regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrAlreadyClosed        = &Error{Code: CodeAlreadyClosed, Message: "order is already closed"}
	ErrKitchenPending       = &Error{Code: CodeKitchenPending, Message: "order has items not yet delivered"}
	ErrInsufficientPayment  = &Error{Code: CodeInsufficientPayment, Message: "insufficient payment"}
	ErrNoOpenSession        = &Error{Code: CodeNoOpenSession, Message: "no open cash session"}
	ErrInvalidTransition    = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInvalidMove          = &Error{Code: CodeInvalidMove, Message: "invalid move"}
	ErrOrderNotOpen         = &Error{Code: CodeOrderNotOpen, Message: "order is not open"}
	ErrTableOccupied        = &Error{Code: CodeTableOccupied, Message: "table already has an open order"}
	ErrHasPayments          = &Error{Code: CodeHasPayments, Message: "order has payments"}
	ErrSessionAlreadyOpen   = &Error{Code: CodeSessionAlreadyOpen, Message: "a cash session is already open"}
	ErrRefundExceedsPayment = &Error{Code: CodeRefundExceedsPayment, Message: "refund exceeds refundable amount"}
	ErrConflict             = &Error{Code: CodeConflict, Message: "concurrent update, retry"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation failed"}
)

func insufficientPayment(due decimal.Decimal) *Error {
	return &Error{
		Code:    CodeInsufficientPayment,
		Message: fmt.Sprintf("insufficient payment: %s still due", due.StringFixed(2)),
		Due:     due,
	}
}

func invalidTransition(from, to database.OrderItemStatus) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move item from %q to %q", from, to),
	}
}

func itemAlreadyFired(status database.OrderItemStatus) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("item is %s and can no longer be changed", status),
	}
}

func invalidMove(msg string) *Error {
	return &Error{Code: CodeInvalidMove, Message: msg}
}

func validationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

// lookupErr turns pgx.ErrNoRows into a NOT_FOUND business error and wraps
// anything else.
func lookupErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(what)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// CodeOf extracts the business code from err, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, units.ErrUnknownUnit):
		return CodeUnknownUnit
	case errors.Is(err, units.ErrIncompatibleUnit):
		return CodeIncompatibleUnit
	case errors.Is(err, units.ErrInvalidNumber):
		return CodeValidation
	}
	return ""
}

// DueOf returns the outstanding amount carried by an insufficient payment error.
func DueOf(err error) (decimal.Decimal, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeInsufficientPayment {
		return e.Due, true
	}
	return decimal.Zero, false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
