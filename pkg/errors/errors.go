// Package errors defines the coded errors returned across the API. Each
// sentinel carries the HTTP status it maps to; derived copies built with
// the With helpers still match their sentinel under errors.Is.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches any AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func (e *AppError) clone() *AppError {
	c := *e
	return &c
}

func (e *AppError) WithDetails(details any) *AppError {
	c := e.clone()
	c.Details = details
	return c
}

func (e *AppError) WithError(err error) *AppError {
	c := e.clone()
	c.Err = err
	return c
}

// CodeOf returns the code of the first AppError in err's chain, or
// fallback when there is none.
func CodeOf(err error, fallback string) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return fallback
}

var (
	ErrBadRequest         = New("BAD_REQUEST", "Malformed request", http.StatusBadRequest)
	ErrValidation         = New("VALIDATION_ERROR", "Invalid input", http.StatusBadRequest)
	ErrNotFound           = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrRateLimited        = New("RATE_LIMITED", "Too many requests, please try again later", http.StatusTooManyRequests)
	ErrInternal           = New("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
	ErrServiceUnavailable = New("SERVICE_UNAVAILABLE", "Service temporarily unavailable", http.StatusServiceUnavailable)
)

// Ledger and trading
var (
	ErrLedgerViolation     = New("LEDGER_VIOLATION", "Mutation would break a ledger invariant", http.StatusUnprocessableEntity)
	ErrInsufficientFunds   = New("LEDGER_INSUFFICIENT_FUNDS", "Insufficient cash for this trade", http.StatusUnprocessableEntity)
	ErrInsufficientShares  = New("LEDGER_INSUFFICIENT_SHARES", "Cannot sell more shares than held", http.StatusUnprocessableEntity)
	ErrPositionLimit       = New("LEDGER_POSITION_LIMIT", "Trade would exceed the maximum position size", http.StatusUnprocessableEntity)
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", "Account state changed since the decision was made, retry", http.StatusConflict)
	ErrPriceUnavailable    = New("PRICE_UNAVAILABLE", "No price available for symbol", http.StatusServiceUnavailable)
	ErrUnknownStrategy     = New("UNKNOWN_STRATEGY", "Strategy is not in the catalog", http.StatusBadRequest)
)

var ledgerFamily = []*AppError{ErrLedgerViolation, ErrInsufficientFunds, ErrInsufficientShares, ErrPositionLimit}

// IsLedgerViolation reports whether err is the generic ledger violation or
// one of its specific causes.
func IsLedgerViolation(err error) bool {
	for _, target := range ledgerFamily {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
