package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "VALIDATION_ERROR: Invalid input", ErrValidation.Error())
	assert.Equal(t,
		"INTERNAL_ERROR: An unexpected error occurred (pool closed)",
		ErrInternal.WithError(errors.New("pool closed")).Error())
}

func TestAppError_Derivation(t *testing.T) {
	cause := errors.New("no rows")
	derived := ErrInsufficientFunds.WithDetails("required 1751.75, available 1200.00").WithError(cause)

	assert.Equal(t, ErrInsufficientFunds.Code, derived.Code)
	assert.Equal(t, ErrInsufficientFunds.HTTPStatus, derived.HTTPStatus)
	assert.Equal(t, "required 1751.75, available 1200.00", derived.Details)
	assert.Same(t, cause, derived.Unwrap())
	assert.ErrorIs(t, derived, cause)

	assert.Nil(t, ErrInsufficientFunds.Details, "sentinel is untouched")
	assert.Nil(t, ErrInsufficientFunds.Err)
	assert.Nil(t, ErrValidation.Unwrap())
}

func TestAppError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *AppError
		want   bool
	}{
		{"same sentinel", ErrConcurrencyConflict, ErrConcurrencyConflict, true},
		{"derived with details", ErrPriceUnavailable.WithDetails("AAPL"), ErrPriceUnavailable, true},
		{"wrapped by fmt", fmt.Errorf("execute: %w", ErrInsufficientFunds.WithDetails("need 10")), ErrInsufficientFunds, true},
		{"ad hoc with same code", New("PRICE_UNAVAILABLE", "x", 503), ErrPriceUnavailable, true},
		{"different code", ErrValidation, ErrLedgerViolation, false},
		{"plain error", errors.New("boom"), ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "LEDGER_POSITION_LIMIT", CodeOf(fmt.Errorf("plan: %w", ErrPositionLimit), "internal"))
	assert.Equal(t, "internal", CodeOf(errors.New("boom"), "internal"))
	assert.Equal(t, "internal", CodeOf(nil, "internal"))
}

func TestIsLedgerViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"generic", ErrLedgerViolation, true},
		{"funds", ErrInsufficientFunds.WithDetails("x"), true},
		{"shares", fmt.Errorf("wrap: %w", ErrInsufficientShares), true},
		{"position", ErrPositionLimit, true},
		{"conflict is not a violation", ErrConcurrencyConflict, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLedgerViolation(tt.err))
		})
	}
}

func TestSentinelStatuses(t *testing.T) {
	want := map[*AppError]int{
		ErrBadRequest:          http.StatusBadRequest,
		ErrValidation:          http.StatusBadRequest,
		ErrNotFound:            http.StatusNotFound,
		ErrRateLimited:         http.StatusTooManyRequests,
		ErrInternal:            http.StatusInternalServerError,
		ErrServiceUnavailable:  http.StatusServiceUnavailable,
		ErrLedgerViolation:     http.StatusUnprocessableEntity,
		ErrInsufficientFunds:   http.StatusUnprocessableEntity,
		ErrInsufficientShares:  http.StatusUnprocessableEntity,
		ErrPositionLimit:       http.StatusUnprocessableEntity,
		ErrConcurrencyConflict: http.StatusConflict,
		ErrPriceUnavailable:    http.StatusServiceUnavailable,
		ErrUnknownStrategy:     http.StatusBadRequest,
	}

	codes := make(map[string]bool)
	for e, status := range want {
		assert.Equal(t, status, e.HTTPStatus, e.Code)
		assert.NotEmpty(t, e.Message, e.Code)
		assert.False(t, codes[e.Code], "duplicate code %s", e.Code)
		codes[e.Code] = true
	}
}
