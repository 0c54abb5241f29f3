// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrOrderNotFound      = errors.New("order not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
)

// ValidationError represents a validation error. Validation failures are
// raised before any state mutation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// InsufficientFundsError is returned when an order's required margin exceeds
// the account's available balance. Shortfall is the missing amount.
type InsufficientFundsError struct {
	UserID    string
	Required  float64
	Available float64
	Shortfall float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: need %.2f, have %.2f (short %.2f)",
		e.UserID, e.Required, e.Available, e.Shortfall)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewInsufficientFundsError creates a new InsufficientFundsError.
func NewInsufficientFundsError(userID string, required, available float64) *InsufficientFundsError {
	return &InsufficientFundsError{
		UserID:    userID,
		Required:  required,
		Available: available,
		Shortfall: required - available,
	}
}

// InvalidStateError represents an attempted transition that is not legal
// from the entity's current state.
type InvalidStateError struct {
	Entity string // "order" or "position"
	ID     string
	From   string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s %s %s from %s", e.Action, e.Entity, e.ID, e.From)
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(entity, id, from, action string) *InvalidStateError {
	return &InvalidStateError{
		Entity: entity,
		ID:     id,
		From:   from,
		Action: action,
	}
}

// PositionNotOpenError guards against double-close races: closing a position
// that has already left the OPEN state fails with this error.
type PositionNotOpenError struct {
	PositionID string
	Status     string
}

func (e *PositionNotOpenError) Error() string {
	return fmt.Sprintf("position %s is not open (status %s)", e.PositionID, e.Status)
}

// NewPositionNotOpenError creates a new PositionNotOpenError.
func NewPositionNotOpenError(positionID, status string) *PositionNotOpenError {
	return &PositionNotOpenError{
		PositionID: positionID,
		Status:     status,
	}
}

// QuoteUnavailableError is returned when margin or valuation cannot price an
// instrument because no quote has been seen for it.
type QuoteUnavailableError struct {
	Token  uint32
	Symbol string
}

func (e *QuoteUnavailableError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("quote unavailable for %s (token %d)", e.Symbol, e.Token)
	}
	return fmt.Sprintf("quote unavailable for token %d", e.Token)
}

func (e *QuoteUnavailableError) Unwrap() error {
	return ErrQuoteUnavailable
}

// NewQuoteUnavailableError creates a new QuoteUnavailableError.
func NewQuoteUnavailableError(token uint32, symbol string) *QuoteUnavailableError {
	return &QuoteUnavailableError{
		Token:  token,
		Symbol: symbol,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
