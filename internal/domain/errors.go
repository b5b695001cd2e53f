package domain

import "fmt"

// Error codes returned in structured API error bodies.
const (
	CodeValidation          = "validation_error"
	CodeNotFound            = "not_found"
	CodeUnsupportedAction   = "unsupported_action"
	CodeInsufficientBalance = "insufficient_balance"
	CodeDeliveryFailure     = "delivery_failure"
	CodeStoreError          = "store_error"
)

// ValidationError rejects bad admin input (unknown trigger/action type,
// unrecognized segment criteria key) before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError signals an unknown rule, segment, campaign, or customer id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// UnsupportedActionError is returned when an action type is absent from the
// executor registry. Unknown tags fail closed.
type UnsupportedActionError struct {
	ActionType string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action type %q", e.ActionType)
}

// InsufficientBalanceError rejects a loyalty debit that would drive the
// balance negative. The balance is left unchanged.
type InsufficientBalanceError struct {
	CustomerID string
	Balance    int
	Requested  int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient loyalty balance for customer %s: have %d, debit %d",
		e.CustomerID, e.Balance, -e.Requested)
}

// DeliveryError wraps a messaging collaborator failure. It is recorded but
// never aborts the enclosing trigger dispatch.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "outbound delivery failed: " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure. Surfaced as a 5xx and not retried
// by this core.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store error in " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err with the failing operation name; nil stays nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
