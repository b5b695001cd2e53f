package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType enumerates the business events that can activate automation rules.
type TriggerType string

const (
	TriggerUserRegistered    TriggerType = "user_registered"
	TriggerPurchaseCompleted TriggerType = "purchase_completed"
	TriggerCartAbandoned     TriggerType = "cart_abandoned"
	TriggerBirthday          TriggerType = "birthday"
	TriggerLoyaltyTierChange TriggerType = "loyalty_tier_change"
	TriggerProductReviewed   TriggerType = "product_reviewed"
)

// KnownTriggerTypes lists every trigger type the dispatcher accepts.
var KnownTriggerTypes = []TriggerType{
	TriggerUserRegistered,
	TriggerPurchaseCompleted,
	TriggerCartAbandoned,
	TriggerBirthday,
	TriggerLoyaltyTierChange,
	TriggerProductReviewed,
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	for _, k := range KnownTriggerTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ActionType enumerates the registered action handlers.
type ActionType string

const (
	ActionSendMessage       ActionType = "send_message"
	ActionAddToSegment      ActionType = "add_to_segment"
	ActionApplyDiscount     ActionType = "apply_discount"
	ActionSendNotification  ActionType = "send_notification"
	ActionAdjustLoyalty     ActionType = "adjust_loyalty_points"
	ActionPersonalizedOffer ActionType = "generate_personalized_offer"
)

// KnownActionTypes lists every action type the executor registry accepts.
var KnownActionTypes = []ActionType{
	ActionSendMessage,
	ActionAddToSegment,
	ActionApplyDiscount,
	ActionSendNotification,
	ActionAdjustLoyalty,
	ActionPersonalizedOffer,
}

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	for _, k := range KnownActionTypes {
		if a == k {
			return true
		}
	}
	return false
}

// AutomationRule is an admin-authored rule binding a trigger to an action.
// Rules are soft-disabled via IsActive, never deleted.
type AutomationRule struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	TriggerType       TriggerType    `json:"trigger_type" db:"trigger_type"`
	TriggerConditions map[string]any `json:"trigger_conditions" db:"trigger_conditions"`
	ActionType        ActionType     `json:"action_type" db:"action_type"`
	ActionConfig      map[string]any `json:"action_config" db:"action_config"`
	IsActive          bool           `json:"is_active" db:"is_active"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`

	// Read-side aggregates sourced from the execution log, populated by
	// list queries only. Not part of the rule's own state.
	TotalExecutions     int `json:"total_executions" db:"-"`
	SucceededExecutions int `json:"succeeded_executions" db:"-"`
}

// RulePatch carries the updatable fields of a rule. Nil fields are left as-is.
type RulePatch struct {
	Name              *string         `json:"name"`
	TriggerType       *TriggerType    `json:"trigger_type"`
	TriggerConditions *map[string]any `json:"trigger_conditions"`
	ActionType        *ActionType     `json:"action_type"`
	ActionConfig      *map[string]any `json:"action_config"`
	IsActive          *bool           `json:"is_active"`
}

// TriggerEvent is an incoming business event handed to the dispatcher.
type TriggerEvent struct {
	Type       TriggerType    `json:"type"`
	CustomerID uuid.UUID      `json:"customer_id"`
	Payload    map[string]any `json:"payload"`
}

// ActionResult is the outcome of a single action handler invocation.
type ActionResult struct {
	Success      bool           `json:"success"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// FailedResult builds a failed ActionResult from an error.
func FailedResult(err error) ActionResult {
	return ActionResult{Success: false, ErrorMessage: err.Error()}
}

// ExecutionStatus is the recorded outcome of a rule firing.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// Execution is one append-only audit row for a rule firing. Immutable once
// written; the execution log exposes no update or delete operation.
type Execution struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	RuleID         uuid.UUID      `json:"rule_id" db:"rule_id"`
	CustomerID     uuid.UUID      `json:"customer_id" db:"customer_id"`
	TriggerPayload map[string]any `json:"trigger_payload" db:"trigger_payload"`
	ResultPayload  ActionResult   `json:"result_payload" db:"result_payload"`
	Status         ExecutionStatus `json:"status" db:"status"`
	ExecutedAt     time.Time      `json:"executed_at" db:"executed_at"`
}
