package automation

import (
	"context"
	"log"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Dispatcher matches incoming trigger events against active automation rules
// and hands matches to the action executor. Per invocation it walks
// Idle -> RuleLookup -> {NoMatch | Matched -> Execute} -> Idle, synchronously
// and one rule at a time, in ascending rule-id order.
type Dispatcher struct {
	store    *Store
	executor *Executor
}

func NewDispatcher(store *Store, executor *Executor) *Dispatcher {
	return &Dispatcher{store: store, executor: executor}
}

// RuleOutcome reports one rule firing within a dispatch.
type RuleOutcome struct {
	RuleID      uuid.UUID           `json:"rule_id"`
	RuleName    string              `json:"rule_name"`
	ExecutionID uuid.UUID           `json:"execution_id"`
	Result      domain.ActionResult `json:"result"`
}

// Dispatch evaluates every active rule with the event's trigger type. A
// single rule's failure is isolated: it is logged and the next matching rule
// still runs. Every firing, success or failure, appends exactly one
// execution row.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.TriggerEvent) ([]RuleOutcome, error) {
	if !event.Type.Valid() {
		return nil, domain.NewValidationError("type", "unknown trigger type "+string(event.Type))
	}

	rules, err := d.store.ListActiveRulesByTrigger(ctx, event.Type)
	if err != nil {
		return nil, err
	}

	outcomes := []RuleOutcome{}
	for _, rule := range rules {
		if !MatchConditions(rule.TriggerConditions, event.Payload) {
			continue
		}
		outcomes = append(outcomes, d.fire(ctx, rule, event.CustomerID, event.Payload))
	}
	return outcomes, nil
}

// DispatchRule fires one rule explicitly, skipping condition matching. Used
// by the trigger-automation endpoint when the caller names the rule. Inactive
// rules are rejected before any execution: they must never reach the
// executor.
func (d *Dispatcher) DispatchRule(ctx context.Context, ruleID, customerID uuid.UUID, payload map[string]any) (RuleOutcome, error) {
	rule, err := d.store.GetRule(ctx, ruleID)
	if err != nil {
		return RuleOutcome{}, err
	}
	if !rule.IsActive {
		return RuleOutcome{}, domain.NewValidationError("rule_id", "rule is not active")
	}
	return d.fire(ctx, rule, customerID, payload), nil
}

// fire executes one rule and always appends an execution row, even when the
// action failed. A log append failure is itself logged but cannot un-run the
// action; that partial effect is an accepted gap, and the outcome then carries
// no execution id since no row exists.
func (d *Dispatcher) fire(ctx context.Context, rule *domain.AutomationRule, customerID uuid.UUID, payload map[string]any) RuleOutcome {
	result := d.executor.Execute(withRuleID(ctx, rule.ID), rule.ActionType, customerID, rule.ActionConfig)

	status := domain.ExecutionSuccess
	if !result.Success {
		status = domain.ExecutionFailed
		log.Printf("[Dispatcher] rule=%s action=%s failed: %s", rule.ID, rule.ActionType, result.ErrorMessage)
	}

	exec := &domain.Execution{
		RuleID:         rule.ID,
		CustomerID:     customerID,
		TriggerPayload: payload,
		ResultPayload:  result,
		Status:         status,
	}
	if err := d.store.AppendExecution(ctx, exec); err != nil {
		log.Printf("[Dispatcher] execution log append failed for rule=%s: %v", rule.ID, err)
		exec.ID = uuid.Nil
	}

	return RuleOutcome{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		ExecutionID: exec.ID,
		Result:      result,
	}
}

// MatchConditions evaluates trigger conditions as a conjunction of flat field
// comparisons against the event payload. No nested boolean logic. A key
// ending in _min or _max is a numeric threshold on the payload field it
// prefixes; every other key is an equality check.
func MatchConditions(conditions, payload map[string]any) bool {
	for key, expected := range conditions {
		switch {
		case strings.HasSuffix(key, "_min"):
			field := strings.TrimSuffix(key, "_min")
			actual, ok := numeric(payload[field])
			threshold, tok := numeric(expected)
			if !ok || !tok || actual < threshold {
				return false
			}
		case strings.HasSuffix(key, "_max"):
			field := strings.TrimSuffix(key, "_max")
			actual, ok := numeric(payload[field])
			threshold, tok := numeric(expected)
			if !ok || !tok || actual > threshold {
				return false
			}
		default:
			if !looseEqual(payload[key], expected) {
				return false
			}
		}
	}
	return true
}

// looseEqual compares payload and condition values across the numeric types
// JSON decoding produces. The fallback uses DeepEqual: decoded JSON can hold
// slices and maps, which `==` on interface values cannot compare without
// panicking.
func looseEqual(actual, expected any) bool {
	if a, ok := numeric(actual); ok {
		if e, eok := numeric(expected); eok {
			return a == e
		}
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
