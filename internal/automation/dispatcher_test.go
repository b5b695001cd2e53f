package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// =============================================================================
// DISPATCHER TESTS
// =============================================================================

var ruleColumns = []string{
	"id", "name", "trigger_type", "trigger_conditions", "action_type", "action_config",
	"is_active", "created_at", "updated_at",
}

func ruleRow(rows *sqlmock.Rows, id uuid.UUID, name string, trigger domain.TriggerType,
	conditions string, action domain.ActionType, config string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, name, trigger, []byte(conditions), action, []byte(config), true, now, now)
}

func newMockDispatcher(t *testing.T, executor *Executor) (*Dispatcher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDispatcher(NewStore(db), executor), mock
}

func okHandler(calls *[]string, name string) HandlerFunc {
	return func(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
		*calls = append(*calls, name)
		return domain.ActionResult{Success: true}
	}
}

func TestDispatch_UnknownTriggerType(t *testing.T) {
	dispatcher, mock := newMockDispatcher(t, NewExecutor())

	_, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       "account_deleted",
		CustomerID: uuid.New(),
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("dispatcher touched the database for an invalid event: %v", err)
	}
}

func TestDispatch_FiresMatchingRulesInOrder(t *testing.T) {
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, okHandler(&calls, "first"))
	executor.Register(domain.ActionAddToSegment, okHandler(&calls, "second"))
	dispatcher, mock := newMockDispatcher(t, executor)

	rows := sqlmock.NewRows(ruleColumns)
	ruleRow(rows, uuid.New(), "welcome note", domain.TriggerUserRegistered, `{}`, domain.ActionSendNotification, `{}`)
	ruleRow(rows, uuid.New(), "new customers segment", domain.TriggerUserRegistered, `{}`, domain.ActionAddToSegment, `{}`)

	mock.ExpectQuery("ORDER BY id ASC").
		WithArgs(domain.TriggerUserRegistered).
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcomes, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       domain.TriggerUserRegistered,
		CustomerID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if calls[0] != "first" || calls[1] != "second" {
		t.Errorf("execution order = %v, want [first second]", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatch_ConditionMismatchSkipsRule(t *testing.T) {
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, okHandler(&calls, "big spender"))
	dispatcher, mock := newMockDispatcher(t, executor)

	rows := sqlmock.NewRows(ruleColumns)
	ruleRow(rows, uuid.New(), "big orders only", domain.TriggerPurchaseCompleted,
		`{"order_total_min": 100}`, domain.ActionSendNotification, `{}`)

	mock.ExpectQuery("ORDER BY id ASC").
		WithArgs(domain.TriggerPurchaseCompleted).
		WillReturnRows(rows)
	// No execution insert: a non-matching rule never fires and never logs.

	outcomes, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       domain.TriggerPurchaseCompleted,
		CustomerID: uuid.New(),
		Payload:    map[string]any{"order_total": 25.0},
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(outcomes))
	}
	if len(calls) != 0 {
		t.Errorf("handler ran %d times for a non-matching event", len(calls))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, HandlerFunc(
		func(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
			calls = append(calls, "broken")
			return domain.FailedResult(errors.New("collaborator down"))
		}))
	executor.Register(domain.ActionAddToSegment, okHandler(&calls, "healthy"))
	dispatcher, mock := newMockDispatcher(t, executor)

	rows := sqlmock.NewRows(ruleColumns)
	ruleRow(rows, uuid.New(), "broken rule", domain.TriggerUserRegistered, `{}`, domain.ActionSendNotification, `{}`)
	ruleRow(rows, uuid.New(), "healthy rule", domain.TriggerUserRegistered, `{}`, domain.ActionAddToSegment, `{}`)

	mock.ExpectQuery("ORDER BY id ASC").
		WithArgs(domain.TriggerUserRegistered).
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcomes, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       domain.TriggerUserRegistered,
		CustomerID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want the second rule to run after the first failed", calls)
	}
	if outcomes[0].Result.Success {
		t.Error("first outcome should be failed")
	}
	if !outcomes[1].Result.Success {
		t.Error("second outcome should be successful")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatch_UnregisteredActionLogsOneFailedExecution(t *testing.T) {
	// Valid enum value, but nothing registered for it: fails closed with
	// exactly one failed execution row.
	dispatcher, mock := newMockDispatcher(t, NewExecutor())
	ruleID := uuid.New()

	rows := sqlmock.NewRows(ruleColumns)
	ruleRow(rows, ruleID, "orphaned", domain.TriggerBirthday, `{}`, domain.ActionApplyDiscount, `{}`)

	mock.ExpectQuery("ORDER BY id ASC").
		WithArgs(domain.TriggerBirthday).
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcomes, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       domain.TriggerBirthday,
		CustomerID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	if outcomes[0].Result.Success {
		t.Error("unregistered action should produce a failed result")
	}
	if !strings.Contains(outcomes[0].Result.ErrorMessage, string(domain.ActionApplyDiscount)) {
		t.Errorf("error message %q should name the action type", outcomes[0].Result.ErrorMessage)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatch_ArrayConditionsDoNotAbortTheLoop(t *testing.T) {
	// Array-valued conditions are rejected on write now, but rows persisted
	// before that check may still carry them. Evaluating one must not take
	// down the rules behind it.
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, okHandler(&calls, "legacy"))
	executor.Register(domain.ActionAddToSegment, okHandler(&calls, "healthy"))
	dispatcher, mock := newMockDispatcher(t, executor)

	rows := sqlmock.NewRows(ruleColumns)
	ruleRow(rows, uuid.New(), "legacy array rule", domain.TriggerPurchaseCompleted,
		`{"tags": ["vip"]}`, domain.ActionSendNotification, `{}`)
	ruleRow(rows, uuid.New(), "healthy rule", domain.TriggerPurchaseCompleted, `{}`, domain.ActionAddToSegment, `{}`)

	mock.ExpectQuery("ORDER BY id ASC").
		WithArgs(domain.TriggerPurchaseCompleted).
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcomes, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       domain.TriggerPurchaseCompleted,
		CustomerID: uuid.New(),
		Payload:    map[string]any{"tags": []any{"vip"}},
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want both rules evaluated", len(outcomes))
	}
	if len(calls) != 2 || calls[1] != "healthy" {
		t.Errorf("calls = %v, want the second rule to run", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatch_AppendFailureClearsExecutionID(t *testing.T) {
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, okHandler(&calls, "fired"))
	dispatcher, mock := newMockDispatcher(t, executor)

	rows := sqlmock.NewRows(ruleColumns)
	ruleRow(rows, uuid.New(), "rule", domain.TriggerUserRegistered, `{}`, domain.ActionSendNotification, `{}`)

	mock.ExpectQuery("ORDER BY id ASC").
		WithArgs(domain.TriggerUserRegistered).
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnError(errors.New("connection reset"))

	outcomes, err := dispatcher.Dispatch(context.Background(), domain.TriggerEvent{
		Type:       domain.TriggerUserRegistered,
		CustomerID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	// The action ran, but no audit row exists: the outcome must not name one.
	if !outcomes[0].Result.Success {
		t.Error("action result lost on append failure")
	}
	if outcomes[0].ExecutionID != uuid.Nil {
		t.Errorf("ExecutionID = %s, want zero for an unwritten row", outcomes[0].ExecutionID)
	}
}

func TestDispatchRule_RejectsInactiveRule(t *testing.T) {
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, okHandler(&calls, "fired"))
	dispatcher, mock := newMockDispatcher(t, executor)
	ruleID := uuid.New()

	now := time.Now()
	mock.ExpectQuery("FROM marketing_automation_rules").
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(ruleID, "paused rule", domain.TriggerBirthday, []byte(`{}`),
				domain.ActionSendNotification, []byte(`{}`), false, now, now))

	_, err := dispatcher.DispatchRule(context.Background(), ruleID, uuid.New(), nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(calls) != 0 {
		t.Error("inactive rule reached the executor")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatchRule_SkipsConditionMatching(t *testing.T) {
	var calls []string
	executor := NewExecutor()
	executor.Register(domain.ActionSendNotification, okHandler(&calls, "fired"))
	dispatcher, mock := newMockDispatcher(t, executor)
	ruleID := uuid.New()

	now := time.Now()
	mock.ExpectQuery("FROM marketing_automation_rules").
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(ruleID, "strict rule", domain.TriggerPurchaseCompleted,
				[]byte(`{"order_total_min": 1000}`), domain.ActionSendNotification, []byte(`{}`), true, now, now))
	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Payload would never match the conditions, but explicit dispatch fires anyway.
	outcome, err := dispatcher.DispatchRule(context.Background(), ruleID, uuid.New(),
		map[string]any{"order_total": 5.0})
	if err != nil {
		t.Fatalf("DispatchRule() error: %v", err)
	}
	if !outcome.Result.Success {
		t.Errorf("outcome = %+v, want success", outcome.Result)
	}
	if len(calls) != 1 {
		t.Errorf("handler calls = %d, want 1", len(calls))
	}
}

// =============================================================================
// CONDITION MATCHING TESTS
// =============================================================================

func TestMatchConditions(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]any
		payload    map[string]any
		want       bool
	}{
		{"empty conditions match anything", map[string]any{}, map[string]any{"x": 1}, true},
		{"nil conditions match anything", nil, nil, true},
		{"equality hit", map[string]any{"channel": "web"}, map[string]any{"channel": "web"}, true},
		{"equality miss", map[string]any{"channel": "web"}, map[string]any{"channel": "app"}, false},
		{"numeric equality across types", map[string]any{"tier": 2}, map[string]any{"tier": float64(2)}, true},
		{"min threshold met", map[string]any{"order_total_min": 100}, map[string]any{"order_total": 150.0}, true},
		{"min threshold equal", map[string]any{"order_total_min": 100}, map[string]any{"order_total": 100.0}, true},
		{"min threshold missed", map[string]any{"order_total_min": 100}, map[string]any{"order_total": 99.0}, false},
		{"max threshold met", map[string]any{"items_max": 3}, map[string]any{"items": 2}, true},
		{"max threshold exceeded", map[string]any{"items_max": 3}, map[string]any{"items": 4}, false},
		{"missing payload field fails threshold", map[string]any{"order_total_min": 10}, map[string]any{}, false},
		{"missing payload field fails equality", map[string]any{"channel": "web"}, map[string]any{}, false},
		{"conjunction needs all", map[string]any{"channel": "web", "order_total_min": 50},
			map[string]any{"channel": "web", "order_total": 20.0}, false},
		{"conjunction all met", map[string]any{"channel": "web", "order_total_min": 50},
			map[string]any{"channel": "web", "order_total": 80.0}, true},
		// Decoded JSON can put slices and maps on either side; comparison must
		// never panic on the uncomparable types.
		{"equal array values", map[string]any{"tags": []any{"vip"}}, map[string]any{"tags": []any{"vip"}}, true},
		{"different array values", map[string]any{"tags": []any{"vip"}}, map[string]any{"tags": []any{"new"}}, false},
		{"array condition vs scalar payload", map[string]any{"tags": []any{"vip"}}, map[string]any{"tags": "vip"}, false},
		{"scalar condition vs array payload", map[string]any{"tags": "vip"}, map[string]any{"tags": []any{"vip"}}, false},
		{"object values compared deeply", map[string]any{"meta": map[string]any{"src": "web"}},
			map[string]any{"meta": map[string]any{"src": "web"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchConditions(tt.conditions, tt.payload); got != tt.want {
				t.Errorf("MatchConditions(%v, %v) = %v, want %v", tt.conditions, tt.payload, got, tt.want)
			}
		})
	}
}
