package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// =============================================================================
// RULE STORE TESTS
// =============================================================================

func newMockRuleStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestCreateRule_Validation(t *testing.T) {
	tests := []struct {
		name      string
		rule      domain.AutomationRule
		wantField string
	}{
		{
			"missing name",
			domain.AutomationRule{TriggerType: domain.TriggerBirthday, ActionType: domain.ActionApplyDiscount},
			"name",
		},
		{
			"unknown trigger type",
			domain.AutomationRule{Name: "r", TriggerType: "password_reset", ActionType: domain.ActionApplyDiscount},
			"trigger_type",
		},
		{
			"unknown action type",
			domain.AutomationRule{Name: "r", TriggerType: domain.TriggerBirthday, ActionType: "launch_rocket"},
			"action_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockRuleStore(t)
			// No expectations: a validation failure must not touch the database.
			err := store.CreateRule(context.Background(), &tt.rule)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("store touched the database on invalid input: %v", err)
			}
		})
	}
}

func TestCreateRule_RejectsNonScalarConditions(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]any
		wantErr    bool
	}{
		{"array value", map[string]any{"tags": []any{"vip"}}, true},
		{"object value", map[string]any{"meta": map[string]any{"src": "web"}}, true},
		{"scalar values pass", map[string]any{"channel": "web", "order_total_min": 50.0, "gift": true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockRuleStore(t)
			if !tt.wantErr {
				mock.ExpectExec("INSERT INTO marketing_automation_rules").
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := store.CreateRule(context.Background(), &domain.AutomationRule{
				Name:              "r",
				TriggerType:       domain.TriggerPurchaseCompleted,
				ActionType:        domain.ActionSendNotification,
				TriggerConditions: tt.conditions,
			})
			if tt.wantErr {
				var verr *domain.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("error = %v, want ValidationError", err)
				}
			} else if err != nil {
				t.Fatalf("CreateRule() error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestUpdateRule_RejectsNonScalarConditions(t *testing.T) {
	store, mock := newMockRuleStore(t)
	ruleID := uuid.New()

	now := time.Now()
	mock.ExpectQuery("FROM marketing_automation_rules").
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(ruleID, "rule", domain.TriggerBirthday, []byte(`{}`),
				domain.ActionApplyDiscount, []byte(`{}`), true, now, now))
	// No UPDATE expectation: the patch must be rejected before writing.

	bad := map[string]any{"tags": []any{"vip"}}
	_, err := store.UpdateRule(context.Background(), ruleID, domain.RulePatch{TriggerConditions: &bad})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateRule_Persists(t *testing.T) {
	store, mock := newMockRuleStore(t)

	mock.ExpectExec("INSERT INTO marketing_automation_rules").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rule := &domain.AutomationRule{
		Name:        "birthday coupon",
		TriggerType: domain.TriggerBirthday,
		ActionType:  domain.ActionApplyDiscount,
		ActionConfig: map[string]any{
			"discount_value": 15,
		},
		IsActive: true,
	}
	if err := store.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}
	if rule.ID == uuid.Nil {
		t.Error("CreateRule() did not assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateRule_RevalidatesTypeChanges(t *testing.T) {
	store, mock := newMockRuleStore(t)
	ruleID := uuid.New()

	now := time.Now()
	mock.ExpectQuery("FROM marketing_automation_rules").
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(ruleID, "rule", domain.TriggerBirthday, []byte(`{}`),
				domain.ActionApplyDiscount, []byte(`{}`), true, now, now))

	bad := domain.ActionType("launch_rocket")
	_, err := store.UpdateRule(context.Background(), ruleID, domain.RulePatch{ActionType: &bad})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateRule_AppliesPatch(t *testing.T) {
	store, mock := newMockRuleStore(t)
	ruleID := uuid.New()

	now := time.Now()
	mock.ExpectQuery("FROM marketing_automation_rules").
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(ruleID, "old name", domain.TriggerBirthday, []byte(`{}`),
				domain.ActionApplyDiscount, []byte(`{}`), true, now, now))
	mock.ExpectExec("UPDATE marketing_automation_rules").
		WillReturnResult(sqlmock.NewResult(0, 1))

	newName := "new name"
	inactive := false
	updated, err := store.UpdateRule(context.Background(), ruleID, domain.RulePatch{
		Name:     &newName,
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("UpdateRule() error: %v", err)
	}
	if updated.Name != "new name" {
		t.Errorf("Name = %q, want the patched value", updated.Name)
	}
	if updated.IsActive {
		t.Error("IsActive not patched")
	}
	// Unpatched fields survive.
	if updated.ActionType != domain.ActionApplyDiscount {
		t.Errorf("ActionType = %q, want unchanged", updated.ActionType)
	}
}

func TestSetActive_UnknownRule(t *testing.T) {
	store, mock := newMockRuleStore(t)
	ruleID := uuid.New()

	mock.ExpectExec("UPDATE marketing_automation_rules").
		WithArgs(ruleID, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetActive(context.Background(), ruleID, false)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestListRules_IncludesExecutionCounts(t *testing.T) {
	store, mock := newMockRuleStore(t)
	ruleID := uuid.New()

	now := time.Now()
	columns := append(append([]string{}, ruleColumns...), "total_executions", "succeeded_executions")
	mock.ExpectQuery("LEFT JOIN marketing_automation_executions").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(ruleID, "rule", domain.TriggerBirthday, []byte(`{}`),
				domain.ActionApplyDiscount, []byte(`{}`), true, now, now, 10, 7))

	rules, err := store.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules() error: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	if rules[0].TotalExecutions != 10 || rules[0].SucceededExecutions != 7 {
		t.Errorf("counts = %d/%d, want 10/7", rules[0].TotalExecutions, rules[0].SucceededExecutions)
	}
}

func TestListExecutions_DefaultsLimit(t *testing.T) {
	store, mock := newMockRuleStore(t)
	ruleID := uuid.New()

	execColumns := []string{"id", "rule_id", "customer_id", "trigger_payload", "result_payload", "status", "executed_at"}
	mock.ExpectQuery("FROM marketing_automation_executions").
		WithArgs(ruleID, 100).
		WillReturnRows(sqlmock.NewRows(execColumns))
	mock.ExpectQuery("FROM marketing_automation_executions").
		WithArgs(ruleID, 100).
		WillReturnRows(sqlmock.NewRows(execColumns))

	if _, err := store.ListExecutions(context.Background(), ruleID, 0); err != nil {
		t.Fatalf("ListExecutions(0) error: %v", err)
	}
	// Over-large limits clamp back to the default.
	if _, err := store.ListExecutions(context.Background(), ruleID, 10000); err != nil {
		t.Fatalf("ListExecutions(10000) error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppendExecution_AssignsIDAndTimestamp(t *testing.T) {
	store, mock := newMockRuleStore(t)

	mock.ExpectExec("INSERT INTO marketing_automation_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := &domain.Execution{
		RuleID:     uuid.New(),
		CustomerID: uuid.New(),
		Status:     domain.ExecutionSuccess,
	}
	if err := store.AppendExecution(context.Background(), exec); err != nil {
		t.Fatalf("AppendExecution() error: %v", err)
	}
	if exec.ID == uuid.Nil {
		t.Error("execution id not assigned")
	}
	if exec.ExecutedAt.IsZero() {
		t.Error("executed_at not assigned")
	}
}
