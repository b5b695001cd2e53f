package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Store handles CRUD for marketing_automation_rules and appends to the
// marketing_automation_executions audit log. The execution log is append-only:
// no update or delete is exposed anywhere.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRule validates the trigger and action types against the closed enums
// and persists the rule. Validation failures persist nothing.
func (s *Store) CreateRule(ctx context.Context, r *domain.AutomationRule) error {
	if r.Name == "" {
		return domain.NewValidationError("name", "name is required")
	}
	if !r.TriggerType.Valid() {
		return domain.NewValidationError("trigger_type", "unknown trigger type "+string(r.TriggerType))
	}
	if !r.ActionType.Valid() {
		return domain.NewValidationError("action_type", "unknown action type "+string(r.ActionType))
	}
	if err := validateConditions(r.TriggerConditions); err != nil {
		return err
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	conditionsJSON, _ := json.Marshal(orEmpty(r.TriggerConditions))
	configJSON, _ := json.Marshal(orEmpty(r.ActionConfig))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketing_automation_rules (id, name, trigger_type, trigger_conditions, action_type, action_config, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		r.ID, r.Name, r.TriggerType, conditionsJSON, r.ActionType, configJSON, r.IsActive)
	return domain.NewStoreError("rules.create", err)
}

// GetRule returns a rule by id, NotFound if unknown.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*domain.AutomationRule, error) {
	var r domain.AutomationRule
	var conditionsJSON, configJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, trigger_type, trigger_conditions, action_type, action_config, is_active, created_at, updated_at
		FROM marketing_automation_rules WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &r.TriggerType, &conditionsJSON, &r.ActionType, &configJSON,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("rule", id.String())
	}
	if err != nil {
		return nil, domain.NewStoreError("rules.get", err)
	}
	json.Unmarshal(conditionsJSON, &r.TriggerConditions)
	json.Unmarshal(configJSON, &r.ActionConfig)
	return &r, nil
}

// UpdateRule applies a patch to an existing rule. NotFound if the id is
// unknown; type changes are re-validated against the closed enums.
func (s *Store) UpdateRule(ctx context.Context, id uuid.UUID, patch domain.RulePatch) (*domain.AutomationRule, error) {
	r, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.TriggerType != nil {
		if !patch.TriggerType.Valid() {
			return nil, domain.NewValidationError("trigger_type", "unknown trigger type "+string(*patch.TriggerType))
		}
		r.TriggerType = *patch.TriggerType
	}
	if patch.TriggerConditions != nil {
		if err := validateConditions(*patch.TriggerConditions); err != nil {
			return nil, err
		}
		r.TriggerConditions = *patch.TriggerConditions
	}
	if patch.ActionType != nil {
		if !patch.ActionType.Valid() {
			return nil, domain.NewValidationError("action_type", "unknown action type "+string(*patch.ActionType))
		}
		r.ActionType = *patch.ActionType
	}
	if patch.ActionConfig != nil {
		r.ActionConfig = *patch.ActionConfig
	}
	if patch.IsActive != nil {
		r.IsActive = *patch.IsActive
	}

	conditionsJSON, _ := json.Marshal(orEmpty(r.TriggerConditions))
	configJSON, _ := json.Marshal(orEmpty(r.ActionConfig))
	_, err = s.db.ExecContext(ctx, `
		UPDATE marketing_automation_rules
		SET name=$2, trigger_type=$3, trigger_conditions=$4, action_type=$5, action_config=$6, is_active=$7, updated_at=NOW()
		WHERE id = $1`,
		r.ID, r.Name, r.TriggerType, conditionsJSON, r.ActionType, configJSON, r.IsActive)
	if err != nil {
		return nil, domain.NewStoreError("rules.update", err)
	}
	return r, nil
}

// SetActive soft-enables or soft-disables a rule. Rules are never deleted.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE marketing_automation_rules SET is_active=$2, updated_at=NOW() WHERE id = $1`,
		id, active)
	if err != nil {
		return domain.NewStoreError("rules.set_active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("rule", id.String())
	}
	return nil
}

// ListRules returns every rule annotated with total/succeeded execution
// counts. The counts come from a read-side join on the execution log and are
// not part of the rule's own state.
func (s *Store) ListRules(ctx context.Context) ([]*domain.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.trigger_type, r.trigger_conditions, r.action_type, r.action_config,
			r.is_active, r.created_at, r.updated_at,
			COUNT(e.id) AS total_executions,
			COUNT(e.id) FILTER (WHERE e.status = 'success') AS succeeded_executions
		FROM marketing_automation_rules r
		LEFT JOIN marketing_automation_executions e ON e.rule_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, domain.NewStoreError("rules.list", err)
	}
	defer rows.Close()

	rules := []*domain.AutomationRule{}
	for rows.Next() {
		var r domain.AutomationRule
		var conditionsJSON, configJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.TriggerType, &conditionsJSON, &r.ActionType, &configJSON,
			&r.IsActive, &r.CreatedAt, &r.UpdatedAt,
			&r.TotalExecutions, &r.SucceededExecutions); err != nil {
			continue
		}
		json.Unmarshal(conditionsJSON, &r.TriggerConditions)
		json.Unmarshal(configJSON, &r.ActionConfig)
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// ListActiveRulesByTrigger loads the rules the dispatcher evaluates for one
// event. Only is_active rules are ever returned, in ascending id order so
// execution is deterministic.
func (s *Store) ListActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerType) ([]*domain.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, trigger_type, trigger_conditions, action_type, action_config, is_active, created_at, updated_at
		FROM marketing_automation_rules
		WHERE trigger_type = $1 AND is_active = TRUE
		ORDER BY id ASC`, trigger)
	if err != nil {
		return nil, domain.NewStoreError("rules.by_trigger", err)
	}
	defer rows.Close()

	var rules []*domain.AutomationRule
	for rows.Next() {
		var r domain.AutomationRule
		var conditionsJSON, configJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.TriggerType, &conditionsJSON, &r.ActionType, &configJSON,
			&r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			continue
		}
		json.Unmarshal(conditionsJSON, &r.TriggerConditions)
		json.Unmarshal(configJSON, &r.ActionConfig)
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// AppendExecution writes one audit row for a rule firing. This is the only
// write operation on the execution log.
func (s *Store) AppendExecution(ctx context.Context, e *domain.Execution) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}
	payloadJSON, _ := json.Marshal(orEmpty(e.TriggerPayload))
	resultJSON, _ := json.Marshal(e.ResultPayload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketing_automation_executions (id, rule_id, customer_id, trigger_payload, result_payload, status, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.RuleID, e.CustomerID, payloadJSON, resultJSON, e.Status, e.ExecutedAt)
	return domain.NewStoreError("executions.append", err)
}

// ListExecutions returns the newest audit rows for a rule.
func (s *Store) ListExecutions(ctx context.Context, ruleID uuid.UUID, limit int) ([]*domain.Execution, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, customer_id, trigger_payload, result_payload, status, executed_at
		FROM marketing_automation_executions
		WHERE rule_id = $1 ORDER BY executed_at DESC LIMIT $2`, ruleID, limit)
	if err != nil {
		return nil, domain.NewStoreError("executions.list", err)
	}
	defer rows.Close()

	executions := []*domain.Execution{}
	for rows.Next() {
		var e domain.Execution
		var payloadJSON, resultJSON []byte
		if err := rows.Scan(&e.ID, &e.RuleID, &e.CustomerID, &payloadJSON, &resultJSON,
			&e.Status, &e.ExecutedAt); err != nil {
			continue
		}
		json.Unmarshal(payloadJSON, &e.TriggerPayload)
		json.Unmarshal(resultJSON, &e.ResultPayload)
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// validateConditions rejects non-scalar condition values. Matching is a
// conjunction of flat field comparisons, so arrays and nested objects have no
// meaning there and must never persist.
func validateConditions(conditions map[string]any) error {
	for key, v := range conditions {
		switch v.(type) {
		case nil, string, bool, int, int64, float64:
		default:
			return domain.NewValidationError("trigger_conditions."+key,
				"condition values must be scalar")
		}
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
