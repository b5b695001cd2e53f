package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// handleTrigger ingests a business event. With ruleId set it fires that rule
// explicitly; without it, triggerData.event_type selects and condition-matches
// every active rule of that type.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RuleID      string         `json:"ruleId"`
		UserID      string         `json:"userId"`
		TriggerData map[string]any `json:"triggerData"`
	}
	if !decodeBody(w, r, &input) {
		return
	}

	customerID, err := uuid.Parse(input.UserID)
	if err != nil {
		writeError(w, domain.NewValidationError("userId", "missing or malformed user id"))
		return
	}

	if input.RuleID != "" {
		ruleID, err := uuid.Parse(input.RuleID)
		if err != nil {
			writeError(w, domain.NewValidationError("ruleId", "malformed rule id"))
			return
		}
		outcome, err := s.dispatcher.DispatchRule(r.Context(), ruleID, customerID, input.TriggerData)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if !outcome.Result.Success {
			// The firing is logged either way; an unknown action type is the
			// caller's configuration mistake.
			status = http.StatusUnprocessableEntity
		}
		body := map[string]any{"result": outcome.Result}
		if outcome.ExecutionID != uuid.Nil {
			body["executionId"] = outcome.ExecutionID.String()
		}
		writeJSON(w, status, body)
		return
	}

	eventType, _ := input.TriggerData["event_type"].(string)
	if eventType == "" {
		writeError(w, domain.NewValidationError("triggerData.event_type", "required when ruleId is omitted"))
		return
	}

	outcomes, err := s.dispatcher.Dispatch(r.Context(), domain.TriggerEvent{
		Type:       domain.TriggerType(eventType),
		CustomerID: customerID,
		Payload:    input.TriggerData,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched":  len(outcomes),
		"outcomes": outcomes,
	})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name              string         `json:"name"`
		TriggerType       string         `json:"triggerType"`
		TriggerConditions map[string]any `json:"triggerConditions"`
		ActionType        string         `json:"actionType"`
		ActionConfig      map[string]any `json:"actionConfig"`
		IsActive          *bool          `json:"isActive"`
	}
	if !decodeBody(w, r, &input) {
		return
	}

	rule := &domain.AutomationRule{
		Name:              input.Name,
		TriggerType:       domain.TriggerType(input.TriggerType),
		TriggerConditions: input.TriggerConditions,
		ActionType:        domain.ActionType(input.ActionType),
		ActionConfig:      input.ActionConfig,
		IsActive:          input.IsActive == nil || *input.IsActive,
	}
	if err := s.rules.CreateRule(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"automationId": rule.ID.String()})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	var patch domain.RulePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	rule, err := s.rules.UpdateRule(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleActivateRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleActive(w, r, true)
}

func (s *Server) handlePauseRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleActive(w, r, false)
}

func (s *Server) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	if err := s.rules.SetActive(r.Context(), id, active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id.String(), "isActive": active})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	executions, err := s.rules.ListExecutions(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, domain.NewValidationError(param, "malformed id"))
		return uuid.Nil, false
	}
	return id, true
}
