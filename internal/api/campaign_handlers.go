package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name            string         `json:"name"`
		CampaignType    string         `json:"type"`
		TargetSegmentID string         `json:"targetSegmentId"`
		Subject         string         `json:"subject"`
		Content         string         `json:"content"`
		Schedule        map[string]any `json:"schedule"`
	}
	if !decodeBody(w, r, &input) {
		return
	}

	segmentID, err := uuid.Parse(input.TargetSegmentID)
	if err != nil {
		writeError(w, domain.NewValidationError("targetSegmentId", "missing or malformed segment id"))
		return
	}
	// Reject unknown segments up front rather than at send time.
	if _, err := s.segments.Get(r.Context(), segmentID); err != nil {
		writeError(w, err)
		return
	}

	c := &domain.MarketingCampaign{
		Name:            input.Name,
		CampaignType:    input.CampaignType,
		TargetSegmentID: segmentID,
		Subject:         input.Subject,
		Content:         input.Content,
		Schedule:        input.Schedule,
	}
	if err := s.campaigns.Create(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"campaignId": c.ID.String(),
		"status":     c.Status,
	})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.campaigns.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "campaignID")
	if !ok {
		return
	}
	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "campaignID")
	if !ok {
		return
	}
	summary, err := s.scheduler.Send(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
