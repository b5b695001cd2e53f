// Package campaign is the admin-facing boundary for bulk sends. Campaigns are
// never touched by triggers; they move draft -> active -> completed only
// through explicit admin action.
package campaign

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Store handles CRUD for marketing_campaigns.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new campaign with status=draft regardless of input.
func (s *Store) Create(ctx context.Context, c *domain.MarketingCampaign) error {
	if c.Name == "" {
		return domain.NewValidationError("name", "name is required")
	}
	if c.TargetSegmentID == uuid.Nil {
		return domain.NewValidationError("target_segment_id", "target segment is required")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Status = domain.CampaignDraft

	scheduleJSON, _ := json.Marshal(orEmpty(c.Schedule))
	metricsJSON, _ := json.Marshal(orEmpty(c.Metrics))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketing_campaigns (id, name, campaign_type, status, target_segment_id, content, subject, schedule, metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		c.ID, c.Name, c.CampaignType, c.Status, c.TargetSegmentID, c.Content, c.Subject, scheduleJSON, metricsJSON)
	return domain.NewStoreError("campaigns.create", err)
}

// Get returns a campaign by id, NotFound if unknown.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.MarketingCampaign, error) {
	var c domain.MarketingCampaign
	var scheduleJSON, metricsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, campaign_type, status, target_segment_id, content, COALESCE(subject,''), schedule, metrics, created_at, updated_at
		FROM marketing_campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CampaignType, &c.Status, &c.TargetSegmentID, &c.Content, &c.Subject,
		&scheduleJSON, &metricsJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("campaign", id.String())
	}
	if err != nil {
		return nil, domain.NewStoreError("campaigns.get", err)
	}
	json.Unmarshal(scheduleJSON, &c.Schedule)
	json.Unmarshal(metricsJSON, &c.Metrics)
	return &c, nil
}

// List returns all campaigns, newest first.
func (s *Store) List(ctx context.Context) ([]*domain.MarketingCampaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, campaign_type, status, target_segment_id, content, COALESCE(subject,''), schedule, metrics, created_at, updated_at
		FROM marketing_campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.NewStoreError("campaigns.list", err)
	}
	defer rows.Close()

	campaigns := []*domain.MarketingCampaign{}
	for rows.Next() {
		var c domain.MarketingCampaign
		var scheduleJSON, metricsJSON []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.CampaignType, &c.Status, &c.TargetSegmentID, &c.Content,
			&c.Subject, &scheduleJSON, &metricsJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		json.Unmarshal(scheduleJSON, &c.Schedule)
		json.Unmarshal(metricsJSON, &c.Metrics)
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}

// updateStatus writes the status and metrics after a send attempt.
func (s *Store) updateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus, metrics map[string]any) error {
	metricsJSON, _ := json.Marshal(orEmpty(metrics))
	_, err := s.db.ExecContext(ctx,
		`UPDATE marketing_campaigns SET status=$2, metrics=$3, updated_at=NOW() WHERE id = $1`,
		id, status, metricsJSON)
	return domain.NewStoreError("campaigns.update_status", err)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
