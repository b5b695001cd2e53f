package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates the lifecycle states of a marketing campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
)

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignActive, CampaignCompleted:
		return true
	}
	return false
}

// MarketingCampaign is an admin-driven bulk send against a target segment.
// Status moves draft -> active -> completed only through explicit admin action;
// triggers never touch campaigns.
type MarketingCampaign struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	CampaignType    string         `json:"campaign_type" db:"campaign_type"`
	Status          CampaignStatus `json:"status" db:"status"`
	TargetSegmentID uuid.UUID      `json:"target_segment_id" db:"target_segment_id"`
	Content         string         `json:"content" db:"content"`
	Subject         string         `json:"subject" db:"subject"`
	Schedule        map[string]any `json:"schedule" db:"schedule"`
	Metrics         map[string]any `json:"metrics" db:"metrics"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// OutboundJob is one unit of delivery work handed to the messaging
// collaborator. Delivery, retries, and provider selection are entirely the
// collaborator's responsibility.
type OutboundJob struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID uuid.UUID  `json:"customer_id"`
	Channel    string     `json:"channel"` // "email" | "sms" | "push"
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	RuleID     *uuid.UUID `json:"rule_id,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}
