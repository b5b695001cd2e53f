package campaign

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/content"
	"github.com/ignite/commerce-marketing/internal/domain"
	"github.com/ignite/commerce-marketing/internal/messaging"
	"github.com/ignite/commerce-marketing/internal/segmentation"
)

// Scheduler resolves a campaign's live segment membership and hands one
// outbound job per member to the messaging collaborator. Fan-out beyond the
// enqueue is the collaborator's problem; the scheduler itself runs
// synchronously to completion.
type Scheduler struct {
	store     *Store
	segments  *segmentation.Store
	messenger messaging.Messenger
	renderer  *content.Renderer
}

func NewScheduler(store *Store, segments *segmentation.Store, messenger messaging.Messenger, renderer *content.Renderer) *Scheduler {
	return &Scheduler{store: store, segments: segments, messenger: messenger, renderer: renderer}
}

// SendSummary reports the outcome of one Send call.
type SendSummary struct {
	CampaignID uuid.UUID             `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	Members    int                   `json:"members"`
	Enqueued   int                   `json:"enqueued"`
	Failed     int                   `json:"failed"`
}

// Send transitions a draft or scheduled campaign to active, re-evaluates the
// target segment's membership live (never the cached count), and enqueues one
// job per member. The campaign completes only when every job was accepted;
// partial failures leave it active with a retry_pending marker, and the retry
// itself belongs to the messaging collaborator.
func (s *Scheduler) Send(ctx context.Context, campaignID uuid.UUID) (*SendSummary, error) {
	c, err := s.store.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, domain.NewValidationError("status",
			"campaign must be draft or scheduled to send, is "+string(c.Status))
	}

	if err := s.store.updateStatus(ctx, c.ID, domain.CampaignActive, c.Metrics); err != nil {
		return nil, err
	}

	members, err := s.segments.ResolveMembers(ctx, c.TargetSegmentID)
	if err != nil {
		// Nothing was enqueued yet, so put the campaign back in its pre-send
		// status rather than stranding it active.
		if revertErr := s.store.updateStatus(ctx, c.ID, c.Status, c.Metrics); revertErr != nil {
			log.Printf("[CampaignScheduler] status revert failed campaign=%s: %v", c.ID, revertErr)
		}
		return nil, err
	}

	enqueued, failed := 0, 0
	for _, member := range members {
		recipient := member.Email
		if recipient == "" {
			failed++
			continue
		}
		bindings := content.CustomerBindings(member)
		job := domain.OutboundJob{
			ID:         uuid.New(),
			CustomerID: member.ID,
			Channel:    "email",
			Recipient:  recipient,
			Subject:    s.renderer.Render(c.Subject, bindings),
			Body:       s.renderer.Render(c.Content, bindings),
			CampaignID: &c.ID,
			EnqueuedAt: time.Now(),
		}
		if err := s.messenger.Enqueue(ctx, job); err != nil {
			log.Printf("[CampaignScheduler] enqueue failed campaign=%s customer=%s: %v", c.ID, member.ID, err)
			failed++
			continue
		}
		enqueued++
	}

	metrics := map[string]any{
		"members":  len(members),
		"enqueued": enqueued,
		"failed":   failed,
		"sent_at":  time.Now().Format(time.RFC3339),
	}

	status := domain.CampaignCompleted
	if failed > 0 {
		status = domain.CampaignActive
		metrics["retry_pending"] = true
	}
	if err := s.store.updateStatus(ctx, c.ID, status, metrics); err != nil {
		return nil, err
	}

	return &SendSummary{
		CampaignID: c.ID,
		Status:     status,
		Members:    len(members),
		Enqueued:   enqueued,
		Failed:     failed,
	}, nil
}
