// Package messaging is the seam between the engine and the outbound delivery
// collaborator. The engine only enqueues jobs; delivery, provider selection,
// and retry policy live on the other side of the queue.
package messaging

import (
	"context"
	"log"
	"sync"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Messenger hands an outbound job to the delivery collaborator.
type Messenger interface {
	Enqueue(ctx context.Context, job domain.OutboundJob) error
}

// LogMessenger is the fallback used when no broker is configured. It accepts
// every job and logs it, which keeps local development working without
// RabbitMQ.
type LogMessenger struct{}

func (LogMessenger) Enqueue(_ context.Context, job domain.OutboundJob) error {
	log.Printf("[Messaging] (log-only) %s to %s: %q", job.Channel, job.Recipient, job.Subject)
	return nil
}

// Recorder captures enqueued jobs in memory. Test double.
type Recorder struct {
	mu   sync.Mutex
	jobs []domain.OutboundJob

	// FailAfter, when >= 0, fails every Enqueue once len(jobs) reaches it.
	FailAfter int
	FailErr   error
}

func NewRecorder() *Recorder {
	return &Recorder{FailAfter: -1}
}

func (r *Recorder) Enqueue(_ context.Context, job domain.OutboundJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAfter >= 0 && len(r.jobs) >= r.FailAfter {
		return r.FailErr
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of everything enqueued so far.
func (r *Recorder) Jobs() []domain.OutboundJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OutboundJob, len(r.jobs))
	copy(out, r.jobs)
	return out
}
