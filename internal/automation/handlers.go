package automation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/content"
	"github.com/ignite/commerce-marketing/internal/domain"
	"github.com/ignite/commerce-marketing/internal/loyalty"
	"github.com/ignite/commerce-marketing/internal/messaging"
	"github.com/ignite/commerce-marketing/internal/segmentation"
)

type ctxKey int

const ruleIDKey ctxKey = 0

// withRuleID tags the context with the currently executing rule so handlers
// can attribute side effects (ledger rows, delivery records) to it.
func withRuleID(ctx context.Context, ruleID uuid.UUID) context.Context {
	return context.WithValue(ctx, ruleIDKey, ruleID)
}

func ruleIDFromContext(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(ruleIDKey).(uuid.UUID); ok {
		return &id
	}
	return nil
}

// RegisterDefaultHandlers wires the six built-in action handlers into the
// executor.
func RegisterDefaultHandlers(e *Executor, db *sql.DB, segments *segmentation.Store,
	ledger *loyalty.Ledger, messenger messaging.Messenger, renderer *content.Renderer) {
	e.Register(domain.ActionSendMessage, &SendMessageHandler{DB: db, Messenger: messenger, Renderer: renderer})
	e.Register(domain.ActionAddToSegment, &AddToSegmentHandler{Segments: segments})
	e.Register(domain.ActionApplyDiscount, &ApplyDiscountHandler{DB: db})
	e.Register(domain.ActionSendNotification, &SendNotificationHandler{DB: db})
	e.Register(domain.ActionAdjustLoyalty, &AdjustLoyaltyHandler{Ledger: ledger})
	e.Register(domain.ActionPersonalizedOffer, &PersonalizedOfferHandler{DB: db})
}

// SendMessageHandler resolves the customer's contact info, renders the
// configured body, and delegates delivery to the messaging collaborator. A
// delivery record is written either way; a collaborator failure becomes a
// failed result but never propagates.
type SendMessageHandler struct {
	DB        *sql.DB
	Messenger messaging.Messenger
	Renderer  *content.Renderer
}

func (h *SendMessageHandler) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	customer, err := getCustomer(ctx, h.DB, customerID)
	if err != nil {
		return domain.FailedResult(err)
	}

	channel := configString(config, "channel", "email")
	recipient := customer.Email
	if channel == "sms" {
		recipient = customer.Phone
	}
	if recipient == "" {
		return domain.FailedResult(fmt.Errorf("customer %s has no %s contact", customerID, channel))
	}

	subject := h.Renderer.Render(configString(config, "subject", ""), content.CustomerBindings(customer))
	body := h.Renderer.Render(configString(config, "body", ""), content.CustomerBindings(customer))

	job := domain.OutboundJob{
		ID:         uuid.New(),
		CustomerID: customerID,
		Channel:    channel,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		RuleID:     ruleIDFromContext(ctx),
		EnqueuedAt: time.Now(),
	}

	status := "queued"
	var deliveryErr error
	if deliveryErr = h.Messenger.Enqueue(ctx, job); deliveryErr != nil {
		status = "failed"
	}

	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO marketing_deliveries (id, customer_id, channel, recipient, subject, body, status, rule_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		job.ID, customerID, channel, recipient, subject, body, status, job.RuleID)
	if err != nil {
		return domain.FailedResult(domain.NewStoreError("deliveries.insert", err))
	}

	if deliveryErr != nil {
		return domain.FailedResult(&domain.DeliveryError{Err: deliveryErr})
	}
	return domain.ActionResult{Success: true, Details: map[string]any{
		"delivery_id": job.ID.String(),
		"channel":     channel,
		"recipient":   recipient,
	}}
}

// AddToSegmentHandler performs the idempotent membership insert.
type AddToSegmentHandler struct {
	Segments *segmentation.Store
}

func (h *AddToSegmentHandler) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	raw := configString(config, "segment_id", "")
	segmentID, err := uuid.Parse(raw)
	if err != nil {
		return domain.FailedResult(domain.NewValidationError("segment_id", "missing or malformed segment id"))
	}
	if _, err := h.Segments.Get(ctx, segmentID); err != nil {
		return domain.FailedResult(err)
	}

	added, err := h.Segments.AddMember(ctx, segmentID, customerID)
	if err != nil {
		return domain.FailedResult(err)
	}
	return domain.ActionResult{Success: true, Details: map[string]any{
		"segment_id": segmentID.String(),
		"added":      added, // false means the membership already existed
	}}
}

// ApplyDiscountHandler mints a single-use coupon code unique to this
// invocation, with an expiry strictly after issuance.
type ApplyDiscountHandler struct {
	DB *sql.DB
}

func (h *ApplyDiscountHandler) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	discountType := configString(config, "discount_type", "percent")
	discountValue := configFloat(config, "discount_value", 10)
	validDays := configInt(config, "valid_days", 30)
	if validDays < 1 {
		validDays = 1
	}

	code := mintCouponCode()
	issuedAt := time.Now()
	expiresAt := issuedAt.AddDate(0, 0, validDays)

	_, err := h.DB.ExecContext(ctx, `
		INSERT INTO store_coupons (id, code, customer_id, discount_type, discount_value, single_use, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)`,
		uuid.New(), code, customerID, discountType, discountValue, expiresAt, issuedAt)
	if err != nil {
		return domain.FailedResult(domain.NewStoreError("coupons.insert", err))
	}

	return domain.ActionResult{Success: true, Details: map[string]any{
		"coupon_code":    code,
		"discount_type":  discountType,
		"discount_value": discountValue,
		"expires_at":     expiresAt.Format(time.RFC3339),
	}}
}

func mintCouponCode() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "SAVE-" + id[:12]
}

// SendNotificationHandler writes an in-app notification row.
type SendNotificationHandler struct {
	DB *sql.DB
}

func (h *SendNotificationHandler) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	title := configString(config, "title", "")
	body := configString(config, "body", "")
	if title == "" && body == "" {
		return domain.FailedResult(domain.NewValidationError("title", "notification needs a title or body"))
	}

	notificationID := uuid.New()
	_, err := h.DB.ExecContext(ctx, `
		INSERT INTO store_notifications (id, customer_id, title, body, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		notificationID, customerID, title, body)
	if err != nil {
		return domain.FailedResult(domain.NewStoreError("notifications.insert", err))
	}
	return domain.ActionResult{Success: true, Details: map[string]any{
		"notification_id": notificationID.String(),
	}}
}

// AdjustLoyaltyHandler applies a points delta through the ledger. Overdrafts
// surface as a failed result with the balance untouched.
type AdjustLoyaltyHandler struct {
	Ledger *loyalty.Ledger
}

func (h *AdjustLoyaltyHandler) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	points := configInt(config, "points", 0)
	if points == 0 {
		return domain.FailedResult(domain.NewValidationError("points", "points delta must be non-zero"))
	}
	reason := configString(config, "reason", "automation_rule")

	newBalance, err := h.Ledger.Adjust(ctx, customerID, points, reason, ruleIDFromContext(ctx))
	if err != nil {
		return domain.FailedResult(err)
	}
	return domain.ActionResult{Success: true, Details: map[string]any{
		"points_delta": points,
		"new_balance":  newBalance,
	}}
}

// PersonalizedOfferHandler computes discount = base + tierBonus*tier from the
// customer's loyalty tier and persists an offer with a fixed 7-day expiry.
type PersonalizedOfferHandler struct {
	DB *sql.DB
}

const offerValidityDays = 7

func (h *PersonalizedOfferHandler) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	customer, err := getCustomer(ctx, h.DB, customerID)
	if err != nil {
		return domain.FailedResult(err)
	}

	base := configFloat(config, "base_discount", 5)
	tierBonus := configFloat(config, "tier_bonus", 2)
	discount := base + tierBonus*float64(customer.LoyaltyTier)

	offerID := uuid.New()
	expiresAt := time.Now().AddDate(0, 0, offerValidityDays)
	_, err = h.DB.ExecContext(ctx, `
		INSERT INTO store_offers (id, customer_id, discount_percent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		offerID, customerID, discount, expiresAt)
	if err != nil {
		return domain.FailedResult(domain.NewStoreError("offers.insert", err))
	}

	return domain.ActionResult{Success: true, Details: map[string]any{
		"offer_id":         offerID.String(),
		"discount_percent": discount,
		"loyalty_tier":     customer.LoyaltyTier,
		"expires_at":       expiresAt.Format(time.RFC3339),
	}}
}

func getCustomer(ctx context.Context, db *sql.DB, id uuid.UUID) (domain.Customer, error) {
	var c domain.Customer
	err := db.QueryRowContext(ctx, `
		SELECT id, COALESCE(email,''), COALESCE(phone,''), COALESCE(first_name,''), COALESCE(last_name,''),
			loyalty_tier, loyalty_points, total_spent
		FROM store_customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Email, &c.Phone, &c.FirstName, &c.LastName,
		&c.LoyaltyTier, &c.LoyaltyPoints, &c.TotalSpent)
	if err == sql.ErrNoRows {
		return c, domain.NewNotFound("customer", id.String())
	}
	if err != nil {
		return c, domain.NewStoreError("customers.get", err)
	}
	return c, nil
}

// Config lookup helpers. actionConfig arrives as decoded JSON, so numbers are
// float64.

func configString(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func configInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func configFloat(config map[string]any, key string, fallback float64) float64 {
	switch v := config[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return fallback
}
