package domain

import (
	"time"

	"github.com/google/uuid"
)

// CustomerSegment is a named, criteria-defined subset of customers.
// CachedMemberCount is advisory only: campaign sends always re-evaluate the
// criteria live, so the cached count may lag behind reality.
type CustomerSegment struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Description       string         `json:"description" db:"description"`
	Criteria          map[string]any `json:"criteria" db:"criteria"`
	CachedMemberCount int            `json:"cached_member_count" db:"cached_member_count"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// SegmentMember is a cached (segment, customer) membership row. The unique
// constraint on the pair makes add_to_segment inserts idempotent.
type SegmentMember struct {
	SegmentID  uuid.UUID `json:"segment_id" db:"segment_id"`
	CustomerID uuid.UUID `json:"customer_id" db:"customer_id"`
	AddedAt    time.Time `json:"added_at" db:"added_at"`
}

// Customer is the engine's read view of a storefront customer. The storefront
// owns customer CRUD; the engine only queries these rows for segmentation,
// contact resolution, and loyalty state.
type Customer struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	Phone          string     `json:"phone" db:"phone"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	BirthDate      *time.Time `json:"birth_date" db:"birth_date"`
	LoyaltyTier    int        `json:"loyalty_tier" db:"loyalty_tier"`
	LoyaltyPoints  int        `json:"loyalty_points" db:"loyalty_points"`
	TotalSpent     float64    `json:"total_spent" db:"total_spent"`
	LastPurchaseAt *time.Time `json:"last_purchase_at" db:"last_purchase_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
