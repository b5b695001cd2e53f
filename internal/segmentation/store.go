package segmentation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/commerce-marketing/internal/domain"
)

const countCacheTTL = 10 * time.Minute

// Store persists segment definitions and membership, and answers live
// criteria evaluations via the compiler. The redis-backed count cache is
// advisory only; send targeting always goes through ResolveMembers.
type Store struct {
	db    *sql.DB
	redis *redis.Client
}

// NewStore creates a segment store. The redis client is optional; with a nil
// client count caching is skipped entirely.
func NewStore(db *sql.DB, rdb *redis.Client) *Store {
	return &Store{db: db, redis: rdb}
}

// Create validates the criteria, persists the segment, and computes the
// initial member count. Validation failures leave nothing persisted.
func (s *Store) Create(ctx context.Context, seg *domain.CustomerSegment) error {
	compiled, err := Compile(seg.Criteria)
	if err != nil {
		return err
	}

	count, err := s.runCount(ctx, compiled)
	if err != nil {
		return err
	}

	if seg.ID == uuid.Nil {
		seg.ID = uuid.New()
	}
	seg.CachedMemberCount = count

	criteriaJSON, err := json.Marshal(seg.Criteria)
	if err != nil {
		return domain.NewValidationError("criteria", "criteria document is not serializable")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO marketing_segments (id, name, description, criteria, cached_member_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		seg.ID, seg.Name, seg.Description, criteriaJSON, count)
	if err != nil {
		return domain.NewStoreError("segments.create", err)
	}

	s.cacheCount(ctx, seg.ID, count)
	return nil
}

// Get returns a segment by id, NotFound if unknown.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.CustomerSegment, error) {
	var seg domain.CustomerSegment
	var criteriaJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description,''), criteria, cached_member_count, created_at, updated_at
		FROM marketing_segments WHERE id = $1`, id,
	).Scan(&seg.ID, &seg.Name, &seg.Description, &criteriaJSON, &seg.CachedMemberCount, &seg.CreatedAt, &seg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFound("segment", id.String())
	}
	if err != nil {
		return nil, domain.NewStoreError("segments.get", err)
	}
	json.Unmarshal(criteriaJSON, &seg.Criteria)
	return &seg, nil
}

// List returns all segments, newest first.
func (s *Store) List(ctx context.Context) ([]*domain.CustomerSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description,''), criteria, cached_member_count, created_at, updated_at
		FROM marketing_segments ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.NewStoreError("segments.list", err)
	}
	defer rows.Close()

	segments := []*domain.CustomerSegment{}
	for rows.Next() {
		var seg domain.CustomerSegment
		var criteriaJSON []byte
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Description, &criteriaJSON,
			&seg.CachedMemberCount, &seg.CreatedAt, &seg.UpdatedAt); err != nil {
			continue
		}
		json.Unmarshal(criteriaJSON, &seg.Criteria)
		segments = append(segments, &seg)
	}
	return segments, rows.Err()
}

// TestCriteria is the dry-run path: compile and count, persist nothing.
func (s *Store) TestCriteria(ctx context.Context, criteria map[string]any) (int, error) {
	compiled, err := Compile(criteria)
	if err != nil {
		return 0, err
	}
	return s.runCount(ctx, compiled)
}

// RefreshMemberCount recomputes the advisory count from live criteria and
// writes it back. Safe to run concurrently with dispatch; the count is
// allowed to lag.
func (s *Store) RefreshMemberCount(ctx context.Context, segmentID uuid.UUID) (int, error) {
	seg, err := s.Get(ctx, segmentID)
	if err != nil {
		return 0, err
	}
	compiled, err := Compile(seg.Criteria)
	if err != nil {
		return 0, err
	}
	count, err := s.runCount(ctx, compiled)
	if err != nil {
		return 0, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE marketing_segments SET cached_member_count = $2, updated_at = NOW() WHERE id = $1`,
		segmentID, count)
	if err != nil {
		return 0, domain.NewStoreError("segments.refresh", err)
	}
	s.cacheCount(ctx, segmentID, count)
	return count, nil
}

// CachedCount returns the redis-cached count for dashboards, falling back to
// the persisted advisory value. Never used for send targeting.
func (s *Store) CachedCount(ctx context.Context, segmentID uuid.UUID) (int, error) {
	if s.redis != nil {
		v, err := s.redis.Get(ctx, countCacheKey(segmentID)).Int()
		if err == nil {
			return v, nil
		}
	}
	seg, err := s.Get(ctx, segmentID)
	if err != nil {
		return 0, err
	}
	return seg.CachedMemberCount, nil
}

// ResolveMembers re-evaluates the segment's criteria live and returns the
// current members. This is the source of truth for campaign sends.
func (s *Store) ResolveMembers(ctx context.Context, segmentID uuid.UUID) ([]domain.Customer, error) {
	seg, err := s.Get(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	compiled, err := Compile(seg.Criteria)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, compiled.MemberSQL, compiled.Args...)
	if err != nil {
		return nil, domain.NewStoreError("segments.members", err)
	}
	defer rows.Close()

	var members []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.Phone, &c.FirstName, &c.LastName,
			&c.LoyaltyTier, &c.LoyaltyPoints, &c.TotalSpent); err != nil {
			log.Printf("[SegmentStore] member scan error: %v", err)
			continue
		}
		members = append(members, c)
	}
	return members, rows.Err()
}

// AddMember inserts a membership row. Idempotent under the
// (segment_id, customer_id) uniqueness constraint: a duplicate insert is a
// no-op and reports added=false.
func (s *Store) AddMember(ctx context.Context, segmentID, customerID uuid.UUID) (added bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO marketing_segment_members (segment_id, customer_id, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (segment_id, customer_id) DO NOTHING`,
		segmentID, customerID)
	if err != nil {
		return false, domain.NewStoreError("segments.add_member", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) runCount(ctx context.Context, compiled *CompiledQuery) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, compiled.CountSQL, compiled.Args...).Scan(&count); err != nil {
		return 0, domain.NewStoreError("segments.count", err)
	}
	return count, nil
}

func (s *Store) cacheCount(ctx context.Context, segmentID uuid.UUID, count int) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, countCacheKey(segmentID), count, countCacheTTL).Err(); err != nil {
		log.Printf("[SegmentStore] count cache write failed: %v", err)
	}
}

func countCacheKey(segmentID uuid.UUID) string {
	return fmt.Sprintf("segment:count:%s", segmentID)
}
