package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
	"gorm.io/gorm"
)

// QueueRepository handles durable scan-queue operations.
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new QueueRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *QueueRepository: repository instance bound to db.
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a fresh work item for a path, ready immediately.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute file path to enqueue.
// Returns:
//   - error: non-nil if the insert fails.
func (r *QueueRepository) Enqueue(ctx context.Context, path string) error {
	item := &domain.QueueItem{
		ID:        uuid.New().String(),
		Path:      path,
		Kind:      domain.QueueKindActiveDescribe,
		NotBefore: time.Now(),
		Attempts:  0,
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// FetchReady retrieves up to limit items whose readiness time has passed.
// Items with fewer attempts come first so never-tried work is not starved
// behind a perpetually retrying item; ties break on oldest readiness time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - now: readiness cutoff.
//   - limit: maximum number of items to return.
// Returns:
//   - []domain.QueueItem: ready items in processing order.
//   - error: non-nil if the query fails.
func (r *QueueRepository) FetchReady(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	var items []domain.QueueItem
	if err := r.db.WithContext(ctx).
		Where("not_before <= ?", now).
		Order("attempts ASC").
		Order("not_before ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a queue item by ID after successful processing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: queue item ID.
// Returns:
//   - error: non-nil if the delete fails.
func (r *QueueRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.QueueItem{}, "id = ?", id).Error
}

// Reschedule persists a failed item with its advanced readiness time and
// incremented attempt count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: queue item with updated Attempts and NotBefore.
// Returns:
//   - error: non-nil if the update fails.
func (r *QueueRepository) Reschedule(ctx context.Context, item *domain.QueueItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// CountPending counts all queued items regardless of readiness.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of queued items.
//   - error: non-nil if the query fails.
func (r *QueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.QueueItem{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountReady counts items whose readiness time has passed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - now: readiness cutoff.
// Returns:
//   - int64: number of ready items.
//   - error: non-nil if the query fails.
func (r *QueueRepository) CountReady(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.QueueItem{}).
		Where("not_before <= ?", now).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// OldestNotBefore returns the earliest readiness time in the queue.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *time.Time: earliest NotBefore, nil when the queue is empty.
//   - error: non-nil if the query fails.
func (r *QueueRepository) OldestNotBefore(ctx context.Context) (*time.Time, error) {
	var item domain.QueueItem
	err := r.db.WithContext(ctx).Order("not_before ASC").First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item.NotBefore, nil
}
