package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
	"gorm.io/gorm"
)

// ErrorLogRepository handles the append-only failure audit trail.
type ErrorLogRepository struct {
	db *gorm.DB
}

// NewErrorLogRepository creates a new ErrorLogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ErrorLogRepository: repository instance bound to db.
func NewErrorLogRepository(db *gorm.DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

// Record inserts a new failure entry with status pending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: failure to record; ID and Status are filled when empty.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ErrorLogRepository) Record(ctx context.Context, entry *domain.ErrorLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = domain.ErrorStatusPending
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// FetchRetryable retrieves up to limit unresolved high-priority entries,
// oldest first. Low-priority failures are not auto-retried by this path; they
// wait for the next natural producer pass.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of entries to return.
// Returns:
//   - []domain.ErrorLogEntry: entries eligible for retry promotion.
//   - error: non-nil if the query fails.
func (r *ErrorLogRepository) FetchRetryable(ctx context.Context, limit int) ([]domain.ErrorLogEntry, error) {
	var entries []domain.ErrorLogEntry
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.ErrorStatus{domain.ErrorStatusPending, domain.ErrorStatusRetrying}).
		Where("file_priority = ?", domain.PriorityHigh).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkRetrying stamps an entry as being retried.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: entry to update; RetryCount and LastAttempt are advanced.
// Returns:
//   - error: non-nil if the update fails.
func (r *ErrorLogRepository) MarkRetrying(ctx context.Context, entry *domain.ErrorLogEntry) error {
	now := time.Now()
	entry.Status = domain.ErrorStatusRetrying
	entry.RetryCount++
	entry.LastAttempt = &now
	return r.db.WithContext(ctx).Save(entry).Error
}

// MarkResolved stamps an entry as resolved.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: entry to update.
// Returns:
//   - error: non-nil if the update fails.
func (r *ErrorLogRepository) MarkResolved(ctx context.Context, entry *domain.ErrorLogEntry) error {
	entry.Status = domain.ErrorStatusResolved
	return r.db.WithContext(ctx).Save(entry).Error
}

// ListByStatus retrieves entries by status with pagination, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status filter; empty means all.
//   - limit: maximum number of entries to return.
//   - offset: number of entries to skip.
// Returns:
//   - []domain.ErrorLogEntry: matching entries.
//   - error: non-nil if the query fails.
func (r *ErrorLogRepository) ListByStatus(ctx context.Context, status domain.ErrorStatus, limit, offset int) ([]domain.ErrorLogEntry, error) {
	var entries []domain.ErrorLogEntry
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByPath counts entries referencing a file path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: file path to match.
// Returns:
//   - int64: number of matching entries.
//   - error: non-nil if the query fails.
func (r *ErrorLogRepository) CountByPath(ctx context.Context, path string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ErrorLogEntry{}).
		Where("file_path = ?", path).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
