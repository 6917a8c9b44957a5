package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
	"gorm.io/gorm"
)

// LabelHistoryRepository handles the append-only classification audit log.
// Rows are write-once; there are no update or delete operations.
type LabelHistoryRepository struct {
	db *gorm.DB
}

// NewLabelHistoryRepository creates a new LabelHistoryRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *LabelHistoryRepository: repository instance bound to db.
func NewLabelHistoryRepository(db *gorm.DB) *LabelHistoryRepository {
	return &LabelHistoryRepository{db: db}
}

// Append records a classification applied to a path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: history row to append; ID is filled when empty.
// Returns:
//   - error: non-nil if the insert fails.
func (r *LabelHistoryRepository) Append(ctx context.Context, entry *domain.LabelHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByPath retrieves the label history for a path, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: file path to match.
//   - limit: maximum number of rows to return.
// Returns:
//   - []domain.LabelHistory: matching rows.
//   - error: non-nil if the query fails.
func (r *LabelHistoryRepository) ListByPath(ctx context.Context, path string, limit int) ([]domain.LabelHistory, error) {
	var entries []domain.LabelHistory
	if err := r.db.WithContext(ctx).
		Where("path = ?", path).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
