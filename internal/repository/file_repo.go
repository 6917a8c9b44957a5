package repository

import (
	"context"
	"sync"

	"github.com/oskarw/filesentry/internal/domain"
	"gorm.io/gorm"
)

// FileRepository handles file-index operations.
//
// FileRecord is the one entity several components write concurrently (consumer,
// isolation manager, analysis worker), so the repository exposes a per-record
// lock for read-modify-write sequences. The lock is keyed by record ID: paths
// are mutable (the isolation manager moves files), IDs are not, so every
// writer contends on the same key no matter which field it resolved the
// record by. Cross-record state (duplicate flags) stays eventually consistent
// on purpose.
type FileRepository struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*recordLock
}

// recordLock is one keyed lock entry. refs counts holders and waiters so the
// entry can be pruned from the map once nobody references it.
type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewFileRepository creates a new FileRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *FileRepository: repository instance bound to db.
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{
		db:    db,
		locks: make(map[string]*recordLock),
	}
}

// WithRecordLock runs fn while holding the row-level lock for the record ID.
// All read-modify-write sequences on a FileRecord go through this; callers
// that resolved the record by path must re-read it inside the critical
// section, since another writer may have changed it while they waited.
// Entries are dropped from the lock table when the last waiter leaves, so the
// table does not grow with the number of records ever touched.
// Parameters:
//   - id: record ID to lock.
//   - fn: critical section to execute.
// Returns:
//   - error: the error returned by fn.
func (r *FileRepository) WithRecordLock(id string, fn func() error) error {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &recordLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	err := fn()
	l.mu.Unlock()

	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, id)
	}
	r.mu.Unlock()
	return err
}

// lockTableSize reports the number of live keyed-lock entries.
func (r *FileRepository) lockTableSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// GetByPath retrieves a file record by its absolute path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute file path.
// Returns:
//   - *domain.FileRecord: record if found.
//   - error: gorm.ErrRecordNotFound when absent, other errors otherwise.
func (r *FileRepository) GetByPath(ctx context.Context, path string) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	if err := r.db.WithContext(ctx).First(&rec, "path = ?", path).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID retrieves a file record by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - *domain.FileRecord: record if found.
//   - error: gorm.ErrRecordNotFound when absent, other errors otherwise.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new file record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *FileRepository) Create(ctx context.Context, rec *domain.FileRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// Save persists all fields of an existing file record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *FileRepository) Save(ctx context.Context, rec *domain.FileRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// Delete removes a file record by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.FileRecord{}, "id = ?", id).Error
}

// UpdateDuplicateFlag recomputes and persists the duplicate flag for rec.
//
// An empty hash is never a duplicate: empty hashes must not collapse
// together. Otherwise any other record (by identity, not path) sharing the
// same ContentHash makes rec a duplicate, and every sibling sharing the hash
// is flagged along with it. Un-flagging is weaker: a record that stops
// matching keeps its stale true until its own next write or a reconcile
// pass.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record whose flag to recompute; mutated and persisted in place.
// Returns:
//   - bool: the new duplicate state.
//   - error: non-nil if the lookup or persist fails.
func (r *FileRepository) UpdateDuplicateFlag(ctx context.Context, rec *domain.FileRecord) (bool, error) {
	if rec.ContentHash == "" {
		rec.Duplicate = false
		if err := r.db.WithContext(ctx).Model(rec).Update("duplicate", false).Error; err != nil {
			return false, err
		}
		return false, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.FileRecord{}).
		Where("content_hash = ? AND id <> ?", rec.ContentHash, rec.ID).
		Count(&count).Error; err != nil {
		return rec.Duplicate, err
	}

	rec.Duplicate = count > 0
	if rec.Duplicate {
		if err := r.db.WithContext(ctx).Model(&domain.FileRecord{}).
			Where("content_hash = ?", rec.ContentHash).
			Update("duplicate", true).Error; err != nil {
			return rec.Duplicate, err
		}
		return true, nil
	}

	if err := r.db.WithContext(ctx).Model(rec).Update("duplicate", false).Error; err != nil {
		return rec.Duplicate, err
	}
	return false, nil
}

// ReconcileDuplicates recomputes the duplicate flag for every record in one
// pass, correcting the stale sibling flags the per-write path leaves behind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil if the update fails.
func (r *FileRepository) ReconcileDuplicates(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE file_records SET duplicate = (
			content_hash <> '' AND content_hash IN (
				SELECT content_hash FROM (
					SELECT content_hash FROM file_records
					WHERE content_hash <> ''
					GROUP BY content_hash HAVING COUNT(*) > 1
				) dup_hashes
			)
		)`).Error
}

// ListForAnalysis retrieves fingerprinted, present-on-disk records that have
// not been analyzed since their last scan.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.FileRecord: records awaiting downstream analysis.
//   - error: non-nil if the query fails.
func (r *FileRepository) ListForAnalysis(ctx context.Context, limit int) ([]domain.FileRecord, error) {
	var recs []domain.FileRecord
	if err := r.db.WithContext(ctx).
		Where("content_hash <> ''").
		Where("kind <> ?", domain.FileKindMissing).
		Where("ai_analyzed_at IS NULL OR last_scanned > ai_analyzed_at").
		Order("last_scanned ASC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// List retrieves file records with pagination, optionally filtered by kind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: file kind filter; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.FileRecord: matching records.
//   - error: non-nil if the query fails.
func (r *FileRepository) List(ctx context.Context, kind domain.FileKind, limit, offset int) ([]domain.FileRecord, error) {
	var recs []domain.FileRecord
	query := r.db.WithContext(ctx)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.
		Order("path ASC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// CountByKind counts records per file kind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: file kind to count.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *FileRepository) CountByKind(ctx context.Context, kind domain.FileKind) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.FileRecord{}).
		Where("kind = ?", kind).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
