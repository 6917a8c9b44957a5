package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
)

// IsolationManager moves files between their original location and the
// quarantine root, keeping the file index's path field pointed at the current
// on-disk location. Path fields are mutated only here; no other component
// moves files.
type IsolationManager struct {
	fileRepo       *repository.FileRepository
	log            *logger.Logger
	quarantineRoot string
}

// NewIsolationManager creates an isolation manager rooted at quarantineRoot.
func NewIsolationManager(fileRepo *repository.FileRepository, log *logger.Logger, quarantineRoot string) *IsolationManager {
	return &IsolationManager{
		fileRepo:       fileRepo,
		log:            log,
		quarantineRoot: quarantineRoot,
	}
}

// Isolate moves the file identified by record id into a quarantine
// subdirectory named by the id.
//
// A missing record propagates gorm.ErrRecordNotFound. A record whose on-disk
// file is already gone is a no-op success: there is nothing to contain.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file record ID.
// Returns:
//   - error: non-nil on lookup failure or when the move cannot complete.
func (m *IsolationManager) Isolate(ctx context.Context, id string) error {
	return m.fileRepo.WithRecordLock(id, func() error {
		rec, err := m.fileRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			m.log.WithField(logger.FieldPath, rec.Path).Info("File already gone, nothing to isolate")
			return nil
		}

		destDir := filepath.Join(m.quarantineRoot, rec.ID)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return fmt.Errorf("create quarantine dir %s: %w", destDir, err)
		}

		destPath := filepath.Join(destDir, filepath.Base(rec.Path))
		if err := moveFile(rec.Path, destPath); err != nil {
			return fmt.Errorf("move %s to quarantine: %w", rec.Path, err)
		}

		rec.Path = destPath
		rec.ParentPath = destDir
		if err := m.fileRepo.Save(ctx, rec); err != nil {
			return err
		}
		m.log.WithFields(logger.Fields{
			logger.FieldFileID: rec.ID,
			logger.FieldPath:   destPath,
		}).Info("File isolated")
		return nil
	})
}

// Release moves a quarantined file into destFolder and restores the record's
// path fields. Symmetric to Isolate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file record ID.
//   - destFolder: directory to restore the file into; created if absent.
// Returns:
//   - error: non-nil on lookup failure or when the move cannot complete.
func (m *IsolationManager) Release(ctx context.Context, id, destFolder string) error {
	return m.fileRepo.WithRecordLock(id, func() error {
		rec, err := m.fileRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			m.log.WithField(logger.FieldPath, rec.Path).Info("File already gone, nothing to release")
			return nil
		}

		if err := os.MkdirAll(destFolder, 0o755); err != nil {
			return fmt.Errorf("create release dir %s: %w", destFolder, err)
		}

		destPath := filepath.Join(destFolder, filepath.Base(rec.Path))
		if err := moveFile(rec.Path, destPath); err != nil {
			return fmt.Errorf("release %s: %w", rec.Path, err)
		}

		rec.Path = destPath
		rec.ParentPath = destFolder
		if err := m.fileRepo.Save(ctx, rec); err != nil {
			return err
		}
		m.log.WithFields(logger.Fields{
			logger.FieldFileID: rec.ID,
			logger.FieldPath:   destPath,
		}).Info("File released from quarantine")
		return nil
	})
}

// Purge deletes the record's parent directory tree and then the record
// itself. Per-file deletion errors are swallowed; purge only fails on lookup
// or on the final record delete.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file record ID.
// Returns:
//   - error: non-nil on lookup failure or when the record cannot be deleted.
func (m *IsolationManager) Purge(ctx context.Context, id string) error {
	return m.fileRepo.WithRecordLock(id, func() error {
		rec, err := m.fileRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		parent := rec.ParentPath
		if parent == "" {
			parent = filepath.Dir(rec.Path)
		}
		m.removeTree(parent)

		if err := m.fileRepo.Delete(ctx, rec.ID); err != nil {
			return err
		}
		m.log.WithFields(logger.Fields{
			logger.FieldFileID: rec.ID,
			logger.FieldPath:   parent,
		}).Info("File purged")
		return nil
	})
}

// removeTree deletes every file under root bottom-up, logging and skipping
// individual failures, then attempts to remove the directories themselves.
func (m *IsolationManager) removeTree(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			m.log.WithError(err).WithField(logger.FieldPath, path).Warn("Purge walk error")
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if err := os.Remove(path); err != nil {
			m.log.WithError(err).WithField(logger.FieldPath, path).Warn("Failed to delete file during purge")
		}
		return nil
	})

	// Deepest directories first.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil {
			m.log.WithError(err).WithField(logger.FieldPath, dirs[i]).Warn("Failed to delete dir during purge")
		}
	}
}

// moveFile renames src to dst, copying across filesystems when rename fails.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
