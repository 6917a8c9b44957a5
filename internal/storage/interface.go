package storage

import (
	"context"
)

// ObjectStorage is the sink large files are staged to before analysis.
// Implementations overwrite idempotently: putting the same object name twice
// is safe and the second write wins.
type ObjectStorage interface {
	// Put uploads the local file under the given object name.
	Put(ctx context.Context, objectName, localPath string) error

	// GetURL returns the URL for accessing an uploaded object.
	GetURL(objectName string) string

	// Exists checks if an object is already present.
	Exists(ctx context.Context, objectName string) (bool, error)

	// Delete removes an object.
	Delete(ctx context.Context, objectName string) error
}
