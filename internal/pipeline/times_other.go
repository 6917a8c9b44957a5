//go:build !linux

package pipeline

import (
	"os"
	"time"
)

// changeTime falls back to the modification time on platforms without a
// portable ctime in stat metadata.
func changeTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
