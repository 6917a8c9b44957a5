//go:build linux

package pipeline

import (
	"os"
	"syscall"
	"time"
)

// changeTime extracts the inode change time from stat metadata.
func changeTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
