//go:build !linux

package walog

import "os"

// fdatasync falls back to a full fsync(2) on platforms without a
// distinct fdatasync syscall exposed by golang.org/x/sys/unix.
func fdatasync(f *os.File) error {
	return f.Sync()
}
