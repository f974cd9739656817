//go:build linux

package part

import (
	"os"

	"golang.org/x/sys/unix"
)

// advise hints the kernel that the part file will be accessed
// sequentially. Failure is harmless and ignored.
func advise(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
