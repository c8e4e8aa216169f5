package preview1

import (
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

const dirStepFlags = unix.O_RDONLY | unix.O_DIRECTORY | unix.O_NOFOLLOW | unix.O_CLOEXEC

// OpenBeneath opens p relative to base without leaving it, walking one
// component at a time.
func OpenBeneath(base int, p string, flags int, mode uint32) (int, errno.Errno) {
	return openWalk(base, p, flags, mode)
}
