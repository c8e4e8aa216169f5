package preview1

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

const dirStepFlags = unix.O_PATH | unix.O_DIRECTORY | unix.O_NOFOLLOW | unix.O_CLOEXEC

// OpenBeneath opens p relative to base without leaving it. The kernel
// enforces confinement with RESOLVE_BENEATH; kernels without openat2 fall
// back to a component walk.
func OpenBeneath(base int, p string, flags int, mode uint32) (int, errno.Errno) {
	how := unix.OpenHow{
		Flags:   uint64(flags),
		Resolve: unix.RESOLVE_BENEATH | unix.RESOLVE_NO_MAGICLINKS,
	}
	if flags&unix.O_CREAT != 0 {
		how.Mode = uint64(mode)
	}
	fd, err := unix.Openat2(base, p, &how)
	switch {
	case err == nil:
		return fd, errno.Success
	case errors.Is(err, unix.EXDEV):
		return -1, errno.Notcapable
	case errors.Is(err, unix.ENOSYS):
		return openWalk(base, p, flags, mode)
	}
	return -1, errno.FromError(err)
}
