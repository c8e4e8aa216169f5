package filesystem

import (
	"context"
	"path"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

func (h *Host) PathCreateDirectory(_ context.Context, c *preview1.Call) errno.Errno {
	loc, code := resolvePath(c, 0, 1, false)
	if code != errno.Success {
		return code
	}
	defer loc.Close()
	if err := unix.Mkdirat(loc.Dir, loc.Name, DirMode); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) PathFilestatGetUnstable(_ context.Context, c *preview1.Call) errno.Errno {
	return h.pathFilestat(c)
}

func (h *Host) PathFilestatGet(_ context.Context, c *preview1.Call) errno.Errno {
	return h.pathFilestat(c)
}

func (h *Host) pathFilestat(c *preview1.Call) errno.Errno {
	ptr := c.U32(4)
	c.Mem.Check(ptr, filestatSize(c.Vintage))
	loc, code := resolvePath(c, 0, 2, following(c.U32(1)))
	if code != errno.Success {
		return code
	}
	defer loc.Close()

	var st unix.Stat_t
	if err := unix.Fstatat(loc.Dir, loc.Name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errno.FromError(err)
	}
	stat := toFilestat(&st)
	putFilestat(c, ptr, &stat)
	return errno.Success
}

func (h *Host) PathFilestatSetTimes(_ context.Context, c *preview1.Call) errno.Errno {
	loc, code := resolvePath(c, 0, 2, following(c.U32(1)))
	if code != errno.Success {
		return code
	}
	defer loc.Close()

	var st unix.Stat_t
	if err := unix.Fstatat(loc.Dir, loc.Name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errno.FromError(err)
	}
	atim, mtim, code := newTimes(&st, c.U64(4), c.U64(5), uint16(c.U32(6)))
	if code != errno.Success {
		return code
	}
	ts := []unix.Timespec{unix.NsecToTimespec(atim), unix.NsecToTimespec(mtim)}
	if err := unix.UtimesNanoAt(loc.Dir, loc.Name, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) PathLink(_ context.Context, c *preview1.Call) errno.Errno {
	src, code := resolvePath(c, 0, 2, following(c.U32(1)))
	if code != errno.Success {
		return code
	}
	defer src.Close()
	dst, code := resolvePath(c, 4, 5, false)
	if code != errno.Success {
		return code
	}
	defer dst.Close()
	if err := unix.Linkat(src.Dir, src.Name, dst.Dir, dst.Name, 0); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

// PathOpen opens a file beneath a directory descriptor and grants the guest
// a new descriptor for it.
func (h *Host) PathOpen(_ context.Context, c *preview1.Call) errno.Errno {
	fdptr := c.U32(8)
	c.Mem.Check(fdptr, 4)
	fds := c.Bridge.FDs()
	base, code := fds.GuestPath(c.FD(0))
	if code != errno.Success {
		return code
	}

	p := c.String(2)
	flags := openFlags(c.U32(1), uint16(c.U32(4)), c.U64(5), uint16(c.U32(7)))
	host, code := fds.OpenPath(c.FD(0), p, flags, CreateMode)
	if code != errno.Success {
		return code
	}
	fd, code := fds.Grant(host, path.Join(base, p))
	if code != errno.Success {
		return code
	}
	c.Mem.WriteUint32(fdptr, uint32(fd))
	return errno.Success
}

func openFlags(dirflags uint32, oflags uint16, rights uint64, fdflags uint16) int {
	flags := unix.O_CLOEXEC
	switch {
	case rights&abi.RightFdRead != 0 && rights&abi.RightFdWrite != 0:
		flags |= unix.O_RDWR
	case rights&abi.RightFdWrite != 0:
		flags |= unix.O_WRONLY
	default:
		flags |= unix.O_RDONLY
	}
	if oflags&abi.OflagCreat != 0 {
		flags |= unix.O_CREAT
	}
	if oflags&abi.OflagDirectory != 0 {
		flags |= unix.O_DIRECTORY
	}
	if oflags&abi.OflagExcl != 0 {
		flags |= unix.O_EXCL
	}
	if oflags&abi.OflagTrunc != 0 {
		flags |= unix.O_TRUNC
	}
	if dirflags&abi.LookupSymlinkFollow == 0 {
		flags |= unix.O_NOFOLLOW
	}
	return flags | hostFdflags(fdflags)
}

func (h *Host) PathReadlink(_ context.Context, c *preview1.Call) errno.Errno {
	used := c.U32(5)
	c.Mem.Check(used, 4)
	buf := c.Mem.Slice(c.U32(3), c.U32(4))
	loc, code := resolvePath(c, 0, 1, false)
	if code != errno.Success {
		return code
	}
	defer loc.Close()

	n, err := unix.Readlinkat(loc.Dir, loc.Name, buf)
	if err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint32(used, uint32(n))
	return errno.Success
}

func (h *Host) PathRemoveDirectory(_ context.Context, c *preview1.Call) errno.Errno {
	return unlink(c, unix.AT_REMOVEDIR)
}

func (h *Host) PathUnlinkFile(_ context.Context, c *preview1.Call) errno.Errno {
	return unlink(c, 0)
}

func unlink(c *preview1.Call, flags int) errno.Errno {
	loc, code := resolvePath(c, 0, 1, false)
	if code != errno.Success {
		return code
	}
	defer loc.Close()
	if err := unix.Unlinkat(loc.Dir, loc.Name, flags); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) PathRename(_ context.Context, c *preview1.Call) errno.Errno {
	src, code := resolvePath(c, 0, 1, false)
	if code != errno.Success {
		return code
	}
	defer src.Close()
	dst, code := resolvePath(c, 3, 4, false)
	if code != errno.Success {
		return code
	}
	defer dst.Close()
	if err := unix.Renameat(src.Dir, src.Name, dst.Dir, dst.Name); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

// PathSymlink creates a link at the confined new path. Targets that are
// absolute or climb above the root from the link's directory are refused.
func (h *Host) PathSymlink(_ context.Context, c *preview1.Call) errno.Errno {
	target := c.String(0)
	linkPath := c.String(3)
	base, code := c.Bridge.FDs().GuestPath(c.FD(2))
	if code != errno.Success {
		return code
	}
	if code := preview1.SymlinkTarget(base, linkPath, target); code != errno.Success {
		return code
	}
	loc, code := resolvePath(c, 2, 3, false)
	if code != errno.Success {
		return code
	}
	defer loc.Close()
	if err := unix.Symlinkat(target, loc.Dir, loc.Name); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}
