package filesystem

import (
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// CreateMode is the permission set of files created by path_open.
const CreateMode = 0o644

// DirMode is the permission set of directories created by path_create_directory.
const DirMode = 0o777

type Host struct{}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Capabilities() []preview1.Capability {
	return []preview1.Capability{
		preview1.Func("fd_advise", h.FdAdvise, i32, i64, i64, i32),
		preview1.Func("fd_allocate", h.FdAllocate, i32, i64, i64),
		preview1.Func("fd_close", h.FdClose, i32),
		preview1.Func("fd_datasync", h.FdDatasync, i32),
		preview1.Func("fd_fdstat_get", h.FdFdstatGet, i32, i32),
		preview1.Func("fd_fdstat_set_flags", h.FdFdstatSetFlags, i32, i32),
		preview1.Func("fd_filestat_get", h.FdFilestatGetUnstable, i32, i32).Only(preview1.Unstable),
		preview1.Func("fd_filestat_get", h.FdFilestatGet, i32, i32).Only(preview1.Snapshot),
		preview1.Func("fd_filestat_set_size", h.FdFilestatSetSize, i32, i64),
		preview1.Func("fd_filestat_set_times", h.FdFilestatSetTimes, i32, i64, i64, i32),
		preview1.Func("fd_pread", h.FdPread, i32, i32, i32, i64, i32),
		preview1.Func("fd_prestat_get", h.FdPrestatGet, i32, i32),
		preview1.Func("fd_prestat_dir_name", h.FdPrestatDirName, i32, i32, i32),
		preview1.Func("fd_pwrite", h.FdPwrite, i32, i32, i32, i64, i32),
		preview1.Func("fd_read", h.FdRead, i32, i32, i32, i32),
		preview1.Func("fd_readdir", h.FdReaddir, i32, i32, i32, i64, i32),
		preview1.Func("fd_seek", h.FdSeekUnstable, i32, i64, i32, i32).Only(preview1.Unstable),
		preview1.Func("fd_seek", h.FdSeek, i32, i64, i32, i32).Only(preview1.Snapshot),
		preview1.Func("fd_sync", h.FdSync, i32),
		preview1.Func("fd_tell", h.FdTell, i32, i32),
		preview1.Func("fd_write", h.FdWrite, i32, i32, i32, i32),

		preview1.Func("path_create_directory", h.PathCreateDirectory, i32, i32, i32),
		preview1.Func("path_filestat_get", h.PathFilestatGetUnstable, i32, i32, i32, i32, i32).Only(preview1.Unstable),
		preview1.Func("path_filestat_get", h.PathFilestatGet, i32, i32, i32, i32, i32).Only(preview1.Snapshot),
		preview1.Func("path_filestat_set_times", h.PathFilestatSetTimes, i32, i32, i32, i32, i64, i64, i32),
		preview1.Func("path_link", h.PathLink, i32, i32, i32, i32, i32, i32, i32),
		preview1.Func("path_open", h.PathOpen, i32, i32, i32, i32, i32, i64, i64, i32, i32),
		preview1.Func("path_readlink", h.PathReadlink, i32, i32, i32, i32, i32, i32),
		preview1.Func("path_remove_directory", h.PathRemoveDirectory, i32, i32, i32),
		preview1.Func("path_rename", h.PathRename, i32, i32, i32, i32, i32, i32),
		preview1.Func("path_symlink", h.PathSymlink, i32, i32, i32, i32, i32),
		preview1.Func("path_unlink_file", h.PathUnlinkFile, i32, i32, i32),
	}
}

// hostFD returns the host handle of params[i], rejecting standard streams
// that are not backed by a host file.
func hostFD(c *preview1.Call, i int) (preview1.Descriptor, errno.Errno) {
	d, code := c.Bridge.FDs().Lookup(c.FD(i))
	if code != errno.Success {
		return d, code
	}
	if d.IsStream() {
		return d, errno.Spipe
	}
	return d, errno.Success
}

// resolvePath reads the (ptr, len) path at params[pathIdx] and resolves it
// beneath the directory descriptor at params[fdIdx].
func resolvePath(c *preview1.Call, fdIdx, pathIdx int, follow bool) (preview1.Location, errno.Errno) {
	p := c.String(pathIdx)
	return c.Bridge.FDs().ResolvePath(c.FD(fdIdx), p, follow)
}

func following(lookup uint32) bool {
	return lookup&abi.LookupSymlinkFollow != 0
}

func hostFdflags(f uint16) int {
	var flags int
	if f&abi.FdflagAppend != 0 {
		flags |= unix.O_APPEND
	}
	if f&abi.FdflagDsync != 0 {
		flags |= unix.O_DSYNC
	}
	if f&abi.FdflagNonblock != 0 {
		flags |= unix.O_NONBLOCK
	}
	if f&abi.FdflagRsync != 0 {
		flags |= oRsync
	}
	if f&abi.FdflagSync != 0 {
		flags |= unix.O_SYNC
	}
	return flags
}

func wasiFdflags(flags int) uint16 {
	var f uint16
	if flags&unix.O_APPEND != 0 {
		f |= abi.FdflagAppend
	}
	if flags&unix.O_NONBLOCK != 0 {
		f |= abi.FdflagNonblock
	}
	switch {
	case flags&unix.O_SYNC == unix.O_SYNC:
		f |= abi.FdflagSync
	case flags&unix.O_DSYNC != 0:
		f |= abi.FdflagDsync
	}
	return f
}
