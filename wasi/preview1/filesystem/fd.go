package filesystem

import (
	"context"
	"io"
	"math"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

// stdioRights drops positioning from standard streams.
const stdioRights = abi.RightsAll &^ (abi.RightFdSeek | abi.RightFdTell)

// Host-visible status flags fd_fdstat_set_flags may change.
var mutableFlags = unix.O_APPEND | unix.O_NONBLOCK | unix.O_DSYNC | unix.O_SYNC | oRsync

// seekable returns the host handle of params[i] for positioned I/O.
// Standard streams never have a position.
func seekable(c *preview1.Call, i int) (int, errno.Errno) {
	d, code := hostFD(c, i)
	if code != errno.Success {
		return -1, code
	}
	if d.Kind == preview1.KindStdio {
		return -1, errno.Spipe
	}
	return d.Host, errno.Success
}

func (h *Host) FdAdvise(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	if d.Kind == preview1.KindStdio {
		return errno.Perm
	}
	var st unix.Stat_t
	if err := unix.Fstat(d.Host, &st); err != nil {
		return errno.FromError(err)
	}
	if abi.FiletypeFromStatMode(uint32(st.Mode)) == abi.FiletypeSocketStream {
		return errno.Perm
	}
	return errno.Nosys
}

func (h *Host) FdAllocate(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	if d.Kind == preview1.KindStdio {
		return errno.Perm
	}
	offset, length := c.U64(1), c.U64(2)
	if offset > math.MaxInt64 || length > math.MaxInt64-offset {
		return errno.Fbig
	}

	var st unix.Stat_t
	if err := unix.Fstat(d.Host, &st); err != nil {
		return errno.FromError(err)
	}
	switch abi.FiletypeFromStatMode(uint32(st.Mode)) {
	case abi.FiletypeDirectory, abi.FiletypeSocketStream:
		return errno.Perm
	}
	end := int64(offset + length)
	if end <= st.Size {
		return errno.Success
	}
	if err := unix.Ftruncate(d.Host, end); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) FdClose(_ context.Context, c *preview1.Call) errno.Errno {
	fd := c.FD(0)
	c.Bridge.Dirs().Discard(fd)
	return c.Bridge.FDs().Close(fd)
}

func (h *Host) FdDatasync(_ context.Context, c *preview1.Call) errno.Errno {
	return syncFD(c, datasync)
}

func (h *Host) FdSync(_ context.Context, c *preview1.Call) errno.Errno {
	return syncFD(c, unix.Fsync)
}

func syncFD(c *preview1.Call, fn func(int) error) errno.Errno {
	d, code := hostFD(c, 0)
	switch code {
	case errno.Success:
	case errno.Spipe:
		return errno.Inval
	default:
		return code
	}
	if err := fn(d.Host); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) FdFdstatGet(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	buf := c.Mem.Slice(c.U32(1), abi.FdstatSize)

	stat := abi.Fdstat{RightsBase: abi.RightsAll, RightsInheriting: abi.RightsAll}
	if d.Kind == preview1.KindStdio {
		stat.RightsBase, stat.RightsInheriting = stdioRights, stdioRights
	}
	if d.IsStream() {
		stat.Encode(buf)
		return errno.Success
	}

	var st unix.Stat_t
	if err := unix.Fstat(d.Host, &st); err != nil {
		return errno.FromError(err)
	}
	stat.Filetype = abi.FiletypeFromStatMode(uint32(st.Mode))
	if d.Kind == preview1.KindStdio && term.IsTerminal(d.Host) {
		stat.Filetype = abi.FiletypeCharacterDevice
	}
	flags, err := unix.FcntlInt(uintptr(d.Host), unix.F_GETFL, 0)
	if err != nil {
		return errno.FromError(err)
	}
	stat.Flags = wasiFdflags(flags)
	stat.Encode(buf)
	return errno.Success
}

// FdFdstatSetFlags changes the status flags of a descriptor the guest
// opened. Standard streams share their open file with the embedder, so
// their flags are never changed.
func (h *Host) FdFdstatSetFlags(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	if d.Kind == preview1.KindStdio {
		return errno.Notsup
	}
	cur, err := unix.FcntlInt(uintptr(d.Host), unix.F_GETFL, 0)
	if err != nil {
		return errno.FromError(err)
	}
	next := cur&^mutableFlags | hostFdflags(uint16(c.U32(1)))
	if _, err := unix.FcntlInt(uintptr(d.Host), unix.F_SETFL, next); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) FdFilestatGetUnstable(_ context.Context, c *preview1.Call) errno.Errno {
	return h.fdFilestat(c)
}

func (h *Host) FdFilestatGet(_ context.Context, c *preview1.Call) errno.Errno {
	return h.fdFilestat(c)
}

func (h *Host) fdFilestat(c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	ptr := c.U32(1)
	c.Mem.Check(ptr, filestatSize(c.Vintage))

	var stat abi.Filestat
	if !d.IsStream() {
		var st unix.Stat_t
		if err := unix.Fstat(d.Host, &st); err != nil {
			return errno.FromError(err)
		}
		stat = toFilestat(&st)
	}
	putFilestat(c, ptr, &stat)
	return errno.Success
}

func (h *Host) FdFilestatSetSize(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := hostFD(c, 0)
	if code != errno.Success {
		return code
	}
	size := c.U64(1)
	if size > math.MaxInt64 {
		return errno.Fbig
	}
	if err := unix.Ftruncate(d.Host, int64(size)); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) FdFilestatSetTimes(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := hostFD(c, 0)
	if code != errno.Success {
		return code
	}
	var st unix.Stat_t
	if err := unix.Fstat(d.Host, &st); err != nil {
		return errno.FromError(err)
	}
	atim, mtim, code := newTimes(&st, c.U64(1), c.U64(2), uint16(c.U32(3)))
	if code != errno.Success {
		return code
	}
	tv := []unix.Timeval{unix.NsecToTimeval(atim), unix.NsecToTimeval(mtim)}
	if err := unix.Futimes(d.Host, tv); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

func (h *Host) FdPread(_ context.Context, c *preview1.Call) errno.Errno {
	fd, code := seekable(c, 0)
	if code != errno.Success {
		return code
	}
	nptr := c.U32(4)
	c.Mem.Check(nptr, 4)
	iovs := c.Mem.IOVecs(c.U32(1), c.U32(2))
	n, err := unix.Preadv(fd, iovs, c.I64(3))
	if err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint32(nptr, uint32(n))
	return errno.Success
}

func (h *Host) FdPwrite(_ context.Context, c *preview1.Call) errno.Errno {
	fd, code := seekable(c, 0)
	if code != errno.Success {
		return code
	}
	nptr := c.U32(4)
	c.Mem.Check(nptr, 4)
	iovs := c.Mem.IOVecs(c.U32(1), c.U32(2))
	n, err := unix.Pwritev(fd, iovs, c.I64(3))
	if err != nil && n <= 0 {
		return errno.FromError(err)
	}
	c.Mem.WriteUint32(nptr, uint32(n))
	return errno.Success
}

func (h *Host) FdPrestatGet(_ context.Context, c *preview1.Call) errno.Errno {
	p, code := c.Bridge.FDs().Prestat(c.FD(0))
	if code != errno.Success {
		return code
	}
	abi.PutPrestat(c.Mem.Slice(c.U32(1), abi.PrestatSize), uint32(len(p.GuestPath))+1)
	return errno.Success
}

func (h *Host) FdPrestatDirName(_ context.Context, c *preview1.Call) errno.Errno {
	dir, code := c.Bridge.FDs().PrestatName(c.FD(0))
	if code != errno.Success {
		return code
	}
	name := append([]byte(dir), 0)
	if n := int(c.U32(2)); n < len(name) {
		name = name[:n]
	}
	c.Mem.Write(c.U32(1), name)
	return errno.Success
}

func (h *Host) FdRead(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	nptr := c.U32(3)
	c.Mem.Check(nptr, 4)
	iovs := c.Mem.IOVecs(c.U32(1), c.U32(2))

	var n int
	var err error
	if d.IsStream() {
		if d.Reader == nil {
			return errno.Badf
		}
		n, err = readStream(d.Reader, iovs)
	} else {
		n, err = unix.Readv(d.Host, iovs)
	}
	if err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint32(nptr, uint32(n))
	return errno.Success
}

func (h *Host) FdWrite(_ context.Context, c *preview1.Call) errno.Errno {
	d, code := c.Bridge.FDs().Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	nptr := c.U32(3)
	c.Mem.Check(nptr, 4)
	iovs := c.Mem.IOVecs(c.U32(1), c.U32(2))

	var n int
	var err error
	if d.IsStream() {
		if d.Writer == nil {
			return errno.Badf
		}
		n, err = writeStream(d.Writer, iovs)
	} else {
		n, err = unix.Writev(d.Host, iovs)
	}
	if err != nil && n <= 0 {
		return errno.FromError(err)
	}
	c.Mem.WriteUint32(nptr, uint32(n))
	return errno.Success
}

func (h *Host) FdReaddir(_ context.Context, c *preview1.Call) errno.Errno {
	fd := c.FD(0)
	dir, code := c.Bridge.FDs().Resolve(fd)
	if code != errno.Success {
		return code
	}
	used := c.U32(4)
	c.Mem.Check(used, 4)
	buf := c.Mem.Slice(c.U32(1), c.U32(2))

	n, err := c.Bridge.Dirs().Read(fd, dir, buf, c.U64(3))
	if err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint32(used, uint32(n))
	return errno.Success
}

// Whence tables. wasi_unstable numbers its whence values differently from
// the snapshot.
var (
	unstableWhence = [...]int{io.SeekCurrent, io.SeekEnd, io.SeekStart}
	snapshotWhence = [...]int{io.SeekStart, io.SeekCurrent, io.SeekEnd}
)

func (h *Host) FdSeekUnstable(_ context.Context, c *preview1.Call) errno.Errno {
	return seek(c, unstableWhence)
}

func (h *Host) FdSeek(_ context.Context, c *preview1.Call) errno.Errno {
	return seek(c, snapshotWhence)
}

func seek(c *preview1.Call, table [3]int) errno.Errno {
	fd, code := seekable(c, 0)
	if code != errno.Success {
		return code
	}
	whence := c.U32(2)
	if whence >= uint32(len(table)) {
		return errno.Inval
	}
	result := c.U32(3)
	c.Mem.Check(result, 8)

	off, err := unix.Seek(fd, c.I64(1), table[whence])
	if err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint64(result, uint64(off))
	return errno.Success
}

func (h *Host) FdTell(_ context.Context, c *preview1.Call) errno.Errno {
	fd, code := seekable(c, 0)
	if code != errno.Success {
		return code
	}
	result := c.U32(1)
	c.Mem.Check(result, 8)

	off, err := unix.Seek(fd, 0, io.SeekCurrent)
	if err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint64(result, uint64(off))
	return errno.Success
}
