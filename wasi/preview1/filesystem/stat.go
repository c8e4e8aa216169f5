package filesystem

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

func toFilestat(st *unix.Stat_t) abi.Filestat {
	return abi.Filestat{
		Dev:      uint64(st.Dev),
		Ino:      uint64(st.Ino),
		Filetype: abi.FiletypeFromStatMode(uint32(st.Mode)),
		Nlink:    uint64(st.Nlink),
		Size:     uint64(st.Size),
		Atim:     uint64(st.Atim.Nano()),
		Mtim:     uint64(st.Mtim.Nano()),
		Ctim:     uint64(st.Ctim.Nano()),
	}
}

// putFilestat writes st in the layout of the call's vintage.
func putFilestat(c *preview1.Call, ptr uint32, st *abi.Filestat) {
	if c.Vintage == preview1.Unstable {
		st.EncodeUnstable(c.Mem.Slice(ptr, abi.FilestatSizeUnstable))
		return
	}
	st.Encode(c.Mem.Slice(ptr, abi.FilestatSize))
}

func filestatSize(v preview1.Vintage) uint64 {
	if v == preview1.Unstable {
		return abi.FilestatSizeUnstable
	}
	return abi.FilestatSize
}

// newTimes applies fstflags to the current access and modification times.
// Setting a time and asking for "now" at once is invalid.
func newTimes(cur *unix.Stat_t, atim, mtim uint64, fst uint16) (a, m int64, code errno.Errno) {
	if fst&abi.FstflagAtim != 0 && fst&abi.FstflagAtimNow != 0 {
		return 0, 0, errno.Inval
	}
	if fst&abi.FstflagMtim != 0 && fst&abi.FstflagMtimNow != 0 {
		return 0, 0, errno.Inval
	}

	now := time.Now().UnixNano()
	a, m = cur.Atim.Nano(), cur.Mtim.Nano()
	switch {
	case fst&abi.FstflagAtim != 0:
		a = int64(atim)
	case fst&abi.FstflagAtimNow != 0:
		a = now
	}
	switch {
	case fst&abi.FstflagMtim != 0:
		m = int64(mtim)
	case fst&abi.FstflagMtimNow != 0:
		m = now
	}
	return a, m, errno.Success
}
