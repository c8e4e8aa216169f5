package cli

import (
	"context"
	"encoding/binary"
	"runtime"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasi-bridge/memory"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

const i32 = api.ValueTypeI32

type Host struct{}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Capabilities() []preview1.Capability {
	return []preview1.Capability{
		preview1.Func("args_get", h.ArgsGet, i32, i32),
		preview1.Func("args_sizes_get", h.ArgsSizesGet, i32, i32),
		preview1.Func("environ_get", h.EnvironGet, i32, i32),
		preview1.Func("environ_sizes_get", h.EnvironSizesGet, i32, i32),
		preview1.Func("proc_exit", h.ProcExit, i32).Returns(),
		preview1.Func("sched_yield", h.SchedYield),
	}
}

// ArgsGet writes argv pointers at params[0] and the NUL-terminated
// strings at params[1].
func (h *Host) ArgsGet(_ context.Context, c *preview1.Call) errno.Errno {
	writeStrings(c.Mem, c.Bridge.Process().Args(), c.U32(0), c.U32(1))
	return errno.Success
}

func (h *Host) ArgsSizesGet(_ context.Context, c *preview1.Call) errno.Errno {
	count, size := sizes(c.Bridge.Process().Args())
	c.Mem.WriteUint32(c.U32(0), count)
	c.Mem.WriteUint32(c.U32(1), size)
	return errno.Success
}

func (h *Host) EnvironGet(_ context.Context, c *preview1.Call) errno.Errno {
	writeStrings(c.Mem, c.Bridge.Process().Environ(), c.U32(0), c.U32(1))
	return errno.Success
}

func (h *Host) EnvironSizesGet(_ context.Context, c *preview1.Call) errno.Errno {
	count, size := sizes(c.Bridge.Process().Environ())
	c.Mem.WriteUint32(c.U32(0), count)
	c.Mem.WriteUint32(c.U32(1), size)
	return errno.Success
}

// ProcExit records the code and never returns: the exit error unwinds the
// guest and reaches the embedder.
func (h *Host) ProcExit(_ context.Context, c *preview1.Call) errno.Errno {
	code := c.U32(0)
	c.Bridge.Process().Exit(code)
	panic(sys.NewExitError(code))
}

func (h *Host) SchedYield(context.Context, *preview1.Call) errno.Errno {
	runtime.Gosched()
	return errno.Success
}

func sizes(list []string) (count, size uint32) {
	for _, s := range list {
		size += uint32(len(s)) + 1
	}
	return uint32(len(list)), size
}

// writeStrings validates both destination ranges before writing anything.
func writeStrings(mem *memory.Guard, list []string, ptrs, buf uint32) {
	count, size := sizes(list)
	ptrSlots := mem.Slice(ptrs, count*4)
	data := mem.Slice(buf, size)

	off := uint32(0)
	for i, s := range list {
		binary.LittleEndian.PutUint32(ptrSlots[i*4:], buf+off)
		off += uint32(copy(data[off:], s))
		data[off] = 0
		off++
	}
}
