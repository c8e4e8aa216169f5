package clocks

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

// FallbackResolution is reported when the host cannot tell, in nanoseconds.
const FallbackResolution = 1_000_000

var hostClocks = map[uint32]int32{
	abi.ClockRealtime:       unix.CLOCK_REALTIME,
	abi.ClockMonotonic:      unix.CLOCK_MONOTONIC,
	abi.ClockProcessCPUTime: unix.CLOCK_PROCESS_CPUTIME_ID,
	abi.ClockThreadCPUTime:  unix.CLOCK_THREAD_CPUTIME_ID,
}

type Host struct{}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Capabilities() []preview1.Capability {
	return []preview1.Capability{
		preview1.Func("clock_res_get", h.ResGet, api.ValueTypeI32, api.ValueTypeI32),
		preview1.Func("clock_time_get", h.TimeGet, api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32),
	}
}

// ResGet writes the resolution of clock params[0] to params[1].
func (h *Host) ResGet(_ context.Context, c *preview1.Call) errno.Errno {
	id, ok := hostClocks[c.U32(0)]
	if !ok {
		return errno.Inval
	}
	res, err := resolution(id)
	if err != nil || res <= 0 {
		res = FallbackResolution
	}
	c.Mem.WriteUint64(c.U32(1), uint64(res))
	return errno.Success
}

// TimeGet writes the time of clock params[0] to params[2]. The requested
// precision is ignored.
func (h *Host) TimeGet(_ context.Context, c *preview1.Call) errno.Errno {
	id, ok := hostClocks[c.U32(0)]
	if !ok {
		return errno.Inval
	}
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		return errno.FromError(err)
	}
	c.Mem.WriteUint64(c.U32(2), uint64(ts.Nano()))
	return errno.Success
}
