package random

import (
	"context"
	"crypto/rand"
	"errors"
	"io"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

// maxStalls bounds consecutive empty reads from a misbehaving source.
const maxStalls = 16

type Host struct {
	source io.Reader
}

func NewHost() *Host {
	return &Host{source: rand.Reader}
}

// NewHostWithSource creates a host reading from r instead of crypto/rand.
func NewHostWithSource(r io.Reader) *Host {
	return &Host{source: r}
}

func (h *Host) Capabilities() []preview1.Capability {
	return []preview1.Capability{
		preview1.Func("random_get", h.Get, api.ValueTypeI32, api.ValueTypeI32),
	}
}

// Get fills the guest buffer (params[0], params[1]) completely. Interrupted
// or would-block reads are retried; more than maxStalls reads in a row
// without data fail with Io.
func (h *Host) Get(_ context.Context, c *preview1.Call) errno.Errno {
	buf := c.Mem.Slice(c.U32(0), c.U32(1))
	stalls := 0
	for len(buf) > 0 {
		n, err := h.source.Read(buf)
		buf = buf[n:]
		if n > 0 {
			stalls = 0
		}
		switch {
		case err == nil, errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			if n > 0 {
				continue
			}
			if stalls++; stalls > maxStalls {
				return errno.Io
			}
		case errors.Is(err, io.EOF):
			if len(buf) > 0 {
				return errno.Io
			}
		default:
			return errno.FromError(err)
		}
	}
	return errno.Success
}
