// Package preview1test runs preview1 capabilities against an in-memory
// guest module for tests.
package preview1test

import (
	"context"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/experimental/wazerotest"

	"github.com/wippyai/wasi-bridge/memory"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

// Harness couples a bridge with a one-page fake guest memory.
type Harness struct {
	T       testing.TB
	Bridge  *preview1.Bridge
	Module  *wazerotest.Module
	Memory  *wazerotest.Memory
	Vintage preview1.Vintage
}

// Quiet returns a configuration with empty stdin and discarded output.
func Quiet() *preview1.Config {
	return preview1.NewConfig().
		WithStdin(strings.NewReader("")).
		WithStdout(io.Discard).
		WithStderr(io.Discard)
}

// New creates a harness for cfg (Quiet when nil) using the snapshot vintage.
// The bridge is closed when the test ends.
func New(t testing.TB, cfg *preview1.Config) *Harness {
	t.Helper()
	if cfg == nil {
		cfg = Quiet()
	}
	mem := wazerotest.NewFixedMemory(wazerotest.PageSize)
	b := preview1.New(cfg)
	t.Cleanup(b.Close)
	return &Harness{
		T:       t,
		Bridge:  b,
		Module:  wazerotest.NewModule(mem),
		Memory:  mem,
		Vintage: preview1.Snapshot,
	}
}

// Invoke calls c through its host function adapter and returns the status
// left in the result slot.
func (h *Harness) Invoke(c preview1.Capability, params ...uint64) errno.Errno {
	h.T.Helper()
	if len(params) != len(c.Params) {
		h.T.Fatalf("%s: expected %d params, got %d", c.Name, len(c.Params), len(params))
	}
	stack := make([]uint64, max(len(params), len(c.Results)))
	copy(stack, params)
	ctx := preview1.WithBridge(context.Background(), h.Bridge)
	c.GoFunc(h.Vintage)(ctx, h.Module, stack)
	if len(c.Results) == 0 {
		return errno.Success
	}
	return errno.Errno(uint32(stack[0]))
}

// Fault invokes c and returns the memory fault it raised, or nil.
func (h *Harness) Fault(c preview1.Capability, params ...uint64) (err error) {
	h.T.Helper()
	defer memory.Recover(&err)
	h.Invoke(c, params...)
	return nil
}

// Find returns the capability named name from caps.
func Find(t testing.TB, caps []preview1.Capability, name string) preview1.Capability {
	t.Helper()
	for _, c := range caps {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("capability %q not found", name)
	return preview1.Capability{}
}

// PutString writes s at off and returns its length as a parameter.
func (h *Harness) PutString(off uint32, s string) uint64 {
	copy(h.Memory.Bytes[off:], s)
	return uint64(len(s))
}

// PutIOVec writes one scatter/gather element at off.
func (h *Harness) PutIOVec(off, buf, n uint32) {
	binary.LittleEndian.PutUint32(h.Memory.Bytes[off:], buf)
	binary.LittleEndian.PutUint32(h.Memory.Bytes[off+4:], n)
}

// U32 reads a little-endian u32 at off.
func (h *Harness) U32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.Memory.Bytes[off:])
}

// U64 reads a little-endian u64 at off.
func (h *Harness) U64(off uint32) uint64 {
	return binary.LittleEndian.Uint64(h.Memory.Bytes[off:])
}

// Bytes returns n bytes of guest memory at off.
func (h *Harness) Bytes(off, n uint32) []byte {
	return h.Memory.Bytes[off : off+n]
}

// Expect fails the test when got differs from want.
func (h *Harness) Expect(name string, want, got errno.Errno) {
	h.T.Helper()
	if want != got {
		h.T.Fatalf("%s: expected %s, got %s", name, want.Name(), got.Name())
	}
}
