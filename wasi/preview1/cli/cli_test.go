package cli

import (
	"errors"
	"testing"

	"github.com/tetratelabs/wazero/experimental/wazerotest"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasi-bridge/memory"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
	"github.com/wippyai/wasi-bridge/wasi/preview1/preview1test"
)

func TestArgs(t *testing.T) {
	h := preview1test.New(t, preview1test.Quiet().WithArgs("prog", "-v", "x"))
	caps := NewHost().Capabilities()

	h.Expect("args_sizes_get", errno.Success, h.Invoke(preview1test.Find(t, caps, "args_sizes_get"), 0, 4))
	if h.U32(0) != 3 {
		t.Errorf("expected argc 3, got %d", h.U32(0))
	}
	if h.U32(4) != 10 {
		t.Errorf("expected buffer size 10, got %d", h.U32(4))
	}

	h.Expect("args_get", errno.Success, h.Invoke(preview1test.Find(t, caps, "args_get"), 100, 200))
	for i, want := range []uint32{200, 205, 208} {
		if got := h.U32(100 + uint32(i)*4); got != want {
			t.Errorf("argv[%d]: expected %d, got %d", i, want, got)
		}
	}
	if got := string(h.Bytes(200, 10)); got != "prog\x00-v\x00x\x00" {
		t.Errorf("unexpected argv buffer %q", got)
	}
}

func TestEnviron(t *testing.T) {
	h := preview1test.New(t, preview1test.Quiet().WithEnv(map[string]string{"B": "2", "A": "1"}))
	caps := NewHost().Capabilities()

	h.Expect("environ_sizes_get", errno.Success, h.Invoke(preview1test.Find(t, caps, "environ_sizes_get"), 0, 4))
	if h.U32(0) != 2 || h.U32(4) != 8 {
		t.Fatalf("expected 2 entries in 8 bytes, got %d in %d", h.U32(0), h.U32(4))
	}

	h.Expect("environ_get", errno.Success, h.Invoke(preview1test.Find(t, caps, "environ_get"), 16, 64))
	if got := string(h.Bytes(64, 8)); got != "A=1\x00B=2\x00" {
		t.Errorf("unexpected environ buffer %q", got)
	}
	if h.U32(20) != 68 {
		t.Errorf("expected second pointer 68, got %d", h.U32(20))
	}
}

func TestEmptyArgs(t *testing.T) {
	h := preview1test.New(t, nil)
	caps := NewHost().Capabilities()

	h.Memory.Bytes[0] = 0xff
	h.Expect("args_sizes_get", errno.Success, h.Invoke(preview1test.Find(t, caps, "args_sizes_get"), 0, 4))
	if h.U32(0) != 0 || h.U32(4) != 0 {
		t.Errorf("expected zero sizes, got %d/%d", h.U32(0), h.U32(4))
	}
	// nothing to write, so even an offset at the end of memory is fine
	h.Expect("args_get", errno.Success, h.Invoke(preview1test.Find(t, caps, "args_get"), wazerotest.PageSize, wazerotest.PageSize))
}

func TestArgsGetFault(t *testing.T) {
	h := preview1test.New(t, preview1test.Quiet().WithArgs("program-name"))
	caps := NewHost().Capabilities()

	err := h.Fault(preview1test.Find(t, caps, "args_get"), 0, wazerotest.PageSize-4)
	if !memory.IsFault(err) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	// the pointer slot precedes the buffer check, but nothing was written
	if h.U32(0) != 0 {
		t.Errorf("expected no partial write, got pointer %d", h.U32(0))
	}

	err = h.Fault(preview1test.Find(t, caps, "args_sizes_get"), wazerotest.PageSize-2, 0)
	if !memory.IsFault(err) {
		t.Fatalf("expected memory fault for size pointer, got %v", err)
	}
}

func TestProcExit(t *testing.T) {
	h := preview1test.New(t, nil)
	exit := preview1test.Find(t, NewHost().Capabilities(), "proc_exit")
	if len(exit.Results) != 0 {
		t.Fatalf("proc_exit must not return a value, got %v", exit.Results)
	}

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		h.Invoke(exit, 7)
	}()

	err, ok := recovered.(error)
	if !ok {
		t.Fatalf("expected exit error panic, got %v", recovered)
	}
	var exitErr *sys.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *sys.ExitError, got %T", err)
	}
	if exitErr.ExitCode() != 7 {
		t.Errorf("expected exit code 7, got %d", exitErr.ExitCode())
	}
	code, exited := h.Bridge.Process().ExitCode()
	if !exited || code != 7 {
		t.Errorf("expected recorded exit 7, got %d (exited=%v)", code, exited)
	}
}

func TestSchedYield(t *testing.T) {
	h := preview1test.New(t, nil)
	h.Expect("sched_yield", errno.Success, h.Invoke(preview1test.Find(t, NewHost().Capabilities(), "sched_yield")))
}
