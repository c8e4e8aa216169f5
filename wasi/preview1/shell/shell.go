package shell

import (
	"context"
	"errors"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

const i32 = api.ValueTypeI32

// Shell is the interpreter ashell_system runs commands with.
const Shell = "/bin/sh"

// Exit statuses ashell_system reports when no command ran.
const (
	StatusDisabled = 126
	StatusNotRun   = 127
)

type Host struct {
	shell string
}

func NewHost() *Host {
	return &Host{shell: Shell}
}

func (h *Host) Capabilities() []preview1.Capability {
	return []preview1.Capability{
		preview1.Func("ashell_getcwd", h.Getcwd, i32, i32, i32),
		preview1.Func("ashell_chdir", h.Chdir, i32, i32),
		preview1.Func("ashell_fchdir", h.Fchdir, i32),
		preview1.Func("ashell_system", h.System, i32, i32),
		preview1.Func("ashell_getenv", h.Getenv, i32, i32, i32, i32, i32),
		preview1.Func("ashell_setenv", h.Setenv, i32, i32, i32, i32, i32),
		preview1.Func("ashell_unsetenv", h.Unsetenv, i32, i32),
	}
}

// cstring reads the (ptr, len) pair at i, cut at the first NUL.
func cstring(c *preview1.Call, i int) string {
	s := c.String(i)
	if n := strings.IndexByte(s, 0); n >= 0 {
		s = s[:n]
	}
	return s
}

// Getcwd writes the working directory and a NUL terminator. used receives
// the length without the terminator.
func (h *Host) Getcwd(_ context.Context, c *preview1.Call) errno.Errno {
	cwd := c.Bridge.FDs().Cwd()
	buf := c.Mem.Slice(c.U32(0), c.U32(1))
	used := c.U32(2)
	c.Mem.Check(used, 4)
	if len(cwd)+1 > len(buf) {
		return errno.Range
	}
	copy(buf, cwd)
	buf[len(cwd)] = 0
	c.Mem.WriteUint32(used, uint32(len(cwd)))
	return errno.Success
}

// Chdir changes the working directory. Relative paths are taken from the
// current one, and the result must stay beneath the root.
func (h *Host) Chdir(_ context.Context, c *preview1.Call) errno.Errno {
	p := cstring(c, 0)
	if p == "" {
		return errno.Noent
	}
	fds := c.Bridge.FDs()
	guest := p
	if !path.IsAbs(guest) {
		guest = path.Join(fds.Cwd(), guest)
	}
	guest = path.Clean(guest)

	root, code := fds.Resolve(preview1.FDRoot)
	if code != errno.Success {
		return code
	}
	rel := "."
	if guest != "/" {
		rel = strings.TrimPrefix(guest, "/")
	}
	if code := preview1.Confine(rel); code != errno.Success {
		return code
	}
	dir, code := preview1.OpenBeneath(root, rel, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if code != errno.Success {
		return code
	}
	chdir(c, dir, guest)
	return errno.Success
}

// Fchdir makes a directory the guest opened the working directory.
func (h *Host) Fchdir(_ context.Context, c *preview1.Call) errno.Errno {
	fds := c.Bridge.FDs()
	d, code := fds.Lookup(c.FD(0))
	if code != errno.Success {
		return code
	}
	if d.Kind != preview1.KindGranted {
		return errno.Badf
	}
	var st unix.Stat_t
	if err := unix.Fstat(d.Host, &st); err != nil {
		return errno.FromError(err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return errno.Notdir
	}
	guest, code := fds.GuestPath(d.Guest)
	if code != errno.Success {
		return code
	}
	dir, err := unix.FcntlInt(uintptr(d.Host), unix.F_DUPFD_CLOEXEC, preview1.PreopenCount)
	if err != nil {
		return errno.FromError(err)
	}
	chdir(c, dir, guest)
	return errno.Success
}

func chdir(c *preview1.Call, dir int, guest string) {
	c.Bridge.Dirs().Discard(preview1.FDCwd)
	c.Bridge.FDs().Chdir(dir, guest)
	c.Log().Debug("working directory changed", zap.String("cwd", guest))
}

// System runs a command line through the shell in the instance's working
// directory, environment and standard streams, and returns its exit status
// rather than a status code.
func (h *Host) System(ctx context.Context, c *preview1.Call) errno.Errno {
	line := cstring(c, 0)
	if !c.Bridge.AllowSystem() {
		c.Log().Warn("command execution disabled", zap.String("command", line))
		return StatusDisabled
	}

	fds := c.Bridge.FDs()
	stdio := fds.Stdio()
	cmd := exec.CommandContext(ctx, h.shell, "-c", line)
	// a nil Env would inherit the host environment
	cmd.Env = append([]string{}, c.Bridge.Process().Environ()...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdio.Stdin, stdio.Stdout, stdio.Stderr
	if root := fds.Preopens()[preview1.FDRoot].HostPath; root != "" {
		cmd.Dir = filepath.Join(root, filepath.FromSlash(fds.Cwd()))
	}

	err := cmd.Run()
	status := exitStatus(err)
	c.Log().Debug("command finished", zap.String("command", line), zap.Int("status", status), zap.Error(err))
	return errno.Errno(status)
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return StatusNotRun
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}

// Getenv copies the value of a variable and a NUL terminator into buf. used
// receives the value length, so a guest can retry after Range. A variable
// that is not set reports used 0 and an empty string.
func (h *Host) Getenv(_ context.Context, c *preview1.Call) errno.Errno {
	name := cstring(c, 0)
	buf := c.Mem.Slice(c.U32(2), c.U32(3))
	used := c.U32(4)
	c.Mem.Check(used, 4)

	value, _ := c.Bridge.Process().Getenv(name)
	c.Mem.WriteUint32(used, uint32(len(value)))
	if len(value)+1 > len(buf) {
		return errno.Range
	}
	copy(buf, value)
	buf[len(value)] = 0
	return errno.Success
}

func (h *Host) Setenv(_ context.Context, c *preview1.Call) errno.Errno {
	name := cstring(c, 0)
	value := cstring(c, 2)
	if !preview1.ValidEnvName(name) {
		return errno.Inval
	}
	c.Bridge.Process().Setenv(name, value, c.U32(4) != 0)
	return errno.Success
}

func (h *Host) Unsetenv(_ context.Context, c *preview1.Call) errno.Errno {
	name := cstring(c, 0)
	if !preview1.ValidEnvName(name) {
		return errno.Inval
	}
	c.Bridge.Process().Unsetenv(name)
	return errno.Success
}
