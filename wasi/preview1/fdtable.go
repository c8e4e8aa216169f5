package preview1

import (
	"io"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

const (
	// PreopenCount is the number of reserved guest descriptors: three
	// standard streams followed by the two directory roots.
	PreopenCount = 5

	// MaxDescriptors bounds granted descriptor numbers.
	MaxDescriptors = 1280

	// MaxPathLen is the exclusive upper bound on guest path lengths.
	MaxPathLen = 512
)

// Reserved guest descriptors.
const (
	FDStdin int32 = iota
	FDStdout
	FDStderr
	FDRoot
	FDCwd
)

// Stdio holds the standard streams of an instance.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Preopen is one entry of the fixed preopen table.
type Preopen struct {
	GuestPath string
	HostPath  string
	Slot      int32
	fd        int
}

// Available reports whether the preopen has a usable host handle.
func (p Preopen) Available() bool {
	return p.fd >= 0
}

// HostFD returns the host handle, or -1.
func (p Preopen) HostFD() int {
	return p.fd
}

// Kind classifies a guest descriptor.
type Kind uint8

const (
	KindStdio Kind = iota
	KindPreopen
	KindGranted
)

// Descriptor is the host view of a guest descriptor.
type Descriptor struct {
	// Reader and Writer are set for standard streams not backed by a host file.
	Reader io.Reader
	Writer io.Writer
	Host   int
	Guest  int32
	Kind   Kind
}

// IsStream reports whether the descriptor is a standard stream served
// through Reader or Writer rather than a host handle.
func (d Descriptor) IsStream() bool {
	return d.Host < 0
}

// FDTable maps guest descriptors to host handles for one bridge. Guests
// see the reserved range 0..4 and the numbers handed out by Grant; any
// other number is rejected.
type FDTable struct {
	preopens [PreopenCount]Preopen
	streams  [3]any
	// granted maps guest descriptors to the guest path they were opened at.
	granted map[int32]string
	cwd     string
	log     *zap.Logger
}

// NewFDTable opens both directory roots at root (the working directory when
// empty). A root that cannot be opened is logged and left unavailable.
func NewFDTable(stdio Stdio, root string, log *zap.Logger) *FDTable {
	if log == nil {
		log = zap.NewNop()
	}
	t := &FDTable{
		granted: make(map[int32]string),
		cwd:     "/",
		log:     log,
	}

	t.streams[FDStdin] = stdio.Stdin
	t.streams[FDStdout] = stdio.Stdout
	t.streams[FDStderr] = stdio.Stderr
	for i, name := range []string{"<stdin>", "<stdout>", "<stderr>"} {
		t.preopens[i] = Preopen{Slot: int32(i), GuestPath: name, fd: -1}
		if f, ok := t.streams[i].(*os.File); ok {
			t.preopens[i].HostPath = f.Name()
			t.preopens[i].fd = int(f.Fd())
		}
	}

	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Warn("resolve start directory", zap.Error(err))
		}
		root = wd
	}
	for _, p := range []struct {
		slot  int32
		guest string
	}{{FDRoot, "/"}, {FDCwd, "./"}} {
		t.preopens[p.slot] = Preopen{Slot: p.slot, GuestPath: p.guest, HostPath: root, fd: -1}
		if root == "" {
			continue
		}
		fd, err := unix.Open(root, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err != nil {
			log.Warn("preopen unavailable",
				zap.String("guest", p.guest),
				zap.String("host", root),
				zap.Error(err))
			continue
		}
		t.preopens[p.slot].fd = fd
	}
	return t
}

// Preopens returns a copy of the preopen table.
func (t *FDTable) Preopens() []Preopen {
	out := make([]Preopen, PreopenCount)
	copy(out, t.preopens[:])
	return out
}

// Lookup returns the descriptor behind a guest number.
func (t *FDTable) Lookup(fd int32) (Descriptor, errno.Errno) {
	switch {
	case fd >= FDStdin && fd <= FDStderr:
		d := Descriptor{Guest: fd, Kind: KindStdio, Host: t.preopens[fd].fd}
		if d.Host < 0 {
			d.Reader, _ = t.streams[fd].(io.Reader)
			d.Writer, _ = t.streams[fd].(io.Writer)
		}
		if d.Host < 0 && d.Reader == nil && d.Writer == nil {
			return Descriptor{}, errno.Badf
		}
		return d, errno.Success
	case fd == FDRoot || fd == FDCwd:
		if !t.preopens[fd].Available() {
			return Descriptor{}, errno.Badf
		}
		return Descriptor{Guest: fd, Kind: KindPreopen, Host: t.preopens[fd].fd}, errno.Success
	}
	if _, ok := t.granted[fd]; ok {
		return Descriptor{Guest: fd, Kind: KindGranted, Host: int(fd)}, errno.Success
	}
	return Descriptor{}, errno.Badf
}

// Resolve returns the host handle of a preopened or granted descriptor.
// Standard streams are not directories and resolve to Badf.
func (t *FDTable) Resolve(fd int32) (int, errno.Errno) {
	if fd >= FDStdin && fd <= FDStderr {
		return -1, errno.Badf
	}
	d, code := t.Lookup(fd)
	if code != errno.Success {
		return -1, code
	}
	return d.Host, errno.Success
}

// Grant records a freshly opened host handle, opened at the absolute guest
// path guest, and returns its guest number. The handle is owned by the table
// from here on, including on failure.
func (t *FDTable) Grant(host int, guest string) (int32, errno.Errno) {
	if host < PreopenCount {
		dup, err := unix.FcntlInt(uintptr(host), unix.F_DUPFD_CLOEXEC, PreopenCount)
		unix.Close(host)
		if err != nil {
			return -1, errno.FromError(err)
		}
		host = dup
	}
	if host >= MaxDescriptors {
		unix.Close(host)
		return -1, errno.Nfile
	}
	t.granted[int32(host)] = guest
	return int32(host), errno.Success
}

// Close releases a guest descriptor. Standard streams are never closed.
func (t *FDTable) Close(fd int32) errno.Errno {
	switch {
	case fd >= FDStdin && fd <= FDStderr:
		return errno.Success
	case fd == FDRoot || fd == FDCwd:
		p := &t.preopens[fd]
		if !p.Available() {
			return errno.Badf
		}
		err := unix.Close(p.fd)
		p.fd = -1
		if err != nil {
			return errno.FromError(err)
		}
		return errno.Success
	}
	if _, ok := t.granted[fd]; !ok {
		return errno.Badf
	}
	delete(t.granted, fd)
	if err := unix.Close(int(fd)); err != nil {
		return errno.FromError(err)
	}
	return errno.Success
}

// Granted returns the number of granted descriptors.
func (t *FDTable) Granted() int {
	return len(t.granted)
}

// CloseAll releases every granted and preopened handle.
func (t *FDTable) CloseAll() {
	for fd := range t.granted {
		if err := unix.Close(int(fd)); err != nil {
			t.log.Debug("close granted descriptor", zap.Int32("fd", fd), zap.Error(err))
		}
	}
	clear(t.granted)
	for _, slot := range []int32{FDRoot, FDCwd} {
		p := &t.preopens[slot]
		if p.Available() {
			unix.Close(p.fd)
			p.fd = -1
		}
	}
}

// Stdio returns the configured standard streams.
func (t *FDTable) Stdio() Stdio {
	var s Stdio
	s.Stdin, _ = t.streams[FDStdin].(io.Reader)
	s.Stdout, _ = t.streams[FDStdout].(io.Writer)
	s.Stderr, _ = t.streams[FDStderr].(io.Writer)
	return s
}

// Cwd returns the guest working directory. It starts at "/" and only
// moves through Chdir.
func (t *FDTable) Cwd() string {
	return t.cwd
}

// Chdir points the "./" preopen at host, a directory handle the table takes
// ownership of, and records guest as the new working directory.
func (t *FDTable) Chdir(host int, guest string) {
	p := &t.preopens[FDCwd]
	if p.Available() {
		if err := unix.Close(p.fd); err != nil {
			t.log.Debug("close previous working directory", zap.Error(err))
		}
	}
	p.fd = host
	t.cwd = guest
}

// GuestPath returns the absolute guest path a directory descriptor stands
// for: "/" for the root, the working directory for "./", and the open path
// of a granted descriptor.
func (t *FDTable) GuestPath(fd int32) (string, errno.Errno) {
	if _, code := t.Resolve(fd); code != errno.Success {
		return "", code
	}
	switch fd {
	case FDRoot:
		return "/", errno.Success
	case FDCwd:
		return t.cwd, errno.Success
	}
	return t.granted[fd], errno.Success
}

// Prestat returns the preopen behind a directory root descriptor.
func (t *FDTable) Prestat(fd int32) (Preopen, errno.Errno) {
	if fd != FDRoot && fd != FDCwd {
		return Preopen{}, errno.Badf
	}
	p := t.preopens[fd]
	if !p.Available() {
		return Preopen{}, errno.Badf
	}
	return p, errno.Success
}

// PrestatName returns the guest name of a directory root descriptor.
func (t *FDTable) PrestatName(fd int32) (string, errno.Errno) {
	p, code := t.Prestat(fd)
	if code != errno.Success {
		return "", code
	}
	return p.GuestPath, errno.Success
}

// ResolvePath resolves a guest path against a directory descriptor
// without leaving it. follow expands a final symlink. The caller closes
// the returned Location.
func (t *FDTable) ResolvePath(fd int32, p string, follow bool) (Location, errno.Errno) {
	dir, code := t.checkPath(fd, p)
	if code != errno.Success {
		return Location{}, code
	}
	return Beneath(dir, p, follow)
}

// OpenPath opens a guest path beneath a directory descriptor. The host
// handle is not granted; the caller owns it.
func (t *FDTable) OpenPath(fd int32, p string, flags int, mode uint32) (int, errno.Errno) {
	dir, code := t.checkPath(fd, p)
	if code != errno.Success {
		return -1, code
	}
	return OpenBeneath(dir, p, flags, mode)
}

func (t *FDTable) checkPath(fd int32, p string) (int, errno.Errno) {
	if len(p) >= MaxPathLen {
		return -1, errno.Inval
	}
	dir, code := t.Resolve(fd)
	if code != errno.Success {
		return -1, code
	}
	if code := Confine(p); code != errno.Success {
		return -1, code
	}
	return dir, errno.Success
}

// Confine rejects paths that leave their base directory by their text
// alone: absolute paths and lexical escapes through ".." are Notcapable.
// Symlinks are checked while resolving.
func Confine(p string) errno.Errno {
	switch {
	case p == "":
		return errno.Noent
	case strings.IndexByte(p, 0) >= 0:
		return errno.Inval
	case strings.HasPrefix(p, "/"):
		return errno.Notcapable
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errno.Notcapable
	}
	return errno.Success
}
