package filesystem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/tetratelabs/wazero/experimental/wazerotest"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/memory"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
	"github.com/wippyai/wasi-bridge/wasi/preview1/dirstream"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
	"github.com/wippyai/wasi-bridge/wasi/preview1/preview1test"
)

// Guest memory layout used by these tests.
const (
	pathOff = 100
	iovOff  = 200
	dataOff = 300
	outOff  = 400
	bufOff  = 1024
)

const rw = abi.RightFdRead | abi.RightFdWrite

func capability(t testing.TB, name string, v preview1.Vintage) preview1.Capability {
	t.Helper()
	for _, c := range NewHost().Capabilities() {
		if c.Name == name && c.Vintages.Has(v) {
			return c
		}
	}
	t.Fatalf("capability %q not found for %s", name, v)
	return preview1.Capability{}
}

func newHarness(t *testing.T, root string) *preview1test.Harness {
	return preview1test.New(t, preview1test.Quiet().WithRootDir(root))
}

func call(h *preview1test.Harness, name string, params ...uint64) errno.Errno {
	h.T.Helper()
	return h.Invoke(capability(h.T, name, h.Vintage), params...)
}

// open opens p beneath the root preopen and returns the granted descriptor.
func open(h *preview1test.Harness, p string, oflags uint16, rights uint64) uint64 {
	h.T.Helper()
	n := h.PutString(pathOff, p)
	h.Expect("path_open "+p, errno.Success,
		call(h, "path_open", uint64(preview1.FDRoot), 1, pathOff, n, uint64(oflags), rights, 0, 0, outOff))
	return uint64(h.U32(outOff))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpenWriteReadBack(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)

	fd := open(h, "note.txt", abi.OflagCreat, rw)
	if fd < preview1.PreopenCount {
		t.Fatalf("expected granted descriptor >= %d, got %d", preview1.PreopenCount, fd)
	}

	h.PutString(dataOff, "hello")
	h.PutIOVec(iovOff, dataOff, 5)
	h.Expect("fd_write", errno.Success, call(h, "fd_write", fd, iovOff, 1, outOff))
	if h.U32(outOff) != 5 {
		t.Fatalf("expected 5 bytes written, got %d", h.U32(outOff))
	}

	h.Expect("fd_seek", errno.Success, call(h, "fd_seek", fd, 0, 0, outOff))
	if h.U64(outOff) != 0 {
		t.Fatalf("expected offset 0, got %d", h.U64(outOff))
	}

	h.PutIOVec(iovOff, bufOff, 16)
	h.Expect("fd_read", errno.Success, call(h, "fd_read", fd, iovOff, 1, outOff))
	if got := string(h.Bytes(bufOff, h.U32(outOff))); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}

	h.Expect("fd_close", errno.Success, call(h, "fd_close", fd))
	h.Expect("fd_close again", errno.Badf, call(h, "fd_close", fd))

	data, err := os.ReadFile(filepath.Join(root, "note.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected file content %q, got %q", "hello", data)
	}
}

func TestPreopenIgnoresWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo"), "0123456789")
	h := newHarness(t, root)

	other := t.TempDir()
	writeFile(t, filepath.Join(other, "foo"), "x")
	t.Chdir(other)

	for _, fd := range []int32{preview1.FDRoot, preview1.FDCwd} {
		n := h.PutString(pathOff, "foo")
		h.Expect("path_filestat_get", errno.Success,
			call(h, "path_filestat_get", uint64(fd), 0, pathOff, n, bufOff))
		if size := h.U64(bufOff + 32); size != 10 {
			t.Errorf("fd %d: expected size 10 from the configured root, got %d", fd, size)
		}
	}
}

func TestConfinement(t *testing.T) {
	h := newHarness(t, t.TempDir())
	long := string(bytes.Repeat([]byte("a"), preview1.MaxPathLen))

	tests := []struct {
		path string
		want errno.Errno
	}{
		{"../escape", errno.Notcapable},
		{"a/../../escape", errno.Notcapable},
		{"/etc/passwd", errno.Notcapable},
		{"", errno.Noent},
		{long, errno.Inval},
	}
	for _, tt := range tests {
		n := h.PutString(pathOff, tt.path)
		h.Expect("path_create_directory "+tt.path, tt.want,
			call(h, "path_create_directory", uint64(preview1.FDRoot), pathOff, n))
	}

	n := h.PutString(pathOff, "x")
	h.Expect("stdio is not a directory", errno.Badf,
		call(h, "path_create_directory", uint64(preview1.FDStdout), pathOff, n))
	h.Expect("unknown descriptor", errno.Badf,
		call(h, "path_create_directory", 77, pathOff, n))
}

func TestSymlinkConfinement(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret"), "host-secret")
	h := newHarness(t, root)
	dirFD := uint64(preview1.FDRoot)
	put := func(off uint32, s string) (uint64, uint64) { return uint64(off), h.PutString(off, s) }

	// links the guest asks for are refused when they point out of the root
	lp, ln := put(pathOff+100, "esc")
	for _, target := range []string{outside, "..", "a/../../x"} {
		tp, tn := put(pathOff, target)
		h.Expect("symlink "+target, errno.Notcapable, call(h, "path_symlink", tp, tn, dirFD, lp, ln))
	}
	if _, err := os.Lstat(filepath.Join(root, "esc")); !os.IsNotExist(err) {
		t.Fatalf("expected no link created, got %v", err)
	}

	// links that already exist are not followed out of the root
	if err := os.Symlink(outside, filepath.Join(root, "esc")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("..", filepath.Join(root, "up")); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"esc/secret", "up/" + filepath.Base(outside) + "/secret"} {
		for _, dirflags := range []uint64{0, uint64(abi.LookupSymlinkFollow)} {
			pp, pn := put(pathOff, p)
			h.Expect("path_open "+p, errno.Notcapable,
				call(h, "path_open", dirFD, dirflags, pp, pn, 0, rw, 0, 0, outOff))
		}
	}

	pp, pn := put(pathOff, "esc/planted")
	h.Expect("mkdir through link", errno.Notcapable, call(h, "path_create_directory", dirFD, pp, pn))
	if _, err := os.Stat(filepath.Join(outside, "planted")); !os.IsNotExist(err) {
		t.Errorf("expected nothing created outside the root, got %v", err)
	}
	h.Expect("stat through link", errno.Notcapable,
		call(h, "path_filestat_get", dirFD, 0, pp, pn, bufOff))
	ep, en := put(pathOff, "esc")
	h.Expect("follow final link", errno.Notcapable,
		call(h, "path_filestat_get", dirFD, uint64(abi.LookupSymlinkFollow), ep, en, bufOff))
	h.Expect("lstat the link itself", errno.Success, call(h, "path_filestat_get", dirFD, 0, ep, en, bufOff))
	h.Expect("unlink the link itself", errno.Success, call(h, "path_unlink_file", dirFD, ep, en))

	if h.Bridge.FDs().Granted() != 0 {
		t.Errorf("expected no granted descriptors, got %d", h.Bridge.FDs().Granted())
	}
	if data, err := os.ReadFile(filepath.Join(outside, "secret")); err != nil || string(data) != "host-secret" {
		t.Errorf("expected outside file untouched, got %q (%v)", data, err)
	}
}

func TestSeekWhenceByVintage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "data"), "0123456789")

	tests := []struct {
		vintage preview1.Vintage
		want    uint64
	}{
		{preview1.Unstable, 6}, // whence 0 is the current position
		{preview1.Snapshot, 2}, // whence 0 is the start
	}
	for _, tt := range tests {
		t.Run(tt.vintage.String(), func(t *testing.T) {
			h := newHarness(t, root)
			h.Vintage = tt.vintage
			fd := open(h, "data", 0, abi.RightFdRead)

			h.PutIOVec(iovOff, bufOff, 4)
			h.Expect("fd_read", errno.Success, call(h, "fd_read", fd, iovOff, 1, outOff))

			h.Expect("fd_seek", errno.Success, call(h, "fd_seek", fd, 2, 0, outOff))
			if got := h.U64(outOff); got != tt.want {
				t.Errorf("expected offset %d, got %d", tt.want, got)
			}
			h.Expect("fd_tell", errno.Success, call(h, "fd_tell", fd, outOff))
			if got := h.U64(outOff); got != tt.want {
				t.Errorf("expected tell %d, got %d", tt.want, got)
			}
			h.Expect("bad whence", errno.Inval, call(h, "fd_seek", fd, 0, 3, outOff))
			h.Expect("stdio seek", errno.Spipe, call(h, "fd_seek", uint64(preview1.FDStdout), 0, 0, outOff))
		})
	}
}

type limitWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room <= 0 {
		return 0, errors.New("full")
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		return room, errors.New("full")
	}
	return w.buf.Write(p)
}

func TestScatterWrite(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		want    errno.Errno
		written uint32
		output  string
	}{
		{"complete", 64, errno.Success, 8, "abcdefgh"},
		{"partial", 5, errno.Success, 5, "abcde"},
		{"refused", 0, errno.Io, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &limitWriter{limit: tt.limit}
			h := preview1test.New(t, preview1test.Quiet().WithStdout(w))
			h.PutString(dataOff, "abcdefgh")
			h.PutIOVec(iovOff, dataOff, 3)
			h.PutIOVec(iovOff+8, dataOff+3, 5)

			h.Expect("fd_write", tt.want, call(h, "fd_write", uint64(preview1.FDStdout), iovOff, 2, outOff))
			if tt.want == errno.Success && h.U32(outOff) != tt.written {
				t.Errorf("expected %d bytes written, got %d", tt.written, h.U32(outOff))
			}
			if got := w.buf.String(); got != tt.output {
				t.Errorf("expected output %q, got %q", tt.output, got)
			}
		})
	}
}

func TestCloseStandardStreams(t *testing.T) {
	var out bytes.Buffer
	h := preview1test.New(t, preview1test.Quiet().WithStdout(&out).WithRootDir(t.TempDir()))

	for fd := uint64(0); fd < 3; fd++ {
		h.Expect("fd_close", errno.Success, call(h, "fd_close", fd))
	}

	h.PutString(dataOff, "ok")
	h.PutIOVec(iovOff, dataOff, 2)
	h.Expect("fd_write after close", errno.Success, call(h, "fd_write", uint64(preview1.FDStdout), iovOff, 1, outOff))
	if out.String() != "ok" {
		t.Errorf("expected stdout to stay open, got %q", out.String())
	}

	h.Expect("close root", errno.Success, call(h, "fd_close", uint64(preview1.FDRoot)))
	n := h.PutString(pathOff, "x")
	h.Expect("closed root", errno.Badf, call(h, "path_create_directory", uint64(preview1.FDRoot), pathOff, n))
	h.Expect("close unknown", errno.Badf, call(h, "fd_close", 99))
}

func TestStdinStream(t *testing.T) {
	h := preview1test.New(t, preview1test.Quiet().WithStdin(bytes.NewBufferString("abcdef")))
	h.PutIOVec(iovOff, bufOff, 2)
	h.PutIOVec(iovOff+8, bufOff+2, 8)

	h.Expect("fd_read", errno.Success, call(h, "fd_read", uint64(preview1.FDStdin), iovOff, 2, outOff))
	if got := string(h.Bytes(bufOff, h.U32(outOff))); got != "abcdef" {
		t.Errorf("expected %q, got %q", "abcdef", got)
	}
	h.Expect("fd_read at eof", errno.Success, call(h, "fd_read", uint64(preview1.FDStdin), iovOff, 2, outOff))
	if h.U32(outOff) != 0 {
		t.Errorf("expected 0 bytes at eof, got %d", h.U32(outOff))
	}
}

func TestFdstat(t *testing.T) {
	h := newHarness(t, t.TempDir())

	h.Expect("stdout", errno.Success, call(h, "fd_fdstat_get", uint64(preview1.FDStdout), bufOff))
	if h.Bytes(bufOff, 1)[0] != abi.FiletypeUnknown {
		t.Errorf("expected unknown filetype for a buffered stream, got %d", h.Bytes(bufOff, 1)[0])
	}
	if rights := h.U64(bufOff + 8); rights&(abi.RightFdSeek|abi.RightFdTell) != 0 {
		t.Errorf("expected stdio rights without seek and tell, got %#x", rights)
	}

	h.Expect("root", errno.Success, call(h, "fd_fdstat_get", uint64(preview1.FDRoot), bufOff))
	if h.Bytes(bufOff, 1)[0] != abi.FiletypeDirectory {
		t.Errorf("expected directory filetype, got %d", h.Bytes(bufOff, 1)[0])
	}
	if h.U64(bufOff+8) != abi.RightsAll || h.U64(bufOff+16) != abi.RightsAll {
		t.Errorf("expected all rights, got %#x/%#x", h.U64(bufOff+8), h.U64(bufOff+16))
	}

	fd := open(h, "f", abi.OflagCreat, rw)
	h.Expect("set append", errno.Success, call(h, "fd_fdstat_set_flags", fd, uint64(abi.FdflagAppend)))
	h.Expect("fd_fdstat_get", errno.Success, call(h, "fd_fdstat_get", fd, bufOff))
	if flags := binary.LittleEndian.Uint16(h.Bytes(bufOff+2, 2)); flags&abi.FdflagAppend == 0 {
		t.Errorf("expected append flag, got %#x", flags)
	}
	h.Expect("stream flags", errno.Notsup, call(h, "fd_fdstat_set_flags", uint64(preview1.FDStdout), 0))
}

func TestStdioFlagsStayWithHost(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	h := preview1test.New(t, preview1test.Quiet().WithStdin(r).WithStdout(w).WithRootDir(t.TempDir()))

	statusFlags := func(f *os.File) int {
		t.Helper()
		flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)
		if err != nil {
			t.Fatal(err)
		}
		return flags
	}
	inBefore, outBefore := statusFlags(r), statusFlags(w)

	flags := uint64(abi.FdflagNonblock | abi.FdflagAppend)
	for _, fd := range []uint64{uint64(preview1.FDStdin), uint64(preview1.FDStdout)} {
		h.Expect("fd_fdstat_set_flags", errno.Notsup, call(h, "fd_fdstat_set_flags", fd, flags))
	}
	if got := statusFlags(w); got != outBefore {
		t.Errorf("expected host stdout flags %#x to stay unchanged, got %#x", outBefore, got)
	}
	if got := statusFlags(r); got != inBefore {
		t.Errorf("expected host stdin flags %#x to stay unchanged, got %#x", inBefore, got)
	}
}

func TestFilestatLayouts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "f"), "12345")

	h := newHarness(t, root)
	fd := open(h, "f", 0, abi.RightFdRead)
	h.Expect("snapshot", errno.Success, call(h, "fd_filestat_get", fd, bufOff))
	if h.Bytes(bufOff+16, 1)[0] != abi.FiletypeRegularFile {
		t.Errorf("expected regular file, got %d", h.Bytes(bufOff+16, 1)[0])
	}
	if h.U64(bufOff+24) != 1 || h.U64(bufOff+32) != 5 {
		t.Errorf("expected nlink 1 and size 5, got %d and %d", h.U64(bufOff+24), h.U64(bufOff+32))
	}

	h.Vintage = preview1.Unstable
	h.Expect("unstable", errno.Success, call(h, "fd_filestat_get", fd, bufOff))
	if h.U32(bufOff+20) != 1 || h.U64(bufOff+24) != 5 {
		t.Errorf("expected packed nlink 1 and size 5, got %d and %d", h.U32(bufOff+20), h.U64(bufOff+24))
	}

	// the unstable record is shorter, so it fits where the snapshot one cannot
	end := uint64(wazerotest.PageSize - abi.FilestatSizeUnstable)
	h.Expect("unstable at end", errno.Success, call(h, "fd_filestat_get", fd, end))
	h.Vintage = preview1.Snapshot
	if err := h.Fault(capability(t, "fd_filestat_get", preview1.Snapshot), fd, end); !memory.IsFault(err) {
		t.Errorf("expected memory fault, got %v", err)
	}
}

func TestReaddirPagination(t *testing.T) {
	root := t.TempDir()
	want := []string{".", ".."}
	for _, name := range []string{"f0", "f1", "f2", "f3", "f4"} {
		writeFile(t, filepath.Join(root, name), "")
		want = append(want, name)
	}
	h := newHarness(t, root)
	fd := uint64(preview1.FDRoot)

	// 60 bytes hold two entries with short names but never three
	const bufLen = 60
	var names []string
	cookie := abi.DircookieStart
	for i := 0; ; i++ {
		if i > len(want) {
			t.Fatalf("readdir did not terminate, got %v", names)
		}
		h.Expect("fd_readdir", errno.Success, call(h, "fd_readdir", fd, bufOff, bufLen, cookie, outOff))
		used := h.U32(outOff)
		if used == 0 {
			break
		}
		buf := h.Bytes(bufOff, used)
		for len(buf) > 0 {
			namlen := binary.LittleEndian.Uint32(buf[16:])
			cookie = binary.LittleEndian.Uint64(buf[0:])
			names = append(names, string(buf[abi.DirentSize:abi.DirentSize+namlen]))
			buf = buf[abi.DirentSize+namlen:]
		}
	}

	if len(names) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), names)
	}
	if cookie != uint64(len(want)) {
		t.Errorf("expected final cookie %d, got %d", len(want), cookie)
	}
	sort.Strings(names)
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], names[i])
		}
	}
	if s := h.Bridge.Dirs().State(preview1.FDRoot); s != dirstream.Closed {
		t.Errorf("expected closed stream, got %s", s)
	}

	// a stale cookie with no stream reads nothing
	h.Expect("stale cookie", errno.Success, call(h, "fd_readdir", fd, bufOff, bufLen, 3, outOff))
	if h.U32(outOff) != 0 {
		t.Errorf("expected used 0, got %d", h.U32(outOff))
	}
	h.Expect("stdio", errno.Badf, call(h, "fd_readdir", uint64(preview1.FDStdout), bufOff, bufLen, 0, outOff))
}

func TestPrestat(t *testing.T) {
	h := newHarness(t, t.TempDir())

	h.Expect("root", errno.Success, call(h, "fd_prestat_get", uint64(preview1.FDRoot), outOff))
	if h.U32(outOff) != abi.PreopentypeDir || h.U32(outOff+4) != 2 {
		t.Errorf("expected dir prestat of length 2, got tag %d length %d", h.U32(outOff), h.U32(outOff+4))
	}

	h.Expect("cwd", errno.Success, call(h, "fd_prestat_get", uint64(preview1.FDCwd), outOff))
	n := h.U32(outOff + 4)
	h.Expect("dir name", errno.Success, call(h, "fd_prestat_dir_name", uint64(preview1.FDCwd), bufOff, uint64(n)))
	if got := string(h.Bytes(bufOff, n)); got != "./\x00" {
		t.Errorf("expected %q, got %q", "./\x00", got)
	}

	for _, fd := range []uint64{0, 1, 2, 5, 1000} {
		h.Expect("not a preopen", errno.Badf, call(h, "fd_prestat_get", fd, outOff))
	}
}

func TestAllocateAndTruncate(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)
	fd := open(h, "grow", abi.OflagCreat, rw)

	h.Expect("fd_allocate", errno.Success, call(h, "fd_allocate", fd, 10, 90))
	h.Expect("fd_allocate inside", errno.Success, call(h, "fd_allocate", fd, 0, 10))
	info, err := os.Stat(filepath.Join(root, "grow"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 100 {
		t.Errorf("expected size 100, got %d", info.Size())
	}

	h.Expect("fd_filestat_set_size", errno.Success, call(h, "fd_filestat_set_size", fd, 7))
	if info, _ = os.Stat(filepath.Join(root, "grow")); info.Size() != 7 {
		t.Errorf("expected size 7, got %d", info.Size())
	}

	h.Expect("stdio", errno.Perm, call(h, "fd_allocate", uint64(preview1.FDStdout), 0, 1))
	h.Expect("directory", errno.Perm, call(h, "fd_allocate", uint64(preview1.FDRoot), 0, 1))
	h.Expect("advise", errno.Nosys, call(h, "fd_advise", fd, 0, 0, 0))
	h.Expect("advise stdio", errno.Perm, call(h, "fd_advise", uint64(preview1.FDStdin), 0, 0, 0))
}

func TestPathOperations(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)
	dirFD := uint64(preview1.FDRoot)
	put := func(off uint32, s string) (uint64, uint64) { return uint64(off), h.PutString(off, s) }

	p, n := put(pathOff, "sub")
	h.Expect("mkdir", errno.Success, call(h, "path_create_directory", dirFD, p, n))
	h.Expect("mkdir again", errno.Exist, call(h, "path_create_directory", dirFD, p, n))

	writeFile(t, filepath.Join(root, "sub", "a"), "abc")

	tp, tn := put(pathOff, "a")
	lp, ln := put(pathOff+50, "sub/link")
	h.Expect("symlink", errno.Success, call(h, "path_symlink", tp, tn, dirFD, lp, ln))
	h.Expect("readlink", errno.Success, call(h, "path_readlink", dirFD, lp, ln, bufOff, 64, outOff))
	if got := string(h.Bytes(bufOff, h.U32(outOff))); got != "a" {
		t.Errorf("expected link target %q, got %q", "a", got)
	}

	// without follow the link itself is examined
	h.Expect("lstat", errno.Success, call(h, "path_filestat_get", dirFD, 0, lp, ln, bufOff))
	if h.Bytes(bufOff+16, 1)[0] != abi.FiletypeSymbolicLink {
		t.Errorf("expected symlink filetype, got %d", h.Bytes(bufOff+16, 1)[0])
	}
	h.Expect("stat", errno.Success, call(h, "path_filestat_get", dirFD, uint64(abi.LookupSymlinkFollow), lp, ln, bufOff))
	if h.Bytes(bufOff+16, 1)[0] != abi.FiletypeRegularFile || h.U64(bufOff+32) != 3 {
		t.Errorf("expected followed regular file of size 3")
	}

	op, on := put(pathOff, "sub/a")
	np, nn := put(pathOff+50, "hard")
	h.Expect("link", errno.Success, call(h, "path_link", dirFD, 0, op, on, dirFD, np, nn))
	rp, rn := put(pathOff+100, "renamed")
	h.Expect("rename", errno.Success, call(h, "path_rename", dirFD, np, nn, dirFD, rp, rn))
	if data, err := os.ReadFile(filepath.Join(root, "renamed")); err != nil || string(data) != "abc" {
		t.Errorf("expected renamed hard link with content abc, got %q (%v)", data, err)
	}

	sp, sn := put(pathOff, "sub")
	h.Expect("rmdir non-empty", errno.Notempty, call(h, "path_remove_directory", dirFD, sp, sn))
	for _, name := range []string{"sub/a", "sub/link"} {
		up, un := put(pathOff+200, name)
		h.Expect("unlink "+name, errno.Success, call(h, "path_unlink_file", dirFD, up, un))
	}
	h.Expect("rmdir", errno.Success, call(h, "path_remove_directory", dirFD, sp, sn))
	if _, err := os.Stat(filepath.Join(root, "sub")); !os.IsNotExist(err) {
		t.Errorf("expected sub to be removed, got %v", err)
	}

	ep, en := put(pathOff, "../out")
	h.Expect("rename escape", errno.Notcapable, call(h, "path_rename", dirFD, rp, rn, dirFD, ep, en))
}

func TestSetTimes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "f"), "")
	h := newHarness(t, root)
	p := uint64(pathOff)
	n := h.PutString(pathOff, "f")

	const atim, mtim = 1_000_000_000_000, 2_000_000_000_000
	fst := uint64(abi.FstflagAtim | abi.FstflagMtim)
	h.Expect("path_filestat_set_times", errno.Success,
		call(h, "path_filestat_set_times", uint64(preview1.FDRoot), 0, p, n, atim, mtim, fst))
	h.Expect("path_filestat_get", errno.Success,
		call(h, "path_filestat_get", uint64(preview1.FDRoot), 0, p, n, bufOff))
	if h.U64(bufOff+40) != atim || h.U64(bufOff+48) != mtim {
		t.Errorf("expected times %d/%d, got %d/%d", uint64(atim), uint64(mtim), h.U64(bufOff+40), h.U64(bufOff+48))
	}

	conflict := uint64(abi.FstflagAtim | abi.FstflagAtimNow)
	h.Expect("conflicting flags", errno.Inval,
		call(h, "path_filestat_set_times", uint64(preview1.FDRoot), 0, p, n, 0, 0, conflict))

	fd := open(h, "f", 0, abi.RightFdRead)
	h.Expect("fd_filestat_set_times", errno.Success,
		call(h, "fd_filestat_set_times", fd, 0, 5_000_000_000_000, uint64(abi.FstflagMtim)))
	h.Expect("fd_filestat_get", errno.Success, call(h, "fd_filestat_get", fd, bufOff))
	if h.U64(bufOff+48) != 5_000_000_000_000 {
		t.Errorf("expected mtime 5e12, got %d", h.U64(bufOff+48))
	}
	if h.U64(bufOff+40) != atim {
		t.Errorf("expected atime to stay %d, got %d", uint64(atim), h.U64(bufOff+40))
	}
}

func TestFaults(t *testing.T) {
	root := t.TempDir()
	h := newHarness(t, root)
	top := uint64(wazerotest.PageSize)

	// iovec pointing past the end of memory
	h.PutIOVec(iovOff, wazerotest.PageSize-2, 4)
	err := h.Fault(capability(t, "fd_write", preview1.Snapshot), uint64(preview1.FDStdout), iovOff, 1, outOff)
	if !memory.IsFault(err) {
		t.Errorf("expected fault for iovec buffer, got %v", err)
	}

	// the result slot is checked before the file is created
	n := h.PutString(pathOff, "never")
	err = h.Fault(capability(t, "path_open", preview1.Snapshot),
		uint64(preview1.FDRoot), 1, pathOff, n, uint64(abi.OflagCreat), rw, 0, 0, top-2)
	if !memory.IsFault(err) {
		t.Errorf("expected fault for fd pointer, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "never")); !os.IsNotExist(err) {
		t.Errorf("expected no file to be created, got %v", err)
	}
	if h.Bridge.FDs().Granted() != 0 {
		t.Errorf("expected no granted descriptors, got %d", h.Bridge.FDs().Granted())
	}

	err = h.Fault(capability(t, "path_create_directory", preview1.Snapshot), uint64(preview1.FDRoot), top-1, 8)
	if !memory.IsFault(err) {
		t.Errorf("expected fault for path, got %v", err)
	}
}
