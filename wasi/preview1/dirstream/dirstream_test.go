package dirstream

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
)

type dirent struct {
	next uint64
	ino  uint64
	name string
	typ  uint8
}

func parseDirents(t *testing.T, buf []byte) []dirent {
	t.Helper()
	var out []dirent
	for len(buf) > 0 {
		if len(buf) < abi.DirentSize {
			t.Fatalf("truncated dirent header: %d bytes left", len(buf))
		}
		namlen := int(binary.LittleEndian.Uint32(buf[16:]))
		if len(buf) < abi.DirentSize+namlen {
			t.Fatalf("truncated dirent name: want %d, have %d", namlen, len(buf)-abi.DirentSize)
		}
		out = append(out, dirent{
			next: binary.LittleEndian.Uint64(buf[0:]),
			ino:  binary.LittleEndian.Uint64(buf[8:]),
			name: string(buf[abi.DirentSize : abi.DirentSize+namlen]),
			typ:  buf[20],
		})
		buf = buf[abi.DirentSize+namlen:]
	}
	return out
}

func openDir(t *testing.T, path string) int {
	t.Helper()
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func makeFiles(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%02d", i)), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestReadPagination(t *testing.T) {
	dir := makeFiles(t, 5)
	fd := openDir(t, dir)
	tbl := NewTable(nil)
	defer tbl.CloseAll()

	if got := tbl.State(7); got != Closed {
		t.Fatalf("expected closed before first read, got %s", got)
	}

	// "." and ".." exactly
	buf := make([]byte, abi.DirentSize*2+3)
	n, err := tbl.Read(7, fd, buf, abi.DircookieStart)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected %d bytes, got %d", len(buf), n)
	}
	dots := parseDirents(t, buf[:n])
	if dots[0].name != "." || dots[1].name != ".." {
		t.Fatalf("expected synthesized dot entries, got %q %q", dots[0].name, dots[1].name)
	}
	if dots[0].typ != abi.FiletypeDirectory || dots[0].ino == 0 {
		t.Errorf("dot entry = %+v", dots[0])
	}
	if tbl.State(7) != OpenWithCursor {
		t.Errorf("expected open-with-cursor, got %s", tbl.State(7))
	}

	cookie := dots[1].next
	if cookie != 2 {
		t.Fatalf("expected cookie 2 after dots, got %d", cookie)
	}

	// room for exactly two of the 27-byte file entries
	buf = make([]byte, 2*(abi.DirentSize+3))
	var names []string
	var sizes []int
	for i := 0; i < 10; i++ {
		n, err := tbl.Read(7, fd, buf, cookie)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		sizes = append(sizes, n)
		if n == 0 {
			break
		}
		for _, d := range parseDirents(t, buf[:n]) {
			names = append(names, d.name)
			if d.typ != abi.FiletypeRegularFile {
				t.Errorf("%s: expected regular file type, got %d", d.name, d.typ)
			}
			if d.next != cookie+1 {
				t.Errorf("%s: expected d_next %d, got %d", d.name, cookie+1, d.next)
			}
			cookie = d.next
		}
	}

	if len(names) != 5 {
		t.Fatalf("expected 5 entries, got %v", names)
	}
	want := []int{54, 54, 27, 0}
	if fmt.Sprint(sizes) != fmt.Sprint(want) {
		t.Errorf("expected used sequence %v, got %v", want, sizes)
	}
	if tbl.State(7) != Closed {
		t.Errorf("expected closed after exhaustion, got %s", tbl.State(7))
	}
	if tbl.Len() != 0 {
		t.Errorf("expected no streams left, got %d", tbl.Len())
	}
}

func TestReadOverflowEntryIsRetried(t *testing.T) {
	dir := makeFiles(t, 1)
	fd := openDir(t, dir)
	tbl := NewTable(nil)
	defer tbl.CloseAll()

	// too small for even "."
	small := make([]byte, abi.DirentSize)
	n, err := tbl.Read(3, fd, small, abi.DircookieStart)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 bytes and no error, got %d, %v", n, err)
	}

	buf := make([]byte, 256)
	n, err = tbl.Read(3, fd, buf, 1)
	if err != nil {
		t.Fatal(err)
	}
	ents := parseDirents(t, buf[:n])
	if len(ents) != 3 || ents[0].name != "." {
		t.Fatalf("expected ., .., f00; got %+v", ents)
	}
}

func TestReadClosedNonStartCookie(t *testing.T) {
	dir := makeFiles(t, 2)
	fd := openDir(t, dir)
	tbl := NewTable(nil)

	n, err := tbl.Read(4, fd, make([]byte, 128), 5)
	if err != nil || n != 0 {
		t.Errorf("expected 0 bytes and no error, got %d, %v", n, err)
	}
	if tbl.State(4) != Closed {
		t.Errorf("expected closed, got %s", tbl.State(4))
	}
}

func TestStartCookieRestarts(t *testing.T) {
	dir := makeFiles(t, 3)
	fd := openDir(t, dir)
	tbl := NewTable(nil)
	defer tbl.CloseAll()

	buf := make([]byte, 60)
	if _, err := tbl.Read(5, fd, buf, abi.DircookieStart); err != nil {
		t.Fatal(err)
	}
	n, err := tbl.Read(5, fd, buf, abi.DircookieStart)
	if err != nil {
		t.Fatal(err)
	}
	ents := parseDirents(t, buf[:n])
	if ents[0].name != "." || ents[0].next != 1 {
		t.Errorf("expected restart at '.', got %+v", ents[0])
	}
	if tbl.Len() != 1 {
		t.Errorf("expected a single stream per descriptor, got %d", tbl.Len())
	}
}

func TestEntryTypes(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("file", filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}
	fd := openDir(t, dir)
	tbl := NewTable(nil)
	defer tbl.CloseAll()

	buf := make([]byte, 1024)
	n, err := tbl.Read(3, fd, buf, abi.DircookieStart)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]uint8{
		"sub":  abi.FiletypeDirectory,
		"file": abi.FiletypeRegularFile,
		"link": abi.FiletypeSymbolicLink,
	}
	for _, d := range parseDirents(t, buf[:n]) {
		typ, ok := want[d.name]
		if !ok {
			continue
		}
		delete(want, d.name)
		if d.typ != typ {
			t.Errorf("%s: expected type %d, got %d", d.name, typ, d.typ)
		}
		var st unix.Stat_t
		if err := unix.Lstat(filepath.Join(dir, d.name), &st); err != nil {
			t.Fatal(err)
		}
		if d.ino != uint64(st.Ino) {
			t.Errorf("%s: expected ino %d, got %d", d.name, st.Ino, d.ino)
		}
	}
	if len(want) != 0 {
		t.Errorf("entries not listed: %v", want)
	}
}

func TestCookieMismatchIsLogged(t *testing.T) {
	dir := makeFiles(t, 3)
	fd := openDir(t, dir)
	core, logs := observer.New(zapcore.DebugLevel)
	tbl := NewTable(zap.New(core))
	defer tbl.CloseAll()

	buf := make([]byte, 60)
	if _, err := tbl.Read(3, fd, buf, abi.DircookieStart); err != nil {
		t.Fatal(err)
	}
	n, err := tbl.Read(3, fd, buf, 99)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("mismatched cookie should continue the open stream")
	}
	if logs.FilterMessage("readdir cookie mismatch").Len() != 1 {
		t.Errorf("expected one mismatch log entry, got %d", logs.Len())
	}
}

func TestDiscardAndOpenError(t *testing.T) {
	dir := makeFiles(t, 1)
	fd := openDir(t, dir)
	tbl := NewTable(nil)

	if _, err := tbl.Read(3, fd, make([]byte, 30), abi.DircookieStart); err != nil {
		t.Fatal(err)
	}
	tbl.Discard(3)
	if tbl.State(3) != Closed {
		t.Errorf("expected closed after discard, got %s", tbl.State(3))
	}
	tbl.Discard(3)

	if _, err := tbl.Read(3, -1, make([]byte, 30), abi.DircookieStart); err != unix.EBADF {
		t.Errorf("expected EBADF for invalid handle, got %v", err)
	}
}
