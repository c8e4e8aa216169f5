package dirstream

import (
	"errors"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1/abi"
)

// batchSize bounds how many host entries are buffered per stream.
const batchSize = 64

// State is the enumeration state of one descriptor.
type State int

const (
	Closed State = iota
	OpenNoCursor
	OpenWithCursor
	Exhausted
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case OpenNoCursor:
		return "open"
	case OpenWithCursor:
		return "open-with-cursor"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Entry is one directory entry ready for serialization.
type Entry struct {
	Name string
	Ino  uint64
	Type uint8
}

// Size returns the serialized size of the entry.
func (e Entry) Size() int {
	return abi.DirentSize + len(e.Name)
}

// Stream is an independent host directory stream bound to one guest descriptor.
type Stream struct {
	dir     *os.File
	fd      int
	pending []Entry
	cookie  uint64
	dots    bool
	eof     bool
}

func openStream(dirfd int) (*Stream, error) {
	fd, err := unix.Openat(dirfd, ".", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Stream{dir: os.NewFile(uintptr(fd), "."), fd: fd}, nil
}

// Cookie returns the cookie of the next entry to be produced.
func (s *Stream) Cookie() uint64 {
	return s.cookie
}

func (s *Stream) state() State {
	switch {
	case len(s.pending) > 0:
		return OpenWithCursor
	case s.eof:
		return Exhausted
	default:
		return OpenNoCursor
	}
}

// peek returns the current entry without consuming it.
func (s *Stream) peek() (Entry, bool, error) {
	if len(s.pending) == 0 && !s.eof {
		if err := s.fill(); err != nil {
			return Entry{}, false, err
		}
	}
	if len(s.pending) == 0 {
		return Entry{}, false, nil
	}
	return s.pending[0], true, nil
}

func (s *Stream) advance() {
	s.pending = s.pending[1:]
	s.cookie++
}

func (s *Stream) fill() error {
	if !s.dots {
		s.dots = true
		s.pending = append(s.pending[:0],
			Entry{Name: ".", Ino: s.inode("."), Type: abi.FiletypeDirectory},
			Entry{Name: "..", Ino: s.inode(".."), Type: abi.FiletypeDirectory},
		)
		return nil
	}

	entries, err := s.dir.ReadDir(batchSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if len(entries) == 0 {
		s.eof = true
		return nil
	}
	s.pending = s.pending[:0]
	for _, de := range entries {
		s.pending = append(s.pending, Entry{
			Name: de.Name(),
			Ino:  s.inode(de.Name()),
			Type: abi.FiletypeFromFileMode(de.Type()),
		})
	}
	return nil
}

func (s *Stream) inode(name string) uint64 {
	var st unix.Stat_t
	if err := unix.Fstatat(s.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return 0
	}
	return uint64(st.Ino)
}

func (s *Stream) close() error {
	return s.dir.Close()
}

// Table holds the directory streams of one bridge, keyed by guest descriptor.
type Table struct {
	streams map[int32]*Stream
	log     *zap.Logger
}

// NewTable creates an empty table.
func NewTable(log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		streams: make(map[int32]*Stream),
		log:     log,
	}
}

// State reports the enumeration state of fd.
func (t *Table) State(fd int32) State {
	s, ok := t.streams[fd]
	if !ok {
		return Closed
	}
	return s.state()
}

// Open starts a fresh enumeration of the directory behind hostDir,
// discarding any stream fd already had.
func (t *Table) Open(fd int32, hostDir int) error {
	t.Discard(fd)
	s, err := openStream(hostDir)
	if err != nil {
		return err
	}
	t.streams[fd] = s
	return nil
}

// Discard closes and forgets the stream of fd, if any.
func (t *Table) Discard(fd int32) {
	s, ok := t.streams[fd]
	if !ok {
		return
	}
	delete(t.streams, fd)
	if err := s.close(); err != nil {
		t.log.Debug("close directory stream", zap.Int32("fd", fd), zap.Error(err))
	}
}

// CloseAll discards every stream.
func (t *Table) CloseAll() {
	for fd := range t.streams {
		t.Discard(fd)
	}
}

// Len returns the number of open streams.
func (t *Table) Len() int {
	return len(t.streams)
}

// Read serializes entries of fd's stream into buf and returns the number of
// bytes used. A start cookie reopens the stream from hostDir first. Only
// complete entries are written; the entry that does not fit stays current
// for the next call. An exhausted stream is closed, after which reads
// return zero bytes until the next start cookie.
func (t *Table) Read(fd int32, hostDir int, buf []byte, cookie uint64) (int, error) {
	if cookie == abi.DircookieStart {
		if err := t.Open(fd, hostDir); err != nil {
			return 0, err
		}
	}

	s, ok := t.streams[fd]
	if !ok {
		return 0, nil
	}
	if cookie != abi.DircookieStart && cookie != s.cookie {
		t.log.Debug("readdir cookie mismatch",
			zap.Int32("fd", fd),
			zap.Uint64("cookie", cookie),
			zap.Uint64("expected", s.cookie))
	}

	used := 0
	for {
		e, ok, err := s.peek()
		if err != nil {
			if used > 0 {
				return used, nil
			}
			return 0, err
		}
		if !ok {
			t.Discard(fd)
			return used, nil
		}
		if used+e.Size() > len(buf) {
			return used, nil
		}
		used += abi.PutDirent(buf[used:], s.cookie+1, e.Ino, e.Name, e.Type)
		s.advance()
	}
}
