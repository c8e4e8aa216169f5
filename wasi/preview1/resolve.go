package preview1

import (
	"errors"
	"path"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

// MaxSymlinks bounds the symlink expansions of one path resolution.
const MaxSymlinks = 40

// Location is a resolved guest path: a host directory beneath the
// descriptor the guest named, and one entry in it. Name is never a
// symlink that resolution was asked to follow, so callers pass it to the
// *at calls without following.
type Location struct {
	Dir   int
	Name  string
	owned bool
}

// Close releases the directory handle when resolution opened one.
func (l Location) Close() {
	if l.owned {
		unix.Close(l.Dir)
	}
}

// Beneath walks p from base one component at a time. Intermediate
// symlinks are expanded in place; absolute targets and any ".." that would
// leave base are Notcapable. follow also expands a final symlink, as does
// a trailing slash.
func Beneath(base int, p string, follow bool) (Location, errno.Errno) {
	if strings.HasSuffix(p, "/") || strings.HasSuffix(p, "/.") {
		follow = true
	}
	w := walk{base: base}
	comps := components(p)
	links := 0

	for len(comps) > 0 {
		name := comps[0]
		comps = comps[1:]
		last := len(comps) == 0

		if name == ".." {
			if !w.pop() {
				w.close()
				return Location{}, errno.Notcapable
			}
			if last {
				return w.location("."), errno.Success
			}
			continue
		}
		if last && !follow {
			return w.location(name), errno.Success
		}

		target, err := readlink(w.cur(), name)
		switch {
		case err == nil:
			links++
			if links > MaxSymlinks {
				w.close()
				return Location{}, errno.Loop
			}
			if path.IsAbs(target) {
				w.close()
				return Location{}, errno.Notcapable
			}
			comps = append(components(target), comps...)
			if len(comps) == 0 {
				return w.location("."), errno.Success
			}
			continue
		case last && (errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT)):
			return w.location(name), errno.Success
		case !errors.Is(err, unix.EINVAL):
			w.close()
			return Location{}, errno.FromError(err)
		}

		fd, err := unix.Openat(w.cur(), name, dirStepFlags, 0)
		if err != nil {
			w.close()
			return Location{}, errno.FromError(err)
		}
		w.push(fd)
	}
	return w.location("."), errno.Success
}

// openWalk opens p beneath base through Beneath. The final component is
// already resolved, so the open itself never follows.
func openWalk(base int, p string, flags int, mode uint32) (int, errno.Errno) {
	loc, code := Beneath(base, p, flags&unix.O_NOFOLLOW == 0)
	if code != errno.Success {
		return -1, code
	}
	defer loc.Close()
	fd, err := unix.Openat(loc.Dir, loc.Name, flags|unix.O_NOFOLLOW, mode)
	if err != nil {
		return -1, errno.FromError(err)
	}
	return fd, errno.Success
}

// SymlinkTarget checks that a link created at linkPath, a path relative
// to the guest directory base, points beneath the root.
func SymlinkTarget(base, linkPath, target string) errno.Errno {
	switch {
	case target == "":
		return errno.Noent
	case strings.IndexByte(target, 0) >= 0:
		return errno.Inval
	case path.IsAbs(target):
		return errno.Notcapable
	}
	resolved := path.Join(strings.TrimPrefix(base, "/"), path.Dir(linkPath), target)
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return errno.Notcapable
	}
	return errno.Success
}

func components(p string) []string {
	var out []string
	for _, c := range strings.Split(p, "/") {
		if c != "" && c != "." {
			out = append(out, c)
		}
	}
	return out
}

func readlink(dir int, name string) (string, error) {
	buf := make([]byte, MaxPathLen)
	n, err := unix.Readlinkat(dir, name, buf)
	if err != nil {
		return "", err
	}
	if n >= len(buf) {
		return "", unix.ENAMETOOLONG
	}
	return string(buf[:n]), nil
}

// walk holds the directories opened beneath base, innermost last.
type walk struct {
	base  int
	stack []int
}

func (w *walk) cur() int {
	if len(w.stack) == 0 {
		return w.base
	}
	return w.stack[len(w.stack)-1]
}

func (w *walk) push(fd int) {
	w.stack = append(w.stack, fd)
}

func (w *walk) pop() bool {
	if len(w.stack) == 0 {
		return false
	}
	unix.Close(w.stack[len(w.stack)-1])
	w.stack = w.stack[:len(w.stack)-1]
	return true
}

// location hands the innermost directory to the caller and closes the
// rest.
func (w *walk) location(name string) Location {
	if len(w.stack) == 0 {
		return Location{Dir: w.base, Name: name}
	}
	inner := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.close()
	return Location{Dir: inner, Name: name, owned: true}
}

func (w *walk) close() {
	for _, fd := range w.stack {
		unix.Close(fd)
	}
	w.stack = nil
}
