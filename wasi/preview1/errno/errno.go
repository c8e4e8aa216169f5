// Package errno is the portable status code taxonomy returned by every
// preview1 host capability, and the translation from host failures into it.
package errno

import (
	"errors"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Errno is a WASI preview1 status code. The enumeration is closed: values
// above Notcapable are never produced.
type Errno uint32

const (
	Success Errno = iota
	TooBig        // E2BIG
	Acces
	Addrinuse
	Addrnotavail
	Afnosupport
	Again
	Already
	Badf
	Badmsg
	Busy
	Canceled
	Child
	Connaborted
	Connrefused
	Connreset
	Deadlk
	Destaddrreq
	Dom
	Dquot
	Exist
	Fault
	Fbig
	Hostunreach
	Idrm
	Ilseq
	Inprogress
	Intr
	Inval
	Io
	Isconn
	Isdir
	Loop
	Mfile
	Mlink
	Msgsize
	Multihop
	Nametoolong
	Netdown
	Netreset
	Netunreach
	Nfile
	Nobufs
	Nodev
	Noent
	Noexec
	Nolck
	Nolink
	Nomem
	Nomsg
	Noprotoopt
	Nospc
	Nosys
	Notconn
	Notdir
	Notempty
	Notrecoverable
	Notsock
	Notsup
	Notty
	Nxio
	Overflow
	Ownerdead
	Perm
	Pipe
	Proto
	Protonosupport
	Prototype
	Range
	Rofs
	Spipe
	Srch
	Stale
	Timedout
	Txtbsy
	Xdev
	Notcapable
)

var names = [...]string{
	"ESUCCESS", "E2BIG", "EACCES", "EADDRINUSE", "EADDRNOTAVAIL", "EAFNOSUPPORT",
	"EAGAIN", "EALREADY", "EBADF", "EBADMSG", "EBUSY", "ECANCELED", "ECHILD",
	"ECONNABORTED", "ECONNREFUSED", "ECONNRESET", "EDEADLK", "EDESTADDRREQ",
	"EDOM", "EDQUOT", "EEXIST", "EFAULT", "EFBIG", "EHOSTUNREACH", "EIDRM",
	"EILSEQ", "EINPROGRESS", "EINTR", "EINVAL", "EIO", "EISCONN", "EISDIR",
	"ELOOP", "EMFILE", "EMLINK", "EMSGSIZE", "EMULTIHOP", "ENAMETOOLONG",
	"ENETDOWN", "ENETRESET", "ENETUNREACH", "ENFILE", "ENOBUFS", "ENODEV",
	"ENOENT", "ENOEXEC", "ENOLCK", "ENOLINK", "ENOMEM", "ENOMSG", "ENOPROTOOPT",
	"ENOSPC", "ENOSYS", "ENOTCONN", "ENOTDIR", "ENOTEMPTY", "ENOTRECOVERABLE",
	"ENOTSOCK", "ENOTSUP", "ENOTTY", "ENXIO", "EOVERFLOW", "EOWNERDEAD", "EPERM",
	"EPIPE", "EPROTO", "EPROTONOSUPPORT", "EPROTOTYPE", "ERANGE", "EROFS",
	"ESPIPE", "ESRCH", "ESTALE", "ETIMEDOUT", "ETXTBSY", "EXDEV", "ENOTCAPABLE",
}

// Name returns the POSIX-style symbol, e.g. "EBADF".
func (e Errno) Name() string {
	if int(e) < len(names) {
		return names[e]
	}
	return "EUNKNOWN"
}

func (e Errno) String() string {
	return e.Name()
}

// hostToPortable holds every host errno the translator knows. Anything else
// becomes Inval.
var hostToPortable = map[unix.Errno]Errno{
	unix.EPERM:   Perm,
	unix.ENOENT:  Noent,
	unix.ESRCH:   Srch,
	unix.EINTR:   Intr,
	unix.EIO:     Io,
	unix.ENXIO:   Nxio,
	unix.E2BIG:   TooBig,
	unix.ENOEXEC: Noexec,
	unix.EBADF:   Badf,
	unix.ECHILD:  Child,
	unix.EAGAIN:  Again,
	unix.ENOMEM:  Nomem,
	unix.EACCES:  Acces,
	unix.EFAULT:  Fault,
	unix.EBUSY:   Busy,
	unix.EEXIST:  Exist,
	unix.EXDEV:   Xdev,
	unix.ENODEV:  Nodev,
	unix.ENOTDIR: Notdir,
	unix.EISDIR:  Isdir,
	unix.EINVAL:  Inval,
	unix.ENFILE:  Nfile,
	unix.EMFILE:  Mfile,
	unix.ENOTTY:  Notty,
	unix.ETXTBSY: Txtbsy,
	unix.EFBIG:   Fbig,
	unix.ENOSPC:  Nospc,
	unix.ESPIPE:  Spipe,
	unix.EROFS:   Rofs,
	unix.EMLINK:  Mlink,
	unix.EPIPE:   Pipe,
	unix.EDOM:    Dom,
	unix.ERANGE:  Range,

	unix.EDEADLK:         Deadlk,
	unix.ENAMETOOLONG:    Nametoolong,
	unix.ENOLCK:          Nolck,
	unix.ENOSYS:          Nosys,
	unix.ENOTEMPTY:       Notempty,
	unix.ELOOP:           Loop,
	unix.ENOMSG:          Nomsg,
	unix.EIDRM:           Idrm,
	unix.ENOLINK:         Nolink,
	unix.EPROTO:          Proto,
	unix.EMULTIHOP:       Multihop,
	unix.EBADMSG:         Badmsg,
	unix.EOVERFLOW:       Overflow,
	unix.EILSEQ:          Ilseq,
	unix.ENOTSOCK:        Notsock,
	unix.EDESTADDRREQ:    Destaddrreq,
	unix.EMSGSIZE:        Msgsize,
	unix.EPROTOTYPE:      Prototype,
	unix.ENOPROTOOPT:     Noprotoopt,
	unix.EPROTONOSUPPORT: Protonosupport,
	unix.EAFNOSUPPORT:    Afnosupport,
	unix.EADDRINUSE:      Addrinuse,
	unix.EADDRNOTAVAIL:   Addrnotavail,
	unix.ENETDOWN:        Netdown,
	unix.ENETUNREACH:     Netunreach,
	unix.ENETRESET:       Netreset,
	unix.ECONNABORTED:    Connaborted,
	unix.ECONNRESET:      Connreset,
	unix.ENOBUFS:         Nobufs,
	unix.EISCONN:         Isconn,
	unix.ENOTCONN:        Notconn,
	unix.ETIMEDOUT:       Timedout,
	unix.ECONNREFUSED:    Connrefused,
	unix.EHOSTUNREACH:    Hostunreach,
	unix.EALREADY:        Already,
	unix.EINPROGRESS:     Inprogress,
	unix.ESTALE:          Stale,
	unix.EDQUOT:          Dquot,
	unix.ECANCELED:       Canceled,
	unix.EOWNERDEAD:      Ownerdead,
	unix.ENOTRECOVERABLE: Notrecoverable,
}

func init() {
	// ENOTSUP and EOPNOTSUPP share a value on linux but not on darwin.
	hostToPortable[unix.ENOTSUP] = Notsup
	hostToPortable[unix.EOPNOTSUPP] = Notsup
	// EWOULDBLOCK aliases EAGAIN on every supported host.
	hostToPortable[unix.EWOULDBLOCK] = Again
}

// FromSyscall translates a host errno. Zero maps to Success, unknown values
// map to Inval.
func FromSyscall(e unix.Errno) Errno {
	if e == 0 {
		return Success
	}
	if code, ok := hostToPortable[e]; ok {
		return code
	}
	return Inval
}

// Known reports whether e has an explicit translation.
func Known(e unix.Errno) bool {
	_, ok := hostToPortable[e]
	return ok
}

// FromError translates a Go error produced by a host operation. nil maps to
// Success. Wrapped host errnos (os.PathError, os.SyscallError and friends)
// are translated exactly; other errors are classified by the io/fs sentinel
// they match, falling back to Io.
func FromError(err error) Errno {
	if err == nil {
		return Success
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		if sysErr == 0 {
			return Io
		}
		return FromSyscall(sysErr)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Noent
	case errors.Is(err, fs.ErrExist):
		return Exist
	case errors.Is(err, fs.ErrPermission):
		return Perm
	case errors.Is(err, fs.ErrClosed), errors.Is(err, os.ErrInvalid):
		return Badf
	case errors.Is(err, os.ErrDeadlineExceeded):
		return Timedout
	}
	return Io
}
