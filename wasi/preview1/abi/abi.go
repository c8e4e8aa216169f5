// Package abi holds the preview1 wire constants and the fixed-layout records
// exchanged with guests through linear memory.
package abi

import (
	"encoding/binary"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Filetype values written into fdstat, filestat and dirent records.
const (
	FiletypeUnknown uint8 = iota
	FiletypeBlockDevice
	FiletypeCharacterDevice
	FiletypeDirectory
	FiletypeRegularFile
	FiletypeSocketDgram
	FiletypeSocketStream
	FiletypeSymbolicLink
)

// Descriptor flags (fdflags).
const (
	FdflagAppend uint16 = 1 << iota
	FdflagDsync
	FdflagNonblock
	FdflagRsync
	FdflagSync
)

// Open flags (oflags) accepted by path_open.
const (
	OflagCreat uint16 = 1 << iota
	OflagDirectory
	OflagExcl
	OflagTrunc
)

// Rights bits.
const (
	RightFdDatasync uint64 = 1 << iota
	RightFdRead
	RightFdSeek
	RightFdFdstatSetFlags
	RightFdSync
	RightFdTell
	RightFdWrite
	RightFdAdvise
	RightFdAllocate
	RightPathCreateDirectory
	RightPathCreateFile
	RightPathLinkSource
	RightPathLinkTarget
	RightPathOpen
	RightFdReaddir
	RightPathReadlink
	RightPathRenameSource
	RightPathRenameTarget
	RightPathFilestatGet
	RightPathFilestatSetSize
	RightPathFilestatSetTimes
	RightFdFilestatGet
	RightFdFilestatSetSize
	RightFdFilestatSetTimes
	RightPathSymlink
	RightPathRemoveDirectory
	RightPathUnlinkFile
	RightPollFdReadwrite
	RightSockShutdown
	RightSockAccept

	// RightsAll is every defined right. Descriptors report it as both base and
	// inheriting rights; stdio drops seek and tell.
	RightsAll = RightSockAccept<<1 - 1
)

// LookupSymlinkFollow is the only lookupflags bit.
const LookupSymlinkFollow uint32 = 1

// Timestamp selection flags (fstflags).
const (
	FstflagAtim uint16 = 1 << iota
	FstflagAtimNow
	FstflagMtim
	FstflagMtimNow
)

// Clock identifiers.
const (
	ClockRealtime uint32 = iota
	ClockMonotonic
	ClockProcessCPUTime
	ClockThreadCPUTime
)

// PreopentypeDir tags every prestat record.
const PreopentypeDir uint32 = 0

// DircookieStart asks fd_readdir to restart enumeration.
const DircookieStart uint64 = 0

// Record sizes in guest memory.
const (
	FdstatSize           = 24
	FilestatSize         = 64
	FilestatSizeUnstable = 56
	DirentSize           = 24
	PrestatSize          = 8
)

// FiletypeFromStatMode converts st_mode type bits.
func FiletypeFromStatMode(mode uint32) uint8 {
	switch mode & unix.S_IFMT {
	case unix.S_IFBLK:
		return FiletypeBlockDevice
	case unix.S_IFCHR:
		return FiletypeCharacterDevice
	case unix.S_IFDIR:
		return FiletypeDirectory
	case unix.S_IFREG:
		return FiletypeRegularFile
	case unix.S_IFSOCK:
		return FiletypeSocketStream
	case unix.S_IFLNK:
		return FiletypeSymbolicLink
	default:
		return FiletypeUnknown
	}
}

// FiletypeFromFileMode converts the type bits of a Go file mode.
func FiletypeFromFileMode(mode fs.FileMode) uint8 {
	switch {
	case mode.IsRegular():
		return FiletypeRegularFile
	case mode&fs.ModeDir != 0:
		return FiletypeDirectory
	case mode&fs.ModeSymlink != 0:
		return FiletypeSymbolicLink
	case mode&fs.ModeCharDevice != 0:
		return FiletypeCharacterDevice
	case mode&fs.ModeDevice != 0:
		return FiletypeBlockDevice
	case mode&fs.ModeSocket != 0:
		return FiletypeSocketStream
	default:
		return FiletypeUnknown
	}
}

// Fdstat is the fd_fdstat_get record.
type Fdstat struct {
	Filetype         uint8
	Flags            uint16
	RightsBase       uint64
	RightsInheriting uint64
}

// Encode writes the 24-byte record. buf must hold FdstatSize bytes.
func (s *Fdstat) Encode(buf []byte) {
	clear(buf[:FdstatSize])
	buf[0] = s.Filetype
	binary.LittleEndian.PutUint16(buf[2:], s.Flags)
	binary.LittleEndian.PutUint64(buf[8:], s.RightsBase)
	binary.LittleEndian.PutUint64(buf[16:], s.RightsInheriting)
}

// Filestat is the host-independent form of a stat result. Times are
// nanoseconds since the epoch.
type Filestat struct {
	Dev      uint64
	Ino      uint64
	Filetype uint8
	Nlink    uint64
	Size     uint64
	Atim     uint64
	Mtim     uint64
	Ctim     uint64
}

// Encode writes the 64-byte snapshot layout.
func (s *Filestat) Encode(buf []byte) {
	clear(buf[:FilestatSize])
	le := binary.LittleEndian
	le.PutUint64(buf[0:], s.Dev)
	le.PutUint64(buf[8:], s.Ino)
	buf[16] = s.Filetype
	le.PutUint64(buf[24:], s.Nlink)
	le.PutUint64(buf[32:], s.Size)
	le.PutUint64(buf[40:], s.Atim)
	le.PutUint64(buf[48:], s.Mtim)
	le.PutUint64(buf[56:], s.Ctim)
}

// EncodeUnstable writes the 56-byte wasi_unstable layout, where nlink is
// 32 bits wide and packed after the filetype.
func (s *Filestat) EncodeUnstable(buf []byte) {
	clear(buf[:FilestatSizeUnstable])
	le := binary.LittleEndian
	le.PutUint64(buf[0:], s.Dev)
	le.PutUint64(buf[8:], s.Ino)
	buf[16] = s.Filetype
	le.PutUint32(buf[20:], uint32(s.Nlink))
	le.PutUint64(buf[24:], s.Size)
	le.PutUint64(buf[32:], s.Atim)
	le.PutUint64(buf[40:], s.Mtim)
	le.PutUint64(buf[48:], s.Ctim)
}

// PutDirent writes a dirent header followed by the name bytes and returns
// the number of bytes written. buf must hold DirentSize+len(name) bytes.
func PutDirent(buf []byte, next, ino uint64, name string, typ uint8) int {
	clear(buf[:DirentSize])
	le := binary.LittleEndian
	le.PutUint64(buf[0:], next)
	le.PutUint64(buf[8:], ino)
	le.PutUint32(buf[16:], uint32(len(name)))
	buf[20] = typ
	return DirentSize + copy(buf[DirentSize:], name)
}

// PutPrestat writes a directory prestat whose name length includes a
// trailing NUL.
func PutPrestat(buf []byte, nameLen uint32) {
	binary.LittleEndian.PutUint32(buf[0:], PreopentypeDir)
	binary.LittleEndian.PutUint32(buf[4:], nameLen)
}
