// Package memory validates guest linear memory accesses made by host calls.
//
// Every guest pointer reaching the bridge is an untrusted (offset, length)
// pair. Guard turns such a pair into a host byte slice only when the whole
// range lies inside the current linear memory. A violation never becomes a
// status code: Guard panics with a memory fault error, which wazero unwinds
// as a trap and returns to the embedder from the guest call.
package memory

import (
	"encoding/binary"
	stderrors "errors"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-bridge/errors"
)

// IOVecSize is the guest layout size of one scatter/gather element:
// a u32 buffer offset followed by a u32 buffer length.
const IOVecSize = 8

// Guard performs bounds-checked access to a guest linear memory.
// A nil memory (module without memory) faults on every access.
type Guard struct {
	mem api.Memory
}

// Wrap returns a Guard over mem.
func Wrap(mem api.Memory) *Guard {
	return &Guard{mem: mem}
}

// Size returns the current linear memory size in bytes.
func (g *Guard) Size() uint32 {
	if g.mem == nil {
		return 0
	}
	return g.mem.Size()
}

// Check validates [offset, offset+length) against the current memory size.
// length is 64 bits wide so products of guest counts cannot wrap.
func (g *Guard) Check(offset uint32, length uint64) {
	size := g.Size()
	if g.mem == nil || uint64(offset)+length > uint64(size) {
		panic(errors.MemoryFault(offset, length, size))
	}
}

// Slice returns the host view of [offset, offset+length).
// The slice aliases guest memory and is valid until the guest grows memory.
func (g *Guard) Slice(offset, length uint32) []byte {
	g.Check(offset, uint64(length))
	if length == 0 {
		return []byte{}
	}
	buf, ok := g.mem.Read(offset, length)
	if !ok {
		panic(errors.MemoryFault(offset, uint64(length), g.Size()))
	}
	return buf
}

// ReadString copies [offset, offset+length) into a Go string.
func (g *Guard) ReadString(offset, length uint32) string {
	return string(g.Slice(offset, length))
}

// ReadUint32 reads a little-endian u32.
func (g *Guard) ReadUint32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(g.Slice(offset, 4))
}

// ReadUint64 reads a little-endian u64.
func (g *Guard) ReadUint64(offset uint32) uint64 {
	return binary.LittleEndian.Uint64(g.Slice(offset, 8))
}

// Write copies data to offset.
func (g *Guard) Write(offset uint32, data []byte) {
	copy(g.Slice(offset, uint32(len(data))), data)
}

// WriteUint8 writes a byte.
func (g *Guard) WriteUint8(offset uint32, v uint8) {
	g.Slice(offset, 1)[0] = v
}

// WriteUint16 writes a little-endian u16.
func (g *Guard) WriteUint16(offset uint32, v uint16) {
	binary.LittleEndian.PutUint16(g.Slice(offset, 2), v)
}

// WriteUint32 writes a little-endian u32.
func (g *Guard) WriteUint32(offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(g.Slice(offset, 4), v)
}

// WriteUint64 writes a little-endian u64.
func (g *Guard) WriteUint64(offset uint32, v uint64) {
	binary.LittleEndian.PutUint64(g.Slice(offset, 8), v)
}

// IOVecs translates a guest scatter/gather array into host slices.
// The descriptor array itself is validated first, using a 64-bit size so a
// hostile count cannot wrap, and then each nested (buf, len) pair is
// validated on its own before any slice is returned.
func (g *Guard) IOVecs(ptr, count uint32) [][]byte {
	g.Check(ptr, uint64(count)*IOVecSize)
	if count == 0 {
		return nil
	}

	iovs := make([][]byte, count)
	for i := range iovs {
		entry := g.Slice(ptr+uint32(i)*IOVecSize, IOVecSize)
		buf := binary.LittleEndian.Uint32(entry[0:4])
		n := binary.LittleEndian.Uint32(entry[4:8])
		iovs[i] = g.Slice(buf, n)
	}
	return iovs
}

// IsFault reports whether err, as returned by a guest call, was caused by a
// bounds violation.
func IsFault(err error) bool {
	return stderrors.Is(err, &errors.Error{Phase: errors.PhaseBounds, Kind: errors.KindMemoryFault})
}

// Recover converts a memory fault panic into an error and re-panics anything
// else. Use it in deferred calls outside the wazero call path:
//
//	defer memory.Recover(&err)
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*errors.Error); ok && e.Kind == errors.KindMemoryFault {
		*err = e
		return
	}
	panic(r)
}
