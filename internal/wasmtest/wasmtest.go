// Package wasmtest assembles small core modules for tests: function
// imports, functions with hand-written bodies, one memory, data segments
// and exports.
package wasmtest

import (
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
)

const (
	magic   = 0x6d736100 // \0asm
	version = 1
)

const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11
)

const (
	kindFunc   byte = 0
	kindMemory byte = 2

	funcTypeByte byte = 0x60
)

// FuncType is a function signature.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Sig builds a FuncType.
func Sig(params []api.ValueType, results ...api.ValueType) FuncType {
	return FuncType{Params: params, Results: results}
}

// Import is a function import. Imports take the first function indices.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is a defined function. Export, when set, exports it under that name.
type Func struct {
	Export string
	Type   FuncType
	Locals []api.ValueType
	// Body holds the instructions without the final end opcode.
	Body []byte
}

// Data is an active data segment in memory 0.
type Data struct {
	Offset uint32
	Bytes  []byte
}

// Module describes the module to assemble. Memory is exported as "memory"
// when MemoryPages is non-zero.
type Module struct {
	Imports     []Import
	Funcs       []Func
	Data        []Data
	MemoryPages uint32
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var out []byte
	out = binary.LittleEndian.AppendUint32(out, magic)
	out = binary.LittleEndian.AppendUint32(out, version)

	var types []FuncType
	for _, imp := range m.Imports {
		types = append(types, imp.Type)
	}
	for _, f := range m.Funcs {
		types = append(types, f.Type)
	}
	if len(types) > 0 {
		sec := u32(nil, uint32(len(types)))
		for _, t := range types {
			sec = append(sec, funcTypeByte)
			sec = valTypes(sec, t.Params)
			sec = valTypes(sec, t.Results)
		}
		out = section(out, sectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := u32(nil, uint32(len(m.Imports)))
		for i, imp := range m.Imports {
			sec = name(sec, imp.Module)
			sec = name(sec, imp.Name)
			sec = append(sec, kindFunc)
			sec = u32(sec, uint32(i))
		}
		out = section(out, sectionImport, sec)
	}

	base := uint32(len(m.Imports))
	if len(m.Funcs) > 0 {
		sec := u32(nil, uint32(len(m.Funcs)))
		for i := range m.Funcs {
			sec = u32(sec, base+uint32(i))
		}
		out = section(out, sectionFunction, sec)
	}

	if m.MemoryPages > 0 {
		sec := u32(nil, 1)
		sec = append(sec, 0x00) // no maximum
		sec = u32(sec, m.MemoryPages)
		out = section(out, sectionMemory, sec)
	}

	var exports []byte
	count := uint32(0)
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		exports = name(exports, f.Export)
		exports = append(exports, kindFunc)
		exports = u32(exports, base+uint32(i))
		count++
	}
	if m.MemoryPages > 0 {
		exports = name(exports, "memory")
		exports = append(exports, kindMemory)
		exports = u32(exports, 0)
		count++
	}
	if count > 0 {
		out = section(out, sectionExport, append(u32(nil, count), exports...))
	}

	if len(m.Funcs) > 0 {
		sec := u32(nil, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			var body []byte
			body = u32(body, uint32(len(f.Locals)))
			for _, l := range f.Locals {
				body = u32(body, 1)
				body = append(body, l)
			}
			body = append(body, f.Body...)
			body = append(body, OpEnd)
			sec = u32(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = section(out, sectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := u32(nil, uint32(len(m.Data)))
		for _, d := range m.Data {
			sec = append(sec, 0x00) // active, memory 0
			sec = append(sec, I32Const(int32(d.Offset))...)
			sec = append(sec, OpEnd)
			sec = u32(sec, uint32(len(d.Bytes)))
			sec = append(sec, d.Bytes...)
		}
		out = section(out, sectionData, sec)
	}
	return out
}

func section(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = u32(out, uint32(len(body)))
	return append(out, body...)
}

func name(out []byte, s string) []byte {
	out = u32(out, uint32(len(s)))
	return append(out, s...)
}

func valTypes(out []byte, types []api.ValueType) []byte {
	out = u32(out, uint32(len(types)))
	return append(out, types...)
}
