package wasmtest

// Opcodes used by the helpers.
const (
	OpUnreachable byte = 0x00
	OpEnd         byte = 0x0b
	OpReturn      byte = 0x0f
	OpCall        byte = 0x10
	OpDrop        byte = 0x1a
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpI32Load     byte = 0x28
	OpI32Store    byte = 0x36
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
)

// Code concatenates instruction sequences.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func I32Const(v int32) []byte {
	return s64(append([]byte(nil), OpI32Const), int64(v))
}

func I64Const(v int64) []byte {
	return s64(append([]byte(nil), OpI64Const), v)
}

func Call(fn uint32) []byte {
	return u32([]byte{OpCall}, fn)
}

func LocalGet(i uint32) []byte {
	return u32([]byte{OpLocalGet}, i)
}

func LocalSet(i uint32) []byte {
	return u32([]byte{OpLocalSet}, i)
}

// I32Load loads from the address on the stack with a zero offset.
func I32Load() []byte {
	return []byte{OpI32Load, 2, 0}
}

// I32Store stores to the address below the value on the stack.
func I32Store() []byte {
	return []byte{OpI32Store, 2, 0}
}

func Drop() []byte {
	return []byte{OpDrop}
}

func Unreachable() []byte {
	return []byte{OpUnreachable}
}

// u32 appends v as unsigned LEB128.
func u32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// s64 appends v as signed LEB128.
func s64(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
