// Package dirstream tracks fd_readdir enumeration per guest descriptor.
//
// Each descriptor owns at most one Stream, an independent host directory
// stream opened relative to the descriptor's handle. A start cookie always
// reopens it; entries begin with synthesized "." and ".." records and
// continue with the host entries in host order. The d_next field of every
// record is the running entry index, so a guest can resume from the last
// cookie it saw.
//
// State per descriptor:
//
//	Closed ──start cookie──> OpenNoCursor ──read──> OpenWithCursor
//	   ^                                                  │
//	   └──────────── exhausted / fd_close ────────────────┘
package dirstream
