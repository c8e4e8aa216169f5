// Package preview1 bridges the WASI preview1 import surface to the host.
//
// A Bridge holds everything one guest instance can reach: its descriptor
// table (three standard streams, two preopened directory roots and the
// descriptors path_open granted), its directory streams and its process
// context. Host functions find the bridge of the calling instance through
// the call context, so any number of instances can share one runtime.
//
// Capabilities are plain handlers of the form
//
//	func(ctx context.Context, c *Call) errno.Errno
//
// declared by host packages (cli, clocks, random, filesystem, shell) and
// registered into a linker under both import namespaces, wasi_unstable and
// wasi_snapshot_preview1. The two differ only in fd_seek whence numbering
// and in the filestat layout; handlers see the namespace a call came
// through as Call.Vintage.
//
// Guest memory is accessed through a memory.Guard. An out-of-bounds access
// panics with a memory fault that unwinds the guest; all other failures are
// reported to the guest as an errno.Errno.
package preview1
