// Package filesystem implements the fd_* and path_* capabilities.
//
// Descriptors come from the bridge's FDTable: the standard streams, the two
// preopened roots and whatever path_open granted. Every path is resolved
// relative to its directory descriptor with the *at family of calls, so the
// process working directory never influences a guest path.
//
// Standard streams configured with a plain io.Reader or io.Writer are served
// directly from Go; all other descriptors go straight to the host.
package filesystem
