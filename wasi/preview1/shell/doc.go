// Package shell implements the ashell_* extension imports used by shell-style
// guests: a per-instance working directory, command execution and an
// editable environment.
//
// The working directory never touches the host process. ashell_chdir and
// ashell_fchdir re-point the "./" preopen of the calling instance, so
// relative guest paths follow it while other instances are unaffected.
package shell
