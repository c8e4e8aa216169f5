// Package cli implements the process-context capabilities of preview1.
//
// Implements:
//   - args_get, args_sizes_get - argument vector
//   - environ_get, environ_sizes_get - instance environment
//   - proc_exit - records the exit code and unwinds the guest
//   - sched_yield - yields the host goroutine
package cli
