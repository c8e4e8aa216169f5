// Package errors provides structured error types for the wasi-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the import it refers to, a setting path, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLinking, errors.KindTypeMismatch).
//		Import("wasi_snapshot_preview1", "fd_write").
//		Detail("expected (i32,i32,i32,i32)->i32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MemoryFault(offset, length, memSize)
//	err := errors.SignatureMismatch(ns, name, want, got)
//
// Guest-visible failures are never Go errors: host capabilities return a
// portable errno instead. The types here describe failures of the embedder
// surface (loading, linking, configuration) and the two fatal traps.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
