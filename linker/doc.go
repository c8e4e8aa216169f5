// Package linker binds a guest's function imports to host namespaces.
//
// # Main Types
//
//   - Linker: owns the namespaces and the wazero host modules built from them
//   - Namespace: one import module name and its host functions
//   - Report: per-function link outcome (present, absent, stubbed)
//
// # Thread Safety
//
// Linker and Namespace are safe for concurrent use.
//
// # Resolution
//
//  1. Imports from modules with no namespace are reported as foreign
//  2. Imports matching a defined function must have its exact signature
//  3. Other imports are bound to the namespace placeholder when allowed
//  4. Anything left is a link error
//
// # Example
//
//	l := linker.NewWithDefaults(rt)
//	l.Namespace("wasi_snapshot_preview1").DefineFunc("sched_yield", fn, nil, results)
//	report, err := l.Resolve(compiled)
//	err = l.Instantiate(ctx, report)
package linker
