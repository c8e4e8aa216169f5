// Package runtime runs WASI preview1 command and reactor modules on top of
// the host-call bridge.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.WithMemoryLimitPages(256))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := preview1.NewConfig().
//	    WithArgs("prog", "-v").
//	    WithEnv(map[string]string{"HOME": "/"}).
//	    WithRootDir("/srv/sandbox")
//
//	inst, err := mod.Instantiate(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	code, err := inst.Run(ctx)
//
// # Linking
//
// New registers every bridge capability in both the wasi_unstable and the
// wasi_snapshot_preview1 namespaces. Load resolves the guest's imports
// against them and records the outcome in a linker.Report, available from
// Module.Imports:
//
//	present   the guest imports a function the bridge implements
//	absent    the bridge implements a function the guest does not import
//	stubbed   the guest imports a function the bridge lacks; it answers Nosys
//
// An import whose signature differs from the bridge's fails Load. Imports
// from other modules are listed in Report.Foreign and must be provided by
// the embedder in Engine().Runtime() before instantiation.
//
// # Exit Codes
//
// Run invokes _start. proc_exit ends the guest with the given code, which
// Run returns with a nil error. Memory faults and other traps are errors;
// memory.IsFault tells bounds violations apart.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is not: each
// instance owns a bridge with its descriptor table, directory streams and
// environment, and the engine runs one call of an instance at a time.
//
// # Resource Management
//
// Always close instances when done. Closing releases the guest memory and
// every host descriptor the guest opened.
package runtime
