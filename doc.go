// Package wasibridge runs WebAssembly guests against a WASI preview1 host
// bridge built on wazero.
//
// A guest never sees host memory or host descriptors. Every host call
// passes integers and guest-memory offsets; the bridge checks each byte
// range against the guest's linear memory, performs the host operation and
// writes the result, or a portable errno, back into guest memory.
//
// # Architecture Overview
//
//	wasibridge/
//	├── runtime/              Load, instantiate and run guest modules
//	├── engine/               wazero runtime settings and compilation
//	├── linker/               Host namespaces, import resolution, link reports
//	├── memory/               Bounds-checked access to guest memory
//	├── errors/               Structured error types
//	├── config/               wasi-run settings: YAML file, environment, flags
//	├── wasi/preview1/        Per-instance bridge, descriptor table, capabilities
//	│   ├── errno/            Portable status codes
//	│   ├── abi/              Record layouts shared with the guest
//	│   ├── dirstream/        Directory enumeration state
//	│   ├── cli/              args, environ, proc_exit, sched_yield
//	│   ├── clocks/           clock_res_get, clock_time_get
//	│   ├── random/           random_get
//	│   ├── filesystem/       fd_* and path_* calls
//	│   └── shell/            ashell_* extensions
//	└── cmd/wasi-run/         Command-line runner
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    return err
//	}
//	inst, err := mod.Instantiate(ctx, preview1.NewConfig().WithArgs("prog"))
//	if err != nil {
//	    return err
//	}
//	defer inst.Close(ctx)
//
//	code, err := inst.Run(ctx)
//
// # Vintages
//
// Guests import either wasi_unstable or wasi_snapshot_preview1. Both
// namespaces are served from the same capabilities; the few calls whose
// semantics differ, such as fd_seek whence values and the filestat layout,
// branch on the vintage of the import.
package wasibridge
