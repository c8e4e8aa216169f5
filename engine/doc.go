// Package engine wraps the wazero runtime the bridge executes guests on.
//
// An Engine fixes the runtime-wide settings once: the per-instance memory
// limit, optional threads support, exit on context cancellation and an
// optional on-disk compilation cache.
//
//	eng, err := engine.New(ctx, &engine.Config{MemoryLimitPages: 256})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	compiled, err := eng.Compile(ctx, wasmBytes)
//
// Compile accepts core modules only. Component-model binaries are rejected
// with an unsupported error before they reach wazero.
package engine
