package runtime

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/errors"
	"github.com/wippyai/wasi-bridge/linker"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
)

// Module is a compiled guest with resolved imports. Instantiate may be
// called concurrently.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	report   *linker.Report
}

// Imports returns the link report produced at load time.
func (m *Module) Imports() *linker.Report {
	return m.report
}

// Exports returns the names of the exported functions in sorted order.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Command reports whether the module exports _start.
func (m *Module) Command() bool {
	_, ok := m.compiled.ExportedFunctions()[StartFunction]
	return ok
}

// Instantiate creates an instance with its own bridge built from cfg. A nil
// cfg uses preview1.NewConfig with the runtime logger. Start functions are
// not run; a reactor's _initialize export is.
func (m *Module) Instantiate(ctx context.Context, cfg *preview1.Config) (*Instance, error) {
	if m.compiled == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "module")
	}
	if cfg == nil {
		cfg = preview1.NewConfig().WithLogger(m.runtime.log)
	}
	if err := m.runtime.linker.Instantiate(ctx, m.report); err != nil {
		return nil, err
	}

	b := preview1.New(cfg)
	callCtx := preview1.WithBridge(ctx, b)

	// Anonymous so any number of instances of one module can coexist.
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.runtime.engine.Runtime().InstantiateModule(callCtx, m.compiled, modCfg)
	if err != nil {
		b.Close()
		return nil, errors.Instantiation(err)
	}

	inst := &Instance{module: m, mod: mod, bridge: b}
	if fn := mod.ExportedFunction(InitializeFunction); fn != nil {
		if _, err := fn.Call(callCtx); err != nil {
			inst.Close(ctx)
			return nil, errors.Instantiation(err)
		}
	}
	b.Logger().Debug("instance created", zap.Bool("command", m.Command()))
	return inst, nil
}

// Close releases the compiled code. Instances already created keep running.
func (m *Module) Close(ctx context.Context) error {
	if m.compiled == nil {
		return nil
	}
	err := m.compiled.Close(ctx)
	m.compiled = nil
	return err
}
