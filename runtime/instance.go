package runtime

import (
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/errors"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
)

const (
	// StartFunction is the entry point of a command module.
	StartFunction = "_start"
	// InitializeFunction prepares a reactor module for calls.
	InitializeFunction = "_initialize"
)

// Instance is one running guest and its bridge. Not safe for concurrent
// use.
type Instance struct {
	module *Module
	mod    api.Module
	bridge *preview1.Bridge
}

// Bridge returns the per-instance host state.
func (i *Instance) Bridge() *preview1.Bridge {
	return i.bridge
}

// Memory returns the guest's linear memory, or nil if it has none.
func (i *Instance) Memory() api.Memory {
	return i.mod.Memory()
}

// Run invokes _start. A guest exit becomes the returned code with a nil
// error; returning from _start normally is exit code 0. Memory faults and
// other traps are returned as errors.
func (i *Instance) Run(ctx context.Context) (uint32, error) {
	fn := i.mod.ExportedFunction(StartFunction)
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "function", StartFunction)
	}

	_, err := fn.Call(preview1.WithBridge(ctx, i.bridge))
	if err == nil {
		return 0, nil
	}

	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) {
		i.bridge.Logger().Debug("guest trapped", zap.Error(err))
		return 0, errors.Trap(StartFunction, err)
	}

	code := exitErr.ExitCode()
	switch code {
	case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return code, errors.Unavailable(errors.PhaseRuntime, "guest interrupted", cause)
	}
	if _, exited := i.bridge.Process().ExitCode(); !exited {
		i.bridge.Process().Exit(code)
	}
	i.bridge.Logger().Debug("guest exited", zap.Uint32("code", code))
	return code, nil
}

// ExitCode returns the code recorded by proc_exit, if the guest exited.
func (i *Instance) ExitCode() (uint32, bool) {
	return i.bridge.Process().ExitCode()
}

// Call invokes an exported function with raw stack values.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	results, err := fn.Call(preview1.WithBridge(ctx, i.bridge), params...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Close closes the guest module, then every host handle of its bridge.
func (i *Instance) Close(ctx context.Context) error {
	err := i.mod.Close(ctx)
	i.bridge.Close()
	return err
}
