package preview1

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/errors"
	"github.com/wippyai/wasi-bridge/linker"
	"github.com/wippyai/wasi-bridge/memory"
	"github.com/wippyai/wasi-bridge/wasi/preview1/errno"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// Handler implements one host capability. The returned status is written to
// the guest's result slot. Memory faults are raised by the guard as panics
// and unwind the guest.
type Handler func(ctx context.Context, c *Call) errno.Errno

// Call is the per-invocation view handed to a Handler.
type Call struct {
	Module  api.Module
	Mem     *memory.Guard
	Bridge  *Bridge
	Params  []uint64
	Vintage Vintage
}

// U32 returns parameter i as an unsigned 32-bit value.
func (c *Call) U32(i int) uint32 { return uint32(c.Params[i]) }

// FD returns parameter i as a guest descriptor.
func (c *Call) FD(i int) int32 { return int32(uint32(c.Params[i])) }

// U64 returns parameter i as an unsigned 64-bit value.
func (c *Call) U64(i int) uint64 { return c.Params[i] }

// I64 returns parameter i as a signed 64-bit value.
func (c *Call) I64(i int) int64 { return int64(c.Params[i]) }

// String reads the guest string at the (ptr, len) parameter pair starting at i.
func (c *Call) String(i int) string {
	return c.Mem.ReadString(c.U32(i), c.U32(i+1))
}

// Log returns the instance logger.
func (c *Call) Log() *zap.Logger { return c.Bridge.log }

// Capability is one importable host function.
type Capability struct {
	Handler  Handler
	Name     string
	Params   []api.ValueType
	Results  []api.ValueType
	Vintages Vintage
}

// Func declares a capability returning a status code, available in both
// vintages.
func Func(name string, h Handler, params ...api.ValueType) Capability {
	return Capability{
		Name:     name,
		Params:   params,
		Results:  []api.ValueType{i32},
		Vintages: AllVintages,
		Handler:  h,
	}
}

// Only restricts the capability to the given vintages.
func (c Capability) Only(v Vintage) Capability {
	c.Vintages = v
	return c
}

// Returns overrides the result types.
func (c Capability) Returns(results ...api.ValueType) Capability {
	c.Results = results
	return c
}

// Host is implemented by packages contributing capabilities.
type Host interface {
	Capabilities() []Capability
}

// GoFunc adapts the capability to a wazero host function for vintage v.
func (c Capability) GoFunc(v Vintage) api.GoModuleFunc {
	name := c.Name
	nparams := len(c.Params)
	hasResult := len(c.Results) > 0
	h := c.Handler
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b := FromContext(ctx)
		if b == nil {
			panic(errors.NotInitialized(errors.PhaseRuntime, "bridge for "+name))
		}
		call := &Call{
			Module:  mod,
			Mem:     memory.Wrap(mod.Memory()),
			Bridge:  b,
			Vintage: v,
			Params:  slices.Clone(stack[:nparams]),
		}
		code := h(ctx, call)
		if code != errno.Success {
			b.log.Debug("host call failed",
				zap.String("func", name),
				zap.Stringer("vintage", v),
				zap.String("errno", code.Name()))
		}
		if hasResult {
			stack[0] = uint64(code)
		}
	}
}

// Register defines caps in the namespace of every vintage they apply to.
// Imports of a registered namespace that no capability covers are bound to
// a stub answering Nosys.
func Register(l *linker.Linker, caps ...Capability) {
	for _, v := range Vintages {
		ns := l.Namespace(v.ModuleName())
		ns.SetStub(Unsupported)
		for _, c := range caps {
			if c.Vintages != 0 && !c.Vintages.Has(v) {
				continue
			}
			ns.DefineFunc(c.Name, c.GoFunc(v), c.Params, c.Results)
		}
		reserveStubs(ns, v)
	}
}

// RegisterHosts registers the capabilities of every host.
func RegisterHosts(l *linker.Linker, hosts ...Host) {
	var caps []Capability
	for _, h := range hosts {
		caps = append(caps, h.Capabilities()...)
	}
	Register(l, caps...)
}

// Unsupported builds the Nosys stub for an import the bridge does not
// implement. Only imports returning a single i32 can carry the status.
func Unsupported(name string, params, results []api.ValueType) (api.GoModuleFunc, bool) {
	if len(results) != 1 || results[0] != i32 {
		return nil, false
	}
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if b := FromContext(ctx); b != nil {
			b.log.Debug("unsupported host call", zap.String("func", name))
		}
		stack[0] = uint64(errno.Nosys)
	}, true
}

// reserved are preview1 imports the bridge does not implement. They are
// stubbed up front so host modules rarely need rebuilding at link time.
var reserved = []struct {
	name     string
	params   []api.ValueType
	vintages Vintage
}{
	{"poll_oneoff", []api.ValueType{i32, i32, i32, i32}, AllVintages},
	{"proc_raise", []api.ValueType{i32}, AllVintages},
	{"fd_renumber", []api.ValueType{i32, i32}, AllVintages},
	{"fd_fdstat_set_rights", []api.ValueType{i32, i64, i64}, AllVintages},
	{"sock_recv", []api.ValueType{i32, i32, i32, i32, i32, i32}, AllVintages},
	{"sock_send", []api.ValueType{i32, i32, i32, i32, i32}, AllVintages},
	{"sock_shutdown", []api.ValueType{i32, i32}, AllVintages},
	{"sock_accept", []api.ValueType{i32, i32, i32}, Snapshot},
}

func reserveStubs(ns *linker.Namespace, v Vintage) {
	for _, r := range reserved {
		if !r.vintages.Has(v) || ns.GetFunc(r.name) != nil {
			continue
		}
		if err := ns.AddStub(r.name, r.params, []api.ValueType{i32}); err != nil {
			Logger().Warn("reserve stub", zap.String("func", r.name), zap.Error(err))
		}
	}
}
