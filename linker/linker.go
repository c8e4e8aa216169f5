package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/errors"
)

// Options configures linker behavior.
type Options struct {
	// StubUnknown binds imports of a bridged namespace that no function
	// covers to the namespace's placeholder. When false they fail linking.
	StubUnknown bool
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{
		StubUnknown: true,
	}
}

// Linker manages host function namespaces and the wazero host modules built
// from them. Thread-safe.
type Linker struct {
	runtime      wazero.Runtime
	namespaces   map[string]*Namespace
	built        map[string]uint64
	options      Options
	mu           sync.RWMutex
	hostModuleMu sync.Mutex
}

// New creates a new Linker with the given wazero runtime and options.
func New(rt wazero.Runtime, opts Options) *Linker {
	return &Linker{
		runtime:    rt,
		namespaces: make(map[string]*Namespace),
		built:      make(map[string]uint64),
		options:    opts,
	}
}

// NewWithDefaults creates a new Linker with default options.
func NewWithDefaults(rt wazero.Runtime) *Linker {
	return New(rt, DefaultOptions())
}

// Runtime returns the wazero runtime.
func (l *Linker) Runtime() wazero.Runtime {
	return l.runtime
}

// Options returns the configuration.
func (l *Linker) Options() Options {
	return l.options
}

// Namespace returns or creates the namespace with the given module name.
func (l *Linker) Namespace(name string) *Namespace {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ns, ok := l.namespaces[name]; ok {
		return ns
	}
	ns := NewNamespace(name)
	l.namespaces[name] = ns
	return ns
}

// Lookup returns an existing namespace, or nil.
func (l *Linker) Lookup(name string) *Namespace {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.namespaces[name]
}

// Namespaces returns every namespace name in sorted order.
func (l *Linker) Namespaces() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.namespaces))
	for name := range l.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefineFunc is a convenience method to define a function at a full path.
// DefineFunc uses path format: "wasi_snapshot_preview1#fd_write"
func (l *Linker) DefineFunc(path string, fn api.GoModuleFunc, params, results []api.ValueType) error {
	nsPath, funcName, err := splitFuncPath(path)
	if err != nil {
		return fmt.Errorf("linker: define func %q: %w", path, err)
	}

	l.Namespace(nsPath).DefineFunc(funcName, fn, params, results)
	return nil
}

// splitFuncPath splits "module#funcname" into namespace and function parts
func splitFuncPath(path string) (nsPath, funcName string, err error) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '#' {
			return path[:i], path[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("linker: invalid function path %q: missing '#' separator", path)
}

// Resolve checks the function imports of compiled against the namespaces
// and returns the binding report. Imports of a namespace the linker knows
// must match the host signature exactly; unknown ones are stubbed when the
// options allow it. Any import that can be neither bound nor stubbed makes
// resolution fail, and the report is still returned for inspection.
func (l *Linker) Resolve(compiled wazero.CompiledModule) (*Report, error) {
	guest := make(map[string]map[string]api.FunctionDefinition)
	report := newReport()

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if l.Lookup(module) == nil {
			report.Foreign = append(report.Foreign, Import{
				Module:  module,
				Name:    name,
				Params:  def.ParamTypes(),
				Results: def.ResultTypes(),
			})
			continue
		}
		if guest[module] == nil {
			guest[module] = make(map[string]api.FunctionDefinition)
		}
		guest[module][name] = def
		report.imported[module] = true
	}

	var problems []error
	missing := &errors.MissingImportsError{}

	for _, nsName := range l.Namespaces() {
		ns := l.Lookup(nsName)
		imports := guest[nsName]

		for name, def := range imports {
			if fd := ns.GetFunc(name); fd != nil && (!fd.Stub || fd.Matches(def.ParamTypes(), def.ResultTypes())) {
				continue
			}
			if !l.options.StubUnknown {
				missing.Imports = append(missing.Imports, errors.MissingImport{
					Namespace: nsName,
					Function:  name,
					Reason:    "not implemented",
				})
				continue
			}
			if err := ns.AddStub(name, def.ParamTypes(), def.ResultTypes()); err != nil {
				missing.Imports = append(missing.Imports, errors.MissingImport{
					Namespace: nsName,
					Function:  name,
					Reason:    Signature(def.ParamTypes(), def.ResultTypes()) + " cannot carry a status",
				})
			}
		}

		for _, name := range ns.Names() {
			fd := ns.GetFunc(name)
			b := Binding{
				Namespace: nsName,
				Name:      name,
				Params:    fd.ParamTypes,
				Results:   fd.ResultTypes,
				State:     Absent,
			}
			if def, ok := imports[name]; ok {
				if !fd.Matches(def.ParamTypes(), def.ResultTypes()) {
					problems = append(problems, errors.SignatureMismatch(nsName, name,
						fd.Signature(), Signature(def.ParamTypes(), def.ResultTypes())))
					continue
				}
				b.State = Present
				if fd.Stub {
					b.State = Stubbed
				}
			}
			report.Bindings = append(report.Bindings, b)
		}
	}

	if len(missing.Imports) > 0 {
		sort.Slice(missing.Imports, func(i, j int) bool {
			a, b := missing.Imports[i], missing.Imports[j]
			if a.Namespace != b.Namespace {
				return a.Namespace < b.Namespace
			}
			return a.Function < b.Function
		})
		problems = append(problems, missing)
	}

	Logger().Debug("imports resolved",
		zap.Int("present", report.Count(Present)),
		zap.Int("stubbed", report.Count(Stubbed)),
		zap.Int("absent", report.Count(Absent)),
		zap.Int("foreign", len(report.Foreign)),
		zap.Int("problems", len(problems)))

	if len(problems) > 0 {
		return report, stderrors.Join(problems...)
	}
	return report, nil
}

// Instantiate makes sure every namespace the report's guest imports from
// has a current host module in the runtime. A host module built before new
// stubs were added is replaced.
func (l *Linker) Instantiate(ctx context.Context, report *Report) error {
	for _, name := range report.Namespaces() {
		ns := l.Lookup(name)
		if ns == nil {
			continue
		}
		gen := ns.Generation()
		_, created, err := l.getOrReplaceHostModule(ctx, name,
			func(api.Module) bool { return l.built[name] == gen },
			func() (api.Module, error) { return l.buildHostModule(ctx, ns, gen) },
		)
		if err != nil {
			return errors.Registration(errors.PhaseLinking, name, "", err)
		}
		if created {
			Logger().Debug("host module instantiated", zap.String("module", name), zap.Uint64("generation", gen))
		}
	}
	return nil
}

// buildHostModule must be called with hostModuleMu held.
func (l *Linker) buildHostModule(ctx context.Context, ns *Namespace, gen uint64) (api.Module, error) {
	builder := l.runtime.NewHostModuleBuilder(ns.Name())

	funcs := ns.AllFuncs()
	for _, name := range ns.Names() {
		f, ok := funcs[name]
		if !ok {
			continue
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Handler, f.ParamTypes, f.ResultTypes).
			WithName(f.Name).
			Export(f.Name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	l.built[ns.Name()] = gen
	return mod, nil
}

// getOrReplaceHostModule atomically gets, validates, or replaces a host module.
func (l *Linker) getOrReplaceHostModule(ctx context.Context, name string, validator func(api.Module) bool, builder func() (api.Module, error)) (api.Module, bool, error) {
	l.hostModuleMu.Lock()
	defer l.hostModuleMu.Unlock()

	if mod := l.runtime.Module(name); mod != nil {
		if validator(mod) {
			return mod, false, nil
		}
		// Instances linked to the old module keep their bound functions.
		mod.Close(ctx)
	}

	mod, err := builder()
	return mod, mod != nil && err == nil, err
}

// Close drops every namespace. Host modules already in the runtime are
// released with the runtime.
func (l *Linker) Close() error {
	l.mu.Lock()
	l.namespaces = make(map[string]*Namespace)
	l.mu.Unlock()

	l.hostModuleMu.Lock()
	l.built = make(map[string]uint64)
	l.hostModuleMu.Unlock()
	return nil
}
