package linker

import (
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-bridge/errors"
)

// FuncDef defines a host function
type FuncDef struct {
	Handler     api.GoModuleFunc
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
	// Stub marks a placeholder bound to an import the host does not implement.
	Stub bool
}

// Signature returns the function type as "(i32,i64)->(i32)".
func (f *FuncDef) Signature() string {
	return Signature(f.ParamTypes, f.ResultTypes)
}

// Matches reports whether the definition has exactly the given type.
func (f *FuncDef) Matches(params, results []api.ValueType) bool {
	return sameTypes(f.ParamTypes, params) && sameTypes(f.ResultTypes, results)
}

// StubFunc builds a placeholder for an import a namespace does not define.
// It returns false when no placeholder can honor the import's type.
type StubFunc func(name string, params, results []api.ValueType) (api.GoModuleFunc, bool)

// Namespace is one import module name and the host functions it exports.
type Namespace struct {
	funcs      map[string]*FuncDef
	stub       StubFunc
	name       string
	generation uint64
	mu         sync.RWMutex
}

// NewNamespace creates an empty namespace
func NewNamespace(name string) *Namespace {
	return &Namespace{
		name:  name,
		funcs: make(map[string]*FuncDef),
	}
}

// Name returns the namespace name
func (ns *Namespace) Name() string {
	return ns.name
}

// DefineFunc registers a host function in this namespace.
// DefineFunc overwrites any existing function with the same name.
func (ns *Namespace) DefineFunc(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.funcs[name] = &FuncDef{
		Name:        name,
		Handler:     fn,
		ParamTypes:  params,
		ResultTypes: results,
	}
	ns.generation++
}

// SetStub installs the placeholder builder for undefined imports.
func (ns *Namespace) SetStub(fn StubFunc) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.stub = fn
}

// AddStub binds a placeholder for name unless a function is already defined.
// An existing stub with a different type is replaced.
func (ns *Namespace) AddStub(name string, params, results []api.ValueType) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if def, ok := ns.funcs[name]; ok {
		if def.Matches(params, results) {
			return nil
		}
		if !def.Stub {
			return errors.SignatureMismatch(ns.name, name, def.Signature(), Signature(params, results))
		}
	}
	if ns.stub == nil {
		return errors.New(errors.PhaseLinking, errors.KindMissingImport).
			Import(ns.name, name).
			Detail("namespace has no placeholder for undefined imports").
			Build()
	}
	fn, ok := ns.stub(name, params, results)
	if !ok {
		return errors.New(errors.PhaseLinking, errors.KindMissingImport).
			Import(ns.name, name).
			Detail("cannot stub %s: no status result", Signature(params, results)).
			Build()
	}

	ns.funcs[name] = &FuncDef{
		Name:        name,
		Handler:     fn,
		ParamTypes:  params,
		ResultTypes: results,
		Stub:        true,
	}
	ns.generation++
	return nil
}

// GetFunc returns a function by name, or nil if not found
func (ns *Namespace) GetFunc(name string) *FuncDef {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.funcs[name]
}

// Generation changes whenever the function set changes.
func (ns *Namespace) Generation() uint64 {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.generation
}

// AllFuncs returns all functions defined in this namespace
func (ns *Namespace) AllFuncs() map[string]*FuncDef {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	result := make(map[string]*FuncDef, len(ns.funcs))
	for k, v := range ns.funcs {
		result[k] = v
	}
	return result
}

// Names returns the defined function names in sorted order.
func (ns *Namespace) Names() []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	names := make([]string, 0, len(ns.funcs))
	for name := range ns.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signature formats a function type.
func Signature(params, results []api.ValueType) string {
	var b strings.Builder
	writeTypes(&b, params)
	b.WriteString("->")
	writeTypes(&b, results)
	return b.String()
}

func writeTypes(b *strings.Builder, types []api.ValueType) {
	b.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
