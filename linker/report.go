package linker

import (
	"sort"

	"github.com/tetratelabs/wazero/api"
)

// State is the link-time outcome for one host function.
type State uint8

const (
	// Absent: the host defines the function but the guest does not import it.
	Absent State = iota
	// Present: the guest imports it with the host's signature.
	Present
	// Stubbed: the guest imports a function the host does not implement; it
	// is bound to a placeholder.
	Stubbed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Stubbed:
		return "stubbed"
	default:
		return "unknown"
	}
}

// Binding describes one (namespace, name) pair after resolution.
type Binding struct {
	Namespace string
	Name      string
	Params    []api.ValueType
	Results   []api.ValueType
	State     State
}

// Signature returns the binding's function type.
func (b Binding) Signature() string {
	return Signature(b.Params, b.Results)
}

// Import is a guest function import outside every bridged namespace.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Report is the result of resolving a compiled module against the linker.
type Report struct {
	imported map[string]bool
	Bindings []Binding
	Foreign  []Import
}

func newReport() *Report {
	return &Report{imported: make(map[string]bool)}
}

// Namespaces returns the bridged namespaces the guest imports from.
func (r *Report) Namespaces() []string {
	names := make([]string, 0, len(r.imported))
	for ns := range r.imported {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Imports reports whether the guest imports anything from namespace ns.
func (r *Report) Imports(ns string) bool {
	return r.imported[ns]
}

// Lookup returns the binding for (ns, name).
func (r *Report) Lookup(ns, name string) (Binding, bool) {
	for _, b := range r.Bindings {
		if b.Namespace == ns && b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// Count returns the number of bindings in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, b := range r.Bindings {
		if b.State == s {
			n++
		}
	}
	return n
}

// Filter returns the bindings of namespace ns, or of every namespace when
// ns is empty, whose state is one of states.
func (r *Report) Filter(ns string, states ...State) []Binding {
	var out []Binding
	for _, b := range r.Bindings {
		if ns != "" && b.Namespace != ns {
			continue
		}
		for _, s := range states {
			if b.State == s {
				out = append(out, b)
				break
			}
		}
	}
	return out
}
