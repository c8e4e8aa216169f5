package preview1

// Vintage identifies which of the two guest-facing import namespaces a
// call arrived through. Values are bits so a capability can name a set.
type Vintage uint8

const (
	Unstable Vintage = 1 << iota
	Snapshot

	// AllVintages registers a capability under both namespaces.
	AllVintages = Unstable | Snapshot
)

// Import namespaces.
const (
	ModuleUnstable = "wasi_unstable"
	ModuleSnapshot = "wasi_snapshot_preview1"
)

// Vintages lists every vintage in registration order.
var Vintages = []Vintage{Unstable, Snapshot}

// ModuleName returns the import namespace of v.
func (v Vintage) ModuleName() string {
	switch v {
	case Unstable:
		return ModuleUnstable
	case Snapshot:
		return ModuleSnapshot
	default:
		return ""
	}
}

// Has reports whether the set v contains o.
func (v Vintage) Has(o Vintage) bool {
	return v&o != 0
}

func (v Vintage) String() string {
	switch v {
	case Unstable:
		return "unstable"
	case Snapshot:
		return "snapshot"
	case AllVintages:
		return "unstable|snapshot"
	default:
		return "none"
	}
}

// VintageOf maps an import namespace back to its vintage.
func VintageOf(module string) (Vintage, bool) {
	switch module {
	case ModuleUnstable:
		return Unstable, true
	case ModuleSnapshot:
		return Snapshot, true
	default:
		return 0, false
	}
}
