package runtime

import (
	stderrors "errors"
	"fmt"

	"github.com/wippyai/wasi-bridge/errors"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
	"github.com/wippyai/wasi-bridge/wasi/preview1/cli"
	"github.com/wippyai/wasi-bridge/wasi/preview1/clocks"
	"github.com/wippyai/wasi-bridge/wasi/preview1/filesystem"
	"github.com/wippyai/wasi-bridge/wasi/preview1/random"
	"github.com/wippyai/wasi-bridge/wasi/preview1/shell"
)

var errNoCapabilities = stderrors.New("host provides no capabilities")

// Hosts returns the capability providers the runtime registers.
func Hosts() []preview1.Host {
	return []preview1.Host{
		cli.NewHost(),
		clocks.NewHost(),
		random.NewHost(),
		filesystem.NewHost(),
		shell.NewHost(),
	}
}

// RegisterWASI registers every capability in the wasi_unstable and
// wasi_snapshot_preview1 namespaces.
func (r *Runtime) RegisterWASI() error {
	return r.RegisterHosts(Hosts()...)
}

// RegisterHosts registers additional capability providers. Must be called
// before loading modules that import them.
func (r *Runtime) RegisterHosts(hosts ...preview1.Host) error {
	for _, h := range hosts {
		if len(h.Capabilities()) == 0 {
			return errors.Registration(errors.PhaseHost, "preview1", fmt.Sprintf("%T", h), errNoCapabilities)
		}
	}
	preview1.RegisterHosts(r.linker, hosts...)
	return nil
}
