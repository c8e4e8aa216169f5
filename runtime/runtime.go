package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/engine"
	"github.com/wippyai/wasi-bridge/errors"
	"github.com/wippyai/wasi-bridge/linker"
)

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	engine  engine.Config
	linker  linker.Options
	noHosts bool
}

// WithMemoryLimitPages caps the linear memory of every instance, in 64KB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) { o.engine.MemoryLimitPages = pages }
}

// WithCloseOnContextDone makes a running guest exit once its call context
// is done. Run then reports the context error.
func WithCloseOnContextDone(enabled bool) Option {
	return func(o *options) { o.engine.CloseOnContextDone = enabled }
}

// WithCacheDir keeps compiled code in dir across processes.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.engine.CacheDir = dir }
}

// WithLogger sets the logger for runtime events and for instances created
// without a configuration.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStubUnknown controls whether imports the bridge does not implement
// are bound to a Nosys stub. Enabled by default.
func WithStubUnknown(enabled bool) Option {
	return func(o *options) { o.linker.StubUnknown = enabled }
}

// WithoutWASI skips registering the bridge capabilities. Hosts can be
// added later through Linker.
func WithoutWASI() Option {
	return func(o *options) { o.noHosts = true }
}

// Runtime compiles guest modules and links them against the bridge. Safe
// for concurrent use.
type Runtime struct {
	engine *engine.Engine
	linker *linker.Linker
	log    *zap.Logger
}

// New creates a runtime with every bridge capability registered in both
// preview1 namespaces.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := options{linker: linker.DefaultOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	eng, err := engine.New(ctx, &o.engine)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	r := &Runtime{
		engine: eng,
		linker: linker.New(eng.Runtime(), o.linker),
		log:    log,
	}
	if !o.noHosts {
		if err := r.RegisterWASI(); err != nil {
			eng.Close(ctx)
			return nil, err
		}
	}
	return r, nil
}

// Linker returns the linker holding the host namespaces.
func (r *Runtime) Linker() *linker.Linker {
	return r.linker
}

// Engine returns the engine the runtime compiles and runs on.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Load compiles wasm and resolves its imports. Signature mismatches and
// imports that cannot be stubbed fail here; the error wraps each problem.
// Imports from modules the bridge does not provide are listed in the
// report's Foreign field and must be instantiated in the engine's runtime
// before Instantiate.
func (r *Runtime) Load(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}

	report, err := r.linker.Resolve(compiled)
	if err != nil {
		compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLinking, errors.KindMissingImport, err, "link imports")
	}
	if err := r.linker.Instantiate(ctx, report); err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	r.log.Debug("module loaded",
		zap.Strings("namespaces", report.Namespaces()),
		zap.Int("present", report.Count(linker.Present)),
		zap.Int("stubbed", report.Count(linker.Stubbed)),
		zap.Int("foreign", len(report.Foreign)))
	for _, imp := range report.Foreign {
		r.log.Warn("import outside the bridge",
			zap.String("module", imp.Module),
			zap.String("name", imp.Name))
	}

	return &Module{
		runtime:  r,
		compiled: compiled,
		report:   report,
	}, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	r.linker.Close()
	return r.engine.Close(ctx)
}
