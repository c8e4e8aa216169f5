package preview1

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/wasi/preview1/dirstream"
)

// Bridge owns the per-instance state behind every host call of one guest:
// descriptors, directory streams and the process context. It is not safe
// for concurrent use; the engine serializes calls of one instance.
type Bridge struct {
	log         *zap.Logger
	proc        *Process
	fds         *FDTable
	dirs        *dirstream.Table
	id          string
	allowSystem bool
}

// New creates a bridge from cfg. A nil cfg means NewConfig().
func New(cfg *Config) *Bridge {
	if cfg == nil {
		cfg = NewConfig()
	}
	id := uuid.NewString()
	base := cfg.logger
	if base == nil {
		base = Logger()
	}
	log := base.With(zap.String("instance", id))

	b := &Bridge{
		id:          id,
		log:         log,
		proc:        NewProcess(cfg.args, cfg.env),
		fds:         NewFDTable(cfg.Stdio(), cfg.rootDir, log),
		dirs:        dirstream.NewTable(log),
		allowSystem: cfg.allowSystem,
	}
	log.Debug("bridge created",
		zap.Strings("args", cfg.args),
		zap.Int("env", len(cfg.env)),
		zap.String("root", b.fds.preopens[FDRoot].HostPath))
	return b
}

// ID returns the unique instance identifier used in log fields.
func (b *Bridge) ID() string {
	return b.id
}

// Logger returns the instance logger.
func (b *Bridge) Logger() *zap.Logger {
	return b.log
}

// Process returns the process context.
func (b *Bridge) Process() *Process {
	return b.proc
}

// FDs returns the descriptor table.
func (b *Bridge) FDs() *FDTable {
	return b.fds
}

// Dirs returns the directory stream table.
func (b *Bridge) Dirs() *dirstream.Table {
	return b.dirs
}

// AllowSystem reports whether guests may run host shell commands.
func (b *Bridge) AllowSystem() bool {
	return b.allowSystem
}

// Close releases every host handle the bridge holds.
func (b *Bridge) Close() {
	b.dirs.CloseAll()
	b.fds.CloseAll()
}

type bridgeKey struct{}

// WithBridge returns a context carrying b for the host calls made under it.
func WithBridge(ctx context.Context, b *Bridge) context.Context {
	return context.WithValue(ctx, bridgeKey{}, b)
}

// FromContext returns the bridge carried by ctx, or nil.
func FromContext(ctx context.Context) *Bridge {
	b, _ := ctx.Value(bridgeKey{}).(*Bridge)
	return b
}
