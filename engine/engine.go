package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-bridge/errors"
)

// MaxMemoryPages is the largest 32-bit linear memory, in 64KB pages.
const MaxMemoryPages = 65536

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	// Shared memory stays guest-only; host calls see a plain linear memory.
	EnableThreads bool

	// CloseOnContextDone makes running guests exit when the call context
	// is canceled or its deadline passes.
	CloseOnContextDone bool

	// CacheDir persists compiled native code across processes. Empty keeps
	// the cache in memory.
	CacheDir string
}

// Engine owns a wazero runtime and its compilation cache.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	config  Config
}

// New creates an engine. A nil cfg uses the zero Config.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}

	if c.MemoryLimitPages > MaxMemoryPages {
		return nil, errors.Overflow(errors.PhaseConfig, []string{"memoryLimitPages"},
			c.MemoryLimitPages, fmt.Sprintf("%d pages", MaxMemoryPages))
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	if c.CloseOnContextDone {
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	}

	var cache wazero.CompilationCache
	if c.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(c.CacheDir)
		if err != nil {
			return nil, errors.ConfigInvalid("cacheDir", "open compilation cache", err)
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	Logger().Debug("engine created",
		zap.Uint32("memory_limit_pages", c.MemoryLimitPages),
		zap.Bool("threads", c.EnableThreads),
		zap.Bool("close_on_context_done", c.CloseOnContextDone),
		zap.String("cache_dir", c.CacheDir))

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		config:  c,
	}, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config {
	return e.config
}

var (
	wasmMagic        = []byte{0x00, 0x61, 0x73, 0x6d}
	componentVersion = []byte{0x0d, 0x00, 0x01, 0x00}
)

// IsComponent reports whether wasm carries a component-model header rather
// than a core module one.
func IsComponent(wasm []byte) bool {
	return len(wasm) >= 8 && bytes.Equal(wasm[:4], wasmMagic) && bytes.Equal(wasm[4:8], componentVersion)
}

// Compile validates and compiles a core module.
func (e *Engine) Compile(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	if len(wasm) < 8 || !bytes.Equal(wasm[:4], wasmMagic) {
		return nil, errors.InvalidInput(errors.PhaseLoad, "not a WebAssembly binary")
	}
	if IsComponent(wasm) {
		return nil, errors.Unsupported(errors.PhaseLoad, "component binaries")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	Logger().Debug("module compiled",
		zap.Int("size", len(wasm)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return compiled, nil
}

// Close releases the runtime, then the compilation cache.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
