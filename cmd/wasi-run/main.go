// Command wasi-run executes a WASI preview1 module on the host-call bridge.
//
//	wasi-run [flags] module.wasm [-- args...]
//
// The process exits with the guest's exit code.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasi-bridge/config"
	"github.com/wippyai/wasi-bridge/engine"
	"github.com/wippyai/wasi-bridge/linker"
	"github.com/wippyai/wasi-bridge/runtime"
	"github.com/wippyai/wasi-bridge/wasi/preview1"
)

// exitFailure is returned when the guest could not run to completion.
const exitFailure = 1

type options struct {
	configFile       string
	root             string
	logLevel         string
	logFormat        string
	cacheDir         string
	env              []string
	memoryLimitPages uint32
	list             bool
	interactive      bool
	noSystem         bool
}

type stdio struct {
	in       io.Reader
	out, err io.Writer
}

func main() {
	os.Exit(execute(os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr}))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, std stdio) int {
	code := 0
	root := newRootCmd(std, &code)
	root.SetArgs(args)
	root.SetOut(std.out)
	root.SetErr(std.err)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(std.err, "wasi-run: %v\n", err)
		return exitFailure
	}
	return code
}

func newRootCmd(std stdio, code *int) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "wasi-run [flags] module.wasm [-- args...]",
		Short:         "Run a WASI preview1 module",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &opts)
			if err != nil {
				return err
			}
			guestArgs := args[1:]
			if len(guestArgs) > 0 && guestArgs[0] == "--" {
				guestArgs = guestArgs[1:]
			}
			c, err := run(cmd.Context(), cfg, &opts, args[0], guestArgs, std)
			*code = c
			return err
		},
	}
	// Everything after the module path belongs to the guest.
	cmd.Flags().SetInterspersed(false)

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file")
	f.StringArrayVar(&opts.env, "env", nil, "guest environment variable KEY=VALUE (repeatable)")
	f.StringVar(&opts.root, "root", "", "host directory behind the / and ./ preopens (default: current directory)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "", "log format: json or console")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "directory for compiled code reused across runs")
	f.Uint32Var(&opts.memoryLimitPages, "memory-limit-pages", 0, "maximum guest memory in 64KB pages")
	f.BoolVar(&opts.list, "list", false, "print the link report and exit")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "browse the link report before running")
	f.BoolVar(&opts.noSystem, "no-system", false, "refuse ashell_system commands")
	return cmd
}

// loadConfig layers flags over the environment over the config file.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("root") {
		cfg.Root = opts.root
	}
	if f.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if f.Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if f.Changed("memory-limit-pages") {
		cfg.MemoryLimitPages = opts.memoryLimitPages
	}
	if opts.noSystem {
		disabled := false
		cfg.AllowSystem = &disabled
	}
	if err := cfg.SetEnv(opts.env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func installLogger(log *zap.Logger) {
	engine.SetLogger(log)
	linker.SetLogger(log)
	preview1.SetLogger(log)
	runtime.SetLogger(log)
}

func run(ctx context.Context, cfg *config.Config, opts *options, path string, guestArgs []string, std stdio) (int, error) {
	log, err := cfg.Logger()
	if err != nil {
		return exitFailure, err
	}
	defer log.Sync()
	installLogger(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wasm, err := os.ReadFile(path)
	if err != nil {
		return exitFailure, fmt.Errorf("read module: %w", err)
	}

	rt, err := runtime.New(ctx,
		runtime.WithLogger(log),
		runtime.WithMemoryLimitPages(cfg.MemoryLimitPages),
		runtime.WithCacheDir(cfg.CacheDir),
		runtime.WithCloseOnContextDone(true))
	if err != nil {
		return exitFailure, err
	}
	defer rt.Close(ctx)

	mod, err := rt.Load(ctx, wasm)
	if err != nil {
		return exitFailure, err
	}
	defer mod.Close(ctx)

	if opts.list {
		printReport(std.out, path, mod.Imports())
		return 0, nil
	}
	if opts.interactive {
		if !isTerminal(std.in) || !isTerminal(std.out) {
			return exitFailure, fmt.Errorf("interactive mode needs a terminal")
		}
		start, err := browse(path, mod)
		if err != nil {
			return exitFailure, err
		}
		if !start {
			return 0, nil
		}
	}
	if !mod.Command() {
		return exitFailure, fmt.Errorf("%s does not export %s", path, runtime.StartFunction)
	}

	if len(guestArgs) > 0 || len(cfg.Args) == 0 {
		guestArgs = append([]string{filepath.Base(path)}, guestArgs...)
	}
	bridgeCfg := cfg.Bridge(guestArgs...).
		WithStdin(std.in).
		WithStdout(std.out).
		WithStderr(std.err).
		WithLogger(log)

	inst, err := mod.Instantiate(ctx, bridgeCfg)
	if err != nil {
		return exitFailure, err
	}
	defer inst.Close(ctx)

	code, err := inst.Run(ctx)
	if err != nil {
		return exitFailure, err
	}
	log.Debug("guest finished", zap.String("module", path), zap.Uint32("exit_code", code))
	return int(code), nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
