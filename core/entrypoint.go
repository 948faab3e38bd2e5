package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/bfroute/perf"
	"github.com/encodeous/bfroute/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
)

// ErrShutdown is the cancellation cause of an orderly stop.
var ErrShutdown = errors.New("shutdown requested")

// Options adjusts how Start runs a host.
type Options struct {
	LogLevel slog.Level
	// LogWriter receives the console log, os.Stderr if nil.
	LogWriter io.Writer
	// Sink persists received files. Defaults to writing into recv_dir.
	Sink state.FileSink
	// HandleSignals stops the host on SIGINT or SIGTERM.
	HandleSignals bool
	// Ready is called once every module is initialized, just before the main
	// loop starts. It must not block.
	Ready func(e *state.Env)
	// Transport replaces the UDP socket. Packets for this host must then be
	// handed to Receive by the caller.
	Transport PacketWriter
}

func serveDebug(addr string) {
	go func() {
		// perf registers /debug/metrics, expvar registers /debug/vars
		slog.Info("debug server", "addr", addr, "error", http.ListenAndServe(addr, nil))
	}()
}

// Bootstrap reads the configuration at cfgPath and runs the host until it is closed.
func Bootstrap(cfgPath, logPath, debugAddr string, verbose bool, ready func(e *state.Env)) error {
	if debugAddr != "" {
		serveDebug(debugAddr)
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	cfg, err := state.ReadConfig(cfgPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	return Start(*cfg, Options{
		LogLevel:      level,
		HandleSignals: true,
		Ready:         ready,
	})
}

func newLogger(prefix string, cfg *state.LocalCfg, opts *Options) (*slog.Logger, io.Closer, error) {
	out := opts.LogWriter
	if out == nil {
		out = os.Stderr
	}
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(out, &tint.Options{
			Level:        opts.LogLevel,
			AddSource:    false,
			CustomPrefix: prefix,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	var closer io.Closer
	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: opts.LogLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs a host with the given configuration, returning once it has
// stopped. An orderly shutdown returns nil.
func Start(cfg state.LocalCfg, opts Options) error {
	self, err := ResolveSelf(&cfg)
	if err != nil {
		return err
	}
	logger, logFile, err := newLogger(string(self), &cfg, &opts)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	sink := opts.Sink
	if sink == nil {
		dir := cfg.RecvDir
		if dir == "" {
			dir = state.DefaultRecvDir
		}
		sink = DiskSink(dir)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	dispatch := make(chan func(s *state.State) error, state.DispatchBacklog)

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			DispatchChannel: dispatch,
			LocalCfg:        cfg,
			Self:            self,
			Context:         ctx,
			Cancel:          cancel,
			Log:             logger,
			Sink:            sink,
		},
		RouterState: state.NewRouterState(self, cfg.UpdateInterval(), cfg.Neighbours),
	}

	s.Log.Info("init modules")
	err = initModules(&s, opts.Transport)
	if err != nil {
		s.Cancel(err)
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("host started, type HELP for commands. To exit, send SIGINT or CLOSE.", "addr", self)

	if opts.HandleSignals {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c)
		go func() {
			select {
			case <-c:
				s.Cancel(fmt.Errorf("%w: received signal", ErrShutdown))
			case <-ctx.Done():
				return
			}
		}()
	}

	if opts.Ready != nil {
		opts.Ready(s.Env)
	}

	MainLoop(&s, dispatch)

	cause := context.Cause(ctx)
	if errors.Is(cause, ErrShutdown) || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func initModules(s *state.State, transport PacketWriter) error {
	var modules []state.NyModule
	if transport == nil {
		modules = append(modules, &Host{})
	}
	modules = append(modules, &HostRouter{Out: transport})
	modules = append(modules, &Transfers{})

	for _, module := range modules {
		s.Modules[moduleName(module)] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

// MainLoop runs dispatched functions one at a time until the host is cancelled.
func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatch {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	// the dispatch channel is left open, senders give up once the context is done
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for name, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", name, "error", err)
		}
	}
	s.Log.Info("stopped")
}
