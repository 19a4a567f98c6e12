package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lcls-cass/cassgo/cass/acqiris"
	"github.com/lcls-cass/cassgo/cass/calib"
	"github.com/lcls-cass/cassgo/cass/coalesce"
	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/logging"
	"github.com/lcls-cass/cassgo/cass/manager"
	"github.com/lcls-cass/cassgo/cass/metrics"
	"github.com/lcls-cass/cassgo/cass/reader"
	"github.com/lcls-cass/cassgo/cass/sink"
	"github.com/lcls-cass/cassgo/cass/stdproc"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// exitCodeFor maps the sentinel errors of spec.md §7 to the process
// exit codes of spec.md §6: 0 on a clean run, a distinct non-zero code
// for graph-configuration errors versus everything else (reader/sink
// I/O, signal-driven shutdown that surfaced an error mid-flight).
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, manager.ErrUnknownKind),
		errors.Is(err, manager.ErrUnknownProcessor),
		errors.Is(err, manager.ErrCyclicGraph):
		return 2
	default:
		return 1
	}
}

func runDaemon(ctx context.Context) error {
	logger, err := logging.New(rootFlags.logLevel, rootFlags.dev)
	if err != nil {
		return fmt.Errorf("cassd: building logger: %w", err)
	}
	defer logger.Sync()

	store, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("cassd: loading config %q: %w", rootFlags.configPath, err)
	}

	var quit atomic.Bool
	m := manager.New(rootFlags.workers, store.Kind, logger)
	mtr := metrics.New()
	m.SetMetrics(mtr)
	stdproc.Register(m, store, &quit)
	calib.Register(m, store)
	coalesce.Register(m, store)
	acqiris.Register(m, store)
	sink.Register(m, store)

	if err := m.Load(store.ActiveList()); err != nil {
		return fmt.Errorf("cassd: building processor graph: %w", err)
	}
	logger.Info("processor graph built", zap.Strings("active", m.ActiveList()))

	rd, src, err := openInput(rootFlags.input)
	if err != nil {
		return fmt.Errorf("cassd: opening input %q: %w", rootFlags.input, err)
	}
	defer src.Close()

	if err := rd.ReadHeaderInfo(src); err != nil {
		return fmt.Errorf("cassd: reading input preamble: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	installSignalHandlers(runCtx, cancel, &quit, m, store, logger)

	events := make(chan *event.CASSEvent, rootFlags.workers)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(events)
		return pumpEvents(gctx, rd, src, events)
	})

	for w := 0; w < rootFlags.workers; w++ {
		g.Go(func() error {
			return drainEvents(gctx, m, events, &quit)
		})
	}

	runErr := g.Wait()
	if quitErr := m.AboutToQuit(); quitErr != nil {
		logger.Error("aboutToQuit reported errors", zap.Error(quitErr))
		if runErr == nil {
			runErr = quitErr
		}
	}
	logMetricsSnapshot(logger, mtr)
	return runErr
}

func logMetricsSnapshot(logger *zap.Logger, mtr *metrics.Facade) {
	snap := mtr.Snapshot()
	fields := []zap.Field{
		zap.Uint64("events_processed_total", snap.EventsProcessed),
		zap.Int64("active_processors", snap.ActiveProcessors),
	}
	for name, n := range snap.ProcessorErrors {
		fields = append(fields, zap.Uint64("processor_errors_total."+name, n))
	}
	for name, total := range snap.WriteSecondsTotal {
		fields = append(fields, zap.Float64("sink_write_seconds_total."+name, total))
	}
	logger.Info("final metrics snapshot", fields...)
}

// pumpEvents is the single sequential reader goroutine spec.md §4.O
// describes: the underlying io.Reader (file or TCP connection) is
// never touched concurrently, matching spec.md §4.E's single-consumer
// contract. It stops on a clean EOF, a corrupt-stream error, or
// context cancellation.
func pumpEvents(ctx context.Context, rd reader.Reader, src io.ReadCloser, out chan<- *event.CASSEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		evt := event.New()
		ok, err := rd.Read(src, evt)
		if err != nil {
			if errors.Is(err, wire.ErrCorruptStream) {
				return fmt.Errorf("cassd: corrupt input stream: %w", err)
			}
			return fmt.Errorf("cassd: reading event: %w", err)
		}
		if !ok {
			return nil
		}

		select {
		case out <- evt:
		case <-ctx.Done():
			return nil
		}
	}
}

// drainEvents is one worker of the pool spec.md §4.O/§5 describes:
// it calls the manager for each event and releases the event's
// per-processor slots once every processor in the active list has
// seen it, regardless of outcome, so the cached-list pool never
// leaks a slot to a failed event.
func drainEvents(ctx context.Context, m *manager.Manager, in <-chan *event.CASSEvent, quit *atomic.Bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-in:
			if !ok {
				return nil
			}
			err := m.ProcessEvent(evt)
			m.ReleaseEvent(evt)
			if err != nil {
				return err
			}
			if quit.Load() {
				return nil
			}
		}
	}
}

// installSignalHandlers wires the "admin endpoint" of spec.md §4.O to
// OS signals, the simplest control channel available to a standalone
// daemon: SIGINT/SIGTERM request a graceful quit (cancel the run
// context so no new event is picked up, then AboutToQuit flushes every
// processor exactly once); SIGUSR1/SIGUSR2 dispatch startDarkcal /
// startGain to the processor named by the processor.daemon.darkcal_processor
// / processor.daemon.gain_processor config keys, when configured.
func installSignalHandlers(ctx context.Context, cancel context.CancelFunc, quit *atomic.Bool, m *manager.Manager, store *config.Store, logger *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(sigs)
				return
			case sig := <-sigs:
				switch sig {
				case syscall.SIGINT, syscall.SIGTERM:
					logger.Info("shutdown requested", zap.String("signal", sig.String()))
					quit.Store(true)
					cancel()
				case syscall.SIGUSR1:
					dispatchCommand(m, store, logger, "darkcal_processor", "startDarkcal")
				case syscall.SIGUSR2:
					dispatchCommand(m, store, logger, "gain_processor", "startGain")
				}
			}
		}
	}()
}

// dispatchCommand looks up the target processor name under
// processor.daemon.<key> (spec.md §6's configuration-key convention)
// and forwards cmd to it via the manager's point-to-point dispatch.
func dispatchCommand(m *manager.Manager, store *config.Store, logger *zap.Logger, key, cmd string) {
	target := store.String("daemon", key, "")
	if target == "" {
		logger.Warn("no processor configured for command", zap.String("command", cmd))
		return
	}
	if err := m.ProcessCommand(target, cmd); err != nil {
		logger.Error("command dispatch failed", zap.String("processor", target), zap.String("command", cmd), zap.Error(err))
	}
}

// openInput picks the reader implementation for path: a bare
// "tcp://host:port" dials the online relay (spec.md §4.E's TCP
// streamer shares frms6's framing); otherwise the file extension
// selects frms6 vs. raw-sss, per spec.md §6.
func openInput(path string) (reader.Reader, io.ReadCloser, error) {
	if strings.HasPrefix(path, "tcp://") {
		addr := strings.TrimPrefix(path, "tcp://")
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("dialing %q: %w", addr, err)
		}
		return reader.NewTCPStreamer(), conn, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sss", ".raw":
		return &reader.RAWSSSReader{}, f, nil
	default:
		return &reader.Frms6Reader{}, f, nil
	}
}
