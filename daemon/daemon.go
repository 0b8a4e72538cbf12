package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/namewatch/dbusconn"
	"github.com/petal-labs/namewatch/journal"
	"github.com/petal-labs/namewatch/otel"
	"github.com/petal-labs/namewatch/sse"
	"github.com/petal-labs/namewatch/watch"
)

const (
	instrumentationName = "github.com/petal-labs/namewatch"

	shutdownTimeout = 10 * time.Second
)

// Options carries runtime dependencies that are not part of the
// declarative configuration. The zero value is production-ready.
type Options struct {
	// Conn overrides the bus connection. When nil the daemon dials
	// the bus named in the configuration.
	Conn watch.Conn

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Daemon watches a configured set of bus names, journals every
// disappearance, and serves the journal over HTTP.
type Daemon struct {
	cfg    Config
	logger *slog.Logger

	conn    watch.Conn
	ownConn *dbusconn.Conn // non-nil when the daemon dialed the bus itself

	journal      journal.Journal
	closeJournal func() error
	feed         *journal.Feed

	watcher *watch.Watcher
	pruner  *pruner
	server  *http.Server
}

// New assembles a daemon from validated configuration. The returned
// daemon is not running until Run is called.
func New(cfg Config, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger,
	}

	if err := d.setupJournal(); err != nil {
		return nil, err
	}
	if err := d.setupWatcher(opts.Conn); err != nil {
		d.closeResources()
		return nil, err
	}
	if err := d.setupPruner(); err != nil {
		d.closeResources()
		return nil, err
	}
	d.setupServer()

	return d, nil
}

func (d *Daemon) setupJournal() error {
	if d.cfg.Journal.DSN != "" {
		sj, err := journal.NewSQLiteJournal(journal.SQLiteJournalConfig{DSN: d.cfg.Journal.DSN})
		if err != nil {
			return fmt.Errorf("daemon: open journal: %w", err)
		}
		d.journal = sj
		d.closeJournal = sj.Close
	} else {
		d.journal = journal.NewMemJournal()
	}
	d.feed = journal.NewFeed(journal.FeedConfig{})
	return nil
}

func (d *Daemon) setupWatcher(conn watch.Conn) error {
	if conn == nil {
		dialed, err := dbusconn.Connect(dbusconn.Config{
			Bus:    d.cfg.Bus,
			Logger: d.logger,
		})
		if err != nil {
			return fmt.Errorf("daemon: connect bus: %w", err)
		}
		d.ownConn = dialed
		conn = dialed
	}
	d.conn = conn

	metrics, err := otel.NewMetricsHandler(otelapi.Meter(instrumentationName))
	if err != nil {
		return fmt.Errorf("daemon: metrics: %w", err)
	}
	tracing := otel.NewTracingHandler(otelapi.Tracer(instrumentationName))
	recorder := journal.NewRecorder(d.journal, d.feed, d.logger)

	watcher, err := watch.NewWatcher(watch.WatcherConfig{
		Conn:   conn,
		Logger: d.logger,
		Emit:   watch.MultiEmitter(metrics.Handle, tracing.Handle, recorder.Handle),
	})
	if err != nil {
		return fmt.Errorf("daemon: watcher: %w", err)
	}
	d.watcher = watcher

	for _, name := range d.cfg.Names {
		if err := watcher.Watch(name, d.nameLost, name); err != nil {
			return fmt.Errorf("daemon: watch %q: %w", name, err)
		}
	}
	return nil
}

// nameLost is the daemon's callback for every configured name.
// Journaling and metrics ride the event emitter, so this logs and
// re-arms: a single firing is terminal per registration, but the
// daemon keeps its configured names watched for the life of the
// process so every successive owner's disappearance is journaled.
func (d *Daemon) nameLost(name string, _ any) {
	d.logger.Info("watched name lost", "name", name)
	if err := d.watcher.Watch(name, d.nameLost, name); err != nil {
		d.logger.Error("re-watching name failed", "name", name, "error", err)
	}
}

func (d *Daemon) setupPruner() error {
	p, err := newPruner(d.journal, d.cfg.Journal, d.logger)
	if err != nil {
		return err
	}
	d.pruner = p
	return nil
}

func (d *Daemon) setupServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.handleHealth)
	mux.HandleFunc("GET /names", d.handleNames)
	mux.HandleFunc("GET /firings", d.handleFirings)
	mux.HandleFunc("GET /names/{name}/firings", d.handleFirings)
	mux.Handle("GET /names/{name}/events", sse.NewHandler(d.journal, d.feed))

	d.server = &http.Server{
		Addr:              d.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run serves HTTP and prunes the journal until ctx is cancelled, then
// shuts everything down. It always returns a non-nil error; on a clean
// shutdown that error is ctx's cause.
func (d *Daemon) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("http server listening", "addr", d.cfg.Listen)
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	pruneCtx, cancelPrune := context.WithCancel(ctx)
	defer cancelPrune()
	if d.pruner != nil {
		go d.pruner.run(pruneCtx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-serverErr:
		runErr = fmt.Errorf("daemon: http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("http shutdown failed", "error", err)
	}
	d.closeResources()
	return runErr
}

// Journal exposes the firing journal, for embedding callers.
func (d *Daemon) Journal() journal.Journal { return d.journal }

// Watcher exposes the underlying watcher, for embedding callers.
func (d *Daemon) Watcher() *watch.Watcher { return d.watcher }

func (d *Daemon) closeResources() {
	if d.feed != nil {
		_ = d.feed.Close()
	}
	if d.ownConn != nil {
		if err := d.ownConn.Close(); err != nil {
			d.logger.Error("bus close failed", "error", err)
		}
		d.ownConn = nil
	}
	if d.closeJournal != nil {
		if err := d.closeJournal(); err != nil {
			d.logger.Error("journal close failed", "error", err)
		}
		d.closeJournal = nil
	}
}
