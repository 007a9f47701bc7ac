package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
	"vidresolve/internal/config"
	"vidresolve/internal/logging"
	"vidresolve/internal/reconcile"
	"vidresolve/internal/webhook"
)

// ErrAlreadyRunning is returned by Start when this or another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Daemon owns the API server, the optional AMQP consumer and the periodic
// reconcile loop, and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  *app.Components

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	consumer *webhook.Consumer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	mu            sync.Mutex
	lastReconcile *api.ReconcileRun
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StoreDriver   string
	StorePath     string
	LockFilePath  string
	APIAddress    string
	AMQPConsumer  bool
	CacheEntries  int
	LastReconcile *api.ReconcileRun
}

// New constructs a daemon around already-built components.
func New(cfg *config.Config, comps *app.Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps == nil {
		return nil, errors.New("daemon requires config and components")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		comps:    comps,
		lockPath: cfg.DaemonLockPath(),
		lock:     flock.New(cfg.DaemonLockPath()),
	}

	if strings.TrimSpace(cfg.Webhook.AMQPURL) != "" {
		consumer, err := webhook.NewConsumer(comps.Webhook, webhook.ConsumerOptions{
			URL:    cfg.Webhook.AMQPURL,
			Queue:  cfg.Webhook.AMQPQueue,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("amqp consumer: %w", err)
		}
		d.consumer = consumer
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock and launches the API server, the AMQP
// consumer and the reconcile loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return ErrAlreadyRunning
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another vidresolve daemon instance holds %s: %w", d.lockPath, ErrAlreadyRunning)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	if d.consumer != nil {
		d.workers.Go(func() {
			if err := d.consumer.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.ErrorWithContext(d.logger, "amqp consumer stopped", "amqp_consumer_stopped",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check webhook.amqp_url and broker health"))
			}
		})
	}
	if interval := d.cfg.ReconcileInterval(); interval > 0 {
		d.workers.Go(func() {
			d.reconcileLoop(d.ctx, interval)
		})
	}

	d.running.Store(true)
	d.logger.Info("vidresolve daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.api.address()),
		logging.Bool("amqp_consumer", d.consumer != nil),
		logging.Duration("reconcile_interval", d.cfg.ReconcileInterval()))
	return nil
}

// Stop stops background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workers.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report another instance"))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vidresolve daemon stopped")
}

// Close stops the daemon and releases the components it was built with.
func (d *Daemon) Close() error {
	d.Stop()
	return d.comps.Close()
}

// APIAddress returns the bound API address, or "" when the server is not listening.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// RunReconcile runs one full reconcile pass and remembers its summary.
func (d *Daemon) RunReconcile(ctx context.Context, trigger string) (reconcile.Summary, error) {
	summary, err := d.comps.Reconcile.RunAll(ctx)
	// A pass cut short by shutdown is neither a result nor a failure.
	if errors.Is(err, reconcile.ErrAlreadyRunning) || errors.Is(err, context.Canceled) {
		return summary, err
	}
	run := &api.ReconcileRun{
		FinishedAt: time.Now().UTC().Format(time.RFC3339),
		Trigger:    trigger,
		Summary:    api.FromSummary(summary),
	}
	if err != nil {
		run.Summary.Error = err.Error()
	}
	d.mu.Lock()
	d.lastReconcile = run
	d.mu.Unlock()
	d.notifyReconcile(ctx, trigger, summary, err)
	return summary, err
}

func (d *Daemon) notifyReconcile(ctx context.Context, trigger string, summary reconcile.Summary, runErr error) {
	notifier := d.comps.Notifier
	if notifier == nil || !notifier.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if runErr != nil {
		err = notifier.NotifyError(ctx, runErr, trigger+" reconcile")
	} else {
		err = notifier.NotifyReconcileCompleted(ctx, trigger, summary)
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "reconcile notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "reconcile results are only in the logs"))
	}
}

func (d *Daemon) reconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		summary, err := d.RunReconcile(ctx, "interval")
		switch {
		case errors.Is(err, reconcile.ErrAlreadyRunning):
			d.logger.Info("periodic reconcile skipped",
				logging.Args(logging.DecisionAttrs("periodic_reconcile", "skipped", "another pass holds the lock")...)...)
		case err != nil && ctx.Err() == nil:
			logging.WarnWithContext(d.logger, "periodic reconcile failed", "periodic_reconcile_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the record store"),
				logging.String(logging.FieldImpact, "stale records wait for the next interval"))
		case err == nil:
			d.logger.Info("periodic reconcile finished",
				logging.Int("scanned", summary.Scanned),
				logging.Int("patched", summary.Patched),
				logging.Int("deferred", summary.Deferred))
		}
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	last := d.lastReconcile
	d.mu.Unlock()
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StoreDriver:   d.comps.Store.Driver(),
		StorePath:     d.comps.Store.Path(),
		LockFilePath:  d.lockPath,
		APIAddress:    d.api.address(),
		AMQPConsumer:  d.consumer != nil,
		CacheEntries:  d.comps.Cache.Count(),
		LastReconcile: last,
	}
}
