package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/pkg/logger"

	"github.com/robfig/cron/v3"
)

var ErrRefreshInProgress = errors.New("snapshot refresh already in progress")

// Snapshotter computes a full snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, req Request) (*models.Snapshot, error)
}

// SnapshotRefresher recomputes the snapshot on a cron schedule, stores it and
// announces it downstream.
type SnapshotRefresher struct {
	uc       Snapshotter
	store    domrepo.SnapshotStore
	pub      domrepo.SnapshotPublisher
	metrics  domrepo.Metrics
	log      *logger.Logger
	schedule cron.Schedule
	lockTTL  time.Duration
	timeout  time.Duration

	cron    *cron.Cron
	running atomic.Bool
	wg      sync.WaitGroup
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewSnapshotRefresher parses spec (standard 5-field cron or a descriptor such
// as "@every 15m"). pub and metrics may be nil interfaces.
func NewSnapshotRefresher(uc Snapshotter, store domrepo.SnapshotStore, pub domrepo.SnapshotPublisher, metrics domrepo.Metrics, spec string, timeout time.Duration, log *logger.Logger) (*SnapshotRefresher, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SnapshotRefresher{
		uc:       uc,
		store:    store,
		pub:      pub,
		metrics:  metrics,
		log:      log.With(logger.String("component", "refresher")),
		schedule: sched,
		lockTTL:  timeout + 30*time.Second,
		timeout:  timeout,
	}, nil
}

// Latest returns the most recently stored snapshot.
func (r *SnapshotRefresher) Latest(ctx context.Context) (*models.Snapshot, error) {
	return r.store.Latest(ctx)
}

// Next reports when the schedule fires after t.
func (r *SnapshotRefresher) Next(t time.Time) time.Time { return r.schedule.Next(t) }

// Refresh computes, stores and publishes one snapshot. It holds the store's
// refresh lock for the duration so replicas sharing Redis do not duplicate work.
func (r *SnapshotRefresher) Refresh(ctx context.Context) (*models.Snapshot, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer r.running.Store(false)
	return r.refresh(ctx)
}

// refresh runs one cycle; the caller owns the running flag.
func (r *SnapshotRefresher) refresh(ctx context.Context) (snap *models.Snapshot, err error) {
	start := time.Now()
	defer func() {
		symbols := 0
		if snap != nil {
			symbols = len(snap.Symbols)
		}
		r.metrics.RecordRefresh(time.Now(), symbols, err)
	}()

	locked, err := r.store.TryLock(ctx, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !locked {
		return nil, ErrRefreshInProgress
	}
	defer func() {
		if uerr := r.store.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			r.log.Warn("release refresh lock failed", logger.Error(uerr))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snap, err = r.uc.Snapshot(ctx, Request{})
	if err != nil {
		return nil, fmt.Errorf("compute snapshot: %w", err)
	}
	if err := r.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	if r.pub != nil {
		if err := r.pub.Publish(ctx, snap); err != nil {
			r.log.Warn("publish snapshot failed", logger.Error(err))
		}
	}
	r.log.Info("snapshot refreshed",
		logger.Int("symbols", len(snap.Symbols)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return snap, nil
}

// TriggerAsync starts a refresh in the background unless one is running.
// The running flag is claimed before it returns, so at most one caller wins.
func (r *SnapshotRefresher) TriggerAsync(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.logResult(r.refresh(context.WithoutCancel(ctx)))
	}()
	return true
}

func (r *SnapshotRefresher) runLogged(ctx context.Context) {
	r.logResult(r.Refresh(ctx))
}

func (r *SnapshotRefresher) logResult(_ *models.Snapshot, err error) {
	if err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			r.log.Debug("refresh skipped", logger.Error(err))
			return
		}
		r.log.Error("snapshot refresh failed", logger.Error(err))
	}
}

// Start schedules refreshes and kicks off an initial one.
func (r *SnapshotRefresher) Start(ctx context.Context) {
	r.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLogger{r.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.log})),
	)
	r.cron.Schedule(r.schedule, cron.FuncJob(func() { r.runLogged(ctx) }))
	r.cron.Start()
	r.TriggerAsync(ctx)
	r.log.Info("refresh scheduler started", logger.String("next", r.Next(time.Now()).Format(time.RFC3339)))
}

// Stop halts the schedule and waits for in-flight refreshes or ctx.
func (r *SnapshotRefresher) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		if r.cron != nil {
			<-r.cron.Stop().Done()
		}
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct{ l *logger.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(kv), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
