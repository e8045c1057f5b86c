package main

import (
	"context"
	"errors"
	"time"

	"pharmledger/internal/config"
	appctx "pharmledger/internal/core/context"
	"pharmledger/internal/infrastructure/lock"
	"pharmledger/internal/infrastructure/storage/postgres"
	"pharmledger/pkg/logger"
)

// SystemUserID is recorded on movements written by background jobs.
const SystemUserID = "system"

const (
	expiryLockKey   = "expiry-sweep"
	publishedMaxAge = 7 * 24 * time.Hour
)

// ExpirySweeper writes off expired stock.
type ExpirySweeper interface {
	ProcessExpiredBatches(ctx context.Context, asOf time.Time, userID string) (int, error)
}

// Worker runs the periodic background jobs.
type Worker struct {
	cfg    config.WorkerConfig
	log    *logger.Logger
	locker lock.Locker
	expiry ExpirySweeper

	// Nil with the memory storage driver.
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	pool        *postgres.Pool

	now func() time.Time
}

// NewWorker creates a worker. relay and idempotency may be nil.
func NewWorker(cfg config.WorkerConfig, log *logger.Logger, locker lock.Locker, expiry ExpirySweeper,
	relay *postgres.OutboxRelay, idempotency *postgres.IdempotencyStore) *Worker {
	return &Worker{
		cfg:         cfg,
		log:         log.WithComponent("worker"),
		locker:      locker,
		expiry:      expiry,
		relay:       relay,
		idempotency: idempotency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. The expiry sweep also runs once at start.
func (w *Worker) Run(ctx context.Context) {
	expiryTicker := time.NewTicker(w.cfg.ExpiryInterval)
	defer expiryTicker.Stop()

	outboxTicker := time.NewTicker(w.cfg.OutboxInterval)
	defer outboxTicker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	w.runJob(ctx, "expiry", w.sweepExpired)

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiryTicker.C:
			w.runJob(ctx, "expiry", w.sweepExpired)
		case <-outboxTicker.C:
			w.runJob(ctx, "outbox", w.relayOutbox)
		case <-cleanupTicker.C:
			w.runJob(ctx, "cleanup", w.cleanup)
		}
	}
}

func (w *Worker) runJob(ctx context.Context, name string, job func(ctx context.Context) error) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext(appctx.OriginWorker))
	ctx = logger.WithLogger(ctx, w.log.With("job", name))

	if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "job failed", "error", err)
	}
}

// sweepExpired writes off expired batches. Only one worker sweeps at a time;
// the others skip the round.
func (w *Worker) sweepExpired(ctx context.Context) error {
	lk, err := w.locker.Obtain(ctx, expiryLockKey, w.lockTTL())
	if errors.Is(err, lock.ErrNotObtained) {
		logger.Debug(ctx, "expiry sweep held by another worker")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "release expiry lock", "error", err)
		}
	}()

	n, err := w.expiry.ProcessExpiredBatches(ctx, w.now(), SystemUserID)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info(ctx, "expiry sweep finished", "batches", n)
	}
	return nil
}

// lockTTL bounds how long a crashed sweeper blocks the others.
func (w *Worker) lockTTL() time.Duration {
	ttl := w.cfg.ExpiryInterval / 2
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

func (w *Worker) relayOutbox(ctx context.Context) error {
	if w.relay == nil {
		return nil
	}
	// Drain in batches until the outbox is empty or ctx ends.
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		logger.Debug(ctx, "outbox batch relayed", "count", n)
	}
	return ctx.Err()
}

func (w *Worker) cleanup(ctx context.Context) error {
	var errs []error

	if w.relay != nil {
		if n, err := w.relay.MoveToDLQ(ctx); err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			logger.Warn(ctx, "outbox messages moved to DLQ", "count", n)
		}

		if n, err := w.relay.PurgePublished(ctx, w.now().Add(-publishedMaxAge)); err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			logger.Info(ctx, "published outbox messages purged", "count", n)
		}
	}

	if w.idempotency != nil {
		if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			logger.Info(ctx, "cleaned up idempotency keys", "count", n)
		}
	}

	if w.pool != nil {
		w.pool.LogStats(ctx)
	}

	return errors.Join(errs...)
}
