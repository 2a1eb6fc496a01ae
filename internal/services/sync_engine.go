package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldsync/agent/internal/config"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
)

// RecordPusher is the remote sync target
type RecordPusher interface {
	PushRecord(ctx context.Context, record *models.Record) error
	DeleteRecord(ctx context.Context, record *models.Record) error
}

// SyncEngine pushes pending records to the remote target whenever the
// device is online
type SyncEngine struct {
	recordRepo repository.RecordRepo
	pusher     RecordPusher
	network    *NetworkMonitor
	metrics    *observability.SyncMetrics
	notifier   *Notifier[models.SyncResult]
	logger     *observability.Logger

	interval       time.Duration
	pushTimeout    time.Duration
	retryPolicy    string
	maxAttempts    int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	now            func() time.Time

	mu            sync.RWMutex
	running       bool
	lastResult    *models.SyncResult
	stopChan      chan struct{}
	cancelPass    context.CancelFunc
	unsubscribe   func()
	wasOnline     bool
	loopWaitGroup sync.WaitGroup
}

// NewSyncEngine creates a new SyncEngine. pusher may be nil when no remote
// target is configured; passes are then skipped.
func NewSyncEngine(
	recordRepo repository.RecordRepo,
	pusher RecordPusher,
	network *NetworkMonitor,
	cfg config.Sync,
	metrics *observability.SyncMetrics,
) *SyncEngine {
	e := &SyncEngine{
		recordRepo:     recordRepo,
		pusher:         pusher,
		network:        network,
		metrics:        metrics,
		notifier:       NewNotifier[models.SyncResult](),
		logger:         observability.WithField("component", "sync"),
		interval:       cfg.Interval(),
		pushTimeout:    cfg.PushTimeout(),
		retryPolicy:    cfg.RetryPolicy,
		maxAttempts:    cfg.MaxAttempts,
		retryBaseDelay: cfg.RetryBaseDelay(),
		retryMaxDelay:  cfg.RetryMaxDelay(),
		now:            func() time.Time { return time.Now().UTC() },
	}
	if e.interval <= 0 {
		e.interval = 5 * time.Minute
	}
	if e.pushTimeout <= 0 {
		e.pushTimeout = 10 * time.Second
	}
	if e.retryPolicy == "" {
		e.retryPolicy = config.RetryManual
	}
	if e.retryBaseDelay <= 0 {
		e.retryBaseDelay = time.Minute
	}
	if e.retryMaxDelay < e.retryBaseDelay {
		e.retryMaxDelay = e.retryBaseDelay
	}
	return e
}

// Start runs a pass every interval and whenever the device comes back online
func (e *SyncEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopChan != nil {
		return
	}
	stop := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	e.stopChan = stop
	e.cancelPass = cancel
	e.wasOnline = e.network.IsOnline()

	e.unsubscribe = e.network.AddListener(func(status models.NetworkStatus) {
		e.mu.Lock()
		cameOnline := status.Connected && !e.wasOnline && ctx.Err() == nil
		e.wasOnline = status.Connected
		if cameOnline {
			e.loopWaitGroup.Add(1)
		}
		e.mu.Unlock()

		if cameOnline {
			e.logger.Info("Connectivity restored, starting sync")
			go func() {
				defer e.loopWaitGroup.Done()
				e.SyncPendingData(ctx)
			}()
		}
	})

	e.loopWaitGroup.Add(1)
	go func() {
		defer e.loopWaitGroup.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.SyncPendingData(ctx)
			case <-stop:
				return
			}
		}
	}()

	e.logger.Infof("Sync engine started (every %s, retry policy %s)", e.interval, e.retryPolicy)
}

// Stop ends the loop, cancels an in-flight pass and waits for it
func (e *SyncEngine) Stop() {
	e.mu.Lock()
	if e.stopChan == nil {
		e.mu.Unlock()
		return
	}
	close(e.stopChan)
	e.stopChan = nil
	e.cancelPass()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.loopWaitGroup.Wait()
	e.logger.Info("Sync engine stopped")
}

// Subscribe registers fn for the result of every completed pass
func (e *SyncEngine) Subscribe(fn func(models.SyncResult)) func() {
	return e.notifier.Subscribe(fn)
}

// LastResult returns the result of the latest completed pass
func (e *SyncEngine) LastResult() (models.SyncResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastResult == nil {
		return models.SyncResult{}, false
	}
	return *e.lastResult, true
}

// IsRunning reports whether a pass is in flight
func (e *SyncEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// ForceSync runs a pass now, failing with ErrOffline when disconnected
func (e *SyncEngine) ForceSync(ctx context.Context) (models.SyncResult, error) {
	if !e.network.IsOnline() {
		return models.SkippedResult(models.SkipOffline), models.ErrOffline
	}
	return e.SyncPendingData(ctx), nil
}

// SyncPendingData runs one pass. It never fails: a pass that cannot run
// returns a skipped result, per-record failures are recorded on the records.
func (e *SyncEngine) SyncPendingData(ctx context.Context) models.SyncResult {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Debug("Sync pass already running, skipping")
		return models.SkippedResult(models.SkipAlreadyRunning)
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if !e.network.IsOnline() {
		return models.SkippedResult(models.SkipOffline)
	}
	if e.pusher == nil {
		return models.SkippedResult(models.SkipNoTarget)
	}

	ctx, span := observability.StartServiceSpan(ctx, "sync", "pass")
	defer span.End()
	logger := e.logger.WithContext(ctx)

	result := models.SyncResult{StartedAt: e.now()}

	if e.retryPolicy == config.RetryAuto {
		n, err := e.requeueDue(ctx)
		if err != nil {
			logger.Warnf("Failed to requeue failed records: %v", err)
		}
		result.Requeued = n
	}

	pending, err := e.recordRepo.GetPendingSync(ctx)
	if err != nil {
		logger.Errorf("Failed to load pending records: %v", err)
		observability.RecordError(span, err)
		result.Error = err.Error()
		return e.finish(ctx, result)
	}
	result.TotalPending = len(pending)

	for _, record := range pending {
		if ctx.Err() != nil {
			result.SkipReason = models.SkipCancelled
			break
		}
		e.pushOne(ctx, record, &result)
	}

	if ctx.Err() == nil {
		e.deleteRemoved(ctx, &result)
	} else {
		result.SkipReason = models.SkipCancelled
	}

	logger.Infof("Sync pass finished: %d pending, %d synced, %d failed, %d deleted",
		result.TotalPending, result.Synced, result.Failed, result.Deleted)
	observability.SetSuccess(span)
	return e.finish(ctx, result)
}

func (e *SyncEngine) pushOne(ctx context.Context, record *models.Record, result *models.SyncResult) {
	pushCtx, cancel := context.WithTimeout(ctx, e.pushTimeout)
	start := time.Now()
	err := e.pusher.PushRecord(pushCtx, record)
	cancel()

	if err != nil && ctx.Err() != nil {
		// cancelled from outside: the record stays pending for the next pass
		e.metrics.RecordPush(ctx, string(record.Kind), "cancelled", time.Since(start))
		return
	}

	status, outcome, syncErr := models.StatusSynced, "synced", ""
	if err != nil {
		status, outcome, syncErr = models.StatusFailed, "failed", err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			syncErr = "push timed out after " + e.pushTimeout.String()
		}
	}
	e.metrics.RecordPush(ctx, string(record.Kind), outcome, time.Since(start))

	if updErr := e.recordRepo.UpdateSyncStatus(ctx, record.ID, status, syncErr); updErr != nil {
		e.logger.WithContext(ctx).WithField("record_id", record.ID).Errorf("Failed to mark record %s: %v", outcome, updErr)
		return
	}

	if err != nil {
		result.Failed++
		e.logger.WithContext(ctx).WithField("record_id", record.ID).Warnf("Push failed: %v", err)
	} else {
		result.Synced++
	}
}

// deleteRemoved sends soft-deleted records as remote deletions and removes
// them locally once acknowledged
func (e *SyncEngine) deleteRemoved(ctx context.Context, result *models.SyncResult) {
	removed, err := e.recordRepo.GetByStatus(ctx, models.StatusDeletedPendingSync)
	if err != nil {
		e.logger.WithContext(ctx).Errorf("Failed to load deleted records: %v", err)
		return
	}

	for _, record := range removed {
		if ctx.Err() != nil {
			return
		}

		pushCtx, cancel := context.WithTimeout(ctx, e.pushTimeout)
		start := time.Now()
		err := e.pusher.DeleteRecord(pushCtx, record)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				e.metrics.RecordPush(ctx, string(record.Kind), "cancelled", time.Since(start))
				return
			}
			e.metrics.RecordPush(ctx, string(record.Kind), "delete_failed", time.Since(start))
			result.DeleteFailed++
			if updErr := e.recordRepo.UpdateSyncStatus(ctx, record.ID, models.StatusDeletedPendingSync, err.Error()); updErr != nil {
				e.logger.WithContext(ctx).Errorf("Failed to record delete attempt for %s: %v", record.ID, updErr)
			}
			continue
		}

		e.metrics.RecordPush(ctx, string(record.Kind), "deleted", time.Since(start))

		if err := e.recordRepo.Delete(ctx, record.ID); err != nil && !errors.Is(err, models.ErrRecordNotFound) {
			e.logger.WithContext(ctx).Errorf("Failed to remove deleted record %s: %v", record.ID, err)
			continue
		}
		result.Deleted++
	}
}

// RequeueFailed moves every failed record back to pending
func (e *SyncEngine) RequeueFailed(ctx context.Context) (int, error) {
	failed, err := e.recordRepo.GetByStatus(ctx, models.StatusFailed)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, record := range failed {
		if err := e.recordRepo.UpdateSyncStatus(ctx, record.ID, models.StatusPending, ""); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrRecordNotFound) {
				continue
			}
			return count, err
		}
		count++
	}

	if count > 0 {
		e.logger.Infof("Requeued %d failed records", count)
	}
	return count, nil
}

// requeueDue moves failed records whose backoff has elapsed back to pending
func (e *SyncEngine) requeueDue(ctx context.Context) (int, error) {
	failed, err := e.recordRepo.GetByStatus(ctx, models.StatusFailed)
	if err != nil {
		return 0, err
	}

	now := e.now()
	count := 0
	for _, record := range failed {
		if e.maxAttempts > 0 && record.SyncAttempts >= e.maxAttempts {
			continue
		}
		if record.LastSyncAttempt != nil && now.Sub(*record.LastSyncAttempt) < e.RetryDelay(record.SyncAttempts) {
			continue
		}
		if err := e.recordRepo.UpdateSyncStatus(ctx, record.ID, models.StatusPending, ""); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// RetryDelay is the wait before the next automatic attempt after the given
// number of attempts
func (e *SyncEngine) RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := e.retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= e.retryMaxDelay {
			return e.retryMaxDelay
		}
	}
	return delay
}

func (e *SyncEngine) finish(ctx context.Context, result models.SyncResult) models.SyncResult {
	result.Duration = time.Since(result.StartedAt)

	outcome := "ok"
	switch {
	case result.Error != "":
		outcome = "error"
	case result.SkipReason == models.SkipCancelled:
		outcome = "cancelled"
	case result.Failed > 0 || result.DeleteFailed > 0:
		outcome = "partial"
	}
	remaining := 0
	if stats, err := e.recordRepo.GetStats(context.WithoutCancel(ctx)); err == nil {
		remaining = stats.Pending
	}
	e.metrics.RecordPass(ctx, outcome, remaining)

	e.mu.Lock()
	e.lastResult = &result
	e.mu.Unlock()

	e.notifier.Notify(result)
	return result
}
