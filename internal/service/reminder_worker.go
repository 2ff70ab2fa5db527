package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const reminderDigestLimit = 20

// ReminderWorker periodically reminds admins about withdrawals that have been
// pending for longer than one interval. Ticks only read the database.
type ReminderWorker struct {
	store    *storage.Store
	notifier *NotificationService
	interval time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReminderWorker creates a new reminder worker. An interval of 0 disables it.
func NewReminderWorker(store *storage.Store, notifier *NotificationService, interval time.Duration) *ReminderWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReminderWorker{
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the background worker
func (w *ReminderWorker) Start() {
	if w.interval <= 0 {
		logger.Info("reminder_worker_disabled", "")
		return
	}
	logger.Info("reminder_worker_started", fmt.Sprintf("interval=%v", w.interval))

	ticker := time.NewTicker(w.interval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Tick()
			case <-w.ctx.Done():
				logger.Info("reminder_worker_stopped", "")
				return
			}
		}
	}()
}

// Stop stops the background worker and waits for the current tick to finish
func (w *ReminderWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Tick sends one digest of stale pending withdrawals and returns how many were listed
func (w *ReminderWorker) Tick() int {
	pending, err := w.store.ListPendingWithdrawals(w.ctx, w.now().Add(-w.interval), reminderDigestLimit)
	if err != nil {
		logger.Error(0, "reminder_worker_query_failed", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	sent := w.notifier.SendPendingDigest(pending)
	logger.Info("reminder_worker_digest", fmt.Sprintf("pending=%d admins_notified=%d", len(pending), sent))
	return len(pending)
}
