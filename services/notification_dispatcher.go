package services

import (
	"context"
	"sync"
	"time"

	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, msg notification.Message) error
}

// DeviceStore resolves the push tokens of a user.
type DeviceStore interface {
	DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)
}

const (
	defaultDispatchWorkers = 5
	dispatchQueueSize      = 100
	dispatchJobTimeout     = 10 * time.Second
	dispatchEnqueueWait    = 5 * time.Second
	maintenanceInterval    = 24 * time.Hour
)

// NotificationDispatcher sends push messages on a fixed pool of workers.
type NotificationDispatcher struct {
	devices      DeviceStore
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan notification.Message
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	mu     sync.Mutex
	sent   int
	failed int
}

func NewNotificationDispatcher(devices DeviceStore, provider PushNotificationProvider, workers int) *NotificationDispatcher {
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	d := &NotificationDispatcher{
		devices:      devices,
		pushProvider: provider,
		workers:      workers,
		jobQueue:     make(chan notification.Message, dispatchQueueSize),
		stopChan:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.jobQueue:
			d.processJob(msg)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(msg notification.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchJobTimeout)
	defer cancel()

	if d.pushProvider == nil {
		logger.Debug("Dispatcher: no push provider, skipping", "user_id", msg.UserID, "kind", msg.Kind)
		return
	}
	tokens, err := d.devices.DeviceTokens(ctx, msg.UserID)
	if err != nil {
		logger.Error("Dispatcher: failed to load device tokens", "user_id", msg.UserID, "error", err)
		d.record(false)
		return
	}
	if len(tokens) == 0 {
		return
	}
	if err := d.pushProvider.SendPush(ctx, tokens, msg); err != nil {
		logger.Warn("Dispatcher: push failed", "user_id", msg.UserID, "kind", msg.Kind, "error", err)
		d.record(false)
		return
	}
	d.record(true)
}

func (d *NotificationDispatcher) record(ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ok {
		d.sent++
	} else {
		d.failed++
	}
}

// Stats reports how many jobs were delivered and how many failed.
func (d *NotificationDispatcher) Stats() (sent, failed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.failed
}

// Dispatch queues msg. It reports false when the queue stayed full or the
// dispatcher is stopped.
func (d *NotificationDispatcher) Dispatch(msg notification.Message) bool {
	select {
	case <-d.stopChan:
		return false
	default:
	}
	select {
	case d.jobQueue <- msg:
		return true
	case <-d.stopChan:
		return false
	case <-time.After(dispatchEnqueueWait):
		logger.Warn("Dispatcher: queue full, dropping message", "user_id", msg.UserID, "kind", msg.Kind)
		return false
	}
}

// RunMaintenance calls fn once a day until Stop.
func (d *NotificationDispatcher) RunMaintenance(fn func(ctx context.Context) (int64, error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				n, err := fn(ctx)
				cancel()
				if err != nil {
					logger.Error("Dispatcher: maintenance failed", "error", err)
				} else if n > 0 {
					logger.Info("Dispatcher: pruned stale device tokens", "count", n)
				}
			case <-d.stopChan:
				return
			}
		}
	}()
}

// Stop the dispatcher and wait for its workers. Queued jobs not yet picked
// up are dropped.
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		logger.Info("Dispatcher: stopping")
		close(d.stopChan)
	})
	d.wg.Wait()
}
