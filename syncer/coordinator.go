// Package syncer reconciles locally queued records with the remote API. Each
// pass walks the unsynced set of every collection, pushes records one at a
// time, and flips the synced flag on acceptance. Delivery is at-least-once:
// a failed push leaves the record unsynced for the next pass, and the record's
// idempotency key lets the server discard duplicates.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fitfriendsclub/khyrie-offline/domain"
	"github.com/fitfriendsclub/khyrie-offline/recordstore"
)

// RecordPusher pushes a single record to the remote API.
type RecordPusher interface {
	PushRecord(ctx context.Context, collection domain.Collection, record domain.Record) error
}

// CatalogSource fetches the remote exercise reference list.
type CatalogSource interface {
	FetchExercises(ctx context.Context) ([]domain.ExerciseCatalogEntry, error)
}

// Option configures optional behaviour for the Coordinator.
type Option func(*Coordinator)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithCatalogSource enables catalog refreshes as part of sync passes.
func WithCatalogSource(source CatalogSource) Option {
	return func(c *Coordinator) {
		c.catalog = source
	}
}

// Coordinator drives sync passes from connectivity transitions, manual
// requests, and a periodic poll loop.
type Coordinator struct {
	store        *recordstore.Store
	pusher       RecordPusher
	catalog      CatalogSource
	pollInterval time.Duration
	batchSize    int
	logger       *log.Logger

	online  atomic.Bool
	wakeups chan struct{}

	// collectionLocks serialises pushes within a collection: two passes never
	// have overlapping in-flight pushes for the same record.
	collectionLocks map[domain.Collection]*sync.Mutex

	shutdownComplete chan struct{}
}

// New constructs a Coordinator. The process starts offline until the
// connectivity notifier reports otherwise.
func New(store *recordstore.Store, pusher RecordPusher, pollInterval time.Duration, batchSize int, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            store,
		pusher:           pusher,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           log.New(log.Writer(), "[syncer] ", log.LstdFlags),
		wakeups:          make(chan struct{}, 1),
		collectionLocks:  make(map[domain.Collection]*sync.Mutex),
		shutdownComplete: make(chan struct{}),
	}
	for _, collection := range domain.Collections() {
		c.collectionLocks[collection] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOnline records the connectivity state reported by the platform notifier.
// An offline-to-online transition wakes the poll loop for an immediate pass.
func (c *Coordinator) SetOnline(online bool) {
	was := c.online.Swap(online)
	if online && !was {
		select {
		case c.wakeups <- struct{}{}:
		default:
		}
	}
}

// Online reports the last known connectivity state.
func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// Run launches the polling loop. It should be called in a goroutine; Wait
// blocks until the loop has exited after context cancellation.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer func() {
		ticker.Stop()
		close(c.shutdownComplete)
	}()

	for {
		if c.online.Load() {
			if err := c.SyncNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Printf("sync pass error: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.wakeups:
		}
	}
}

// Wait blocks until the poll loop stops.
func (c *Coordinator) Wait() {
	<-c.shutdownComplete
}

// SyncNow runs one synchronous sync pass over every collection. It is the
// manual-trigger and background-sync entry point. Storage failures abort the
// pass and propagate; push failures for individual records do not.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	start := time.Now()
	defer func() {
		passDuration.Observe(time.Since(start).Seconds())
	}()

	var errs []error
	for _, collection := range domain.Collections() {
		if err := c.syncCollection(ctx, collection); err != nil {
			errs = append(errs, err)
		}
	}

	if c.catalog != nil {
		if err := c.RefreshCatalog(ctx); err != nil {
			c.logger.Printf("catalog refresh failed: %v", err)
		}
	}

	return errors.Join(errs...)
}

// HandleBackgroundSync is invoked by the platform's background-sync callback.
func (c *Coordinator) HandleBackgroundSync(ctx context.Context) error {
	c.SetOnline(true)
	return c.SyncNow(ctx)
}

// syncCollection walks the unsynced set of one collection in batched
// snapshots, pushing records strictly in append order until the backlog
// drains. The collection lock guarantees no two pushes for the same
// collection ever overlap. A batch in which nothing was accepted ends the
// pass: everything left is failing and retries belong to the next pass.
func (c *Coordinator) syncCollection(ctx context.Context, collection domain.Collection) error {
	lock := c.collectionLocks[collection]
	lock.Lock()
	defer lock.Unlock()

	for {
		snapshot, err := c.store.ListUnsynced(ctx, collection, c.batchSize)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", collection, err)
		}
		if len(snapshot) == 0 {
			break
		}

		accepted := 0
		for _, record := range snapshot {
			if err := ctx.Err(); err != nil {
				return err
			}

			pushErr := c.pusher.PushRecord(ctx, collection, record)
			switch {
			case pushErr == nil:
				if err := c.store.MarkSynced(ctx, collection, record.ID, time.Now().UTC()); err != nil {
					return fmt.Errorf("mark synced %s/%d: %w", collection, record.ID, err)
				}
				accepted++
				syncedCounter.WithLabelValues(string(collection)).Inc()
			case errors.Is(pushErr, domain.ErrRemoteRejected):
				// Stays unsynced for manual inspection; the server said no.
				c.logger.Printf("record rejected (collection=%s, id=%d): %v", collection, record.ID, pushErr)
				rejectedCounter.WithLabelValues(string(collection)).Inc()
			default:
				c.logger.Printf("push failed (collection=%s, id=%d): %v", collection, record.ID, pushErr)
				failedCounter.WithLabelValues(string(collection)).Inc()
			}
		}

		if c.batchSize <= 0 || len(snapshot) < c.batchSize || accepted == 0 {
			break
		}
	}

	if summary, err := c.store.CollectionSummary(ctx, collection); err == nil {
		pendingGauge.WithLabelValues(string(collection)).Set(float64(summary.Pending))
	}

	return nil
}

// RefreshCatalog replaces the local exercise catalog with the remote list.
func (c *Coordinator) RefreshCatalog(ctx context.Context) error {
	if c.catalog == nil {
		return errors.New("syncer: no catalog source configured")
	}

	entries, err := c.catalog.FetchExercises(ctx)
	if err != nil {
		return fmt.Errorf("fetch exercises: %w", err)
	}
	if err := c.store.ReplaceAll(ctx, entries); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	catalogRefreshes.Inc()
	return nil
}

// Summary reports the sync backlog for one collection.
func (c *Coordinator) Summary(ctx context.Context, collection domain.Collection) (recordstore.Summary, error) {
	return c.store.CollectionSummary(ctx, collection)
}
