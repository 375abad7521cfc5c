// Package khyrieoffline wires the offline core of the Khyrie fitness app:
// the partitioned response cache, the local record store, the fetch router,
// the sync coordinator, and the notification scheduler. The UI shell
// constructs one Core at process start and passes it by reference; none of
// the components are implicit singletons.
package khyrieoffline

import (
	"context"
	"fmt"
	"time"

	"github.com/fitfriendsclub/khyrie-offline/cachestore"
	"github.com/fitfriendsclub/khyrie-offline/config"
	"github.com/fitfriendsclub/khyrie-offline/notify"
	"github.com/fitfriendsclub/khyrie-offline/recordstore"
	"github.com/fitfriendsclub/khyrie-offline/remote"
	"github.com/fitfriendsclub/khyrie-offline/router"
	"github.com/fitfriendsclub/khyrie-offline/syncer"
)

// Core bundles the offline subsystem's long-lived components.
type Core struct {
	Cache     *cachestore.Store
	Records   *recordstore.Store
	Remote    *remote.Client
	Router    *router.Router
	Syncer    *syncer.Coordinator
	Scheduler *notify.Scheduler
}

// DefaultRules are the notification rules shipped with the app: a daily
// workout reminder, a weekly family check-in, and the event trigger evaluated
// by the activity poll.
var DefaultRules = []notify.Rule{
	{Name: "daily-workout", Trigger: notify.TriggerDaily, Hour: 18, Minute: 0,
		Title: "Time to train", Body: "Your daily workout is waiting."},
	{Name: "weekly-family", Trigger: notify.TriggerWeekly, Weekday: time.Sunday, Hour: 10, Minute: 0,
		Title: "Family check-in", Body: "See what your family crushed this week."},
	{Name: "family-activity", Trigger: notify.TriggerEvent},
}

// New constructs the offline core from configuration. The caller owns the
// returned Core's lifetime: call Activate once at startup, run the background
// loops, and Close on shutdown.
func New(cfg config.Config, display notify.DisplayFunc) (*Core, error) {
	cache := cachestore.New(cfg.CacheDir)

	records, err := recordstore.Open(cfg.RecordDBPath)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("open record store: %w", err)
	}

	client := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)

	var deliverer notify.Deliverer
	if cfg.PushEndpoint != "" {
		deliverer = notify.NewPushDeliverer(cfg.PushEndpoint, cfg.PushToken, cfg.RemoteTimeout)
	} else {
		deliverer = notify.NewLocalDeliverer(display)
	}

	return &Core{
		Cache:     cache,
		Records:   records,
		Remote:    client,
		Router:    router.New(cache, client, cfg.CacheVersionPrefix),
		Syncer:    syncer.New(records, client, cfg.SyncPollInterval, cfg.SyncBatchSize, syncer.WithCatalogSource(client)),
		Scheduler: notify.New(DefaultRules, deliverer, client, cfg.ClockInterval, cfg.ActivityInterval),
	}, nil
}

// Activate evicts stale cache versions and opens the current partitions. Run
// once at process activation, before serving requests.
func (c *Core) Activate() error {
	return c.Router.Activate()
}

// Start launches the sync poll loop and the notification tickers. Both run
// until ctx is cancelled; Stop waits for them to wind down.
func (c *Core) Start(ctx context.Context) {
	go c.Syncer.Run(ctx)
	go c.Scheduler.Run(ctx)
}

// Stop blocks until the background loops have exited, then releases storage.
// Cancel the context passed to Start first.
func (c *Core) Stop() error {
	c.Syncer.Wait()
	c.Scheduler.Wait()

	err := c.Records.Close()
	if cacheErr := c.Cache.Close(); err == nil {
		err = cacheErr
	}
	return err
}
