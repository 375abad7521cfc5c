package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fitfriendsclub/khyrie-offline/remote"
)

// TriggerKind distinguishes clock-driven from event-driven rules.
type TriggerKind string

const (
	TriggerDaily  TriggerKind = "daily"
	TriggerWeekly TriggerKind = "weekly"
	TriggerEvent  TriggerKind = "event"
)

// seenRetention is how long an already-notified activity id is remembered.
// It comfortably exceeds the feed window the since parameter requests, so a
// pruned id cannot reappear in a poll.
const seenRetention = 24 * time.Hour

// Rule describes one notification trigger. Clock rules fire once per matching
// day when the target time of day has passed; event rules are evaluated by the
// activity poll.
type Rule struct {
	Name    string
	Trigger TriggerKind

	// Hour and Minute set the target time of day for daily and weekly rules.
	Hour   int
	Minute int
	// Weekday applies to weekly rules only.
	Weekday time.Weekday

	Title string
	Body  string
}

// ActivitySource polls the family activity feed. Implemented by remote.Client.
type ActivitySource interface {
	FetchFamilyActivity(ctx context.Context, since time.Time) ([]remote.ActivityItem, error)
}

// Option configures optional behaviour for the Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the logger used to report delivery errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler evaluates rules on a coarse clock tick and polls the family feed
// for event-driven alerts. Minute granularity is sufficient; rules do not need
// sub-minute precision.
type Scheduler struct {
	rules     []Rule
	deliverer Deliverer
	source    ActivitySource
	logger    *log.Logger
	now       func() time.Time

	clockInterval    time.Duration
	activityInterval time.Duration

	hasEventRule bool

	mu        sync.Mutex
	lastFired map[string]time.Time
	// seen holds already-notified activity ids so a feed item alerts once.
	// Entries older than seenRetention are pruned each poll to bound the map
	// in long-running shells.
	seen     map[string]time.Time
	lastPoll time.Time

	shutdownComplete chan struct{}
}

// New constructs a Scheduler over the given rules. source may be nil when no
// event rules are configured.
func New(rules []Rule, deliverer Deliverer, source ActivitySource, clockInterval, activityInterval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		rules:            rules,
		deliverer:        deliverer,
		source:           source,
		logger:           log.New(log.Writer(), "[notify] ", log.LstdFlags),
		now:              time.Now,
		clockInterval:    clockInterval,
		activityInterval: activityInterval,
		lastFired:        make(map[string]time.Time),
		seen:             make(map[string]time.Time),
		shutdownComplete: make(chan struct{}),
	}
	for _, rule := range rules {
		if rule.Trigger == TriggerEvent {
			s.hasEventRule = true
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run launches the clock and polling tickers. It should be called in a
// goroutine; the tickers run detached from any caller until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	clock := time.NewTicker(s.clockInterval)
	activity := time.NewTicker(s.activityInterval)
	defer func() {
		clock.Stop()
		activity.Stop()
		close(s.shutdownComplete)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.C:
			s.EvaluateClock(ctx)
		case <-activity.C:
			s.PollActivity(ctx)
		}
	}
}

// Wait blocks until the scheduler loop stops.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}

// EvaluateClock fires every due clock rule. A rule is due when its target time
// of day has passed (and the weekday matches, for weekly rules) and it has not
// fired since that target.
func (s *Scheduler) EvaluateClock(ctx context.Context) {
	now := s.now()

	for _, rule := range s.rules {
		if rule.Trigger != TriggerDaily && rule.Trigger != TriggerWeekly {
			continue
		}
		if !s.due(rule, now) {
			continue
		}

		notification := NewNotification(rule.Title, rule.Body, rule.Name)
		if err := s.deliverer.Deliver(ctx, notification); err != nil {
			s.logger.Printf("deliver %s: %v", rule.Name, err)
			deliveryFailures.WithLabelValues(string(rule.Trigger)).Inc()
			continue
		}
		deliveredTotal.WithLabelValues(string(rule.Trigger)).Inc()

		s.mu.Lock()
		s.lastFired[rule.Name] = now
		s.mu.Unlock()
	}
}

// due reports whether a clock rule should fire at now.
func (s *Scheduler) due(rule Rule, now time.Time) bool {
	if rule.Trigger == TriggerWeekly && now.Weekday() != rule.Weekday {
		return false
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), rule.Hour, rule.Minute, 0, 0, now.Location())
	if now.Before(target) {
		return false
	}

	s.mu.Lock()
	last, fired := s.lastFired[rule.Name]
	s.mu.Unlock()

	return !fired || last.Before(target)
}

// PollActivity fetches family activity and alerts once per unseen item. It is
// a no-op unless an event rule is configured and a feed source is available.
func (s *Scheduler) PollActivity(ctx context.Context) {
	if s.source == nil || !s.hasEventRule {
		return
	}

	s.mu.Lock()
	since := s.lastPoll
	s.mu.Unlock()

	items, err := s.source.FetchFamilyActivity(ctx, since)
	if err != nil {
		s.logger.Printf("activity poll: %v", err)
		return
	}

	now := s.now()
	for _, item := range items {
		s.mu.Lock()
		_, already := s.seen[item.ID]
		s.mu.Unlock()
		if already {
			continue
		}

		notification := NewNotification("Family activity", item.Message, "family:"+item.Kind)
		if err := s.deliverer.Deliver(ctx, notification); err != nil {
			// Not marked seen: the item can alert again if the feed returns it.
			s.logger.Printf("deliver family activity %s: %v", item.ID, err)
			deliveryFailures.WithLabelValues(string(TriggerEvent)).Inc()
			continue
		}
		deliveredTotal.WithLabelValues(string(TriggerEvent)).Inc()

		s.mu.Lock()
		s.seen[item.ID] = now
		s.mu.Unlock()
	}

	s.mu.Lock()
	for id, notifiedAt := range s.seen {
		if now.Sub(notifiedAt) > seenRetention {
			delete(s.seen, id)
		}
	}
	s.lastPoll = now
	s.mu.Unlock()
}
