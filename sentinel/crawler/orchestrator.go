// Package crawler runs the long-lived poll loop: wait out the
// scheduled interval, fetch the CISIA calendar, and fan alerts out to
// the exam channels when seats appear.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/scheduler"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Seat is one available slot row parsed from the calendar.
type Seat struct {
	Exam       exams.Code
	Format     string
	University string
	Region     string
	City       string
	Seats      string
	Date       string
	Deadline   string
}

// Fetcher is the external fetch-and-parse collaborator. It owns its
// own timeout and retry policy.
type Fetcher interface {
	FetchAvailability(ctx context.Context) (map[exams.Code][]Seat, error)
}

// PartialError marks a cycle where some exam pages failed while the
// rest produced usable results. The failures count in the error stats
// but do not feed the consecutive-failure ceiling.
type PartialError struct {
	Failed int
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d exam pages failed: %v", e.Failed, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Messenger posts alerts to exam channels.
type Messenger interface {
	SendChannelMessage(ctx context.Context, channelID snowflake.ID, content string) error
}

// Alerter mirrors seat alerts to email. Optional.
type Alerter interface {
	SendAvailabilityAlert(ctx context.Context, seats []Seat) error
}

// IntervalSource yields the wait before the next cycle. Satisfied by
// scheduler.Scheduler.
type IntervalSource interface {
	NextWait() time.Duration
}

type Config struct {
	// MessageCount repeats each channel alert, so a seat burst is hard
	// to miss in a busy group.
	MessageCount int
	// StartupDelay holds the first fetch back after boot, giving users
	// time to adjust their subscriptions before alerts start.
	StartupDelay time.Duration
	// MaxConsecutiveFailures halts the loop once that many fetches in
	// a row have failed. Zero disables the ceiling.
	MaxConsecutiveFailures int
	// HeartbeatSpec is a cron expression for the daily "still watching,
	// no seats" message per quiet exam channel. Empty disables it.
	HeartbeatSpec string
}

func (c Config) validate() error {
	if c.MessageCount < 1 {
		return fmt.Errorf("message count must be at least 1, got %d", c.MessageCount)
	}
	if c.HeartbeatSpec != "" {
		if _, err := cron.ParseStandard(c.HeartbeatSpec); err != nil {
			return fmt.Errorf("invalid heartbeat schedule %q: %w", c.HeartbeatSpec, err)
		}
	}
	return nil
}

type Orchestrator struct {
	fetcher   Fetcher
	messenger Messenger
	alerter   Alerter
	directory *exams.Directory
	sched     IntervalSource
	stats     *Stats
	cfg       Config

	mu        sync.Mutex
	lastCycle map[exams.Code][]Seat
	crawled   bool
}

// NewOrchestrator wires the poll loop. alerter may be nil when email
// alerts are disabled.
func NewOrchestrator(fetcher Fetcher, messenger Messenger, alerter Alerter, directory *exams.Directory, sched IntervalSource, stats *Stats, cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		fetcher:   fetcher,
		messenger: messenger,
		alerter:   alerter,
		directory: directory,
		sched:     sched,
		stats:     stats,
		cfg:       cfg,
	}, nil
}

// Run drives the loop until ctx is cancelled or the consecutive
// failure ceiling is hit. The scheduler wait is the only suspension
// point, so cancellation takes effect promptly.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.StartupDelay > 0 {
		slog.Info("Crawl loop delaying first fetch",
			slog.Duration("delay", o.cfg.StartupDelay))
		if err := scheduler.Wait(ctx, o.cfg.StartupDelay); err != nil {
			return err
		}
	}

	if o.cfg.HeartbeatSpec != "" {
		c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
		if _, err := c.AddFunc(o.cfg.HeartbeatSpec, func() { o.sendHeartbeats(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule heartbeat: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	failures := 0
	for cycle := 1; ; cycle++ {
		slog.Info("Crawl cycle starting", slog.Int("cycle", cycle))

		results, err := o.fetcher.FetchAvailability(ctx)
		var partial *PartialError
		if errors.As(err, &partial) {
			o.stats.RecordError(partial)
			slog.Warn("Crawl cycle degraded",
				slog.Int("cycle", cycle),
				slog.Int("failed_pages", partial.Failed),
				slog.Any("error", partial.Err))
			err = nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.stats.RecordError(err)
			failures++
			slog.Warn("Crawl cycle failed",
				slog.Int("cycle", cycle),
				slog.Int("consecutive", failures),
				slog.Any("error", err))
			if o.cfg.MaxConsecutiveFailures > 0 && failures >= o.cfg.MaxConsecutiveFailures {
				return fmt.Errorf("halting after %d consecutive fetch failures: %w", failures, err)
			}
		} else {
			failures = 0
			total := countSeats(results)
			o.stats.RecordCrawl(total, len(results))
			o.remember(results)

			if total > 0 {
				slog.Info("Seats found", slog.Int("count", total))
				if err := o.notify(ctx, results); err != nil {
					slog.Error("Alert fan-out incomplete", slog.Any("error", err))
				}
				o.emailAlert(ctx, results)
			} else {
				slog.Info("No seats available", slog.Int("cycle", cycle))
			}
		}

		wait := o.sched.NextWait()
		slog.Info("Next crawl scheduled", slog.Duration("wait", wait))
		if err := scheduler.Wait(ctx, wait); err != nil {
			return err
		}
	}
}

// notify posts one aggregated alert per exam channel, each repeated
// MessageCount times. Channels are independent, so the sends fan out.
func (o *Orchestrator) notify(ctx context.Context, results map[exams.Code][]Seat) error {
	g, ctx := errgroup.WithContext(ctx)
	for code, seats := range results {
		if len(seats) == 0 {
			continue
		}
		group, ok := o.directory.Group(code)
		if !ok {
			continue
		}
		g.Go(func() error {
			msg := formatExamSummary(code, seats)
			for i := 0; i < o.cfg.MessageCount; i++ {
				if err := o.messenger.SendChannelMessage(ctx, group.ChannelID, msg); err != nil {
					return fmt.Errorf("alert for %s: %w", code, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) emailAlert(ctx context.Context, results map[exams.Code][]Seat) {
	if o.alerter == nil {
		return
	}
	var all []Seat
	for _, code := range exams.All() {
		all = append(all, results[code]...)
	}
	if len(all) == 0 {
		return
	}
	if err := o.alerter.SendAvailabilityAlert(ctx, all); err != nil {
		slog.Warn("Email alert failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) remember(results map[exams.Code][]Seat) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastCycle = results
	o.crawled = true
}

// sendHeartbeats tells each quiet exam channel the watcher is still
// alive. Quiet means the most recent cycle saw no seats for that exam;
// nothing is sent before the first completed cycle.
func (o *Orchestrator) sendHeartbeats(ctx context.Context) {
	o.mu.Lock()
	last := o.lastCycle
	crawled := o.crawled
	o.mu.Unlock()

	if !crawled {
		return
	}

	for _, code := range exams.All() {
		if len(last[code]) > 0 {
			continue
		}
		group, ok := o.directory.Group(code)
		if !ok {
			continue
		}
		msg := fmt.Sprintf("🟢 %s watch is running. No seats in the latest check, you'll be alerted the moment any open up.", code)
		if err := o.messenger.SendChannelMessage(ctx, group.ChannelID, msg); err != nil {
			slog.Warn("Heartbeat send failed",
				slog.String("exam", string(code)),
				slog.Any("error", err))
		}
	}
}

func countSeats(results map[exams.Code][]Seat) int {
	total := 0
	for _, seats := range results {
		total += len(seats)
	}
	return total
}

// formatExamSummary aggregates seats by region and city into one
// channel message.
func formatExamSummary(code exams.Code, seats []Seat) string {
	type key struct{ region, city string }
	type agg struct {
		seats int
		dates map[string]struct{}
	}

	groups := make(map[key]*agg)
	for _, s := range seats {
		k := key{s.Region, s.City}
		g, ok := groups[k]
		if !ok {
			g = &agg{dates: make(map[string]struct{})}
			groups[k] = g
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s.Seats)); err == nil {
			g.seats += n
		} else {
			g.seats++
		}
		if d := strings.TrimSpace(s.Date); d != "" {
			g.dates[d] = struct{}{}
		}
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].region != keys[j].region {
			return keys[i].region < keys[j].region
		}
		return keys[i].city < keys[j].city
	})

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 **%s** seats available!\n\n", code)
	for _, k := range keys {
		g := groups[k]
		region, city := k.region, k.city
		if region == "" {
			region = "-"
		}
		if city == "" {
			city = "-"
		}
		fmt.Fprintf(&b, "📍 **%s** – %s: %d seats, %d dates\n", region, city, g.seats, len(g.dates))
	}
	b.WriteString("\nBook now: https://testcisia.it/studenti_tolc/login_sso.php")
	return b.String()
}
