// Package scheduler produces the wait durations between crawl cycles.
//
// Two policies exist: a fixed interval, and a random draw from a
// configured range with an anti-clustering rule that keeps consecutive
// waits at least 30% of the range apart, so checks never bunch up.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

type Mode string

const (
	ModeFixed  Mode = "fixed"
	ModeRandom Mode = "random"
)

const (
	// MinInterval is the global floor on how often the calendar may be
	// polled. Anything faster risks upstream rate limiting.
	MinInterval = 30 * time.Second

	// minGapFloor keeps the anti-clustering gap meaningful even for
	// narrow ranges.
	minGapFloor = 10 * time.Second
)

type Config struct {
	Mode       Mode
	Fixed      time.Duration
	RandomFrom time.Duration
	RandomTo   time.Duration
}

// Validate rejects configurations that would poll too fast or make the
// anti-clustering redraw unsatisfiable. Called once at startup; a
// failure here is fatal.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeFixed:
		if c.Fixed < MinInterval {
			return fmt.Errorf("fixed interval %s below minimum %s", c.Fixed, MinInterval)
		}
	case ModeRandom:
		if c.RandomFrom < MinInterval {
			return fmt.Errorf("random interval lower bound %s below minimum %s", c.RandomFrom, MinInterval)
		}
		if c.RandomTo <= c.RandomFrom {
			return fmt.Errorf("random interval bounds invalid: from %s must be < to %s", c.RandomFrom, c.RandomTo)
		}
		rng := c.RandomTo - c.RandomFrom
		gap := antiClusterGap(rng)
		// A previous wait can sit anywhere in [from, to]; the redraw
		// stays satisfiable only while the gap fits in half the range.
		if 2*gap > rng {
			return fmt.Errorf("random interval range %s too narrow for anti-clustering gap %s", rng, gap)
		}
	default:
		return fmt.Errorf("unknown check mode %q", c.Mode)
	}
	return nil
}

func antiClusterGap(rng time.Duration) time.Duration {
	gap := time.Duration(float64(rng) * 0.3)
	if gap < minGapFloor {
		gap = minGapFloor
	}
	return gap
}

// Scheduler is not safe for concurrent use; the crawl loop is its only
// caller.
type Scheduler struct {
	cfg  Config
	rnd  *rand.Rand
	last time.Duration
	has  bool
}

func New(cfg Config) (*Scheduler, error) {
	return NewWithSource(cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource exists so tests can drive the draw deterministically.
func NewWithSource(cfg Config, src rand.Source) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg, rnd: rand.New(src)}, nil
}

// NextWait returns the duration to wait before the next crawl cycle.
// Under the random policy the first draw is accepted unconditionally;
// afterwards candidates are redrawn until they differ from the
// previous wait by at least the anti-clustering gap. Validate
// guarantees the acceptance region is never empty, so the loop
// terminates.
func (s *Scheduler) NextWait() time.Duration {
	if s.cfg.Mode == ModeFixed {
		return s.cfg.Fixed
	}

	rng := s.cfg.RandomTo - s.cfg.RandomFrom
	gap := antiClusterGap(rng)

	for {
		candidate := s.cfg.RandomFrom + time.Duration(s.rnd.Int63n(int64(rng)+1))
		if !s.has || absDuration(candidate-s.last) >= gap {
			s.last = candidate
			s.has = true
			return candidate
		}
	}
}

// Wait sleeps for d or until ctx is cancelled, whichever comes first.
// The crawl loop relies on this to shut down promptly on an operator
// stop rather than sleeping out the interval.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
