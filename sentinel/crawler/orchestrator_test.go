package crawler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/disgoorg/snowflake/v2"
)

type stubIntervals struct{ d time.Duration }

func (s stubIntervals) NextWait() time.Duration { return s.d }

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results map[exams.Code][]Seat
	err     error
	after   func(call int)
}

func (f *fakeFetcher) FetchAvailability(_ context.Context) (map[exams.Code][]Seat, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.after != nil {
		f.after(call)
	}
	return f.results, f.err
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent map[snowflake.ID][]string
}

func (f *fakeMessenger) SendChannelMessage(_ context.Context, channelID snowflake.ID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[snowflake.ID][]string)
	}
	f.sent[channelID] = append(f.sent[channelID], content)
	return nil
}

func (f *fakeMessenger) count(channelID snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[channelID])
}

func testDirectory() *exams.Directory {
	return exams.NewDirectory([]exams.Group{
		{Code: exams.TOLCI, GuildID: snowflake.ID(10), ChannelID: snowflake.ID(100)},
		{Code: exams.TOLCE, GuildID: snowflake.ID(20), ChannelID: snowflake.ID(200)},
	}, nil)
}

func TestRunHaltsAfterConsecutiveFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("calendar unreachable")}
	stats := NewStats()
	o, err := NewOrchestrator(fetcher, &fakeMessenger{}, nil, testDirectory(), stubIntervals{time.Millisecond}, stats, Config{
		MessageCount:           1,
		MaxConsecutiveFailures: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = o.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "3 consecutive") {
		t.Fatalf("Run = %v, want consecutive-failure halt", err)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
	if stats.Snapshot().TotalErrors != 3 {
		t.Errorf("errors recorded = %d, want 3", stats.Snapshot().TotalErrors)
	}
}

func TestRunFailureCounterResetsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{results: map[exams.Code][]Seat{}}
	// Fail on every odd call; the reset keeps the ceiling out of reach.
	fetcher.after = func(call int) {
		fetcher.mu.Lock()
		if call%2 == 1 {
			fetcher.err = errors.New("flaky")
		} else {
			fetcher.err = nil
		}
		fetcher.mu.Unlock()
		if call >= 6 {
			cancel()
		}
	}

	o, err := NewOrchestrator(fetcher, &fakeMessenger{}, nil, testDirectory(), stubIntervals{time.Millisecond}, NewStats(), Config{
		MessageCount:           1,
		MaxConsecutiveFailures: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

// Degraded cycles count in the error stats but never toward the halt
// ceiling, and the exams that did load still produce alerts.
func TestRunPartialFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{
		results: map[exams.Code][]Seat{
			exams.TOLCI: {{Exam: exams.TOLCI, Region: "Lombardia", City: "Milano", Seats: "4", Date: "2026-03-01"}},
			exams.TOLCE: nil,
		},
		err: &PartialError{Failed: 1, Err: errors.New("calendar timeout")},
	}
	fetcher.after = func(call int) {
		if call >= 2 {
			cancel()
		}
	}
	messenger := &fakeMessenger{}
	stats := NewStats()

	o, err := NewOrchestrator(fetcher, messenger, nil, testDirectory(), stubIntervals{time.Millisecond}, stats, Config{
		MessageCount:           1,
		MaxConsecutiveFailures: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	snap := stats.Snapshot()
	if snap.TotalErrors != 2 {
		t.Errorf("errors recorded = %d, want 2", snap.TotalErrors)
	}
	if snap.TotalCrawls != 2 {
		t.Errorf("crawls recorded = %d, want 2", snap.TotalCrawls)
	}
	if messenger.count(snowflake.ID(100)) != 2 {
		t.Errorf("alerts to TOLC-I channel = %d, want 2", messenger.count(snowflake.ID(100)))
	}
}

func TestRunFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{
		results: map[exams.Code][]Seat{
			exams.TOLCI: {
				{Exam: exams.TOLCI, Region: "Lombardia", City: "Milano", Seats: "5", Date: "2026-03-01"},
				{Exam: exams.TOLCI, Region: "Lombardia", City: "Milano", Seats: "2", Date: "2026-03-02"},
			},
			exams.TOLCE: {},
		},
	}
	fetcher.after = func(call int) {
		if call >= 1 {
			cancel()
		}
	}
	messenger := &fakeMessenger{}
	stats := NewStats()

	o, err := NewOrchestrator(fetcher, messenger, nil, testDirectory(), stubIntervals{time.Millisecond}, stats, Config{MessageCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	// One alert per seat-bearing exam channel, repeated MessageCount times.
	if got := messenger.count(snowflake.ID(100)); got != 3 {
		t.Errorf("alerts to TOLC-I channel = %d, want 3", got)
	}
	if got := messenger.count(snowflake.ID(200)); got != 0 {
		t.Errorf("alerts to seatless TOLC-E channel = %d, want 0", got)
	}
	if snap := stats.Snapshot(); snap.TotalSeatsFound != 2 {
		t.Errorf("seats recorded = %d, want 2", snap.TotalSeatsFound)
	}

	msg := messenger.sent[snowflake.ID(100)][0]
	if !strings.Contains(msg, "Milano") || !strings.Contains(msg, "7 seats") || !strings.Contains(msg, "2 dates") {
		t.Errorf("summary not aggregated: %q", msg)
	}
}

func TestHeartbeat(t *testing.T) {
	messenger := &fakeMessenger{}
	o, err := NewOrchestrator(&fakeFetcher{}, messenger, nil, testDirectory(), stubIntervals{time.Millisecond}, NewStats(), Config{MessageCount: 1})
	if err != nil {
		t.Fatal(err)
	}

	// Nothing before the first completed cycle.
	o.sendHeartbeats(context.Background())
	if messenger.count(snowflake.ID(100)) != 0 || messenger.count(snowflake.ID(200)) != 0 {
		t.Fatal("heartbeat sent before any crawl")
	}

	o.remember(map[exams.Code][]Seat{
		exams.TOLCI: {{Exam: exams.TOLCI, Seats: "1"}},
	})
	o.sendHeartbeats(context.Background())

	if messenger.count(snowflake.ID(100)) != 0 {
		t.Error("heartbeat sent to channel that just had seats")
	}
	if messenger.count(snowflake.ID(200)) != 1 {
		t.Errorf("heartbeats to quiet channel = %d, want 1", messenger.count(snowflake.ID(200)))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{MessageCount: 1}, false},
		{"ok with heartbeat", Config{MessageCount: 5, HeartbeatSpec: "0 9 * * *"}, false},
		{"zero message count", Config{MessageCount: 0}, true},
		{"bad heartbeat spec", Config{MessageCount: 1, HeartbeatSpec: "not a spec"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(&fakeFetcher{}, &fakeMessenger{}, nil, testDirectory(), stubIntervals{}, NewStats(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatExamSummaryNonNumericSeats(t *testing.T) {
	msg := formatExamSummary(exams.CEnTS, []Seat{
		{Region: "Lazio", City: "Roma", Seats: "---", Date: "2026-03-01"},
	})
	if !strings.Contains(msg, "1 seats") {
		t.Errorf("non-numeric seat count not counted as one row: %q", msg)
	}
}
