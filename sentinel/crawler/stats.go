package crawler

import (
	"sync"
	"time"
)

const (
	maxCrawlHistory = 200
	maxErrorHistory = 100
	maxErrorMsgLen  = 200
)

type CrawlRecord struct {
	At           time.Time
	SeatsFound   int
	ExamsChecked int
}

type ErrorRecord struct {
	At      time.Time
	Message string
}

type DailyCount struct {
	Date   string
	Crawls int
	Errors int
}

// Snapshot is a point-in-time copy of the counters, safe to hand to
// the /stats command without holding the lock.
type Snapshot struct {
	StartedAt       time.Time
	TotalCrawls     int
	TotalErrors     int
	TotalSeatsFound int
	LastCrawlAt     time.Time
	LastErrorAt     time.Time
	LastError       string
	CrawlHistory    []CrawlRecord
	ErrorHistory    []ErrorRecord
}

// Stats tracks crawl cycles and failures. In-memory only: the counters
// describe the current process and restart from zero with it.
type Stats struct {
	mu          sync.Mutex
	now         func() time.Time
	startedAt   time.Time
	crawls      int
	errors      int
	seats       int
	lastCrawlAt time.Time
	lastErrorAt time.Time
	lastError   string
	crawlHist   []CrawlRecord
	errorHist   []ErrorRecord
	dailyCrawls map[string]int
	dailyErrors map[string]int
}

func NewStats() *Stats {
	s := &Stats{
		now:         time.Now,
		dailyCrawls: make(map[string]int),
		dailyErrors: make(map[string]int),
	}
	s.startedAt = s.now()
	return s
}

func (s *Stats) RecordCrawl(seatsFound, examsChecked int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.crawls++
	s.seats += seatsFound
	s.lastCrawlAt = now
	s.crawlHist = append(s.crawlHist, CrawlRecord{At: now, SeatsFound: seatsFound, ExamsChecked: examsChecked})
	if len(s.crawlHist) > maxCrawlHistory {
		s.crawlHist = s.crawlHist[len(s.crawlHist)-maxCrawlHistory:]
	}
	s.dailyCrawls[now.Format("2006-01-02")]++
}

func (s *Stats) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := err.Error()
	if len(msg) > maxErrorMsgLen {
		msg = msg[:maxErrorMsgLen]
	}
	s.errors++
	s.lastErrorAt = now
	s.lastError = msg
	s.errorHist = append(s.errorHist, ErrorRecord{At: now, Message: msg})
	if len(s.errorHist) > maxErrorHistory {
		s.errorHist = s.errorHist[len(s.errorHist)-maxErrorHistory:]
	}
	s.dailyErrors[now.Format("2006-01-02")]++
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		StartedAt:       s.startedAt,
		TotalCrawls:     s.crawls,
		TotalErrors:     s.errors,
		TotalSeatsFound: s.seats,
		LastCrawlAt:     s.lastCrawlAt,
		LastErrorAt:     s.lastErrorAt,
		LastError:       s.lastError,
		CrawlHistory:    append([]CrawlRecord(nil), s.crawlHist...),
		ErrorHistory:    append([]ErrorRecord(nil), s.errorHist...),
	}
	return snap
}

// Daily returns the last n days of per-day counts, oldest first, with
// zero-filled gaps so the /stats chart has a fixed width.
func (s *Stats) Daily(n int) []DailyCount {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now()
	out := make([]DailyCount, 0, n)
	for i := n - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		out = append(out, DailyCount{
			Date:   day,
			Crawls: s.dailyCrawls[day],
			Errors: s.dailyErrors[day],
		})
	}
	return out
}
