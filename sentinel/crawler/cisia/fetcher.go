// Package cisia fetches the CISIA calendar with a headless browser and
// parses the seat table into crawl results.
package cisia

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/crawler"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/chromedp/chromedp"
)

const baseURL = "https://testcisia.it/calendario.php"

const defaultTimeout = 30 * time.Second

// extractRows runs in the page and returns the calendar table rows.
// The availability flag mirrors the green marker the site renders next
// to bookable rows.
const extractRows = `(() => {
	const out = [];
	for (const row of document.querySelectorAll('#calendario tbody tr')) {
		const cells = row.querySelectorAll('td');
		if (cells.length < 8) continue;
		out.push({
			format: cells[0].innerText.trim(),
			university: cells[1].innerText.trim(),
			region: cells[2].innerText.trim(),
			city: cells[3].innerText.trim(),
			deadline: cells[4].innerText.trim(),
			seats: cells[5].innerText.trim(),
			available: !!cells[6].querySelector('span[style*="LimeGreen"]'),
			date: cells[7].innerText.trim(),
		});
	}
	return out;
})()`

type seatRow struct {
	Format     string `json:"format"`
	University string `json:"university"`
	Region     string `json:"region"`
	City       string `json:"city"`
	Deadline   string `json:"deadline"`
	Seats      string `json:"seats"`
	Available  bool   `json:"available"`
	Date       string `json:"date"`
}

type Config struct {
	// Format selects the delivery mode rows to keep: "@HOME" or "@UNI".
	Format string
	// PageLanguage is the calendar UI language, "italiano" or "inglese".
	PageLanguage string
	// Timeout bounds one exam page fetch. Defaults to 30s.
	Timeout time.Duration
}

type Fetcher struct {
	cfg    Config
	logger *slog.Logger
}

func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{
		cfg:    cfg,
		logger: slog.With(slog.String("service", "cisia")),
	}
}

// FetchAvailability checks every exam and returns available seats per
// exam. A single exam page failing is logged and yields an empty
// slice alongside a crawler.PartialError carrying the failure count;
// the cycle only fails as a whole when no exam page could be read.
func (f *Fetcher) FetchAvailability(ctx context.Context) (map[exams.Code][]crawler.Seat, error) {
	results := make(map[exams.Code][]crawler.Seat)
	var lastErr error
	failed := 0

	for _, code := range exams.All() {
		seats, err := f.fetchExam(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Error("Exam page fetch failed",
				slog.String("exam", string(code)),
				slog.String("error", err.Error()))
			results[code] = nil
			lastErr = err
			failed++
			continue
		}
		results[code] = seats
	}

	if failed == len(exams.All()) {
		return nil, fmt.Errorf("all exam pages failed: %w", lastErr)
	}
	if failed > 0 {
		return results, &crawler.PartialError{Failed: failed, Err: lastErr}
	}
	return results, nil
}

func (f *Fetcher) fetchExam(ctx context.Context, code exams.Code) ([]crawler.Seat, error) {
	url := f.buildURL(code)
	target := code.Info().Prefix + f.cfg.Format

	chromedpCtx, cancel := chromedp.NewContext(ctx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancel()
	chromedpCtx, cancel = context.WithTimeout(chromedpCtx, f.cfg.Timeout)
	defer cancel()

	var rows []seatRow
	err := chromedp.Run(chromedpCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("#calendario", chromedp.ByID),
		chromedp.Evaluate(extractRows, &rows),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s calendar: %w", code, err)
	}

	f.logger.Info("Calendar page parsed",
		slog.String("exam", string(code)),
		slog.Int("rows", len(rows)))

	var seats []crawler.Seat
	for _, row := range rows {
		if row.Format != target {
			continue
		}
		if !row.Available && !hasSeatCount(row.Seats) {
			continue
		}
		seats = append(seats, crawler.Seat{
			Exam:       code,
			Format:     row.Format,
			University: row.University,
			Region:     row.Region,
			City:       row.City,
			Seats:      row.Seats,
			Date:       row.Date,
			Deadline:   row.Deadline,
		})
	}
	return seats, nil
}

func (f *Fetcher) buildURL(code exams.Code) string {
	info := code.Info()
	var b strings.Builder
	fmt.Fprintf(&b, "%s?tolc=%s", baseURL, info.Param)
	if info.Prefix == "CENT" {
		fmt.Fprintf(&b, "&lingua=%s", f.cfg.PageLanguage)
	}
	if f.cfg.PageLanguage == "inglese" {
		b.WriteString("&l=gb")
	} else {
		b.WriteString("&l=it")
	}
	return b.String()
}

// hasSeatCount reports whether the seats cell carries a number rather
// than the "---" placeholder.
func hasSeatCount(s string) bool {
	s = strings.ReplaceAll(s, "---", "")
	return strings.TrimSpace(s) != ""
}
