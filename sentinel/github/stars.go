// Package github implements the star-gate verification source: a
// cached view of the repository's stargazers fetched over the GitHub
// REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"
	lru "github.com/hashicorp/golang-lru"
)

const (
	apiBase  = "https://api.github.com"
	pageSize = 100

	// cacheTTL bounds how stale the stargazer view may get. Five
	// minutes keeps API usage inside unauthenticated rate limits.
	cacheTTL = 5 * time.Minute

	verdictCacheSize = 1024
)

type Config struct {
	RepoOwner string `toml:"repo_owner"`
	RepoName  string `toml:"repo_name"`
	Token     string `toml:"token"`
}

func (c Config) RepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", c.RepoOwner, c.RepoName)
}

type verdict struct {
	starred bool
	expires time.Time
}

// StarChecker satisfies subscribers.GateChecker.
type StarChecker struct {
	cfg    Config
	client *httpclient.Client

	mu         sync.Mutex
	stargazers map[string]struct{}
	lastFetch  time.Time

	verdicts *lru.Cache
}

func NewStarChecker(cfg Config) (*StarChecker, error) {
	if cfg.RepoOwner == "" || cfg.RepoName == "" {
		return nil, fmt.Errorf("github repo owner and name are required")
	}

	backoff := heimdall.NewConstantBackoff(2*time.Second, 5*time.Millisecond)
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(15*time.Second),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		httpclient.WithRetryCount(2),
	)

	verdicts, err := lru.New(verdictCacheSize)
	if err != nil {
		return nil, err
	}

	return &StarChecker{
		cfg:      cfg,
		client:   client,
		verdicts: verdicts,
	}, nil
}

// RepoURL returns the browser URL of the gated repository.
func (s *StarChecker) RepoURL() string {
	return s.cfg.RepoURL()
}

// HasStarred reports whether handle has starred the configured repo.
// Handles are matched case-insensitively. A recent per-handle verdict
// is served from the cache; otherwise the stargazer set is refreshed
// if stale and consulted.
func (s *StarChecker) HasStarred(ctx context.Context, handle string) (bool, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return false, nil
	}

	if v, ok := s.verdicts.Get(handle); ok {
		if cached := v.(verdict); time.Now().Before(cached.expires) {
			return cached.starred, nil
		}
		s.verdicts.Remove(handle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastFetch) >= cacheTTL || s.stargazers == nil {
		if err := s.refreshLocked(ctx); err != nil {
			// A stale set beats an outage, as long as we have one.
			if s.stargazers == nil {
				return false, err
			}
			slog.Warn("Stargazer refresh failed, using stale cache",
				slog.Any("error", err))
		}
	}

	_, starred := s.stargazers[handle]
	s.verdicts.Add(handle, verdict{starred: starred, expires: time.Now().Add(cacheTTL)})
	return starred, nil
}

// StargazerCount returns the size of the cached stargazer set.
func (s *StarChecker) StargazerCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastFetch) >= cacheTTL || s.stargazers == nil {
		if err := s.refreshLocked(ctx); err != nil && s.stargazers == nil {
			return 0, err
		}
	}
	return len(s.stargazers), nil
}

func (s *StarChecker) refreshLocked(ctx context.Context) error {
	all := make(map[string]struct{})

	for page := 1; ; page++ {
		logins, err := s.fetchPage(ctx, page)
		if err != nil {
			return err
		}
		for _, login := range logins {
			all[strings.ToLower(login)] = struct{}{}
		}
		if len(logins) < pageSize {
			break
		}
	}

	s.stargazers = all
	s.lastFetch = time.Now()
	slog.Debug("Stargazer cache refreshed",
		slog.Int("count", len(all)),
		slog.String("repo", s.cfg.RepoURL()))
	return nil
}

func (s *StarChecker) fetchPage(ctx context.Context, page int) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/stargazers?per_page=%d&page=%d",
		apiBase, s.cfg.RepoOwner, s.cfg.RepoName, pageSize, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stargazers request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("stargazers request returned %s", resp.Status)
	}

	var users []struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode stargazers page: %w", err)
	}

	logins := make([]string, 0, len(users))
	for _, u := range users {
		if u.Login != "" {
			logins = append(logins, u.Login)
		}
	}
	return logins, nil
}
