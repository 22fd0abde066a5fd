// Package subscribers owns the subscriber table and the verification
// state machine. All mutation goes through the Store, which serializes
// per-table and writes every change through to persistence.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/disgoorg/snowflake/v2"
)

var (
	ErrNotSubscribed = errors.New("not subscribed: send /start first")
	ErrNotVerified   = errors.New("github star not verified yet")
)

// Persister is the storage collaborator. Satisfied by
// repositories.SubscriberRepository; tests plug in a fake.
type Persister interface {
	GetAll(ctx context.Context) ([]*models.Subscriber, error)
	Save(ctx context.Context, sub *models.Subscriber) error
}

type Store struct {
	mu      sync.RWMutex
	subs    map[snowflake.ID]*models.Subscriber
	persist Persister
}

func NewStore(persist Persister) *Store {
	return &Store{
		subs:    make(map[snowflake.ID]*models.Subscriber),
		persist: persist,
	}
}

// Load hydrates the in-memory table from storage. Called once at boot
// before the gateway opens.
func (s *Store) Load(ctx context.Context) error {
	recs, err := s.persist.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscribers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		id, err := snowflake.Parse(rec.DiscordID)
		if err != nil {
			continue
		}
		s.subs[id] = rec
	}
	return nil
}

// Subscribe creates a subscriber on first contact or reactivates an
// opted-out one. Exam choices and the original join date survive
// resubscription. Returns whether the caller is new (or returning).
func (s *Store) Subscribe(ctx context.Context, id snowflake.ID, username, displayName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subs[id]
	if ok {
		isNew := !existing.Active
		existing.Active = true
		existing.Username = username
		existing.DisplayName = displayName
		return isNew, s.persist.Save(ctx, existing)
	}

	sub := &models.Subscriber{
		DiscordID:   id.String(),
		Username:    username,
		DisplayName: displayName,
		Exams:       []string{},
		Active:      true,
		JoinedAt:    time.Now(),
	}
	s.subs[id] = sub
	return true, s.persist.Save(ctx, sub)
}

// Unsubscribe deactivates the record. Never deletes: the row is the
// audit trail.
func (s *Store) Unsubscribe(ctx context.Context, id snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotSubscribed
	}
	sub.Active = false
	return s.persist.Save(ctx, sub)
}

// SetExams replaces the subscriber's exam selections. An empty set
// means the subscriber receives nothing; the wildcard means everything.
func (s *Store) SetExams(ctx context.Context, id snowflake.ID, selection []exams.Code) error {
	for _, c := range selection {
		if !exams.Valid(c) {
			return fmt.Errorf("unknown exam code %q", c)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotSubscribed
	}

	out := make([]string, len(selection))
	for i, c := range selection {
		out[i] = string(c)
	}
	sub.Exams = out
	return s.persist.Save(ctx, sub)
}

// SetInterval stores the preferred check interval in minutes (1-60).
func (s *Store) SetInterval(ctx context.Context, id snowflake.ID, minutes int) error {
	if minutes < 1 || minutes > 60 {
		return fmt.Errorf("interval must be between 1 and 60 minutes, got %d", minutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotSubscribed
	}
	sub.PreferredInterval = minutes
	return s.persist.Save(ctx, sub)
}

// SetPremium flips the privileged-tier flag. Driven by the donation
// workflow, never directly by user commands.
func (s *Store) SetPremium(ctx context.Context, id snowflake.ID, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotSubscribed
	}
	sub.Premium = premium
	return s.persist.Save(ctx, sub)
}

// Get returns a copy so callers cannot mutate store state outside the
// lock.
func (s *Store) Get(id snowflake.ID) (models.Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return models.Subscriber{}, false
	}
	cp := *sub
	cp.Exams = append([]string(nil), sub.Exams...)
	return cp, true
}

// WantsExam reports whether alerts for code should reach this
// subscriber: active, and either the wildcard or the specific code is
// selected. Nothing selected means nothing delivered.
func (s *Store) WantsExam(id snowflake.ID, code exams.Code) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok || !sub.Active {
		return false
	}
	for _, e := range sub.Exams {
		if e == string(exams.Wildcard) || e == string(code) {
			return true
		}
	}
	return false
}

func (s *Store) IsVerified(id snowflake.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	return ok && sub.Verified
}

func (s *Store) IsPremium(id snowflake.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	return ok && sub.Premium
}

// ActiveCount is surfaced by the admin stats command.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sub := range s.subs {
		if sub.Active {
			n++
		}
	}
	return n
}

// linkHandle records a verified handle. The uniqueness re-check runs
// under the same lock as the write, which is what makes two concurrent
// verifications of one handle resolve to exactly one winner.
func (s *Store) linkHandle(ctx context.Context, id snowflake.ID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for otherID, other := range s.subs {
		if otherID != id && other.GithubHandle == handle {
			return ErrHandleClaimed
		}
	}

	sub, ok := s.subs[id]
	if !ok {
		return ErrNotSubscribed
	}
	sub.GithubHandle = handle
	sub.Verified = true
	return s.persist.Save(ctx, sub)
}

// handleClaimedBy reports whether handle is already linked to a
// subscriber other than id.
func (s *Store) handleClaimedBy(id snowflake.ID, handle string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for otherID, other := range s.subs {
		if otherID != id && other.GithubHandle == handle {
			return true
		}
	}
	return false
}
