// Package invites owns the single-use, time-limited invite links that
// gate entry to the exam groups. The local record is authoritative:
// the Discord invite expires on its own, but admit decisions are made
// here, never against the transport alone.
package invites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// TTL is how long an issued link stays redeemable.
const TTL = 60 * time.Second

var (
	ErrNotAuthorized = errors.New("not authorized: verify your github star first")
	ErrPremiumOnly   = errors.New("not authorized: the premium group requires a verified donation")
	ErrNoGroup       = errors.New("no group configured for this exam")
	ErrNotFound      = errors.New("invite link not found")
	ErrExpired       = errors.New("invite link expired, request a new one")
	ErrAlreadyUsed   = errors.New("invite link already used, request a new one")
)

// Premium is the pseudo exam code addressing the donator-only group.
const Premium exams.Code = "PREMIUM"

// SubscriberGate is the slice of the subscriber store the issuer needs.
type SubscriberGate interface {
	IsVerified(id snowflake.ID) bool
	IsPremium(id snowflake.ID) bool
}

// InviteCreator is the messaging transport's invite capability.
type InviteCreator interface {
	CreateChannelInvite(ctx context.Context, channelID snowflake.ID, ttl time.Duration) (string, error)
}

// Persister is the storage collaborator for invite records.
type Persister interface {
	GetValid(ctx context.Context) ([]*models.InviteLink, error)
	Create(ctx context.Context, link *models.InviteLink) error
	Update(ctx context.Context, link *models.InviteLink) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Issued is what the command surface hands back to the requesting user.
type Issued struct {
	Token     string
	URL       string
	Exam      exams.Code
	ExpiresAt time.Time
}

type Issuer struct {
	dir       *exams.Directory
	subs      SubscriberGate
	transport InviteCreator
	persist   Persister

	mu    sync.Mutex
	links map[string]*models.InviteLink
}

func NewIssuer(dir *exams.Directory, subs SubscriberGate, transport InviteCreator, persist Persister) *Issuer {
	return &Issuer{
		dir:       dir,
		subs:      subs,
		transport: transport,
		persist:   persist,
		links:     make(map[string]*models.InviteLink),
	}
}

// Load hydrates unexpired, unused links from storage at boot.
func (i *Issuer) Load(ctx context.Context) error {
	links, err := i.persist.GetValid(ctx)
	if err != nil {
		return fmt.Errorf("failed to load invite links: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, l := range links {
		i.links[l.Token] = l
	}
	return nil
}

// Issue creates a fresh single-use invite for (subscriber, exam).
// Requires a verified subscriber; the premium group additionally
// requires the premium flag. A new issuance invalidates the
// subscriber's older unused links for the same exam, so at most one
// link per (subscriber, exam) is live at a time.
func (i *Issuer) Issue(ctx context.Context, userID snowflake.ID, code exams.Code) (*Issued, error) {
	if !i.subs.IsVerified(userID) {
		return nil, ErrNotAuthorized
	}

	var group exams.Group
	if code == Premium {
		if !i.subs.IsPremium(userID) {
			return nil, ErrPremiumOnly
		}
		p, ok := i.dir.Premium()
		if !ok {
			return nil, ErrNoGroup
		}
		group = p
	} else {
		g, ok := i.dir.Group(code)
		if !ok {
			return nil, ErrNoGroup
		}
		group = g
	}

	// The transport call stays outside the lock: issuance for
	// different subscribers must not serialize on it.
	url, err := i.transport.CreateChannelInvite(ctx, group.ChannelID, TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel invite: %w", err)
	}

	now := time.Now()
	link := &models.InviteLink{
		Token:     uuid.NewString(),
		Exam:      string(code),
		DiscordID: userID.String(),
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}

	i.mu.Lock()
	for token, old := range i.links {
		if old.DiscordID == link.DiscordID && old.Exam == link.Exam && !old.Used {
			old.ExpiresAt = now
			delete(i.links, token)
			if err := i.persist.Update(ctx, old); err != nil {
				slog.Warn("Failed to persist invalidated invite",
					slog.String("token", token),
					slog.Any("error", err))
			}
		}
	}
	i.links[link.Token] = link
	i.mu.Unlock()

	if err := i.persist.Create(ctx, link); err != nil {
		// A link that failed to persist must not stay redeemable.
		i.mu.Lock()
		delete(i.links, link.Token)
		i.mu.Unlock()
		return nil, fmt.Errorf("failed to persist invite link: %w", err)
	}

	slog.Info("Invite issued",
		slog.String("user_id", userID.String()),
		slog.String("exam", string(code)))

	return &Issued{
		Token:     link.Token,
		URL:       url,
		Exam:      code,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// Redeem marks the link used and returns its exam code. Check-and-mark
// runs under the lock so two concurrent redeems of one token resolve
// to exactly one winner. Expiry is checked before the used flag, so a
// dead link reports ErrExpired regardless of state.
func (i *Issuer) Redeem(ctx context.Context, token string, joiner snowflake.ID) (exams.Code, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	link, ok := i.links[token]
	if !ok || link.DiscordID != joiner.String() {
		return "", ErrNotFound
	}
	if time.Now().After(link.ExpiresAt) {
		return "", ErrExpired
	}
	if link.Used {
		return "", ErrAlreadyUsed
	}

	link.Used = true
	if err := i.persist.Update(ctx, link); err != nil {
		slog.Warn("Failed to persist redeemed invite",
			slog.String("token", token),
			slog.Any("error", err))
	}
	return exams.Code(link.Exam), nil
}

// RedeemFor consumes the subscriber's live link for an exam, if any.
// The membership enforcer calls this on join events, where joins carry
// no token.
func (i *Issuer) RedeemFor(ctx context.Context, userID snowflake.ID, code exams.Code) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	for _, link := range i.links {
		if link.DiscordID != userID.String() || link.Exam != string(code) || link.Used {
			continue
		}
		if now.After(link.ExpiresAt) {
			continue
		}
		link.Used = true
		if err := i.persist.Update(ctx, link); err != nil {
			slog.Warn("Failed to persist redeemed invite",
				slog.String("token", link.Token),
				slog.Any("error", err))
		}
		return nil
	}
	return ErrNotFound
}

// StartSweeper reaps expired and consumed links on a fixed cadence
// until ctx is cancelled.
func (i *Issuer) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				i.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (i *Issuer) sweep(ctx context.Context) {
	now := time.Now()

	i.mu.Lock()
	removed := 0
	for token, link := range i.links {
		if link.Used || now.After(link.ExpiresAt) {
			delete(i.links, token)
			removed++
		}
	}
	i.mu.Unlock()

	if n, err := i.persist.DeleteExpired(ctx, now); err != nil {
		slog.Warn("Invite sweep failed", slog.Any("error", err))
	} else if removed > 0 || n > 0 {
		slog.Debug("Invite sweep done",
			slog.Int("memory_removed", removed),
			slog.Int64("storage_removed", n))
	}
}
