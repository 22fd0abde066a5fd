// Package donations tracks donation claims from submission through
// admin review, and promotes verified donators to the premium tier.
package donations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/disgoorg/snowflake/v2"
)

// USDTAddress is the TRC20 donation address surfaced by /donate.
const USDTAddress = "TJaPMJJekVuBbQKbtp8w69m7GrojSaiRRm"

var (
	ErrClaimNotFound   = errors.New("donation claim not found")
	ErrAlreadyReviewed = errors.New("donation claim already reviewed")
)

type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeRejected Outcome = "rejected"
)

// Persister is the storage collaborator. Create must populate the
// claim ID (the bun repository does, via the insert returning clause).
type Persister interface {
	GetAll(ctx context.Context) ([]*models.DonationClaim, error)
	Create(ctx context.Context, claim *models.DonationClaim) error
	Update(ctx context.Context, claim *models.DonationClaim) error
	Delete(ctx context.Context, id int64) error
}

// PremiumSetter is the slice of the subscriber store the workflow
// drives on a verified outcome.
type PremiumSetter interface {
	SetPremium(ctx context.Context, id snowflake.ID, premium bool) error
}

// PremiumInviter issues the one-time premium group invite.
type PremiumInviter interface {
	Issue(ctx context.Context, userID snowflake.ID, code exams.Code) (*invites.Issued, error)
}

// Notifier delivers DMs: the admin ping on submission, the invite link
// on verification.
type Notifier interface {
	SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error
}

type Workflow struct {
	persist  Persister
	subs     PremiumSetter
	inviter  PremiumInviter
	notifier Notifier
	adminID  snowflake.ID

	mu     sync.Mutex
	claims map[int64]*models.DonationClaim
}

func NewWorkflow(persist Persister, subs PremiumSetter, inviter PremiumInviter, notifier Notifier, adminID snowflake.ID) *Workflow {
	return &Workflow{
		persist:  persist,
		subs:     subs,
		inviter:  inviter,
		notifier: notifier,
		adminID:  adminID,
		claims:   make(map[int64]*models.DonationClaim),
	}
}

// Load hydrates claims from storage at boot.
func (w *Workflow) Load(ctx context.Context) error {
	recs, err := w.persist.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load donation claims: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range recs {
		w.claims[rec.ID] = rec
	}
	return nil
}

// SubmitClaim records a new pending claim. Always a fresh record, even
// for a transaction reference seen before: dedup is the reviewer's
// job, not the intake's.
func (w *Workflow) SubmitClaim(ctx context.Context, userID snowflake.ID, username, txRef string) (*models.DonationClaim, error) {
	claim := &models.DonationClaim{
		DiscordID:   userID.String(),
		TxRef:       txRef,
		Status:      models.ClaimStatusPending,
		SubmittedAt: time.Now(),
	}
	if err := w.persist.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to persist donation claim: %w", err)
	}

	w.mu.Lock()
	w.claims[claim.ID] = claim
	w.mu.Unlock()

	slog.Info("Donation claim submitted",
		slog.String("user_id", userID.String()),
		slog.String("tx_ref", txRef))

	if w.adminID != 0 {
		msg := fmt.Sprintf("💰 New donation claim #%d\nUser: %s (%s)\nTX: %s",
			claim.ID, username, userID, txRef)
		if err := w.notifier.SendDirectMessage(ctx, w.adminID, msg); err != nil {
			slog.Warn("Failed to notify admin of donation claim",
				slog.Any("error", err))
		}
	}

	return claim, nil
}

// Review settles a pending claim. Verified promotes the subscriber and
// issues exactly one premium invite; rejected deletes the claim so the
// user may resubmit. The state transition happens under the lock, so a
// racing second review fails with ErrAlreadyReviewed before any side
// effect runs twice.
func (w *Workflow) Review(ctx context.Context, claimID int64, outcome Outcome) error {
	w.mu.Lock()
	claim, ok := w.claims[claimID]
	if !ok {
		w.mu.Unlock()
		return ErrClaimNotFound
	}
	if claim.Status != models.ClaimStatusPending {
		w.mu.Unlock()
		return ErrAlreadyReviewed
	}

	switch outcome {
	case OutcomeVerified:
		claim.Status = models.ClaimStatusVerified
		claim.ReviewedAt = time.Now()
	case OutcomeRejected:
		delete(w.claims, claimID)
	default:
		w.mu.Unlock()
		return fmt.Errorf("unknown review outcome %q", outcome)
	}
	userID, parseErr := snowflake.Parse(claim.DiscordID)
	w.mu.Unlock()

	if outcome == OutcomeRejected {
		if err := w.persist.Delete(ctx, claimID); err != nil {
			return fmt.Errorf("failed to delete rejected claim: %w", err)
		}
		slog.Info("Donation claim rejected", slog.Int64("claim_id", claimID))
		return nil
	}

	if err := w.persist.Update(ctx, claim); err != nil {
		return fmt.Errorf("failed to persist reviewed claim: %w", err)
	}
	if parseErr != nil {
		return fmt.Errorf("claim %d has malformed subscriber id: %w", claimID, parseErr)
	}

	if err := w.subs.SetPremium(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to promote subscriber: %w", err)
	}

	slog.Info("Donation claim verified",
		slog.Int64("claim_id", claimID),
		slog.String("user_id", userID.String()))

	issued, err := w.inviter.Issue(ctx, userID, invites.Premium)
	if err != nil {
		// Promotion already happened; the user can request a premium
		// invite themselves, so report rather than roll back.
		return fmt.Errorf("promoted, but premium invite failed: %w", err)
	}

	msg := fmt.Sprintf(
		"✅ Your donation was verified, welcome to premium!\nJoin here (valid %s, single use): %s",
		invites.TTL, issued.URL)
	if err := w.notifier.SendDirectMessage(ctx, userID, msg); err != nil {
		slog.Warn("Failed to DM premium invite",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}
	return nil
}

// PendingClaims returns pending claims ordered by submission time.
func (w *Workflow) PendingClaims() []models.DonationClaim {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.DonationClaim, 0)
	for _, c := range w.claims {
		if c.Status == models.ClaimStatusPending {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Claim returns a copy of one claim for the review detail view.
func (w *Workflow) Claim(claimID int64) (models.DonationClaim, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.claims[claimID]
	if !ok {
		return models.DonationClaim{}, false
	}
	return *c, true
}

// HasClaim reports whether the user has any claim on file, pending or
// verified. Surfaced by /status.
func (w *Workflow) HasClaim(userID snowflake.ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := userID.String()
	for _, c := range w.claims {
		if c.DiscordID == id {
			return true
		}
	}
	return false
}
