package donations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/disgoorg/snowflake/v2"
)

type fakeClaimPersister struct {
	mu     sync.Mutex
	nextID int64
}

func (f *fakeClaimPersister) GetAll(_ context.Context) ([]*models.DonationClaim, error) {
	return nil, nil
}

func (f *fakeClaimPersister) Create(_ context.Context, claim *models.DonationClaim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	claim.ID = f.nextID
	return nil
}

func (f *fakeClaimPersister) Update(_ context.Context, _ *models.DonationClaim) error { return nil }
func (f *fakeClaimPersister) Delete(_ context.Context, _ int64) error                 { return nil }

type fakePremiumSetter struct {
	mu      sync.Mutex
	premium map[snowflake.ID]bool
}

func (f *fakePremiumSetter) SetPremium(_ context.Context, id snowflake.ID, p bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.premium == nil {
		f.premium = make(map[snowflake.ID]bool)
	}
	f.premium[id] = p
	return nil
}

func (f *fakePremiumSetter) isPremium(id snowflake.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.premium[id]
}

type fakeInviter struct {
	mu     sync.Mutex
	issued int
}

func (f *fakeInviter) Issue(_ context.Context, _ snowflake.ID, code exams.Code) (*invites.Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	return &invites.Issued{Token: "t", URL: "https://discord.gg/x", Exam: code, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []snowflake.ID
}

func (f *fakeNotifier) SendDirectMessage(_ context.Context, id snowflake.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func newTestWorkflow() (*Workflow, *fakePremiumSetter, *fakeInviter, *fakeNotifier) {
	subs := &fakePremiumSetter{}
	inv := &fakeInviter{}
	not := &fakeNotifier{}
	w := NewWorkflow(&fakeClaimPersister{}, subs, inv, not, snowflake.ID(999))
	return w, subs, inv, not
}

func TestSubmitClaimAlwaysCreates(t *testing.T) {
	ctx := context.Background()
	w, _, _, not := newTestWorkflow()

	c1, err := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-abc")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-abc")
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID == c2.ID {
		t.Error("duplicate submission should still create a new claim")
	}
	if got := len(w.PendingClaims()); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}
	if len(not.sent) != 2 || not.sent[0] != snowflake.ID(999) {
		t.Errorf("admin not notified: %v", not.sent)
	}
}

func TestReviewVerified(t *testing.T) {
	ctx := context.Background()
	w, subs, inv, not := newTestWorkflow()

	c, _ := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-abc")
	if err := w.Review(ctx, c.ID, OutcomeVerified); err != nil {
		t.Fatal(err)
	}

	if !subs.isPremium(snowflake.ID(1)) {
		t.Error("subscriber not promoted")
	}
	if inv.issued != 1 {
		t.Errorf("premium invites issued = %d, want exactly 1", inv.issued)
	}
	if got := len(w.PendingClaims()); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	// Verified claims are retained for audit.
	if kept, ok := w.Claim(c.ID); !ok || kept.Status != models.ClaimStatusVerified {
		t.Error("verified claim not retained")
	}
	// Admin submission ping + user invite DM.
	if len(not.sent) != 2 {
		t.Errorf("notifications = %d, want 2", len(not.sent))
	}
}

func TestReviewRejected(t *testing.T) {
	ctx := context.Background()
	w, subs, inv, _ := newTestWorkflow()

	c, _ := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-abc")
	if err := w.Review(ctx, c.ID, OutcomeRejected); err != nil {
		t.Fatal(err)
	}

	if subs.isPremium(snowflake.ID(1)) {
		t.Error("rejected claim promoted the subscriber")
	}
	if inv.issued != 0 {
		t.Error("rejected claim issued an invite")
	}
	if _, ok := w.Claim(c.ID); ok {
		t.Error("rejected claim retained")
	}

	// Resubmission after rejection works.
	if _, err := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-def"); err != nil {
		t.Fatal(err)
	}
	if got := len(w.PendingClaims()); got != 1 {
		t.Errorf("pending after resubmit = %d, want 1", got)
	}
}

func TestReviewTerminal(t *testing.T) {
	ctx := context.Background()
	w, _, _, _ := newTestWorkflow()

	c, _ := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-abc")
	if err := w.Review(ctx, c.ID, OutcomeVerified); err != nil {
		t.Fatal(err)
	}
	if err := w.Review(ctx, c.ID, OutcomeVerified); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("second review error = %v, want ErrAlreadyReviewed", err)
	}
	if err := w.Review(ctx, 777, OutcomeVerified); !errors.Is(err, ErrClaimNotFound) {
		t.Errorf("unknown claim error = %v, want ErrClaimNotFound", err)
	}
	if err := w.Review(ctx, c.ID, Outcome("maybe")); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("reviewed claim with bad outcome = %v, want ErrAlreadyReviewed", err)
	}
}

// Two admins race to review one claim; the side effects run once.
func TestReviewConcurrent(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		w, _, inv, _ := newTestWorkflow()
		c, _ := w.SubmitClaim(ctx, snowflake.ID(1), "john", "tx-abc")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				errs[j] = w.Review(ctx, c.ID, OutcomeVerified)
			}(j)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else if !errors.Is(err, ErrAlreadyReviewed) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 || inv.issued != 1 {
			t.Fatalf("round %d: wins=%d issued=%d, want 1 and 1", round, wins, inv.issued)
		}
	}
}

func TestPendingClaimsOrdering(t *testing.T) {
	ctx := context.Background()
	w, _, _, _ := newTestWorkflow()

	a, _ := w.SubmitClaim(ctx, snowflake.ID(1), "a", "tx-1")
	b, _ := w.SubmitClaim(ctx, snowflake.ID(2), "b", "tx-2")

	// Force distinct, out-of-insertion-order timestamps.
	w.mu.Lock()
	w.claims[a.ID].SubmittedAt = time.Now().Add(time.Minute)
	w.claims[b.ID].SubmittedAt = time.Now()
	w.mu.Unlock()

	pending := w.PendingClaims()
	if len(pending) != 2 || pending[0].ID != b.ID {
		t.Errorf("pending not ordered by submission time: %+v", pending)
	}
}
