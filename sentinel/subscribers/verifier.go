package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrHandleClaimed: the handle is already linked to a different
	// subscriber. A denial, not a transient failure.
	ErrHandleClaimed = errors.New("github handle already claimed by another subscriber")

	// ErrNotStarred: the gate condition is not met. The subscriber may
	// star the repo and retry.
	ErrNotStarred = errors.New("github user has not starred the repository")

	// ErrGateUnavailable: the verification source could not be
	// reached. Transient; retry later. Never treated as a denial.
	ErrGateUnavailable = errors.New("github verification temporarily unavailable")

	ErrInvalidHandle = errors.New("invalid github username")
)

// GateChecker is the external verification source.
type GateChecker interface {
	HasStarred(ctx context.Context, handle string) (bool, error)
}

// Verifier applies the star gate and advances a subscriber to
// verified. One subscriber per handle, enforced under the store lock.
type Verifier struct {
	store *Store
	gate  GateChecker
}

func NewVerifier(store *Store, gate GateChecker) *Verifier {
	return &Verifier{store: store, gate: gate}
}

// Verify checks handle uniqueness, applies the external gate check,
// and on success links the handle and marks the subscriber verified.
// No state changes on any failure path.
func (v *Verifier) Verify(ctx context.Context, id snowflake.ID, handle string) error {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return ErrInvalidHandle
	}

	if _, ok := v.store.Get(id); !ok {
		return ErrNotSubscribed
	}

	// Cheap pre-check before spending an API call. The authoritative
	// check happens again inside linkHandle under the write lock.
	if v.store.handleClaimedBy(id, handle) {
		return ErrHandleClaimed
	}

	starred, err := v.gate.HasStarred(ctx, handle)
	if err != nil {
		slog.Warn("Gate check failed",
			slog.String("handle", handle),
			slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrGateUnavailable, err)
	}
	if !starred {
		return ErrNotStarred
	}

	if err := v.store.linkHandle(ctx, id, handle); err != nil {
		return err
	}

	slog.Info("Subscriber verified",
		slog.String("user_id", id.String()),
		slog.String("github_handle", handle))
	return nil
}

// NormalizeHandle strips the decorations people paste: leading @,
// trailing slashes, full profile URLs.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	handle = strings.TrimSuffix(handle, "/")
	if i := strings.Index(handle, "github.com/"); i >= 0 {
		handle = handle[i+len("github.com/"):]
		handle = strings.TrimSuffix(handle, "/")
		if j := strings.IndexByte(handle, '/'); j >= 0 {
			handle = handle[:j]
		}
	}
	return strings.ToLower(strings.TrimSpace(handle))
}
