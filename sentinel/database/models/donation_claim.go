package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ClaimStatusPending  = "pending"
	ClaimStatusVerified = "verified"
)

// DonationClaim tracks a user-submitted donation transaction reference
// awaiting admin review. Verified claims are kept for audit; rejected
// claims are deleted so the user can resubmit.
type DonationClaim struct {
	bun.BaseModel `bun:"table:donation_claims,alias:dc"`

	ID        int64  `bun:"id,pk,autoincrement"`
	DiscordID string `bun:"discord_id,notnull"`
	TxRef     string `bun:"tx_ref,notnull"`
	Status    string `bun:"status,notnull,default:'pending'"`

	SubmittedAt time.Time `bun:"submitted_at,notnull"`
	ReviewedAt  time.Time `bun:"reviewed_at,nullzero"`
}
