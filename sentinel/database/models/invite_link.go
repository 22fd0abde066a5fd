package models

import (
	"time"

	"github.com/uptrace/bun"
)

// InviteLink is the authoritative record of a single-use group invite.
// The Discord-side invite carries its own expiry, but admit/evict
// decisions are made against this record, never the transport alone.
type InviteLink struct {
	bun.BaseModel `bun:"table:invite_links,alias:il"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Token     string `bun:"token,notnull,unique"`
	Exam      string `bun:"exam,notnull"`
	DiscordID string `bun:"discord_id,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	Used      bool      `bun:"used,notnull,default:false"`
}
