package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Subscriber is one bot user. Records are never deleted: opting out
// flips Active to false so the audit trail survives.
type Subscriber struct {
	bun.BaseModel `bun:"table:subscribers,alias:s"`

	ID          int64  `bun:"id,pk,autoincrement"`
	DiscordID   string `bun:"discord_id,notnull,unique"`
	Username    string `bun:"username"`
	DisplayName string `bun:"display_name"`

	// GitHub star gate. GithubHandle is unique across subscribers when
	// set; Verified flips on a successful gate check.
	GithubHandle string `bun:"github_handle"`
	Verified     bool   `bun:"verified,notnull,default:false"`

	// Exam selections. Empty means nothing chosen yet, the wildcard
	// "ALL" means everything.
	Exams []string `bun:"exams,type:jsonb"`

	// PreferredInterval is the user's preferred check interval in
	// minutes; 0 means no preference.
	PreferredInterval int `bun:"preferred_interval,notnull,default:0"`

	Premium bool `bun:"premium,notnull,default:false"`
	Active  bool `bun:"active,notnull,default:true"`

	JoinedAt  time.Time `bun:"joined_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
