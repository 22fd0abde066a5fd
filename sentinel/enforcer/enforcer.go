// Package enforcer reacts to group join events: members who are
// verified and entitled to the group stay, everyone else is removed
// and immediately unbanned so they can come back once they qualify.
package enforcer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/disgoorg/snowflake/v2"
)

// Messenger sends the explanatory message before an eviction.
type Messenger interface {
	SendChannelMessage(ctx context.Context, channelID snowflake.ID, content string) error
}

// Moderator is the transport's remove/unban capability. The ban is how
// the member is removed; the unban is what makes the removal
// non-punitive.
type Moderator interface {
	BanMember(ctx context.Context, guildID, userID snowflake.ID) error
	UnbanMember(ctx context.Context, guildID, userID snowflake.ID) error
}

// SubscriberDirectory is the slice of the subscriber store consulted
// per join event.
type SubscriberDirectory interface {
	IsVerified(id snowflake.ID) bool
	IsPremium(id snowflake.ID) bool
	WantsExam(id snowflake.ID, code exams.Code) bool
}

// InviteRedeemer consumes the joiner's outstanding invite record.
type InviteRedeemer interface {
	RedeemFor(ctx context.Context, userID snowflake.ID, code exams.Code) error
}

type Enforcer struct {
	dir     *exams.Directory
	subs    SubscriberDirectory
	invites InviteRedeemer
	msg     Messenger
	mod     Moderator
	repoURL string
}

func New(dir *exams.Directory, subs SubscriberDirectory, inv InviteRedeemer, msg Messenger, mod Moderator, repoURL string) *Enforcer {
	return &Enforcer{
		dir:     dir,
		subs:    subs,
		invites: inv,
		msg:     msg,
		mod:     mod,
		repoURL: repoURL,
	}
}

// HandleJoin decides admit or evict for one join event. The decision
// is stateless: current subscriber state plus the directory. Returns
// whether the member was admitted.
func (e *Enforcer) HandleJoin(ctx context.Context, guildID, userID snowflake.ID, displayName string) (bool, error) {
	if e.dir.IsPremiumGuild(guildID) {
		if e.subs.IsVerified(userID) && e.subs.IsPremium(userID) {
			e.consumeInvite(ctx, userID, invites.Premium)
			return true, nil
		}
		p, _ := e.dir.Premium()
		reason := fmt.Sprintf(
			"❌ %s, this group is for verified donators. Use /donate in a DM with the bot first.",
			displayName)
		return false, e.evict(ctx, guildID, p.ChannelID, userID, reason)
	}

	code, ok := e.dir.GuildExam(guildID)
	if !ok {
		// Not one of ours; nothing to enforce.
		return true, nil
	}

	if e.subs.IsVerified(userID) && e.subs.WantsExam(userID, code) {
		e.consumeInvite(ctx, userID, code)
		slog.Debug("Join admitted",
			slog.String("user_id", userID.String()),
			slog.String("exam", string(code)))
		return true, nil
	}

	group, _ := e.dir.Group(code)
	reason := fmt.Sprintf(
		"❌ %s, you must verify your GitHub star before joining this group.\n"+
			"1. Star the repo: %s\n"+
			"2. DM the bot: /github your_github_username\n"+
			"3. Select %s with /exams, then use /exam for a fresh invite link.",
		displayName, e.repoURL, code)
	return false, e.evict(ctx, guildID, group.ChannelID, userID, reason)
}

func (e *Enforcer) consumeInvite(ctx context.Context, userID snowflake.ID, code exams.Code) {
	if err := e.invites.RedeemFor(ctx, userID, code); err != nil && !errors.Is(err, invites.ErrNotFound) {
		slog.Warn("Failed to consume invite on join",
			slog.String("user_id", userID.String()),
			slog.String("exam", string(code)),
			slog.Any("error", err))
	}
}

// evict runs the warn -> remove -> unban sequence. The warn is
// best-effort; remove and unban always run, and a failed removal does
// not short-circuit the unban.
func (e *Enforcer) evict(ctx context.Context, guildID, channelID, userID snowflake.ID, reason string) error {
	if err := e.msg.SendChannelMessage(ctx, channelID, reason); err != nil {
		slog.Warn("Eviction notice failed to send",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}

	var errs []error
	if err := e.mod.BanMember(ctx, guildID, userID); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove member: %w", err))
	}
	if err := e.mod.UnbanMember(ctx, guildID, userID); err != nil {
		errs = append(errs, fmt.Errorf("failed to unban member: %w", err))
	}

	if len(errs) == 0 {
		slog.Info("Unauthorized join evicted",
			slog.String("user_id", userID.String()),
			slog.String("guild_id", guildID.String()))
	}
	return errors.Join(errs...)
}
