// Package discord adapts the disgo rest client to the transport
// interfaces the domain packages consume.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

const inviteBaseURL = "https://discord.gg/"

type Gateway struct {
	client bot.Client
}

func NewGateway(client bot.Client) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) SendChannelMessage(ctx context.Context, channelID snowflake.ID, content string) error {
	_, err := g.client.Rest().CreateMessage(channelID,
		discord.NewMessageCreateBuilder().SetContent(content).Build(),
		rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return nil
}

func (g *Gateway) SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error {
	dmChannel, err := g.client.Rest().CreateDMChannel(userID, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM channel with %s: %w", userID, err)
	}
	_, err = g.client.Rest().CreateMessage(dmChannel.ID(),
		discord.NewMessageCreateBuilder().SetContent(content).Build(),
		rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to DM %s: %w", userID, err)
	}
	return nil
}

func (g *Gateway) BanMember(ctx context.Context, guildID, userID snowflake.ID) error {
	if err := g.client.Rest().AddBan(guildID, userID, 0, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to ban %s from guild %s: %w", userID, guildID, err)
	}
	return nil
}

func (g *Gateway) UnbanMember(ctx context.Context, guildID, userID snowflake.ID) error {
	if err := g.client.Rest().DeleteBan(guildID, userID, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to unban %s from guild %s: %w", userID, guildID, err)
	}
	return nil
}

// CreateChannelInvite creates a single-use invite that Discord itself
// expires after ttl. The invite record kept by the issuer stays
// authoritative; this expiry is only a transport backstop.
func (g *Gateway) CreateChannelInvite(ctx context.Context, channelID snowflake.ID, ttl time.Duration) (string, error) {
	invite, err := g.client.Rest().CreateInvite(channelID, discord.InviteCreate{
		MaxAge:  json.Ptr(int(ttl.Seconds())),
		MaxUses: json.Ptr(1),
		Unique:  true,
	}, rest.WithCtx(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create invite for channel %s: %w", channelID, err)
	}
	return inviteBaseURL + invite.Code, nil
}
