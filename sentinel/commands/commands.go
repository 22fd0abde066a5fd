// Package commands implements the slash command surface.
package commands

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Commands = []discord.ApplicationCommandCreate{
	Start,
	Stop,
	Status,
	GitHub,
	Donate,
	Exams,
	Exam,
	Interval,
	Claims,
	Stats,
}

// reply sends an ephemeral response, the default for command feedback.
func reply(e *handler.CommandEvent, content string) error {
	return e.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build())
}
