package notify

import (
	"github.com/bwmarrin/discordgo"
)

// DiscordMessenger delivers narration to a Discord channel over the
// REST API; no gateway connection is opened.
type DiscordMessenger struct {
	Session *discordgo.Session
}

func NewDiscordMessenger(token string) (*DiscordMessenger, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordMessenger{Session: session}, nil
}

func (d *DiscordMessenger) Send(chatID string, text string) error {
	_, err := d.Session.ChannelMessageSend(chatID, text)
	return err
}
