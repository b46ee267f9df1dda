package poster

import (
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/formatter"
	"github.com/mattermost/mattermost-plugin-guardian/server/hashtag"
)

// Poster posts guardian alerts to Mattermost channels.
// This struct is stateless - it only holds immutable configuration (API and botID).
type Poster struct {
	api   plugin.API
	botID string
}

// New creates a new Poster instance.
func New(api plugin.API, botID string) *Poster {
	return &Poster{
		api:   api,
		botID: botID,
	}
}

// PostAlert posts a formatted alert to a Mattermost channel.
//
// Follow-up alerts (stand-down, debrief) are threaded under alert.RootPostID.
// The hashtag line is posted as the message so it stays searchable.
//
// Returns the ID of the created post.
func (p *Poster) PostAlert(a alert.Alert, channelID string) (string, error) {
	attachment := formatter.FormatAlert(a)

	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		RootId:    a.RootPostID,
		Message:   hashtag.Generate(a),
		Type:      model.PostTypeSlackAttachment,
		Props:     model.StringInterface{},
	}

	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})

	created, appErr := p.api.CreatePost(post)
	if appErr != nil {
		return "", fmt.Errorf("failed to create alert post: %w", appErr)
	}
	return created.Id, nil
}

// NotifyUser sends the alert headline to the user over a direct message from the bot.
func (p *Poster) NotifyUser(a alert.Alert) error {
	channel, appErr := p.api.GetDirectChannel(a.UserID, p.botID)
	if appErr != nil {
		return fmt.Errorf("failed to get direct channel: %w", appErr)
	}

	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channel.Id,
		Message:   formatter.Headline(a),
	}

	if _, appErr := p.api.CreatePost(post); appErr != nil {
		return fmt.Errorf("failed to create direct post: %w", appErr)
	}
	return nil
}
