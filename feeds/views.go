package feeds

import (
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/imager"
	"github.com/blindspot/blindspot/util"
)

// MessageView is a chat message as presented to a client
type MessageView struct {
	ID             string       `json:"id"`
	Content        string       `json:"content"`
	AuthorTripcode string       `json:"authorTripcode"`
	Media          common.Media `json:"media"`
	Timestamp      time.Time    `json:"timestamp"`
	Age            string       `json:"age"`
}

// RenderMessages converts chat messages for presentation, keeping their order
func RenderMessages(msgs []common.Message, now time.Time) []MessageView {
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = MessageView{
			ID:             m.ID,
			Content:        m.Content,
			AuthorTripcode: m.AuthorTripcode,
			Media:          imager.ResolveMedia(m.ImageData, m.VideoURL),
			Timestamp:      m.Timestamp,
			Age:            util.RelativeTime(m.Timestamp, now),
		}
	}
	return views
}
