package threads

import (
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/imager"
	"github.com/blindspot/blindspot/util"
	"github.com/blindspot/blindspot/votes"
)

// VoteSource provides the vote decoration of posts during rendering
type VoteSource interface {
	Get(id string) votes.State
}

// View is a post as presented to a client
type View struct {
	ID             string       `json:"id"`
	Board          string       `json:"board"`
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	AuthorTripcode string       `json:"authorTripcode"`
	Media          common.Media `json:"media"`
	Timestamp      time.Time    `json:"timestamp"`
	Age            string       `json:"age"`
	ParentID       string       `json:"parentId,omitempty"`
	Depth          int          `json:"depth"`
	Vote           votes.State  `json:"vote"`
	TotalReplies   int          `json:"totalReplies"`

	// Set on nodes at the depth cap with replies, that were not rendered
	HiddenReplies int  `json:"hiddenReplies,omitempty"`
	Truncated     bool `json:"truncated,omitempty"`

	Replies []*View `json:"replies"`
}

// DepthLimit returns the configured render depth limit
func DepthLimit() int {
	if conf := config.Get(); conf != nil && conf.MaxDepth > 0 {
		return conf.MaxDepth
	}
	return MaxDepth
}

// Render assembled trees for presentation. Replies of nodes at maxDepth are
// not rendered. A nil overlay renders default vote states.
func Render(roots []*Node, maxDepth int, overlay VoteSource, now time.Time) []*View {
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}
	views := make([]*View, len(roots))
	for i, n := range roots {
		views[i] = render(n, 0, maxDepth, overlay, now)
	}
	return views
}

func render(n *Node, depth, maxDepth int, overlay VoteSource, now time.Time,
) *View {
	v := &View{
		ID:             n.ID,
		Board:          n.Board,
		Title:          n.Title,
		Content:        n.Content,
		AuthorTripcode: n.AuthorTripcode,
		Media:          imager.ResolveMedia(n.ImageData, n.VideoURL),
		Timestamp:      n.Timestamp,
		Age:            util.RelativeTime(n.Timestamp, now),
		ParentID:       n.ParentID,
		Depth:          depth,
		Vote:           votes.Default(),
		TotalReplies:   n.TotalReplies(),
		Replies:        make([]*View, 0),
	}
	if overlay != nil {
		v.Vote = overlay.Get(n.ID)
	}

	if depth >= maxDepth {
		if v.TotalReplies != 0 {
			v.HiddenReplies = v.TotalReplies
			v.Truncated = true
		}
		return v
	}
	for _, r := range n.Replies {
		v.Replies = append(v.Replies, render(r, depth+1, maxDepth, overlay, now))
	}
	return v
}
