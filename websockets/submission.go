package websockets

import (
	"context"
	"time"

	"github.com/blindspot/blindspot/auth"
	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/feeds"
	"github.com/blindspot/blindspot/imager"
	"github.com/blindspot/blindspot/parser"
	"github.com/blindspot/blindspot/threads"
	"github.com/blindspot/blindspot/votes"
	"github.com/go-playground/log"
)

// Timeout of looking up the parent of a reply
const parentLookupTimeout = 10 * time.Second

// PostRequest is a board post or reply submission
type PostRequest struct {
	Board    string `json:"board"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	VideoURL string `json:"videoUrl"`
	ParentID string `json:"parentId"`

	// Raw uploaded image. Base64 encoded over websockets.
	Image []byte `json:"image"`
}

// MessageRequest is a chat message submission
type MessageRequest struct {
	Content  string `json:"content"`
	VideoURL string `json:"videoUrl"`
	Image    []byte `json:"image"`
}

// Receipt is returned to the author of a stored document
type Receipt struct {
	ID string `json:"id"`

	// Unprocessable media, that was dropped or will not be embedded
	Warnings []string `json:"warnings,omitempty"`
}

// VoteRequest applies a vote to a post
type VoteRequest struct {
	ID   string     `json:"id"`
	Vote votes.Vote `json:"vote"`
}

// VoteResponse is the new vote state of a post
type VoteResponse struct {
	ID string `json:"id"`
	votes.State
}

// Parsed fields and media of a submission
type submission struct {
	fields   parser.Fields
	image    string
	warnings []string
}

// CreatePost validates and stores a post or reply authored by session s
func (svc *Service) CreatePost(ctx context.Context, s auth.Session,
	req PostRequest,
) (rec Receipt, err error) {
	if !config.IsBoard(req.Board) {
		err = common.ErrInvalidBoard(req.Board)
		return
	}
	sub, err := prepare(parser.Fields{
		Title:    req.Title,
		Content:  req.Content,
		VideoURL: req.VideoURL,
	}, req.Image)
	if err != nil {
		return
	}
	if req.ParentID != "" {
		err = svc.checkParent(ctx, req.Board, req.ParentID)
		if err != nil {
			return
		}
	}

	doc := map[string]interface{}{
		"board":           req.Board,
		"title":           parser.ParseTitle(sub.fields.Title),
		"content":         sub.fields.Content,
		"authorTripcode":  s.Tripcode,
		"authorSessionId": s.ID,
	}
	sub.attach(doc)
	if req.ParentID != "" {
		doc["parentId"] = req.ParentID
	}

	rec.ID, err = svc.store.Append(ctx, common.Posts, doc)
	if err != nil {
		return
	}
	rec.Warnings = sub.warnings
	log.Debugf("websockets: post %s created on %s by %s", rec.ID, req.Board,
		s.Tripcode)
	return
}

// CreateMessage validates and stores a chat message authored by session s
func (svc *Service) CreateMessage(ctx context.Context, s auth.Session,
	req MessageRequest,
) (rec Receipt, err error) {
	sub, err := prepare(parser.Fields{
		Content:  req.Content,
		VideoURL: req.VideoURL,
	}, req.Image)
	if err != nil {
		return
	}

	doc := map[string]interface{}{
		"content":         sub.fields.Content,
		"authorTripcode":  s.Tripcode,
		"authorSessionId": s.ID,
	}
	sub.attach(doc)

	rec.ID, err = svc.store.Append(ctx, common.Messages, doc)
	if err != nil {
		return
	}
	rec.Warnings = sub.warnings
	return
}

// Vote applies a vote of session s to a post. Votes are private to the
// session and never persisted.
func (svc *Service) Vote(s auth.Session, req VoteRequest) (
	res VoteResponse, err error,
) {
	switch {
	case req.ID == "":
		err = common.ErrInvalidInput("no post ID")
		return
	case req.Vote == votes.None:
		err = common.ErrInvalidVote
		return
	}
	o, err := svc.auth.Overlay(s.ID)
	if err != nil {
		return
	}
	res.ID = req.ID
	res.State = o.Apply(req.ID, req.Vote)
	return
}

// Validate text fields and resolve media. Unprocessable media produces
// warnings and is dropped, unless nothing else would remain.
func prepare(f parser.Fields, raw []byte) (sub submission, err error) {
	if max := MaxUploadSize(); len(raw) > max {
		err = common.ErrTooLong("image")
		return
	}
	sub.fields, err = parser.Parse(f, len(raw) != 0)
	if err != nil {
		return
	}

	if len(raw) != 0 {
		var buf []byte
		buf, err = imager.Compress(raw)
		if err != nil {
			if sub.fields.Content == "" && sub.fields.VideoURL == "" {
				return
			}
			sub.warnings = append(sub.warnings, err.Error())
			err = nil
		} else {
			sub.image = imager.DataURL(buf)
		}
	}

	if v := sub.fields.VideoURL; v != "" {
		if _, ok := imager.ResolveVideo(v); !ok {
			sub.warnings = append(sub.warnings,
				"video unprocessable: unsupported URL")
		}
	}
	return
}

func (sub submission) attach(doc map[string]interface{}) {
	if sub.image != "" {
		doc["imageData"] = sub.image
	}
	if sub.fields.VideoURL != "" {
		doc["videoUrl"] = sub.fields.VideoURL
	}
}

// Replies may only target posts visible in the board's thread tree
func (svc *Service) checkParent(ctx context.Context, board, id string) error {
	ctx, cancel := context.WithTimeout(ctx, parentLookupTimeout)
	defer cancel()

	u, err := svc.feeds.Snapshot(ctx, feeds.BoardKey(board))
	if err != nil {
		return err
	}
	if threads.Find(u.Threads, id) == nil {
		return common.ErrInvalidInput("parent post not found")
	}
	return nil
}

// MaxUploadSize returns the maximum size of an uploaded image in bytes
func MaxUploadSize() int {
	mb := uint(10)
	if conf := config.Get(); conf != nil && conf.MaxUploadSize != 0 {
		mb = conf.MaxUploadSize
	}
	return int(mb) << 20
}
