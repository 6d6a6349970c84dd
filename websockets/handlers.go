// Websocket message handlers central file

package websockets

import (
	"context"
	"encoding/json"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/feeds"
	"github.com/blindspot/blindspot/threads"
)

// Timeout of storing a submitted document
const insertTimeout = 30 * time.Second

type syncRequest struct {
	Board string `json:"board"`
	Chat  bool   `json:"chat"`
}

type syncResponse struct {
	feeds.Key
	Generation uint64 `json:"generation"`
}

type boardUpdate struct {
	Board      string          `json:"board"`
	Generation uint64          `json:"generation"`
	Threads    []*threads.View `json:"threads"`
}

type chatUpdate struct {
	Generation uint64              `json:"generation"`
	Messages   []feeds.MessageView `json:"messages"`
}

type feedError struct {
	feeds.Key
	Generation uint64 `json:"generation"`
	Error      string `json:"error"`
}

// Reply to a post or message insertion. Rejected submissions carry the
// error, so the client can keep its draft.
type insertResponse struct {
	Receipt
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Decode message JSON into the supplied type
func decodeMessage(data []byte, dest interface{}) error {
	return json.Unmarshal(data, dest)
}

// Run the appropriate handler for the websocket message
func (c *Client) runHandler(typ common.MessageType, msg []byte) (err error) {
	data := msg[2:]
	switch typ {
	case common.MessageSynchronise:
		return c.synchronise(data)
	case common.MessageVote:
		return c.vote(data)
	case common.MessageInsertPost:
		return c.insertPost(data)
	case common.MessageInsertMessage:
		return c.insertMessage(data)
	case common.MessageNOOP:
		// No operation message handler. Used as a one way pseudo-ping.
		return nil
	default:
		return errInvalidPayload(msg)
	}
}

// Synchronise the client to a board or the chat stream. A client is synced to
// at most one feed at a time.
func (c *Client) synchronise(data []byte) (err error) {
	var req syncRequest
	err = decodeMessage(data, &req)
	if err != nil {
		return
	}

	var key feeds.Key
	if req.Chat {
		key = feeds.ChatKey
	} else {
		if !config.IsBoard(req.Board) {
			return common.ErrInvalidBoard(req.Board)
		}
		key = feeds.BoardKey(req.Board)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.pending = nil
	c.mu.Unlock()

	err = c.svc.feeds.Sync(c, key, gen)
	if err != nil {
		c.logError(err)
		return c.sendMessage(common.MessageFeedError, feedError{
			Key:        key,
			Generation: gen,
			Error:      err.Error(),
		})
	}
	return c.sendMessage(common.MessageSynchronise, syncResponse{
		Key:        key,
		Generation: gen,
	})
}

func (c *Client) vote(data []byte) (err error) {
	var req VoteRequest
	err = decodeMessage(data, &req)
	if err != nil {
		return
	}
	res, err := c.svc.Vote(c.session, req)
	switch {
	case err == common.ErrNoSession:
		return errSessionEnded
	case err != nil:
		return
	}
	return c.sendMessage(common.MessageVote, res)
}

func (c *Client) insertPost(data []byte) (err error) {
	var req PostRequest
	err = decodeMessage(data, &req)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	rec, err := c.svc.CreatePost(ctx, c.session, req)
	return c.replyInsert(rec, err)
}

func (c *Client) insertMessage(data []byte) (err error) {
	var req MessageRequest
	err = decodeMessage(data, &req)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	rec, err := c.svc.CreateMessage(ctx, c.session, req)
	return c.replyInsert(rec, err)
}

// Rejected and failed submissions are reported to the client without closing
// the connection. Only internal errors are fatal.
func (c *Client) replyInsert(rec Receipt, err error) error {
	res := insertResponse{Receipt: rec}
	if err != nil {
		code := common.StatusCode(err)
		if code == 500 {
			return err
		}
		c.logError(err)
		res.Error = err.Error()
		res.Code = code
	}
	return c.sendMessage(common.MessagePostID, res)
}

// Receive a feed update. Only the latest update of the current generation is
// kept. Never blocks.
func (c *Client) Receive(u feeds.Update) {
	c.mu.Lock()
	if u.Generation != c.gen {
		c.mu.Unlock()
		return
	}
	c.pending = &u
	c.mu.Unlock()

	select {
	case c.updated <- struct{}{}:
	default:
	}
}

// Render and send the pending feed update, if any
func (c *Client) flushUpdate() error {
	c.mu.Lock()
	u := c.pending
	c.pending = nil
	current := u != nil && u.Generation == c.gen
	c.mu.Unlock()
	if !current {
		return nil
	}

	switch {
	case u.Err != nil:
		return c.sendMessage(common.MessageFeedError, feedError{
			Key:        u.Key,
			Generation: u.Generation,
			Error:      u.Err.Error(),
		})
	case u.Key.IsChat():
		return c.sendMessage(common.MessageChatUpdate, chatUpdate{
			Generation: u.Generation,
			Messages:   feeds.RenderMessages(u.Messages, time.Now()),
		})
	default:
		o, err := c.svc.auth.Overlay(c.session.ID)
		if err != nil {
			return errSessionEnded
		}
		return c.sendMessage(common.MessageBoardUpdate, boardUpdate{
			Board:      u.Key.Board,
			Generation: u.Generation,
			Threads: threads.Render(u.Threads, threads.DepthLimit(), o,
				time.Now()),
		})
	}
}
