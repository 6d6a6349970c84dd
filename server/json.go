package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/feeds"
	"github.com/blindspot/blindspot/threads"
	"github.com/blindspot/blindspot/votes"
	"github.com/blindspot/blindspot/websockets"
)

type boardResponse struct {
	Board   string          `json:"board"`
	Threads []*threads.View `json:"threads"`
}

type chatResponse struct {
	Messages []feeds.MessageView `json:"messages"`
}

type voteRequest struct {
	Vote votes.Vote `json:"vote"`
}

// Serve public configuration information as JSON
func serveConfigs(w http.ResponseWriter, r *http.Request) {
	buf, hash := config.GetClient()
	writeJSON(w, r, hash, buf)
}

func serveBoardList(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, "", config.GetBoards())
}

// Serve the current thread trees of a board decorated with the client's votes
func (a *api) serveBoard(
	w http.ResponseWriter,
	r *http.Request,
	p map[string]string,
) {
	board := p["board"]
	if !config.IsBoard(board) {
		text404(w, r)
		return
	}
	s, err := a.session(r)
	if err != nil {
		httpError(w, r, err)
		return
	}

	o, err := a.svc.Auth().Overlay(s.ID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	u, err := a.svc.Feeds().Snapshot(r.Context(), feeds.BoardKey(board))
	if err != nil {
		httpError(w, r, err)
		return
	}
	serveJSON(w, r, "", boardResponse{
		Board:   board,
		Threads: threads.Render(u.Threads, threads.DepthLimit(), o, time.Now()),
	})
}

func (a *api) serveChat(w http.ResponseWriter, r *http.Request) {
	if _, err := a.session(r); err != nil {
		httpError(w, r, err)
		return
	}
	u, err := a.svc.Feeds().Snapshot(r.Context(), feeds.ChatKey)
	if err != nil {
		httpError(w, r, err)
		return
	}
	serveJSON(w, r, "", chatResponse{
		Messages: feeds.RenderMessages(u.Messages, time.Now()),
	})
}

// Create a post or reply from a multipart or URL encoded form
func (a *api) createPost(
	w http.ResponseWriter,
	r *http.Request,
	p map[string]string,
) {
	s, err := a.session(r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	img, err := readUpload(w, r)
	if err != nil {
		httpError(w, r, err)
		return
	}

	rec, err := a.svc.CreatePost(r.Context(), s, websockets.PostRequest{
		Board:    p["board"],
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		VideoURL: r.FormValue("videoUrl"),
		ParentID: r.FormValue("parentId"),
		Image:    img,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	serveJSON(w, r, "", rec)
}

func (a *api) createMessage(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	img, err := readUpload(w, r)
	if err != nil {
		httpError(w, r, err)
		return
	}

	rec, err := a.svc.CreateMessage(r.Context(), s, websockets.MessageRequest{
		Content:  r.FormValue("content"),
		VideoURL: r.FormValue("videoUrl"),
		Image:    img,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	serveJSON(w, r, "", rec)
}

func (a *api) vote(
	w http.ResponseWriter,
	r *http.Request,
	p map[string]string,
) {
	s, err := a.session(r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, r, err)
		return
	}

	res, err := a.svc.Vote(s, websockets.VoteRequest{
		ID:   p["id"],
		Vote: req.Vote,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	serveJSON(w, r, "", res)
}

// Parse the request form and read the optional uploaded image
func readUpload(w http.ResponseWriter, r *http.Request) (
	buf []byte, err error,
) {
	max := int64(websockets.MaxUploadSize())
	r.Body = http.MaxBytesReader(w, r.Body, max+1<<20)

	f, _, err := r.FormFile("image")
	switch {
	case err == nil:
	case errors.Is(err, http.ErrMissingFile),
		errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return nil, common.ErrInvalidInput(err.Error())
		}
		return nil, nil
	default:
		return nil, common.ErrInvalidInput(err.Error())
	}
	defer f.Close()

	buf, err = io.ReadAll(io.LimitReader(f, max+1))
	return
}
