package db

import (
	"sync"

	"github.com/blindspot/blindspot/common"
)

// Subscription to changes of a collection. The dirty channel holds at most one
// pending notification, so bursts of changes coalesce into one re-read.
type subscription struct {
	collection string
	board      string // Empty matches all boards
	dirty      chan struct{}
}

// Returns, if a change to board affects the subscription. An empty board
// means the changed board is unknown.
func (s *subscription) affectedBy(board string) bool {
	return s.board == "" || board == "" || s.board == board
}

// Dispatches change notifications to subscriptions
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

func newHub() hub {
	return hub{
		subs: make(map[string]map[*subscription]struct{}),
	}
}

func (h *hub) subscribe(q Query) *subscription {
	s := &subscription{
		collection: q.Collection,
		dirty:      make(chan struct{}, 1),
	}
	if q.Collection == common.Posts {
		s.board = q.Board
	}
	collection := q.Collection

	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.subs[collection]
	if m == nil {
		m = make(map[*subscription]struct{})
		h.subs[collection] = m
	}
	m[s] = struct{}{}
	return s
}

func (h *hub) unsubscribe(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.collection], s)
}

// Mark the subscriptions of a collection affected by a change to board as
// dirty. Never blocks.
func (h *hub) notify(collection, board string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[collection] {
		if !s.affectedBy(board) {
			continue
		}
		select {
		case s.dirty <- struct{}{}:
		default:
		}
	}
}

// Mark all subscriptions as dirty
func (h *hub) notifyAll() {
	h.mu.Lock()
	collections := make([]string, 0, len(h.subs))
	for c := range h.subs {
		collections = append(collections, c)
	}
	h.mu.Unlock()

	for _, c := range collections {
		h.notify(c, "")
	}
}

// Number of active subscriptions
func (h *hub) count() (n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.subs {
		n += len(m)
	}
	return
}
