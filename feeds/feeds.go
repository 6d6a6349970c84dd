// Package feeds manages client synchronization to live collection feeds and
// reassigning feeds to and from clients. Each feed owns one store
// subscription and republishes the complete assembled state on every
// snapshot.
package feeds

import (
	"context"
	"sort"
	"sync"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/db"
	"github.com/blindspot/blindspot/records"
	"github.com/blindspot/blindspot/threads"
)

// Key identifies a live feed
type Key struct {
	Collection string `json:"collection"`

	// Only set for board feeds
	Board string `json:"board,omitempty"`
}

// ChatKey is the key of the chat stream feed
var ChatKey = Key{Collection: common.Messages}

// BoardKey returns the key of a board's post feed
func BoardKey(board string) Key {
	return Key{
		Collection: common.Posts,
		Board:      board,
	}
}

// IsChat returns, if the key refers to the chat stream
func (k Key) IsChat() bool {
	return k.Collection == common.Messages
}

// Update is the complete replacement state of a feed. Exactly one of Threads,
// Messages or Err is meaningful, depending on the key and outcome.
type Update struct {
	Key Key

	// Subscription generation of the receiving client
	Generation uint64

	// Root posts newest first with replies attached. Shared between clients
	// and must not be modified.
	Threads []*threads.Node

	// Chat messages oldest first
	Messages []common.Message

	// Set on subscription failure. The feed sends nothing after this.
	Err error
}

// Client is a receiver of feed updates
type Client interface {
	// Receive an update. Must not block.
	Receive(Update)
}

// Manager contains and manages all active feeds and client<->feed assignment
type Manager struct {
	store db.Store
	norm  records.Normalizer

	mu      sync.Mutex
	feeds   map[Key]*Feed
	clients map[Client]*Feed
}

// New creates a feed manager on top of a store
func New(store db.Store, norm records.Normalizer) *Manager {
	return &Manager{
		store:   store,
		norm:    norm,
		feeds:   make(map[Key]*Feed, 8),
		clients: make(map[Client]*Feed, 64),
	}
}

// Sync removes a client from any previously synced feed and adds it to the
// feed of key, starting one, if needed. The current state of the feed is sent
// to the client immediately, if available. All updates to the client are
// tagged with gen.
func (m *Manager) Sync(c Client, key Key, gen uint64) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unsubscribe before resubscribing
	if old, ok := m.clients[c]; ok {
		delete(m.clients, c)
		m.removeFromFeed(old, c)
	}

	f, ok := m.feeds[key]
	if !ok || f.failed.Load() {
		f, err = m.startFeed(key)
		if err != nil {
			return
		}
		m.feeds[key] = f
	}
	f.add <- member{c, gen}
	m.clients[c] = f
	return
}

// Remove a client from its feed. Closes the feed, if it was the last client.
func (m *Manager) Remove(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.clients[c]; ok {
		delete(m.clients, c)
		m.removeFromFeed(f, c)
	}
}

// Requires lock
func (m *Manager) removeFromFeed(f *Feed, c Client) {
	f.remove <- c

	// If the feed sends a non-nil, it means it closed
	if nil != <-f.remove {
		if m.feeds[f.key] == f {
			delete(m.feeds, f.key)
		}
	}
}

// Snapshot reads the current state of a feed once without keeping a
// subscription open
func (m *Manager) Snapshot(ctx context.Context, key Key) (u Update, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := m.store.Subscribe(ctx, m.query(key))
	if err != nil {
		return
	}
	select {
	case s, ok := <-ch:
		if !ok {
			err = common.ErrSubscriptionFailed(context.Canceled)
			return
		}
		u = m.build(key, s)
		err = u.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	return
}

// Count returns the number of active feeds
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.feeds)
}

// Synced returns the key of the feed a client is synced to, if any
func (m *Manager) Synced(c Client) (key Key, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.clients[c]
	if ok {
		key = f.key
	}
	return
}

// The default board also lists posts with a missing or unknown board, so it
// can not be filtered by the store
func (m *Manager) query(key Key) db.Query {
	if key.IsChat() {
		return db.Query{Collection: common.Messages}
	}
	q := db.Query{
		Collection: common.Posts,
		Descending: true,
	}
	if key.Board != m.norm.DefaultBoard() {
		q.Board = key.Board
	}
	return q
}

// Convert a store snapshot into an update
func (m *Manager) build(key Key, s db.Snapshot) Update {
	u := Update{Key: key}
	if s.Err != nil {
		u.Err = s.Err
		return u
	}

	if key.IsChat() {
		u.Messages = m.norm.Messages(s.Docs)
		sort.SliceStable(u.Messages, func(i, j int) bool {
			return u.Messages[i].Timestamp.Before(u.Messages[j].Timestamp)
		})
		return u
	}

	posts := m.norm.Posts(s.Docs)
	filtered := posts[:0]
	for _, p := range posts {
		if p.Board == key.Board {
			filtered = append(filtered, p)
		}
	}
	u.Threads = threads.Assemble(filtered)
	return u
}
