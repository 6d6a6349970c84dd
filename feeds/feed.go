package feeds

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/db"
	"github.com/go-playground/log"
)

var errSubscriptionClosed = errors.New("subscription closed by store")

// Client with the generation it subscribed with
type member struct {
	client Client
	gen    uint64
}

// Feed synchronizes the state of one collection query to all of its clients
type Feed struct {
	key Key

	// Add a client
	add chan member

	// Remove client
	remove chan Client

	// Subscribed clients and their generations
	clients map[Client]uint64

	// Last update sent. Memoized for newly added clients.
	last    Update
	hasLast bool

	// Set, after the subscription failed. Failed feeds only serve their
	// remaining clients and are never reused.
	failed atomic.Bool
}

// Subscribe to the store and start the feed's main loop
func (m *Manager) startFeed(key Key) (f *Feed, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	snapshots, err := m.store.Subscribe(ctx, m.query(key))
	if err != nil {
		cancel()
		return
	}

	f = &Feed{
		key:     key,
		add:     make(chan member),
		remove:  make(chan Client),
		clients: make(map[Client]uint64, 8),
	}
	go f.run(m, snapshots, cancel)
	return
}

func (f *Feed) run(m *Manager, snapshots <-chan db.Snapshot,
	cancel context.CancelFunc,
) {
	defer cancel()

	for {
		select {
		case mem := <-f.add:
			f.clients[mem.client] = mem.gen
			if f.hasLast {
				u := f.last
				u.Generation = mem.gen
				mem.client.Receive(u)
			}

		// Remove client and close feed, if no clients left
		case c := <-f.remove:
			if f.removeClient(c) {
				return
			}

		case s, ok := <-snapshots:
			if !ok {
				s = db.Snapshot{
					Err: common.ErrSubscriptionFailed(errSubscriptionClosed),
				}
			}
			u := m.build(f.key, s)
			f.last = u
			f.hasLast = true
			f.sendToAll(u)

			if u.Err != nil {
				log.Errorf("feed %s/%s: %s", f.key.Collection, f.key.Board,
					u.Err)
				f.failed.Store(true)
				cancel()
				snapshots = nil
			}
		}
	}
}

// If returned true, closing feed and parent listener loop should exit
func (f *Feed) removeClient(c Client) bool {
	delete(f.clients, c)

	if len(f.clients) != 0 {
		f.remove <- nil
		return false
	}

	f.remove <- c
	return true
}

// Send an update to all connected clients
func (f *Feed) sendToAll(u Update) {
	for c, gen := range f.clients {
		u.Generation = gen
		c.Receive(u)
	}
}
