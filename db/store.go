// Package db stores posts and chat messages and notifies subscribers of
// changes with complete ordered snapshots
package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/google/uuid"
)

// Document is a raw stored record. Stored documents always carry the "id"
// and "timestamp" fields assigned on append.
type Document map[string]interface{}

// Query selects the documents of a subscription
type Query struct {
	Collection string

	// Only applies to the posts collection. Empty matches all boards.
	Board string

	// Order newest first
	Descending bool
}

// Snapshot is the complete current result set of a subscription. A snapshot
// with Err set is the last one sent.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Store persists documents and streams query snapshots
type Store interface {
	// Append a document to a collection. Returns the assigned ID.
	Append(ctx context.Context, collection string, doc Document) (string, error)

	// Subscribe to a query. The first snapshot is available immediately.
	// A new snapshot is sent after every change to the collection. The
	// channel is closed, when ctx is cancelled or after a failure snapshot.
	Subscribe(ctx context.Context, q Query) (<-chan Snapshot, error)

	// Dump reads all documents of a collection in ascending order
	Dump(ctx context.Context, collection string) ([]Document, error)

	Close() error
}

// Storage engine of a store
type backend interface {
	insert(ctx context.Context, collection string, doc Document) error
	query(ctx context.Context, q Query) ([]Document, error)
	close() error
}

// Generic store implementation on top of a storage engine with in-process
// change notification
type store struct {
	backend
	hub hub

	clockMu sync.Mutex
	last    time.Time
}

func newStore(b backend) *store {
	return &store{
		backend: b,
		hub:     newHub(),
	}
}

// Returns a strictly increasing server timestamp
func (s *store) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *store) Append(ctx context.Context, collection string, doc Document) (
	id string, err error,
) {
	if !IsCollection(collection) {
		return "", common.ErrInvalidInput("unknown collection: " + collection)
	}

	d := make(Document, len(doc)+2)
	for k, v := range doc {
		d[k] = v
	}
	id = uuid.NewString()
	d["id"] = id
	d["timestamp"] = s.now()

	err = s.insert(ctx, collection, d)
	if err != nil {
		return "", common.ErrWriteFailed(err)
	}
	board, _ := d["board"].(string)
	s.hub.notify(collection, board)
	return
}

func (s *store) Subscribe(ctx context.Context, q Query) (
	<-chan Snapshot, error,
) {
	if !IsCollection(q.Collection) {
		return nil, common.ErrSubscriptionFailed(
			common.ErrInvalidInput("unknown collection: " + q.Collection))
	}

	// Register before the first read, so no change can be missed
	sub := s.hub.subscribe(q)
	docs, err := s.query(ctx, q)
	if err != nil {
		s.hub.unsubscribe(sub)
		return nil, common.ErrSubscriptionFailed(err)
	}

	ch := make(chan Snapshot, 1)
	ch <- Snapshot{Docs: docs}

	go func() {
		defer close(ch)
		defer s.hub.unsubscribe(sub)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.dirty:
				var snap Snapshot
				snap.Docs, snap.Err = s.query(ctx, q)
				if snap.Err != nil {
					if ctx.Err() != nil {
						return
					}
					snap = Snapshot{Err: common.ErrSubscriptionFailed(snap.Err)}
				}
				select {
				case ch <- snap:
				case <-ctx.Done():
					return
				}
				if snap.Err != nil {
					return
				}
			}
		}
	}()

	return ch, nil
}

func (s *store) Dump(ctx context.Context, collection string) (
	[]Document, error,
) {
	return s.query(ctx, Query{Collection: collection})
}

func (s *store) Close() error {
	return s.close()
}

// IsCollection returns, if s is the name of a known collection
func IsCollection(s string) bool {
	return s == common.Posts || s == common.Messages
}

// Returns, if a document matches the board filter of a query
func matchesBoard(q Query, doc Document) bool {
	if q.Board == "" || q.Collection != common.Posts {
		return true
	}
	b, _ := doc["board"].(string)
	return b == q.Board
}

// Sort documents by timestamp, keeping insertion order on ties. Descending
// order is the exact reverse of ascending.
func sortDocs(docs []Document, descending bool) {
	var (
		times = make([]time.Time, len(docs))
		idx   = make([]int, len(docs))
	)
	for i := range docs {
		times[i] = docTime(docs[i])
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return times[idx[i]].Before(times[idx[j]])
	})

	sorted := make([]Document, len(docs))
	for i, j := range idx {
		if descending {
			sorted[len(docs)-1-i] = docs[j]
		} else {
			sorted[i] = docs[j]
		}
	}
	copy(docs, sorted)
}

// Extract the timestamp of a stored document
func docTime(doc Document) time.Time {
	switch t := doc["timestamp"].(type) {
	case time.Time:
		return t
	case string:
		parsed, _ := time.Parse(time.RFC3339Nano, t)
		return parsed
	default:
		return time.Time{}
	}
}
