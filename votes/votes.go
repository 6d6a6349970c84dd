// Package votes keeps the ephemeral per-session vote decoration of posts.
// Votes are never persisted and never touch the stored records.
package votes

import (
	"errors"
	"sync"
)

// DefaultScore is the score of a post the session has not voted on
const DefaultScore = 1

// Vote is the direction of a session's vote on a post
type Vote int8

const (
	None Vote = iota
	Up
	Down
)

// ErrInvalidVote is returned, when parsing an unknown vote direction
var ErrInvalidVote = errors.New("invalid vote direction")

func (v Vote) String() string {
	switch v {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

// Parse a vote direction from its name
func Parse(s string) (Vote, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "none", "":
		return None, nil
	default:
		return None, ErrInvalidVote
	}
}

// MarshalText implements encoding.TextMarshaler
func (v Vote) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *Vote) UnmarshalText(buf []byte) (err error) {
	*v, err = Parse(string(buf))
	return
}

// State is the vote decoration of a single post
type State struct {
	Vote  Vote `json:"vote"`
	Score int  `json:"score"`
}

// Default returns the state of a post without any vote
func Default() State {
	return State{Score: DefaultScore}
}

// Overlay maps post IDs to the vote state of one session. Safe for concurrent
// use, as a session can be served by multiple connections.
type Overlay struct {
	mu     sync.Mutex
	states map[string]State
}

// New creates an empty overlay
func New() *Overlay {
	return &Overlay{
		states: make(map[string]State),
	}
}

// Get returns the vote state of a post. Posts not yet observed and nil
// overlays have the default state.
func (o *Overlay) Get(id string) State {
	if o == nil {
		return Default()
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.states[id]
	if !ok {
		return Default()
	}
	return s
}

// Apply a vote in direction dir to a post and return the new state.
// Repeating the current vote retracts it. Voting in the opposite direction
// replaces it.
func (o *Overlay) Apply(id string, dir Vote) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.states[id]
	if !ok {
		s = Default()
	}

	var step int
	switch dir {
	case Up:
		step = 1
	case Down:
		step = -1
	default:
		return s
	}

	switch s.Vote {
	case dir:
		s.Vote = None
		s.Score -= step
	case None:
		s.Vote = dir
		s.Score += step
	default:
		s.Vote = dir
		s.Score += 2 * step
	}
	o.states[id] = s
	return s
}

// Len returns the number of posts with recorded state
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.states)
}

// Reset discards all state
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = make(map[string]State)
}
