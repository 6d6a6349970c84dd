package auth

import (
	"context"
	"sync"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/identity"
	"github.com/blindspot/blindspot/votes"
	"github.com/go-playground/log"
	"github.com/google/uuid"
)

// CookieName is the name of the cookie carrying the session token
const CookieName = "session"

// Byte length of session tokens
const tokenLength = 32

// Session is an anonymous authenticated session. The token authenticating a
// session is kept secret from everyone but its holder. The ID is only exposed
// as the input of the public tripcode.
type Session struct {
	ID       string    `json:"id"`
	Tripcode string    `json:"tripcode"`
	Created  time.Time `json:"created"`
	Expires  time.Time `json:"expires"`
}

// SessionStore persists sessions by token
type SessionStore interface {
	Save(ctx context.Context, token string, s Session) error

	// Returns common.ErrNoSession, if no live session exists
	Load(ctx context.Context, token string) (Session, error)

	Delete(ctx context.Context, token string) error
	Close() error
}

// Provider issues, looks up and ends sessions. It also owns the vote overlays
// of live sessions.
type Provider struct {
	store SessionStore

	mu        sync.Mutex
	live      map[string]*liveSession // by session ID
	listeners []func(Session)
}

// Process-local state of a live session
type liveSession struct {
	overlay *votes.Overlay
	expiry  *time.Timer
}

// NewProvider creates a session provider on top of a session store
func NewProvider(store SessionStore) *Provider {
	return &Provider{
		store: store,
		live:  make(map[string]*liveSession),
	}
}

// Create a new session, if passcode matches the configured one. Returns the
// secret session token.
func (p *Provider) Create(ctx context.Context, passcode string) (
	token string, s Session, err error,
) {
	if len(passcode) > common.MaxLenPasscode || !config.CheckPasscode(passcode) {
		err = common.ErrInvalidPasscode
		return
	}

	token, err = RandomID(tokenLength)
	if err != nil {
		return
	}
	conf := config.Get()
	now := time.Now().UTC()
	s = Session{
		ID:      uuid.NewString(),
		Created: now,
		Expires: now.Add(time.Duration(conf.SessionExpiry) * time.Hour * 24),
	}
	if conf.SessionExpiry == 0 {
		s.Expires = now.Add(time.Hour * 24 * 30)
	}
	if conf.TripcodeMode == config.TripcodeSecure {
		s.Tripcode = identity.DeriveSecure(s.ID, conf.Salt)
	} else {
		s.Tripcode = identity.Derive(s.ID)
	}

	err = p.store.Save(ctx, token, s)
	if err != nil {
		token = ""
		s = Session{}
		return
	}
	p.track(s)
	return
}

// Lookup the session of a token. Sessions found expired are ended.
func (p *Provider) Lookup(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, common.ErrNoSession
	}
	s, err := p.store.Load(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if expired(s) {
		if err := p.store.Delete(ctx, token); err != nil {
			return Session{}, err
		}
		p.finish(s)
		return Session{}, common.ErrNoSession
	}
	p.track(s)
	return s, nil
}

// End a session, discard its vote overlay and notify OnEnd listeners
func (p *Provider) End(ctx context.Context, token string) (err error) {
	s, err := p.Lookup(ctx, token)
	if err != nil {
		return
	}
	err = p.store.Delete(ctx, token)
	if err != nil {
		return
	}
	p.finish(s)
	return
}

// OnEnd registers a function to be called with every ended or expired session
func (p *Provider) OnEnd(fn func(Session)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Overlay returns the vote overlay of a live session. Returns
// common.ErrNoSession, if the session has ended or is unknown to this
// process.
func (p *Provider) Overlay(sessionID string) (*votes.Overlay, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ls, ok := p.live[sessionID]
	if !ok {
		return nil, common.ErrNoSession
	}
	return ls.overlay, nil
}

// LiveCount returns the number of live sessions known to this process
func (p *Provider) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Register a session as live and arm its expiry
func (p *Provider) track(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.live[s.ID]; ok {
		return
	}
	ls := &liveSession{
		overlay: votes.New(),
	}
	if !s.Expires.IsZero() {
		ls.expiry = time.AfterFunc(time.Until(s.Expires), func() {
			p.finish(s)
		})
	}
	p.live[s.ID] = ls
}

// Discard the state of a session and notify OnEnd listeners. Returns false,
// if the session was already finished.
func (p *Provider) finish(s Session) bool {
	p.mu.Lock()
	ls, ok := p.live[s.ID]
	if ok {
		delete(p.live, s.ID)
		if ls.expiry != nil {
			ls.expiry.Stop()
		}
	}
	listeners := p.listeners
	p.mu.Unlock()

	if !ok {
		return false
	}
	for _, fn := range listeners {
		fn(s)
	}
	log.Debugf("auth: session ended: %s", s.Tripcode)
	return true
}

func expired(s Session) bool {
	return !s.Expires.IsZero() && !time.Now().Before(s.Expires)
}

// Close the underlying session store
func (p *Provider) Close() error {
	return p.store.Close()
}
