package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/identity"
	. "github.com/blindspot/blindspot/test"
	"github.com/blindspot/blindspot/votes"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	config.PasscodeCost = bcrypt.MinCost
	conf := config.Defaults
	conf.Passcode = "letmein"
	if err := config.Set(conf); err != nil {
		panic(err)
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	s, err := NewRedisStore("redis://" + m.Addr())
	if err != nil {
		t.Fatal(err)
	}
	return s, m
}

// Runs a test against both session store implementations
func forEachStore(t *testing.T, fn func(t *testing.T, s SessionStore)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		s, _ := newRedisStore(t)
		defer s.Close()
		fn(t, s)
	})
}

func TestCreate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s SessionStore) {
		p := NewProvider(s)
		ctx := context.Background()

		token, sess, err := p.Create(ctx, "letmein")
		if err != nil {
			t.Fatal(err)
		}
		if token == "" || sess.ID == "" {
			t.Fatal("session not issued")
		}
		AssertDeepEquals(t, sess.Tripcode, identity.Derive(sess.ID))

		res, err := p.Lookup(ctx, token)
		if err != nil {
			t.Fatal(err)
		}
		AssertDeepEquals(t, res.ID, sess.ID)
		AssertDeepEquals(t, res.Tripcode, sess.Tripcode)
		if !res.Expires.Equal(sess.Expires) {
			LogUnexpected(t, sess.Expires, res.Expires)
		}
	})
}

func TestCreateInvalidPasscode(t *testing.T) {
	t.Parallel()

	p := NewProvider(NewMemoryStore())
	for _, pass := range [...]string{"", "wrong", "LETMEIN", GenString(200)} {
		_, _, err := p.Create(context.Background(), pass)
		if err != common.ErrInvalidPasscode {
			UnexpectedError(t, err)
		}
	}
}

func TestDistinctSessions(t *testing.T) {
	t.Parallel()

	p := NewProvider(NewMemoryStore())
	ctx := context.Background()
	t1, a, err := p.Create(ctx, "letmein")
	if err != nil {
		t.Fatal(err)
	}
	t2, b, err := p.Create(ctx, "letmein")
	if err != nil {
		t.Fatal(err)
	}
	if t1 == t2 || a.ID == b.ID {
		t.Fatal("sessions not distinct")
	}
}

func TestLookupMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s SessionStore) {
		p := NewProvider(s)
		for _, token := range [...]string{"", "nope"} {
			_, err := p.Lookup(context.Background(), token)
			if err != common.ErrNoSession {
				UnexpectedError(t, err)
			}
		}
	})
}

func TestEnd(t *testing.T) {
	forEachStore(t, func(t *testing.T, s SessionStore) {
		p := NewProvider(s)
		ctx := context.Background()

		token, sess, err := p.Create(ctx, "letmein")
		if err != nil {
			t.Fatal(err)
		}
		o, err := p.Overlay(sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		o.Apply("post", votes.Up)

		ended := make(chan Session, 1)
		p.OnEnd(func(s Session) {
			ended <- s
		})

		if err := p.End(ctx, token); err != nil {
			t.Fatal(err)
		}
		AssertDeepEquals(t, (<-ended).ID, sess.ID)

		_, err = p.Lookup(ctx, token)
		if err != common.ErrNoSession {
			UnexpectedError(t, err)
		}

		// Vote state does not outlive the session
		if _, err := p.Overlay(sess.ID); err != common.ErrNoSession {
			UnexpectedError(t, err)
		}
		AssertDeepEquals(t, p.LiveCount(), 0)

		// Ending twice is an error
		if err := p.End(ctx, token); err != common.ErrNoSession {
			UnexpectedError(t, err)
		}
	})
}

func TestOverlayPerSession(t *testing.T) {
	t.Parallel()

	p := NewProvider(NewMemoryStore())
	ctx := context.Background()
	_, a, err := p.Create(ctx, "letmein")
	if err != nil {
		t.Fatal(err)
	}
	_, b, err := p.Create(ctx, "letmein")
	if err != nil {
		t.Fatal(err)
	}

	oa, err := p.Overlay(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	oa.Apply("post", votes.Down)
	oa, _ = p.Overlay(a.ID)
	AssertDeepEquals(t, oa.Get("post").Vote, votes.Down)
	ob, err := p.Overlay(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	AssertDeepEquals(t, ob.Get("post"), votes.Default())

	// Unknown sessions get no overlay
	if _, err := p.Overlay("nope"); err != common.ErrNoSession {
		UnexpectedError(t, err)
	}
	AssertDeepEquals(t, p.LiveCount(), 2)
}

func TestExpiryEndsSession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s SessionStore) {
		p := NewProvider(s)
		ctx := context.Background()

		sess := Session{
			ID:       "x",
			Tripcode: identity.Derive("x"),
			Expires:  time.Now().Add(200 * time.Millisecond),
		}
		if err := s.Save(ctx, "t", sess); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Lookup(ctx, "t"); err != nil {
			t.Fatal(err)
		}
		o, err := p.Overlay(sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		o.Apply("post", votes.Up)

		ended := make(chan Session, 1)
		p.OnEnd(func(s Session) {
			ended <- s
		})

		select {
		case s := <-ended:
			AssertDeepEquals(t, s.ID, sess.ID)
		case <-time.After(5 * time.Second):
			t.Fatal("expired session not ended")
		}
		if _, err := p.Overlay(sess.ID); err != common.ErrNoSession {
			UnexpectedError(t, err)
		}
		AssertDeepEquals(t, p.LiveCount(), 0)
		if _, err := p.Lookup(ctx, "t"); err != common.ErrNoSession {
			UnexpectedError(t, err)
		}

		// Listeners fire once
		select {
		case <-ended:
			t.Fatal("session ended twice")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestLookupExpiredSession(t *testing.T) {
	t.Parallel()

	// Redis keeps the key, if its TTL outlives the session
	s, m := newRedisStore(t)
	defer s.Close()
	p := NewProvider(s)
	ctx := context.Background()

	err := s.Save(ctx, "t", Session{
		ID:      "x",
		Expires: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Lookup(ctx, "t"); err != common.ErrNoSession {
		UnexpectedError(t, err)
	}
	if m.Exists("session:t") {
		t.Fatal("expired session not deleted")
	}
	AssertDeepEquals(t, p.LiveCount(), 0)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	err := s.Save(ctx, "t", Session{
		ID:      "x",
		Expires: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "t"); err != common.ErrNoSession {
		UnexpectedError(t, err)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	t.Parallel()

	s, m := newRedisStore(t)
	defer s.Close()
	ctx := context.Background()

	err := s.Save(ctx, "t", Session{
		ID:      "x",
		Expires: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Exists("session:t") {
		t.Fatal("key not prefixed")
	}

	m.FastForward(2 * time.Hour)
	if _, err := s.Load(ctx, "t"); err != common.ErrNoSession {
		UnexpectedError(t, err)
	}
}
