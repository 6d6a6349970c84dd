package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blindspot/blindspot/auth"
	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/db"
	"github.com/blindspot/blindspot/feeds"
	"github.com/blindspot/blindspot/records"
	. "github.com/blindspot/blindspot/test"
	"github.com/blindspot/blindspot/websockets"
	"github.com/dimfeld/httptreemux"
	"golang.org/x/crypto/bcrypt"
)

const passcode = "letmein"

func init() {
	config.PasscodeCost = bcrypt.MinCost
	conf := config.Defaults
	conf.Passcode = passcode
	if err := config.Set(conf); err != nil {
		panic(err)
	}
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := db.NewMemory()
	t.Cleanup(func() {
		store.Close()
	})
	return createRouter(websockets.NewService(
		store,
		feeds.New(store, records.New(config.GetBoards())),
		auth.NewProvider(auth.NewMemoryStore()),
	))
}

func newPair(method, url string) (*httptest.ResponseRecorder, *http.Request) {
	return httptest.NewRecorder(), httptest.NewRequest(method, url, nil)
}

func assertCode(t *testing.T, rec *httptest.ResponseRecorder, std int) {
	t.Helper()
	if rec.Code != std {
		t.Errorf("unexpected status code: %d : %d", std, rec.Code)
		t.Logf("body: %s", rec.Body.String())
	}
}

func assertBody(t *testing.T, rec *httptest.ResponseRecorder, body string) {
	t.Helper()
	if s := rec.Body.String(); s != body {
		LogUnexpected(t, body, s)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("%s: %s", err, rec.Body.String())
	}
}

// Create a session and return its cookie
func login(t *testing.T, r http.Handler) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/session",
		strings.NewReader(`{"passcode":"`+passcode+`"}`))
	r.ServeHTTP(rec, req)
	assertCode(t, rec, 200)

	var res sessionResponse
	decodeBody(t, rec, &res)
	if !strings.HasPrefix(res.Tripcode, "!") || len(res.Tripcode) != 5 {
		t.Fatalf("invalid tripcode: %s", res.Tripcode)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

// Submit a multipart form
func postForm(t *testing.T, r http.Handler, cookie *http.Cookie, url string,
	fields map[string]string, image []byte,
) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		fw, err := w.CreateFormFile("image", "image.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(image)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	r.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, r http.Handler, cookie *http.Cookie, url string,
) *httptest.ResponseRecorder {
	t.Helper()
	rec, req := newPair("GET", url)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestPanicHandler(t *testing.T) {
	t.Parallel()

	r := httptreemux.New()
	h := wrapHandler(func(_ http.ResponseWriter, _ *http.Request) {
		panic(errors.New("foo"))
	})
	r.GET("/panic", h)
	r.PanicHandler = textErrorPage
	rec, req := newPair("GET", "/panic")
	r.ServeHTTP(rec, req)

	assertCode(t, rec, 500)
	assertBody(t, rec, "500 foo")
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	rec := get(t, newRouter(t), nil, "/nope")
	assertCode(t, rec, 404)
	assertBody(t, rec, "404 Not found")
}

func TestServeConfigs(t *testing.T) {
	t.Parallel()
	r := newRouter(t)

	rec := get(t, r, nil, "/json/config")
	assertCode(t, rec, 200)
	buf, hash := config.GetClient()
	assertBody(t, rec, string(buf))
	if rec.Header().Get("ETag") != hash {
		t.Fatal("no etag")
	}
	if strings.Contains(rec.Body.String(), passcode) {
		t.Fatal("passcode leaked")
	}

	rec, req := newPair("GET", "/json/config")
	req.Header.Set("If-None-Match", hash)
	r.ServeHTTP(rec, req)
	assertCode(t, rec, 304)
}

func TestServeBoardList(t *testing.T) {
	t.Parallel()

	rec := get(t, newRouter(t), nil, "/json/boards")
	assertCode(t, rec, 200)
	var boards []string
	decodeBody(t, rec, &boards)
	AssertDeepEquals(t, boards, common.DefaultBoards)
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	r := newRouter(t)

	cases := [...]struct {
		name, body string
		code       int
	}{
		{"wrong passcode", `{"passcode":"nope"}`, 403},
		{"empty passcode", `{"passcode":""}`, 403},
		{"malformed", `{`, 400},
	}
	for i := range cases {
		c := cases[i]
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/session",
				strings.NewReader(c.body))
			r.ServeHTTP(rec, req)
			assertCode(t, rec, c.code)
			if len(rec.Result().Cookies()) != 0 {
				t.Fatal("cookie set")
			}
		})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		login(t, r)
	})
}

func TestRequiresSession(t *testing.T) {
	t.Parallel()
	r := newRouter(t)

	for _, u := range [...]string{"/json/boards/Random", "/json/chat"} {
		assertCode(t, get(t, r, nil, u), 403)
	}
	rec := postForm(t, r, nil, "/json/boards/Random",
		map[string]string{"content": "a"}, nil)
	assertCode(t, rec, 403)
}

func TestUnknownBoard(t *testing.T) {
	t.Parallel()
	r := newRouter(t)
	cookie := login(t, r)

	assertCode(t, get(t, r, cookie, "/json/boards/nope"), 404)
	rec := postForm(t, r, cookie, "/json/boards/nope",
		map[string]string{"content": "a"}, nil)
	assertCode(t, rec, 404)
}

func TestBoardFlow(t *testing.T) {
	t.Parallel()
	r := newRouter(t)
	cookie := login(t, r)

	rec := get(t, r, cookie, "/json/boards/Random")
	assertCode(t, rec, 200)
	var board boardResponse
	decodeBody(t, rec, &board)
	AssertDeepEquals(t, len(board.Threads), 0)

	rec = postForm(t, r, cookie, "/json/boards/Random", map[string]string{
		"title":   "hello",
		"content": "world",
	}, nil)
	assertCode(t, rec, 200)
	var root websockets.Receipt
	decodeBody(t, rec, &root)

	rec = postForm(t, r, cookie, "/json/boards/Random", map[string]string{
		"content":  "reply",
		"parentId": root.ID,
		"videoUrl": "https://example.com/page",
	}, nil)
	assertCode(t, rec, 200)
	var reply websockets.Receipt
	decodeBody(t, rec, &reply)
	AssertDeepEquals(t, len(reply.Warnings), 1)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/json/votes/"+root.ID,
		strings.NewReader(`{"vote":"up"}`))
	req.AddCookie(cookie)
	r.ServeHTTP(rec, req)
	assertCode(t, rec, 200)
	assertBody(t, rec, `{"id":"`+root.ID+`","vote":"up","score":2}`)

	rec = get(t, r, cookie, "/json/boards/Random")
	assertCode(t, rec, 200)
	board = boardResponse{}
	decodeBody(t, rec, &board)
	if len(board.Threads) != 1 {
		t.Fatalf("unexpected thread count: %d", len(board.Threads))
	}
	th := board.Threads[0]
	AssertDeepEquals(t, th.Title, "hello")
	AssertDeepEquals(t, th.TotalReplies, 1)
	AssertDeepEquals(t, th.Vote.Score, 2)
	AssertDeepEquals(t, th.Replies[0].ID, reply.ID)
	AssertDeepEquals(t, th.Replies[0].Title, common.DefaultTitle)

	// Votes are private to the session
	other := login(t, r)
	rec = get(t, r, other, "/json/boards/Random")
	board = boardResponse{}
	decodeBody(t, rec, &board)
	AssertDeepEquals(t, board.Threads[0].Vote.Score, 1)
}

func TestInvalidVote(t *testing.T) {
	t.Parallel()
	r := newRouter(t)
	cookie := login(t, r)

	for _, body := range [...]string{`{"vote":"sideways"}`, `{"vote":"none"}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/json/votes/a",
			strings.NewReader(body))
		req.AddCookie(cookie)
		r.ServeHTTP(rec, req)
		assertCode(t, rec, 400)
	}
}

func TestChatFlow(t *testing.T) {
	t.Parallel()
	r := newRouter(t)
	cookie := login(t, r)

	for _, content := range [...]string{"first", "second"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/json/chat",
			strings.NewReader(url.Values{"content": {content}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		r.ServeHTTP(rec, req)
		assertCode(t, rec, 200)
	}

	rec := postForm(t, r, cookie, "/json/chat", nil, []byte("not an image"))
	assertCode(t, rec, 400)

	rec = get(t, r, cookie, "/json/chat")
	assertCode(t, rec, 200)
	var chat chatResponse
	decodeBody(t, rec, &chat)
	if len(chat.Messages) != 2 {
		t.Fatalf("unexpected message count: %d", len(chat.Messages))
	}
	AssertDeepEquals(t, chat.Messages[0].Content, "first")
	AssertDeepEquals(t, chat.Messages[1].Content, "second")
}

func TestEndSession(t *testing.T) {
	t.Parallel()
	r := newRouter(t)
	cookie := login(t, r)

	rec, req := newPair("DELETE", "/api/session")
	req.AddCookie(cookie)
	r.ServeHTTP(rec, req)
	assertCode(t, rec, 204)

	assertCode(t, get(t, r, cookie, "/json/chat"), 403)

	rec, req = newPair("DELETE", "/api/session")
	req.AddCookie(cookie)
	r.ServeHTTP(rec, req)
	assertCode(t, rec, 403)
}

// Modifies global server configuration. Not parallel.
func TestOpenStoreAndExport(t *testing.T) {
	dir := t.TempDir()
	old := config.Server.Database
	defer func() {
		config.Server.Database = old
	}()

	config.Server.Database.Driver = "nope"
	if _, err := openStore(); err == nil {
		t.Fatal("expected error")
	}

	config.Server.Database.Driver = config.DriverBolt
	config.Server.Database.URL = filepath.Join(dir, "blindspot.db")
	store, err := openStore()
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Append(context.Background(), common.Posts, db.Document{
		"board":   "Random",
		"content": "archived",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "export.json.xz")
	if err := exportArchive(path); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	a, err := db.ReadArchive(f)
	if err != nil {
		t.Fatal(err)
	}
	AssertDeepEquals(t, len(a.Posts), 1)
	AssertDeepEquals(t, a.Posts[0]["content"], "archived")
	AssertDeepEquals(t, len(a.Messages), 0)
}
