package records

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/db"
	. "github.com/blindspot/blindspot/test"
)

var boards = []string{"Random", "Confessions"}

func TestPost(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	cases := [...]struct {
		name string
		in   db.Document
		out  common.Post
	}{
		{
			name: "empty",
			in:   db.Document{},
			out:  common.Post{Board: "Random"},
		},
		{
			name: "complete",
			in: db.Document{
				"id":              "a",
				"board":           "Confessions",
				"title":           "title",
				"content":         "content",
				"authorTripcode":  "!5O68",
				"authorSessionId": "s",
				"imageData":       []byte{1, 2},
				"videoUrl":        "https://youtu.be/x",
				"timestamp":       ts,
				"parentId":        "p",
			},
			out: common.Post{
				ID:              "a",
				Board:           "Confessions",
				Title:           "title",
				Content:         "content",
				AuthorTripcode:  "!5O68",
				AuthorSessionID: "s",
				ImageData:       []byte{1, 2},
				VideoURL:        "https://youtu.be/x",
				Timestamp:       ts,
				ParentID:        "p",
			},
		},
		{
			name: "unknown board",
			in:   db.Document{"board": "Nope"},
			out:  common.Post{Board: "Random"},
		},
		{
			name: "wrong field types",
			in: db.Document{
				"board":     1,
				"title":     false,
				"content":   []string{"x"},
				"parentId":  nil,
				"timestamp": "yesterday",
				"imageData": 42,
			},
			out: common.Post{Board: "Random"},
		},
		{
			name: "legacy fields",
			in: db.Document{
				"authorUid": "legacy",
				"imageUrl":  "data:image/jpeg;base64,AQI=",
			},
			out: common.Post{
				Board:           "Random",
				AuthorSessionID: "legacy",
				ImageData:       []byte{1, 2},
			},
		},
		{
			name: "malformed tripcode",
			in: db.Document{
				"authorTripcode": "<b>admin</b>",
			},
			out: common.Post{Board: "Random"},
		},
		{
			name: "current fields take precedence",
			in: db.Document{
				"authorSessionId": "new",
				"authorUid":       "old",
			},
			out: common.Post{
				Board:           "Random",
				AuthorSessionID: "new",
			},
		},
	}

	n := New(boards)
	for i := range cases {
		c := cases[i]
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			AssertDeepEquals(t, n.Post(c.in), c.out)
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	n := New(nil)
	m := n.Message(db.Document{
		"id":        "m",
		"content":   "hi",
		"board":     "ignored",
		"parentId":  "ignored",
		"imageData": "AQI=",
		"timestamp": json.Number("1700000000000"),
	})
	AssertDeepEquals(t, m, common.Message{
		ID:        "m",
		Content:   "hi",
		ImageData: []byte{1, 2},
		Timestamp: time.UnixMilli(1700000000000).UTC(),
	})
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	std := time.Date(2025, 2, 3, 4, 5, 6, 7000000, time.UTC)
	ms := std.UnixMilli()
	cases := [...]struct {
		name string
		in   interface{}
		out  time.Time
	}{
		{"nil", nil, time.Time{}},
		{"time", std.In(time.FixedZone("x", 3600)), std},
		{"pointer", &std, std},
		{"RFC 3339", std.Format(time.RFC3339Nano), std},
		{"invalid string", "now", time.Time{}},
		{"int64 ms", ms, std},
		{"int ms", int(ms), std},
		{"float ms", float64(ms), std},
		{"json.Number", json.Number("1738555506007"), std},
		{
			"seconds object",
			map[string]interface{}{
				"seconds":     float64(std.Unix()),
				"nanoseconds": float64(7000000),
			},
			std,
		},
		{
			"underscored seconds object",
			map[string]interface{}{
				"_seconds":     json.Number("1738555506"),
				"_nanoseconds": json.Number("7000000"),
			},
			std,
		},
		{"object without seconds", map[string]interface{}{}, time.Time{}},
		{"bool", true, time.Time{}},
	}

	for i := range cases {
		c := cases[i]
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			AssertDeepEquals(t, Timestamp(c.in), c.out)
		})
	}
}

func TestImageBytes(t *testing.T) {
	t.Parallel()

	cases := [...]struct {
		name string
		in   interface{}
		out  []byte
	}{
		{"nil", nil, nil},
		{"bytes", []byte{3}, []byte{3}},
		{"empty bytes", []byte{}, nil},
		{"base64", "AQI=", []byte{1, 2}},
		{"data URL", "data:image/png;base64,AQI=", []byte{1, 2}},
		{"data URL without base64", "data:text/plain,hello", nil},
		{"invalid base64", "!!!", nil},
		{"empty string", "", nil},
	}

	for i := range cases {
		c := cases[i]
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			AssertDeepEquals(t, imageBytes(c.in), c.out)
		})
	}
}

func TestSlices(t *testing.T) {
	t.Parallel()

	n := New(boards)
	docs := []db.Document{{"id": "a"}, {"id": "b"}}
	posts := n.Posts(docs)
	AssertDeepEquals(t, []string{posts[0].ID, posts[1].ID}, []string{"a", "b"})
	msgs := n.Messages(docs)
	AssertDeepEquals(t, []string{msgs[0].ID, msgs[1].ID}, []string{"a", "b"})
}
