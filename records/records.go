// Package records converts raw stored documents into typed posts and chat
// messages. Conversion never fails: malformed fields fall back to defaults.
package records

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/db"
	"github.com/blindspot/blindspot/identity"
)

// Normalizer converts raw documents to posts and messages
type Normalizer struct {
	boards []string
}

// New creates a Normalizer for the passed board list. The first board is
// assigned to posts with a missing or unknown board.
func New(boards []string) Normalizer {
	if len(boards) == 0 {
		boards = common.DefaultBoards
	}
	return Normalizer{
		boards: boards,
	}
}

// Post converts a raw document to a board post
func (n Normalizer) Post(doc db.Document) common.Post {
	return common.Post{
		ID:              str(doc, "id"),
		Board:           n.board(doc["board"]),
		Title:           str(doc, "title"),
		Content:         str(doc, "content"),
		AuthorTripcode:  tripcode(doc),
		AuthorSessionID: str(doc, "authorSessionId", "authorUid"),
		ImageData:       image(doc),
		VideoURL:        str(doc, "videoUrl"),
		Timestamp:       Timestamp(doc["timestamp"]),
		ParentID:        str(doc, "parentId"),
	}
}

// Message converts a raw document to a chat message
func (n Normalizer) Message(doc db.Document) common.Message {
	return common.Message{
		ID:              str(doc, "id"),
		Content:         str(doc, "content"),
		AuthorTripcode:  tripcode(doc),
		AuthorSessionID: str(doc, "authorSessionId", "authorUid"),
		ImageData:       image(doc),
		VideoURL:        str(doc, "videoUrl"),
		Timestamp:       Timestamp(doc["timestamp"]),
	}
}

// Posts converts a document slice in order
func (n Normalizer) Posts(docs []db.Document) []common.Post {
	posts := make([]common.Post, len(docs))
	for i, d := range docs {
		posts[i] = n.Post(d)
	}
	return posts
}

// Messages converts a document slice in order
func (n Normalizer) Messages(docs []db.Document) []common.Message {
	msgs := make([]common.Message, len(docs))
	for i, d := range docs {
		msgs[i] = n.Message(d)
	}
	return msgs
}

func (n Normalizer) board(v interface{}) string {
	if s, ok := v.(string); ok {
		for _, b := range n.boards {
			if b == s {
				return s
			}
		}
	}
	return n.boards[0]
}

// Tripcodes not of the derived tag shape are dropped
func tripcode(doc db.Document) string {
	s := str(doc, "authorTripcode")
	if !identity.Valid(s) {
		return ""
	}
	return s
}

// Returns the first string value found under keys
func str(doc db.Document, keys ...string) string {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok {
			return s
		}
	}
	return ""
}

// Timestamp coerces a stored timestamp value. Accepts time.Time, RFC 3339
// strings, Unix milliseconds and {seconds, nanoseconds} objects. Returns the
// zero time on failure.
func Timestamp(v interface{}) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v.UTC()
	case *time.Time:
		if v != nil {
			return v.UTC()
		}
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t.UTC()
		}
	case int64:
		return time.UnixMilli(v).UTC()
	case int:
		return time.UnixMilli(int64(v)).UTC()
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return time.UnixMilli(int64(v)).UTC()
		}
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		if ms, err := v.Float64(); err == nil {
			return Timestamp(ms)
		}
	case map[string]interface{}:
		sec, ok := number(v, "seconds", "_seconds")
		if !ok {
			break
		}
		nsec, _ := number(v, "nanoseconds", "_nanoseconds")
		return time.Unix(int64(sec), int64(nsec)).UTC()
	}
	return time.Time{}
}

func number(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case int:
			return float64(v), true
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Extract image data from either the current or legacy field
func image(doc db.Document) []byte {
	for _, k := range [...]string{"imageData", "imageUrl"} {
		if buf := imageBytes(doc[k]); buf != nil {
			return buf
		}
	}
	return nil
}

func imageBytes(v interface{}) []byte {
	switch v := v.(type) {
	case []byte:
		if len(v) != 0 {
			return v
		}
	case string:
		if v == "" {
			return nil
		}
		if strings.HasPrefix(v, "data:") {
			i := strings.Index(v, ";base64,")
			if i == -1 {
				return nil
			}
			v = v[i+len(";base64,"):]
		}
		buf, err := base64.StdEncoding.DecodeString(v)
		if err != nil || len(buf) == 0 {
			return nil
		}
		return buf
	}
	return nil
}

// DefaultBoard returns the board assigned to posts with a missing or unknown
// board
func (n Normalizer) DefaultBoard() string {
	return n.boards[0]
}

// Boards returns the recognized boards in display order
func (n Normalizer) Boards() []string {
	return n.boards
}
