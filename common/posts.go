// Package common contains common shared types, variables and constants used
// throughout the project
package common

import "time"

// Names of the two logical document collections
const (
	Posts    = "posts"
	Messages = "messages"
)

// Post is a board message. Either a thread root or a reply to another post.
// Posts are immutable after creation.
type Post struct {
	ID              string    `json:"id"`
	Board           string    `json:"board"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	AuthorTripcode  string    `json:"authorTripcode"`
	AuthorSessionID string    `json:"authorSessionId"`
	ImageData       []byte    `json:"-"`
	VideoURL        string    `json:"videoUrl,omitempty"`
	Timestamp       time.Time `json:"timestamp"`

	// Empty for root posts
	ParentID string `json:"parentId,omitempty"`
}

// IsRoot returns, if the post starts a thread
func (p Post) IsRoot() bool {
	return p.ParentID == ""
}

// Message is a flat chat stream item
type Message struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	AuthorTripcode  string    `json:"authorTripcode"`
	AuthorSessionID string    `json:"authorSessionId"`
	ImageData       []byte    `json:"-"`
	VideoURL        string    `json:"videoUrl,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Media is the optional attachment data shared by posts and messages, as sent
// to clients
type Media struct {
	Image string `json:"image,omitempty"` // data: URL
	Video *Video `json:"video,omitempty"`
}

// VideoKind is the resolved type of an attached video URL
type VideoKind uint8

const (
	NoVideo VideoKind = iota
	YouTube
	Vimeo
	DirectVideo
)

func (k VideoKind) String() string {
	switch k {
	case YouTube:
		return "youtube"
	case Vimeo:
		return "vimeo"
	case DirectVideo:
		return "direct"
	default:
		return "none"
	}
}

// MarshalText encodes the kind as its name
func (k VideoKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Video is an embeddable video reference
type Video struct {
	Kind VideoKind `json:"kind"`
	URL  string    `json:"url"`
}
