// Package parser parses and verifies user-sent submission data
package parser

import (
	"strings"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
)

// Fields are the text fields of a post or chat message submission
type Fields struct {
	Title    string
	Content  string
	VideoURL string
}

// Parse trims and validates submission fields. At least one of content, an
// image or a video URL must be present. The title is not counted.
func Parse(f Fields, hasImage bool) (Fields, error) {
	maxTitle, maxBody := common.MaxLenTitle, common.MaxLenBody
	if conf := config.Get(); conf != nil {
		if conf.MaxLenTitle > 0 {
			maxTitle = conf.MaxLenTitle
		}
		if conf.MaxLenBody > 0 {
			maxBody = conf.MaxLenBody
		}
	}

	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	f.VideoURL = strings.TrimSpace(f.VideoURL)

	switch {
	case len([]rune(f.Title)) > maxTitle:
		return f, common.ErrTitleTooLong
	case len([]rune(f.Content)) > maxBody:
		return f, common.ErrBodyTooLong
	case len(f.VideoURL) > common.MaxLenVideoURL:
		return f, common.ErrVideoURLTooLong
	case f.Content == "" && f.VideoURL == "" && !hasImage:
		return f, common.ErrEmptySubmission
	}

	if err := IsPrintableString(f.Title, false); err != nil {
		return f, err
	}
	if err := IsPrintableString(f.Content, true); err != nil {
		return f, err
	}
	if err := IsPrintableString(f.VideoURL, false); err != nil {
		return f, err
	}
	return f, nil
}

// ParseTitle returns the title of a post, defaulting to common.DefaultTitle
func ParseTitle(title string) string {
	if title == "" {
		return common.DefaultTitle
	}
	return title
}
