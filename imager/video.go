package imager

import (
	"regexp"
	"strings"

	"github.com/blindspot/blindspot/common"
)

var (
	youTubeWatchRegexp = regexp.MustCompile(`(?i)youtube\.com/watch\?v=([^&]+)`)
	youTubeShortRegexp = regexp.MustCompile(`(?i)youtu\.be/([^?]+)`)
	vimeoRegexp        = regexp.MustCompile(`(?i)vimeo\.com/(\d+)`)
	directVideoRegexp  = regexp.MustCompile(`(?i)\.(mp4|webm|ogg|mov)(\?|$)`)
)

// ResolveVideo classifies a submitted video URL and returns an embeddable
// reference. Unrecognized URLs return false and are never embedded.
func ResolveVideo(url string) (common.Video, bool) {
	url = strings.TrimSpace(url)
	if url == "" {
		return common.Video{}, false
	}

	if m := youTubeWatchRegexp.FindStringSubmatch(url); m != nil {
		return youTube(m[1]), true
	}
	if m := youTubeShortRegexp.FindStringSubmatch(url); m != nil {
		return youTube(m[1]), true
	}
	if m := vimeoRegexp.FindStringSubmatch(url); m != nil {
		return common.Video{
			Kind: common.Vimeo,
			URL:  "https://player.vimeo.com/video/" + m[1],
		}, true
	}
	if directVideoRegexp.MatchString(url) {
		return common.Video{
			Kind: common.DirectVideo,
			URL:  url,
		}, true
	}
	return common.Video{}, false
}

func youTube(id string) common.Video {
	return common.Video{
		Kind: common.YouTube,
		URL:  "https://www.youtube.com/embed/" + id,
	}
}

// ResolveMedia builds the presentation media of a stored document
func ResolveMedia(image []byte, videoURL string) common.Media {
	m := common.Media{
		Image: DataURL(image),
	}
	if v, ok := ResolveVideo(videoURL); ok {
		m.Video = &v
	}
	return m
}
