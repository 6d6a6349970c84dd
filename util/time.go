package util

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeTime formats the age of t relative to now for display: "just now",
// minutes, hours and days up to a month and coarser units past that
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case t.IsZero():
		return ""
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h ago"
	case d < 30*24*time.Hour:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d ago"
	default:
		return humanize.RelTime(t, now, "ago", "from now")
	}
}
