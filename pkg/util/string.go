package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const postIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GeneratePostID builds a post ID from the creation time plus a short
// random suffix, e.g. "post_20260901153000_k3x9q2ba".
func GeneratePostID(t time.Time) string {
	suffix, err := gonanoid.Generate(postIDAlphabet, 8)
	if err != nil {
		// crypto/rand failure; fall back to the nanosecond clock
		suffix = fmt.Sprintf("%08d", t.Nanosecond()%1e8)
	}
	return fmt.Sprintf("post_%s_%s", t.Format("20060102150405"), suffix)
}

// MatchAvatar finds the first known avatar whose name appears as a
// substring of the video filename. Returns "" when none match.
func MatchAvatar(videoPath string, avatars []string) string {
	name := strings.ToLower(filepath.Base(videoPath))
	for _, avatar := range avatars {
		if avatar == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(avatar)) {
			return avatar
		}
	}
	return ""
}

// NormalizeHashtag ensures a single leading '#' and strips whitespace.
func NormalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimLeft(tag, "#")
	if tag == "" {
		return ""
	}
	return "#" + tag
}

// ParseCommaList splits comma-separated CLI input into cleaned values.
func ParseCommaList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	var clean []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, "\"'")
		if part != "" {
			clean = append(clean, part)
		}
	}
	return clean
}
