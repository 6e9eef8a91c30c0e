package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the YouTube video id from watch, short-link, shorts,
// embed and live URLs.
func VideoID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var candidate string
	switch host {
	case "youtu.be":
		candidate = firstSegment(u.Path)
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) == 2 {
			switch segments[0] {
			case "shorts", "embed", "live", "v":
				candidate = segments[1]
			}
		}
	}
	if !videoIDPattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

// URLJobID returns the video id of raw, or a stable hash-based id when none
// can be derived.
func URLJobID(raw string) string {
	if id, ok := VideoID(raw); ok {
		return id
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return "url-" + hex.EncodeToString(sum[:6])
}

// CanonicalURL rewrites any recognised YouTube URL form to its watch URL so
// the same video always maps to one source reference. Other URLs are
// returned trimmed.
func CanonicalURL(raw string) string {
	if id, ok := VideoID(raw); ok {
		return watchURLPrefix + id
	}
	return strings.TrimSpace(raw)
}

// LocalJobID is the file name without directory or extension.
func LocalJobID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstSegment(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
