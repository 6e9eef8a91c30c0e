package intake

import (
	"strings"
	"testing"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?si=share", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/abcDEF12_-3", "abcDEF12_-3", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/@channel/videos", "", false},
		{"https://vimeo.com/12345678901", "", false},
		{"https://youtu.be/short", "", false},
		{"not a url", "", false},
	}
	for _, tt := range tests {
		got, ok := VideoID(tt.url)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("VideoID(%q) = %q, %v; want %q, %v", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestURLJobIDFallsBackToStableHash(t *testing.T) {
	a := URLJobID("https://vimeo.com/123")
	b := URLJobID(" https://vimeo.com/123 ")
	if a != b {
		t.Fatalf("expected stable id, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "url-") || len(a) != len("url-")+12 {
		t.Fatalf("unexpected hash id %q", a)
	}
	if URLJobID("https://vimeo.com/456") == a {
		t.Fatal("different URLs should hash differently")
	}
	if URLJobID("https://youtu.be/dQw4w9WgXcQ") != "dQw4w9WgXcQ" {
		t.Fatal("expected video id for YouTube URL")
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://youtu.be/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://m.youtube.com/shorts/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{" https://vimeo.com/123 ", "https://vimeo.com/123"},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalJobID(t *testing.T) {
	tests := map[string]string{
		"/media/talks/keynote.mp4":  "keynote",
		"relative/episode.01.m4a":   "episode.01",
		"/media/no-extension":       "no-extension",
	}
	for path, want := range tests {
		if got := LocalJobID(path); got != want {
			t.Errorf("LocalJobID(%q) = %q, want %q", path, got, want)
		}
	}
}
