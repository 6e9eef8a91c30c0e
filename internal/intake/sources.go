package intake

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"graphmem/internal/queue"
)

// SourceFile is the YAML shape accepted by LoadSourceFile:
//
//	channels:
//	  - https://www.youtube.com/@example
//	urls:
//	  - https://youtu.be/dQw4w9WgXcQ
//	paths:
//	  - ~/talks/keynote.mp4
//	sources:
//	  - {kind: url, ref: https://youtu.be/abc}
type SourceFile struct {
	Channels []string       `yaml:"channels"`
	URLs     []string       `yaml:"urls"`
	Paths    []string       `yaml:"paths"`
	Sources  []queue.Source `yaml:"sources"`
}

// LoadSourceFile reads a YAML source list.
func LoadSourceFile(path string) ([]queue.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	var file SourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse source file %s: %w", path, err)
	}
	return file.Flatten()
}

// Flatten returns every listed source in file order: channels, URLs, paths,
// then explicit entries.
func (f SourceFile) Flatten() ([]queue.Source, error) {
	var out []queue.Source
	add := func(kind queue.SourceKind, refs []string) {
		for _, ref := range refs {
			if ref = strings.TrimSpace(ref); ref != "" {
				out = append(out, queue.Source{Kind: kind, Ref: ref})
			}
		}
	}
	add(queue.SourceChannel, f.Channels)
	add(queue.SourceURL, f.URLs)
	add(queue.SourceLocal, f.Paths)
	for i, src := range f.Sources {
		kind, err := queue.ParseSourceKind(string(src.Kind))
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		src.Kind = kind
		src.Ref = strings.TrimSpace(src.Ref)
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, errors.New("source file lists no sources")
	}
	return out, nil
}

var channelMarkers = []string{"/@", "/channel/", "/c/", "/user/", "/playlist"}

// DetectKind guesses the kind of a bare reference: anything that is not an
// http(s) URL is a local path, and YouTube channel or playlist pages are
// channels.
func DetectKind(ref string) queue.SourceKind {
	lower := strings.ToLower(strings.TrimSpace(ref))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return queue.SourceLocal
	}
	if _, ok := VideoID(ref); ok {
		return queue.SourceURL
	}
	for _, marker := range channelMarkers {
		if strings.Contains(lower, marker) {
			return queue.SourceChannel
		}
	}
	return queue.SourceURL
}
