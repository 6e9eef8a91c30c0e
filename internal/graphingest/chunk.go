package graphingest

import (
	"regexp"
	"strings"
)

// DefaultChunkSize is the target chunk length in bytes.
const DefaultChunkSize = 1000

var timestampPattern = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\]`)

// Chunk splits transcript text into pieces of roughly size bytes. Speaker
// markers ("~") are the preferred boundary, then [hh:mm:ss] timestamps, then
// blank-line paragraphs. Parts are merged greedily up to size; a part that
// is longer than size on its own is split at word boundaries.
func Chunk(transcript string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	cleaned := stripHeaders(transcript, chunkHeaders)
	if cleaned == "" {
		return nil
	}

	var (
		parts []string
		sep   = " "
	)
	switch {
	case strings.Contains(cleaned, "~"):
		parts = strings.Split(cleaned, "~")
		sep = "~"
	case timestampPattern.MatchString(cleaned):
		parts = splitKeepingTimestamps(cleaned)
	default:
		parts = strings.Split(cleaned, "\n\n")
	}

	var (
		chunks  []string
		current string
	)
	flush := func() {
		if current = strings.TrimSpace(current); current != "" {
			chunks = append(chunks, current)
		}
		current = ""
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) > size {
			flush()
			chunks = append(chunks, splitWords(part, size)...)
			continue
		}
		if current != "" && len(current)+len(sep)+len(part) > size {
			flush()
		}
		if current == "" {
			current = part
		} else {
			current += sep + part
		}
	}
	flush()
	return chunks
}

// splitKeepingTimestamps splits before every timestamp so each part starts
// with its own marker.
func splitKeepingTimestamps(text string) []string {
	locs := timestampPattern.FindAllStringIndex(text, -1)
	parts := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			parts = append(parts, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	return append(parts, text[prev:])
}

func splitWords(text string, size int) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, word := range strings.Fields(text) {
		if b.Len() > 0 && b.Len()+1+len(word) > size {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
