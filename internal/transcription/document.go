package transcription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Section headers of the transcript markdown. The ingest chunker keys on
// these.
const (
	AnalysisHeader   = "# Audio Analysis"
	TranscriptHeader = "# Full Transcription"
)

// Segment is one timed piece of transcript text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Document is the JSON shape printed by offmute-style transcribers.
type Document struct {
	Segments   []Segment `json:"segments"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`
	Topics     []string  `json:"topics"`
	KeyTerms   []string  `json:"key_terms"`
}

var errNoDocument = errors.New("no JSON document in transcriber output")

// parseDocument extracts the JSON document from captured stdout. Progress
// text printed before the document is skipped; parsing starts at the first
// opening brace.
func parseDocument(output string) (Document, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return Document{}, errNoDocument
	}
	start := strings.Index(output, "{")
	if start < 0 {
		return Document{}, errNoDocument
	}
	var doc Document
	if err := json.Unmarshal([]byte(output[start:]), &doc); err != nil {
		return Document{}, fmt.Errorf("decode transcriber output: %w", err)
	}
	if doc.empty() {
		return Document{}, errNoDocument
	}
	return doc, nil
}

func (d Document) empty() bool {
	if strings.TrimSpace(d.Transcript) != "" || strings.TrimSpace(d.Summary) != "" {
		return false
	}
	for _, seg := range d.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return false
		}
	}
	return true
}

// Markdown renders the document in the transcript file layout.
func (d Document) Markdown() string {
	var b strings.Builder
	b.WriteString(AnalysisHeader)
	b.WriteString("\n\n")
	if summary := strings.TrimSpace(d.Summary); summary != "" {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	writeList(&b, "## Topics", d.Topics)
	writeList(&b, "## Key Terms", d.KeyTerms)

	b.WriteString("\n")
	b.WriteString(TranscriptHeader)
	b.WriteString("\n\n")
	wrote := false
	for _, seg := range d.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n\n", formatTimestamp(seg.Start), text)
		wrote = true
	}
	if !wrote {
		if text := strings.TrimSpace(d.Transcript); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, header string, items []string) {
	var kept []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n\n")
	for _, item := range kept {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

// formatTimestamp renders seconds as [hh:mm:ss].
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("[%02d:%02d:%02d]", total/3600, (total/60)%60, total%60)
}
