package graphingest

import "strings"

var (
	analysisHeaders   = []string{"# Audio Analysis", "Audio Analysis:", "AUDIO ANALYSIS"}
	transcriptHeaders = []string{"# Full Transcription", "Full Transcription:", "TRANSCRIPT", "# Transcript"}
	// Stripped from transcript text before chunking.
	chunkHeaders = []string{"# Full Transcription", "# Transcript", "# Content"}
)

// Sections holds the two parts of a transcript file.
type Sections struct {
	Analysis   string
	Transcript string
}

// ExtractSections locates the analysis and transcription sections. The
// analysis runs up to the transcription header, or to the next top-level
// markdown header when the transcription comes first or is absent. Content
// with neither section is treated as one transcript.
func ExtractSections(content string) Sections {
	analysisAt := findFirst(content, analysisHeaders)
	transcriptAt := findFirst(content, transcriptHeaders)

	var out Sections
	if analysisAt >= 0 {
		switch {
		case transcriptAt > analysisAt:
			out.Analysis = strings.TrimSpace(content[analysisAt:transcriptAt])
		default:
			rest := content[analysisAt+1:]
			if next := strings.Index(rest, "\n# "); next >= 0 {
				out.Analysis = strings.TrimSpace(content[analysisAt : analysisAt+1+next])
			} else {
				out.Analysis = strings.TrimSpace(content[analysisAt:])
			}
		}
	}
	if transcriptAt >= 0 {
		out.Transcript = strings.TrimSpace(content[transcriptAt:])
	}
	if out.Analysis == "" && out.Transcript == "" {
		out.Transcript = strings.TrimSpace(content)
	}
	return out
}

func findFirst(content string, headers []string) int {
	for _, header := range headers {
		if at := strings.Index(content, header); at >= 0 {
			return at
		}
	}
	return -1
}

func stripHeaders(text string, headers []string) string {
	for _, header := range headers {
		text = strings.ReplaceAll(text, header, "")
	}
	return strings.TrimSpace(text)
}
