package graphingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"graphmem/internal/textutil"
)

const (
	minEpisodeLength   = 10
	maxAnalysisLength  = 10000
	truncatedSuffix    = "... (truncated)"
	episodeRoleType    = "user"
	analysisRole       = "audio_analysis"
	transcriptRole     = "transcript"
	transcriptFileTail = "_transcription"
)

// episodeNamespace seeds deterministic episode UUIDs so re-ingesting the same
// transcript addresses the same episodes.
var episodeNamespace = uuid.MustParse("5c0a4a64-2f9e-4b8e-9a53-0b7d1c6f1e2a")

// Episode is one unit of content delivered to the knowledge graph.
type Episode struct {
	UUID              string    `json:"uuid"`
	Name              string    `json:"name"`
	Content           string    `json:"content"`
	RoleType          string    `json:"role_type"`
	Role              string    `json:"role"`
	Timestamp         time.Time `json:"timestamp"`
	SourceDescription string    `json:"source_description"`
}

// Batch is every episode produced from one transcript.
type Batch struct {
	GroupID  string    `json:"group_id"`
	VideoID  string    `json:"video_id"`
	Episodes []Episode `json:"episodes"`
	Chunks   int       `json:"chunks"`
	Skipped  int       `json:"skipped"`
}

// BuildBatch converts transcript content into episodes: an optional analysis
// episode followed by one episode per transcript chunk. Chunks shorter than
// ten characters are counted in Skipped.
func BuildBatch(groupID, videoID, content string, chunkSize int, now time.Time) Batch {
	sections := ExtractSections(content)
	safeID := textutil.SanitizeToken(videoID)
	batch := Batch{GroupID: groupID, VideoID: videoID}

	if sections.Analysis != "" {
		text := textutil.NormalizeTypography(stripHeaders(sections.Analysis, analysisHeaders))
		if len(strings.TrimSpace(text)) < minEpisodeLength {
			text = fmt.Sprintf("Transcription summary for video %s (no analysis available)", videoID)
		}
		text = textutil.Truncate(text, maxAnalysisLength, truncatedSuffix)
		batch.Episodes = append(batch.Episodes, newEpisode(groupID,
			"Audio_Analysis_"+safeID, text, analysisRole, now,
			"Audio analysis for video "+videoID,
		))
	}

	chunks := Chunk(sections.Transcript, chunkSize)
	batch.Chunks = len(chunks)
	for i, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if len(chunk) < minEpisodeLength {
			batch.Skipped++
			continue
		}
		batch.Episodes = append(batch.Episodes, newEpisode(groupID,
			fmt.Sprintf("Transcript_%s_Chunk_%d", safeID, i),
			textutil.NormalizeTypography(chunk), transcriptRole, now,
			fmt.Sprintf("Transcript chunk %d of %d for video %s", i+1, len(chunks), videoID),
		))
	}
	return batch
}

func newEpisode(groupID, name, content, role string, now time.Time, description string) Episode {
	return Episode{
		UUID:              uuid.NewSHA1(episodeNamespace, []byte(groupID+"/"+name)).String(),
		Name:              name,
		Content:           content,
		RoleType:          episodeRoleType,
		Role:              role,
		Timestamp:         now.UTC(),
		SourceDescription: description,
	}
}

// VideoIDFromTranscript derives the episode subject from a transcript path:
// the file stem without the transcript suffix.
func VideoIDFromTranscript(path, suffix string) string {
	base := filepath.Base(path)
	if suffix != "" && strings.HasSuffix(base, suffix) {
		return strings.TrimSuffix(base, suffix)
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	return strings.TrimSuffix(base, transcriptFileTail)
}
