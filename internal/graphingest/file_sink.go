package graphingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"graphmem/internal/fileutil"
	"graphmem/internal/services"
	"graphmem/internal/stage"
	"graphmem/internal/textutil"
)

// FileSink writes each batch as JSON lines to <dir>/<video id>.jsonl,
// replacing any earlier file for the same video.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string) (*FileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("output directory required for the file sink")
	}
	return &FileSink{dir: dir}, nil
}

// Path is the file a batch for videoID is written to.
func (s *FileSink) Path(videoID string) string {
	return filepath.Join(s.dir, textutil.SanitizeToken(videoID)+".jsonl")
}

// Send writes one line per episode, each carrying the group id.
func (s *FileSink) Send(_ context.Context, batch Batch) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ep := range batch.Episodes {
		line := struct {
			GroupID string `json:"group_id"`
			Episode
		}{GroupID: batch.GroupID, Episode: ep}
		if err := enc.Encode(line); err != nil {
			return "", services.Wrap(services.ErrValidation, "ingest", "encode episode", ep.Name, err)
		}
	}
	path := s.Path(batch.VideoID)
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "ingest", "write episodes", path, err)
	}
	return path, nil
}

// HealthCheck verifies the output directory exists (creating it if needed)
// and is writable.
func (s *FileSink) HealthCheck(context.Context) stage.Health {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return stage.Unhealthyf("ingest", "create %s: %v", s.dir, err)
	}
	if err := unix.Access(s.dir, unix.W_OK|unix.X_OK); err != nil {
		return stage.Unhealthyf("ingest", "%s is not writable: %v", s.dir, err)
	}
	return stage.Healthy("ingest")
}
