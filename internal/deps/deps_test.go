package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	versioned := writeStub(t, binDir, "versioned", "#!/bin/sh\necho\necho '2026.03.01'\n")
	broken := writeStub(t, binDir, "broken", "#!/bin/sh\nexit 2\n")

	tests := []struct {
		name        string
		req         Requirement
		wantOK      bool
		wantVersion string
		wantDetail  string
	}{
		{"versioned", Requirement{Name: "yt-dlp", Command: versioned, VersionArgs: []string{"--version"}}, true, "2026.03.01", ""},
		{"probe fails", Requirement{Name: "broken", Command: broken, VersionArgs: []string{"--version"}}, true, "", ""},
		{"no probe", Requirement{Name: "plain", Command: versioned}, true, "", ""},
		{"missing", Requirement{Name: "missing", Command: "clearly-not-present-binary"}, false, "", `binary "clearly-not-present-binary" not found`},
		{"unset", Requirement{Name: "unset", Command: "  ", Optional: true}, false, "", "command not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := CheckBinaries(context.Background(), []Requirement{tt.req})
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			got := results[0]
			if got.Available != tt.wantOK {
				t.Fatalf("available = %v, want %v (%#v)", got.Available, tt.wantOK, got)
			}
			if got.Version != tt.wantVersion {
				t.Fatalf("version = %q, want %q", got.Version, tt.wantVersion)
			}
			if got.Detail != tt.wantDetail {
				t.Fatalf("detail = %q, want %q", got.Detail, tt.wantDetail)
			}
			if got.Available && got.Path == "" {
				t.Fatal("expected resolved path for available binary")
			}
			if got.Optional != tt.req.Optional {
				t.Fatalf("optional flag not carried: %#v", got)
			}
		})
	}
}
