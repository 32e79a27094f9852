package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/crimescope-cli/internal/utils"
)

func TestEstimateTokens(t *testing.T) {
	if got := utils.EstimateTokens(""); got != 0 {
		t.Fatalf("empty: %d", got)
	}
	if got := utils.EstimateTokens("hi"); got != 1 {
		t.Fatalf("short text should count as one token, got %d", got)
	}
	if got := utils.EstimateTokens(strings.Repeat("a", 4000)); got != 1000 {
		t.Fatalf("long: %d", got)
	}
}

func TestTruncateLinesKeepsWholeLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("| Alameda | 2005 | 150.00 |\n")
	}
	text := b.String()
	got := utils.TruncateLines(text, 100)
	if utils.EstimateTokens(got) > 100 {
		t.Fatalf("tokens=%d exceeds limit", utils.EstimateTokens(got))
	}
	if !strings.HasSuffix(got, utils.TruncatedMarker) {
		t.Fatalf("missing marker: %q", got[len(got)-30:])
	}
	body := strings.TrimSuffix(got, utils.TruncatedMarker)
	for _, line := range strings.Split(body, "\n") {
		if line != "| Alameda | 2005 | 150.00 |" {
			t.Fatalf("partial line kept: %q", line)
		}
	}
	if utils.TruncateLines("short", 100) != "short" {
		t.Fatalf("short text should be unchanged")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.geojson")
	if err := utils.WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := utils.WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != "two" {
		t.Fatalf("read back %q %v", b, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}
