package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteInboxFile writes a scanner export into dir. The file is first written
// under a temporary name and then renamed so watchers only see complete files.
func WriteInboxFile(t testing.TB, dir, name string, lines ...string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+name+".tmp")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatalf("rename %s: %v", target, err)
	}
	return target
}
