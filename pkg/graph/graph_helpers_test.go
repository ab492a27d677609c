package graph

import (
	"os"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writeFile(%s): %v", path, err)
	}
}

func touch(path string, when time.Time) error {
	return os.Chtimes(path, when, when)
}
