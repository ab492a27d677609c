package graph

import (
	"os"
	"path/filepath"
)

func dirOf(path string) string {
	return filepath.Dir(path)
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
