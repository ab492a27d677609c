// Package sourcecache implements the source-metadata cache from
// spec.md §4.6/§3: per-file records of whether a source file contains
// reflection markup and what it #includes, re-scanned when a file's
// mtime moves. Grounded on the teacher's frontmatter-scanning approach
// in pkg/parser (regex-driven marker extraction over raw file text)
// generalized from YAML frontmatter delimiters to a reflection-marker
// regex and #include extraction, layered engine->project per spec.md
// §4.6.
package sourcecache

import (
	"bufio"
	"os"
	"regexp"
	"sync"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
)

var sourcecacheLog = logger.New("forge:sourcecache")

const formatVersion int32 = 1

// reflectionMarkerPattern matches the C++ reflection macros a codegen
// pass looks for (e.g. UCLASS, USTRUCT-style markup in the domain this
// spec is modeled on).
var reflectionMarkerPattern = regexp.MustCompile(`\b[A-Z]CLASS\s*\(|\b[A-Z]STRUCT\s*\(|\bGENERATED_BODY\s*\(`)

var includePattern = regexp.MustCompile(`^\s*#\s*include\s*["<]([^">]+)[">]`)

// Record is the per-file metadata from spec.md §3.
type Record struct {
	ContainsReflectionMarkup bool
	IncludedFiles            []string
	MTime                    int64
}

// Cache is one source-metadata layer.
type Cache struct {
	mu      sync.Mutex
	paths   *item.Paths
	records map[string]Record
	dirty   bool
}

// New returns an empty layer.
func New(paths *item.Paths) *Cache {
	return &Cache{paths: paths, records: make(map[string]Record)}
}

// Load tolerantly reads a layer, returning empty on any corruption.
func Load(paths *item.Paths, path string) *Cache {
	c := New(paths)

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			sourcecacheLog.Printf("sourcecache load failed, starting empty: %v", err)
		}
		return c
	}
	defer f.Close()

	r, err := archive.NewReader(f)
	if err != nil {
		sourcecacheLog.Printf("sourcecache archive unreadable, starting empty: %v", err)
		return c
	}
	if err := r.CheckVersion(formatVersion); err != nil {
		sourcecacheLog.Printf("sourcecache version mismatch, starting empty: %v", err)
		return c
	}

	_, err = r.Map(func(i int) error {
		path, err := r.String()
		if err != nil {
			return err
		}
		hasMarkup, err := r.Bool()
		if err != nil {
			return err
		}
		mtime, err := r.Int64()
		if err != nil {
			return err
		}
		includes, err := r.StringSlice()
		if err != nil {
			return err
		}
		c.records[path] = Record{ContainsReflectionMarkup: hasMarkup, IncludedFiles: includes, MTime: mtime}
		return nil
	})
	if err != nil {
		sourcecacheLog.Printf("sourcecache entries unreadable, starting empty: %v", err)
		return New(paths)
	}
	sourcecacheLog.Printf("loaded sourcecache: path=%s entries=%d", path, len(c.records))
	return c
}

// Lookup returns the cached record for f if its mtime matches, else
// re-scans the file and updates the cache, per spec.md §4.6.
func (c *Cache) Lookup(f item.FileID) (Record, error) {
	path := c.paths.Path(f)
	info := c.paths.Stat(f)

	c.mu.Lock()
	rec, ok := c.records[path]
	c.mu.Unlock()
	if ok && info.Exists && rec.MTime == info.ModTime {
		return rec, nil
	}

	rec, err := scanFile(path)
	if err != nil {
		return Record{}, err
	}
	rec.MTime = info.ModTime

	c.mu.Lock()
	c.records[path] = rec
	c.dirty = true
	c.mu.Unlock()
	return rec, nil
}

func scanFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, builderr.Wrap(err, path, "failed to scan source file")
	}
	defer f.Close()

	var rec Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !rec.ContainsReflectionMarkup && reflectionMarkerPattern.MatchString(line) {
			rec.ContainsReflectionMarkup = true
		}
		if m := includePattern.FindStringSubmatch(line); m != nil {
			rec.IncludedFiles = append(rec.IncludedFiles, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return Record{}, builderr.Wrap(err, path, "failed to read source file")
	}
	return rec, nil
}

// Dirty reports whether any entry changed since load/last save.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Count returns the number of per-file records in this layer.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Save atomically writes the layer if dirty.
func (c *Cache) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return builderr.Wrap(err, path, "failed to create sourcecache temp file")
	}

	w, err := archive.NewWriter(f, formatVersion)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	writeErr := w.Map(len(keys), func(i int) error {
		k := keys[i]
		rec := c.records[k]
		if err := w.String(k); err != nil {
			return err
		}
		if err := w.Bool(rec.ContainsReflectionMarkup); err != nil {
			return err
		}
		if err := w.Int64(rec.MTime); err != nil {
			return err
		}
		return w.StringSlice(rec.IncludedFiles)
	})

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return builderr.Wrap(writeErr, path, "failed to write sourcecache")
	}

	if err := os.Rename(tmp, path); err != nil {
		return builderr.Wrap(err, path, "failed to install sourcecache file")
	}
	c.dirty = false
	sourcecacheLog.Printf("saved sourcecache: path=%s entries=%d", path, len(c.records))
	return nil
}
