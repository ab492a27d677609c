// Package depcache implements CppDependencyCache from spec.md §3: a
// persistent mapping from an object-file to the header files it last
// depended on, parsed from the compiler's dependency-list file (one
// path per line, grounded on the teacher's line-oriented log parsing in
// pkg/cli/logs_github_api.go), layered engine->project so each layer
// can be reused independently per spec.md §4.6.
package depcache

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
)

var depcacheLog = logger.New("forge:depcache")

const formatVersion int32 = 1

type record struct {
	headers []string
	mtime   int64
}

// Cache is one dependency-cache layer, keyed by produced object-file path.
type Cache struct {
	mu      sync.Mutex
	paths   *item.Paths
	records map[string]record
	dirty   bool
}

// New returns an empty layer.
func New(paths *item.Paths) *Cache {
	return &Cache{paths: paths, records: make(map[string]record)}
}

// Load tolerantly reads a layer, returning empty on any corruption.
func Load(paths *item.Paths, path string) *Cache {
	c := New(paths)

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			depcacheLog.Printf("depcache load failed, starting empty: %v", err)
		}
		return c
	}
	defer f.Close()

	r, err := archive.NewReader(f)
	if err != nil {
		depcacheLog.Printf("depcache archive unreadable, starting empty: %v", err)
		return c
	}
	if err := r.CheckVersion(formatVersion); err != nil {
		depcacheLog.Printf("depcache version mismatch, starting empty: %v", err)
		return c
	}

	_, err = r.Map(func(i int) error {
		obj, err := r.String()
		if err != nil {
			return err
		}
		mtime, err := r.Int64()
		if err != nil {
			return err
		}
		headers, err := r.StringSlice()
		if err != nil {
			return err
		}
		c.records[obj] = record{headers: headers, mtime: mtime}
		return nil
	})
	if err != nil {
		depcacheLog.Printf("depcache entries unreadable, starting empty: %v", err)
		return New(paths)
	}
	depcacheLog.Printf("loaded depcache: path=%s entries=%d", path, len(c.records))
	return c
}

// Headers implements pkg/graph.DepCache: returns the interned header
// FileIDs last recorded for produced. It returns nil when there is no
// record, the object is missing, or the object's mtime differs from the
// one recorded; the dependency-list file is not re-parsed here.
func (c *Cache) Headers(produced item.FileID) []item.FileID {
	objPath := c.paths.Path(produced)
	info := c.paths.Stat(produced)

	c.mu.Lock()
	rec, ok := c.records[objPath]
	c.mu.Unlock()
	if !ok || !info.Exists || rec.mtime != info.ModTime {
		return nil
	}

	out := make([]item.FileID, len(rec.headers))
	for i, h := range rec.headers {
		out[i] = c.paths.File(h)
	}
	return out
}

// Update parses depListPath (one header path per line, blank lines and
// Make-style line-continuation backslashes ignored) and records its
// contents against produced at its current mtime.
func (c *Cache) Update(produced item.FileID, depListPath string) error {
	f, err := os.Open(depListPath)
	if err != nil {
		return builderr.Wrap(err, depListPath, "failed to open dependency list")
	}
	defer f.Close()

	var headers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSuffix(line, "\\")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		headers = append(headers, line)
	}
	if err := scanner.Err(); err != nil {
		return builderr.Wrap(err, depListPath, "failed to read dependency list")
	}

	info := c.paths.Stat(produced)
	c.mu.Lock()
	c.records[c.paths.Path(produced)] = record{headers: headers, mtime: info.ModTime}
	c.dirty = true
	c.mu.Unlock()
	return nil
}

// Dirty reports whether any entry changed since load/last save.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Count returns the number of produced-file entries in this layer.
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
		return builderr.Wrap(err, path, "failed to create depcache temp file")
	}

	w, err := archive.NewWriter(f, formatVersion)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	objs := make([]string, 0, len(c.records))
	for obj := range c.records {
		objs = append(objs, obj)
	}
	writeErr := w.Map(len(objs), func(i int) error {
		obj := objs[i]
		rec := c.records[obj]
		if err := w.String(obj); err != nil {
			return err
		}
		if err := w.Int64(rec.mtime); err != nil {
			return err
		}
		return w.StringSlice(rec.headers)
	})

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return builderr.Wrap(writeErr, path, "failed to write depcache")
	}

	if err := os.Rename(tmp, path); err != nil {
		return builderr.Wrap(err, path, "failed to install depcache file")
	}
	c.dirty = false
	depcacheLog.Printf("saved depcache: path=%s entries=%d", path, len(c.records))
	return nil
}
