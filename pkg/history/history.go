// Package history implements ActionHistory from spec.md §3: a
// persistent mapping from a produced file to the FNV-1a hash of the
// command line last used to produce it, grouped per (platform,
// toolchain) layer. Grounded on the teacher's compile_cache.go
// CompilationCache (hash-keyed, tolerant load, atomic save),
// generalized from a single flat file-hash map to a layered
// command-hash history, and on pkg/logger's own FNV-1a namespace
// hashing for the choice of hash function.
package history

import (
	"os"
	"sync"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
)

var historyLog = logger.New("forge:history")

const formatVersion int32 = 1

// History is one (platform, toolchain) layer of ActionHistory, keyed
// by produced file path rather than FileID since a FileID is only
// valid within the Paths arena of the process that interned it.
type History struct {
	mu     sync.Mutex
	paths  *item.Paths
	hashes map[string]uint64
	dirty  bool
}

// New returns an empty layer backed by paths for FileID<->path translation.
func New(paths *item.Paths) *History {
	return &History{paths: paths, hashes: make(map[string]uint64)}
}

// Load tolerantly reads a layer from path: a missing file or any
// corruption yields an empty layer rather than an error, per spec.md
// §4.6's "load: tolerant" contract.
func Load(paths *item.Paths, path string) *History {
	h := New(paths)

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			historyLog.Printf("history load failed, starting empty: %v", err)
		}
		return h
	}
	defer f.Close()

	r, err := archive.NewReader(f)
	if err != nil {
		historyLog.Printf("history archive unreadable, starting empty: %v", err)
		return h
	}
	if err := r.CheckVersion(formatVersion); err != nil {
		historyLog.Printf("history version mismatch, starting empty: %v", err)
		return h
	}

	_, err = r.Map(func(i int) error {
		p, err := r.String()
		if err != nil {
			return err
		}
		hash, err := r.Int64()
		if err != nil {
			return err
		}
		h.hashes[p] = uint64(hash)
		return nil
	})
	if err != nil {
		historyLog.Printf("history entries unreadable, starting empty: %v", err)
		return New(paths)
	}

	historyLog.Printf("loaded history: path=%s entries=%d", path, len(h.hashes))
	return h
}

// CommandHash implements pkg/graph.History.
func (h *History) CommandHash(produced item.FileID) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.hashes[h.paths.Path(produced)]
	return v, ok
}

// Record stores the command-line hash used to produce f, marking the
// layer dirty.
func (h *History) Record(produced item.FileID, hash uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes[h.paths.Path(produced)] = hash
	h.dirty = true
}

// Dirty reports whether any entry changed since load/last save.
func (h *History) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

// Count returns the number of produced-file entries in this layer.
func (h *History) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hashes)
}

// Entries interns and returns the FileID of every produced item this
// layer has a recorded command hash for.
func (h *History) Entries() []item.FileID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]item.FileID, 0, len(h.hashes))
	for p := range h.hashes {
		ids = append(ids, h.paths.File(p))
	}
	return ids
}

// Save atomically writes the layer to path if dirty, per spec.md §4.6.
func (h *History) Save(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return builderr.Wrap(err, path, "failed to create history temp file")
	}

	w, err := archive.NewWriter(f, formatVersion)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	paths := make([]string, 0, len(h.hashes))
	for p := range h.hashes {
		paths = append(paths, p)
	}
	writeErr := w.Map(len(paths), func(i int) error {
		p := paths[i]
		if err := w.String(p); err != nil {
			return err
		}
		return w.Int64(int64(h.hashes[p]))
	})

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return builderr.Wrap(writeErr, path, "failed to write history")
	}

	if err := os.Rename(tmp, path); err != nil {
		return builderr.Wrap(err, path, "failed to install history file")
	}
	h.dirty = false
	historyLog.Printf("saved history: path=%s entries=%d", path, len(h.hashes))
	return nil
}
