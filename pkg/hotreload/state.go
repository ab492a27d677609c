// Package hotreload implements the hot-reload suffix mode and
// live-coding side-channel mode: rewriting a linked action graph in
// place so an already-running host process can pick up freshly built
// modules without a full restart. Grounded on the teacher's
// compile_cache.go persistence shape, generalized to the rename-closure
// state spec.md §3/§4.5 describe.
package hotreload

import (
	"os"
	"sync"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
)

var hotreloadLog = logger.New("forge:hotreload")

const formatVersion int32 = 1

// State is the persisted hot-reload session bookkeeping from spec.md §3.
type State struct {
	mu sync.Mutex

	paths *item.Paths

	NextSuffix          uint32
	OriginalToHotReload map[item.FileID]item.FileID
	TemporaryFiles      map[item.FileID]bool

	dirty bool
}

// New returns an empty hot-reload state with next_suffix starting at 1.
func New(paths *item.Paths) *State {
	return &State{
		paths:               paths,
		NextSuffix:          1,
		OriginalToHotReload: make(map[item.FileID]item.FileID),
		TemporaryFiles:      make(map[item.FileID]bool),
	}
}

// Load reads a persisted state from path. Any missing-file or corrupt
// condition returns a fresh empty state rather than an error, matching
// the tolerant-load contract the other caches share.
func Load(paths *item.Paths, path string) *State {
	f, err := os.Open(path)
	if err != nil {
		return New(paths)
	}
	defer f.Close()

	ar, err := archive.NewReader(f)
	if err != nil {
		hotreloadLog.Printf("hot-reload state unreadable, starting fresh: %v", err)
		return New(paths)
	}
	if err := ar.CheckVersion(formatVersion); err != nil {
		hotreloadLog.Printf("hot-reload state version mismatch, starting fresh")
		return New(paths)
	}

	suffix, err := ar.Int32()
	if err != nil {
		return New(paths)
	}

	originalToHotReload := make(map[item.FileID]item.FileID)
	if _, err := ar.Map(func(i int) error {
		oldPath, err := ar.String()
		if err != nil {
			return err
		}
		newPath, err := ar.String()
		if err != nil {
			return err
		}
		originalToHotReload[paths.File(oldPath)] = paths.File(newPath)
		return nil
	}); err != nil {
		return New(paths)
	}

	temporaryFiles := make(map[item.FileID]bool)
	if _, err := ar.Map(func(i int) error {
		p, err := ar.String()
		if err != nil {
			return err
		}
		temporaryFiles[paths.File(p)] = true
		return nil
	}); err != nil {
		return New(paths)
	}

	return &State{
		paths:               paths,
		NextSuffix:          uint32(suffix),
		OriginalToHotReload: originalToHotReload,
		TemporaryFiles:      temporaryFiles,
	}
}

// Save atomically persists the state to path if it has been mutated
// since the last load or save.
func (s *State) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return builderr.Wrap(err, path, "failed to create hot-reload state temp file")
	}

	aw, err := archive.NewWriter(f, formatVersion)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := aw.Int32(int32(s.NextSuffix)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	originals := make([]item.FileID, 0, len(s.OriginalToHotReload))
	for k := range s.OriginalToHotReload {
		originals = append(originals, k)
	}
	if err := aw.Map(len(originals), func(i int) error {
		if err := aw.String(s.paths.Path(originals[i])); err != nil {
			return err
		}
		return aw.String(s.paths.Path(s.OriginalToHotReload[originals[i]]))
	}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	temps := make([]item.FileID, 0, len(s.TemporaryFiles))
	for k := range s.TemporaryFiles {
		temps = append(temps, k)
	}
	if err := aw.Map(len(temps), func(i int) error {
		return aw.String(s.paths.Path(temps[i]))
	}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return builderr.Wrap(err, path, "failed to close hot-reload state temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return builderr.Wrap(err, path, "failed to install hot-reload state")
	}

	s.dirty = false
	hotreloadLog.Printf("saved hot-reload state: path=%s next_suffix=%d", path, s.NextSuffix)
	return nil
}

// Dirty reports whether the state has unsaved mutations.
func (s *State) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
