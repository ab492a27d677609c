// Package item provides process-wide interned handles for filesystem
// paths, standing in for the reference-equality FileItem/DirectoryItem
// objects of the original design: a FileID or DirID is a small copyable
// int32 index into a Paths arena, so two lookups of the same path always
// yield the same handle and handle equality is meaningful integer
// equality.
package item

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/forgebuild/forge/pkg/logger"
)

var itemLog = logger.New("forge:item")

// FileID is an interned handle for a file path. The zero value is invalid.
type FileID int32

// DirID is an interned handle for a directory path. The zero value is invalid.
type DirID int32

// FileInfo is the cached stat metadata for a FileID.
type FileInfo struct {
	Exists  bool
	ModTime int64 // unix nanoseconds
}

type fileRecord struct {
	path string
	info FileInfo
	stat bool // info has been populated at least once
}

type dirRecord struct {
	path    string
	files   []FileID
	dirs    []DirID
	scanned bool
}

// Paths is the process-wide interning arena. The zero value is not
// usable; construct with New.
type Paths struct {
	mu        sync.Mutex
	fileIndex map[string]FileID
	dirIndex  map[string]DirID
	files     []fileRecord
	dirs      []dirRecord
}

// New returns an empty interning arena.
func New() *Paths {
	return &Paths{
		fileIndex: make(map[string]FileID),
		dirIndex:  make(map[string]DirID),
		// index 0 reserved as the invalid handle
		files: make([]fileRecord, 1),
		dirs:  make([]dirRecord, 1),
	}
}

func normalize(path string) string {
	return filepath.Clean(filepath.ToSlash(path))
}

// File interns path, returning the same FileID for repeated calls with
// the same normalized path. Does not stat; call Stat explicitly.
func (p *Paths) File(path string) FileID {
	key := normalize(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.fileIndex[key]; ok {
		return id
	}
	p.files = append(p.files, fileRecord{path: key})
	id := FileID(len(p.files) - 1)
	p.fileIndex[key] = id
	itemLog.Printf("interned file: id=%d path=%s", id, key)
	return id
}

// Dir interns path the same way File does, for directories.
func (p *Paths) Dir(path string) DirID {
	key := normalize(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.dirIndex[key]; ok {
		return id
	}
	p.dirs = append(p.dirs, dirRecord{path: key})
	id := DirID(len(p.dirs) - 1)
	p.dirIndex[key] = id
	itemLog.Printf("interned dir: id=%d path=%s", id, key)
	return id
}

// Path returns the normalized path a FileID was interned from.
func (p *Paths) Path(id FileID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files[id].path
}

// DirPath returns the normalized path a DirID was interned from.
func (p *Paths) DirPath(id DirID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirs[id].path
}

// Stat returns the cached FileInfo for id, stat-ing the file on first
// access.
func (p *Paths) Stat(id FileID) FileInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := &p.files[id]
	if !rec.stat {
		p.statLocked(rec)
	}
	return rec.info
}

func (p *Paths) statLocked(rec *fileRecord) {
	fi, err := os.Stat(rec.path)
	if err != nil {
		rec.info = FileInfo{Exists: false}
	} else {
		rec.info = FileInfo{Exists: true, ModTime: fi.ModTime().UnixNano()}
	}
	rec.stat = true
}

// Reset re-stats id, refreshing its cached FileInfo. Equivalent to the
// original design's reset-cached-info.
func (p *Paths) Reset(id FileID) FileInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := &p.files[id]
	p.statLocked(rec)
	return rec.info
}

// Children returns the cached file and subdirectory children of id,
// scanning the directory on first access.
func (p *Paths) Children(id DirID) ([]FileID, []DirID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirs[id].scanned {
		p.scanLocked(id)
	}
	return p.dirs[id].files, p.dirs[id].dirs
}

// scanLocked reads id's directory and interns every child. internDirNoLock
// and internFileNoLock may append to p.dirs/p.files and reallocate their
// backing arrays, so this builds the child lists in locals first and
// writes them into p.dirs[id] by index only once scanning is done —
// holding a *dirRecord across those appends would leave it pointing at a
// stale array.
func (p *Paths) scanLocked(id DirID) {
	path := p.dirs[id].path
	entries, err := os.ReadDir(path)
	if err != nil {
		itemLog.Printf("scan failed: dir=%s err=%v", path, err)
		p.dirs[id].scanned = true
		return
	}
	var files []FileID
	var dirs []DirID
	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		if e.IsDir() {
			dirs = append(dirs, p.internDirNoLock(child))
		} else {
			files = append(files, p.internFileNoLock(child))
		}
	}
	p.dirs[id].files = files
	p.dirs[id].dirs = dirs
	p.dirs[id].scanned = true
	itemLog.Printf("scanned dir: id=%d path=%s files=%d dirs=%d", id, path, len(files), len(dirs))
}

func (p *Paths) internFileNoLock(path string) FileID {
	key := normalize(path)
	if id, ok := p.fileIndex[key]; ok {
		return id
	}
	p.files = append(p.files, fileRecord{path: key})
	id := FileID(len(p.files) - 1)
	p.fileIndex[key] = id
	return id
}

func (p *Paths) internDirNoLock(path string) DirID {
	key := normalize(path)
	if id, ok := p.dirIndex[key]; ok {
		return id
	}
	p.dirs = append(p.dirs, dirRecord{path: key})
	id := DirID(len(p.dirs) - 1)
	p.dirIndex[key] = id
	return id
}

// ResetDir invalidates the cached child enumeration for id, forcing a
// re-scan on the next Children call. Mirrors the mass invalidation that
// the original design performs after pre-build scripts execute.
func (p *Paths) ResetDir(id DirID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirs[id].scanned = false
}

// ResetAllDirs invalidates every cached directory enumeration at once.
func (p *Paths) ResetAllDirs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.dirs {
		p.dirs[i].scanned = false
	}
}
