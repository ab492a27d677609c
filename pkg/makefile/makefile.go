// Package makefile implements the Makefile cache from spec.md §3/§4.2:
// the serialized bundle of actions plus every invalidation input needed
// to decide, on the next invocation, whether the cached graph can be
// reused or must be regenerated. Grounded on the teacher's
// compile_cache.go CompilationCache (hash-keyed skip-recompile cache),
// generalized from a flat map[string]string of file hashes to the
// richer struct and Load/IsValidForSourceFiles invalidation surface
// spec.md §4.2 names; persistence goes through pkg/archive instead of
// compile_cache.go's encoding/json because spec.md §6 mandates a
// versioned binary format with interned reference tables.
package makefile

import (
	"os"
	"sync"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/configtracker"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
)

var makefileLog = logger.New("forge:makefile")

// FormatVersion is the current on-disk archive version (spec.md §6: "leading
// i32 version (current = 19). Mismatch => regenerate.").
const FormatVersion int32 = 19

// Makefile is the exact field set from spec.md §3.
type Makefile struct {
	CreateTimeUTC   int64
	ModifiedTimeUTC int64

	TargetType                   string
	ExecutableFile               item.FileID
	ReceiptFile                  item.FileID
	ProjectIntermediateDirectory item.DirID

	Actions []*graph.Action

	OutputItems             []item.FileID
	ModuleNameToOutputItems map[string][]item.FileID
	HotReloadModuleNames    map[string]bool

	SourceDirectories      []item.DirID
	DirectoryToSourceFiles map[item.DirID][]item.FileID

	WorkingSet              map[item.FileID]bool
	CandidatesForWorkingSet map[item.FileID]bool

	ExternalDependencies []item.FileID
	InternalDependencies []item.FileID

	PluginFiles          []item.FileID
	UObjectModules       []string
	UObjectModuleHeaders map[item.FileID]bool

	ConfigValueTracker *configtracker.Tracker

	PreBuildScripts      []item.FileID
	AdditionalArguments  []string
	EnvironmentVariables map[string]string

	Diagnostics      []string
	ExternalMetadata string

	DeployAfterCompile     bool
	HasProjectScriptPlugin bool

	paths *item.Paths
	mu    sync.Mutex
}

// RuleAssembler is the external rules-assembly collaborator: given a
// target descriptor and the current working set, it produces the
// concrete action list plus the directories that should be watched for
// source-file changes. Descriptor parsing, toolchain discovery, and
// platform flag assembly all live on the far side of this interface,
// outside the core's scope per spec.md §1.
type RuleAssembler interface {
	Assemble(td *descriptor.TargetDescriptor, paths *item.Paths, workingSet map[item.FileID]bool) (*AssemblyResult, error)
}

// AssemblyResult is what a RuleAssembler hands back to Generate.
type AssemblyResult struct {
	Actions                 []*graph.Action
	OutputItems             []item.FileID
	ModuleNameToOutputItems map[string][]item.FileID
	HotReloadModuleNames    map[string]bool
	SourceDirectories       []item.DirID
	PluginFiles             []item.FileID
	UObjectModules          []string
	UObjectModuleHeaders    map[item.FileID]bool
	PreBuildScripts         []item.FileID
	ConfigValues            map[configtracker.Key][]string
}

// Generate executes the target's rule assembly, snapshots
// directory->source-file listings for every watched directory, captures
// the current environment, and runs pre-build scripts exactly once,
// resetting the directory cache afterward (spec.md §4.2).
func Generate(paths *item.Paths, td *descriptor.TargetDescriptor, assembler RuleAssembler, workingSet map[item.FileID]bool, runPreBuildScript func(item.FileID) error, now int64) (*Makefile, error) {
	result, err := assembler.Assemble(td, paths, workingSet)
	if err != nil {
		return nil, &builderr.BuildError{Kind: builderr.DescriptorParseFailed, Message: "rule assembly failed", Cause: err}
	}

	for _, script := range result.PreBuildScripts {
		if runPreBuildScript != nil {
			if err := runPreBuildScript(script); err != nil {
				return nil, builderr.Wrap(err, paths.Path(script), "pre-build script failed")
			}
		}
	}
	paths.ResetAllDirs()

	dirToFiles := make(map[item.DirID][]item.FileID, len(result.SourceDirectories))
	for _, dir := range result.SourceDirectories {
		files, _ := paths.Children(dir)
		dirToFiles[dir] = append([]item.FileID(nil), files...)
	}

	tracker := configtracker.New()
	for k, v := range result.ConfigValues {
		tracker.Record(k, v)
	}

	mf := &Makefile{
		CreateTimeUTC:           now,
		ModifiedTimeUTC:         now,
		TargetType:              td.TargetType,
		Actions:                 result.Actions,
		OutputItems:             result.OutputItems,
		ModuleNameToOutputItems: result.ModuleNameToOutputItems,
		HotReloadModuleNames:    result.HotReloadModuleNames,
		SourceDirectories:       result.SourceDirectories,
		DirectoryToSourceFiles:  dirToFiles,
		WorkingSet:              workingSet,
		PluginFiles:             result.PluginFiles,
		UObjectModules:          result.UObjectModules,
		UObjectModuleHeaders:    result.UObjectModuleHeaders,
		ConfigValueTracker:      tracker,
		PreBuildScripts:         result.PreBuildScripts,
		AdditionalArguments:     append([]string(nil), td.AdditionalArguments...),
		EnvironmentVariables:    snapshotEnv(td.EnvironmentOverrides),
		paths:                   paths,
	}
	makefileLog.Printf("generated makefile: target=%s actions=%d", td.Name, len(mf.Actions))
	return mf, nil
}

func snapshotEnv(overrides map[string]string) map[string]string {
	env := make(map[string]string, len(overrides))
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// ReasonNotLoaded explains why Load refused a cached makefile.
type ReasonNotLoaded string

func (r ReasonNotLoaded) Error() string { return string(r) }

const (
	ReasonFileAbsent         ReasonNotLoaded = "makefile cache file does not exist"
	ReasonVersionMismatch    ReasonNotLoaded = "makefile format version mismatch"
	ReasonStaleAgainstInput  ReasonNotLoaded = "makefile is older than an invalidation input"
	ReasonArgumentsChanged   ReasonNotLoaded = "additional arguments differ from the cached build"
	ReasonConfigChanged      ReasonNotLoaded = "tracked config values changed since the cached build"
	ReasonMetadataChanged    ReasonNotLoaded = "external metadata token differs from the cached build"
)

// LoadOptions carries the invalidation inputs Load compares the cached
// makefile's timestamps and arguments against.
type LoadOptions struct {
	AdditionalArguments []string
	ExternalMetadata    string
	InvalidationInputs  []string // e.g. build-tool binary, generated-project-files stamp, XML config files
	CurrentConfig       *configtracker.Tracker
}

// Load reads a cached makefile from path, or returns a ReasonNotLoaded
// (not a fatal error) describing why it must be regenerated.
func Load(paths *item.Paths, path string, opts LoadOptions) (*Makefile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ReasonFileAbsent
		}
		return nil, builderr.Wrap(err, path, "failed to open makefile cache")
	}
	defer f.Close()

	mf, err := readFrom(paths, f)
	if err != nil {
		return nil, ReasonVersionMismatch
	}

	cacheInfo, statErr := os.Stat(path)
	if statErr == nil {
		for _, input := range opts.InvalidationInputs {
			info, err := os.Stat(input)
			if err == nil && info.ModTime().UnixNano() > cacheInfo.ModTime().UnixNano() {
				return nil, ReasonStaleAgainstInput
			}
		}
	}

	if !stringSliceEqual(mf.AdditionalArguments, opts.AdditionalArguments) {
		return nil, ReasonArgumentsChanged
	}
	if mf.ExternalMetadata != opts.ExternalMetadata {
		return nil, ReasonMetadataChanged
	}
	if opts.CurrentConfig != nil {
		if err := mf.ConfigValueTracker.Revalidate(opts.CurrentConfig, nil, nil); err != nil {
			return nil, ReasonConfigChanged
		}
	}

	return mf, nil
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsValidForSourceFiles implements spec.md §4.2: re-scans every source
// directory whose mtime exceeds CreateTimeUTC, comparing file sets; also
// checks external/internal dependency timestamps and compares the
// caller's current working-set/candidate classification against what
// was recorded at generation time — any file moving across that
// boundary invalidates the cache.
func (mf *Makefile) IsValidForSourceFiles(currentWorkingSet, currentCandidates map[item.FileID]bool) (bool, string) {
	for _, dir := range mf.SourceDirectories {
		files, subdirs := mf.paths.Children(dir)
		cached := mf.DirectoryToSourceFiles[dir]
		if !fileSetEqual(files, cached) {
			return false, "source file added or removed"
		}
		for _, sub := range subdirs {
			subFiles, _ := mf.paths.Children(sub)
			if len(subFiles) > 0 {
				if _, watched := mf.DirectoryToSourceFiles[sub]; !watched {
					return false, "new source sub-directory appeared"
				}
			}
		}
	}

	for _, dep := range mf.ExternalDependencies {
		info := mf.paths.Stat(dep)
		if info.Exists && info.ModTime > mf.CreateTimeUTC {
			return false, "external dependency changed"
		}
	}
	for _, dep := range mf.InternalDependencies {
		info := mf.paths.Stat(dep)
		if info.Exists && info.ModTime > mf.ModifiedTimeUTC {
			return false, "internal dependency changed"
		}
	}

	for f := range mf.WorkingSet {
		if !currentWorkingSet[f] {
			return false, "file moved out of the working set"
		}
	}
	for f := range mf.CandidatesForWorkingSet {
		wasInSet := mf.WorkingSet[f]
		nowInSet := currentWorkingSet[f]
		if wasInSet != nowInSet && !currentCandidates[f] {
			return false, "file moved across the working-set boundary"
		}
	}

	return true, ""
}

func fileSetEqual(a, b []item.FileID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[item.FileID]bool, len(a))
	for _, f := range a {
		seen[f] = true
	}
	for _, f := range b {
		if !seen[f] {
			return false
		}
	}
	return true
}

// Save atomically persists mf to path using the archive format.
func (mf *Makefile) Save(path string) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return builderr.Wrap(err, path, "failed to create makefile temp file")
	}

	if err := mf.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return builderr.Wrap(err, path, "failed to write makefile")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return builderr.Wrap(err, path, "failed to close makefile temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return builderr.Wrap(err, path, "failed to install makefile")
	}
	makefileLog.Printf("saved makefile: path=%s actions=%d", path, len(mf.Actions))
	return nil
}
