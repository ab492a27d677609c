// Package orchestrator implements the top-level build-mode control flow
// from spec.md §2: for each target descriptor, load-or-create its
// makefile, apply any pending hot-reload state, compute the set of
// actions to execute, merge multi-target graphs, select an executor,
// and run it. Grounded on the teacher's CompileWorkflows/compile
// pipeline in pkg/cli/compile_orchestrator.go (context-cancellation
// check up front, config validation, early watch-mode branch, stats
// tracking) generalized from "compile markdown to YAML" to "build a set
// of target descriptors to a set of produced binaries."
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/configtracker"
	"github.com/forgebuild/forge/pkg/depcache"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/executor"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/history"
	"github.com/forgebuild/forge/pkg/hotreload"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
	"github.com/forgebuild/forge/pkg/makefile"
	"github.com/forgebuild/forge/pkg/sourcecache"
)

var orchestratorLog = logger.New("forge:orchestrator")

// Options mirrors the CLI surface named in spec.md §6.
type Options struct {
	SkipBuild              bool
	XGEExport              bool // distributed execution via an external coordinator
	NoEngineChanges        bool
	WriteOutdatedActions   string // path; empty disables
	IgnoreJunk             bool
	LogSuffix              string
	NoLog                  bool

	CacheDir              string // where Makefile.bin, caches and hot-reload state live
	EngineDir             string // produced items under this dir trip EngineReadOnlyViolation
	MaxProcessorCount     int
	DistributedCoordinator string

	HotReloadFromEditor bool
	ChangedModules      []string

	// UsePTY attaches local-executor children through a pty, matching
	// forge build --pty.
	UsePTY bool

	// SuppressWatchdog passes the distributed coordinator's
	// watchdog-suppression flag, matching forge build --xge-no-watchdog.
	SuppressWatchdog bool
}

// TargetResult is one target descriptor's build outcome.
type TargetResult struct {
	Target         string
	Makefile       *makefile.Makefile
	ActionsRun     []executor.ActionResult
	ActionsToExecute map[graph.ActionID]bool
	Regenerated    bool
}

// Result is the aggregate outcome of a Build call across every target.
type Result struct {
	Targets  []TargetResult
	ExitCode int
}

// Orchestrator bundles the paths arena and the three metadata caches
// shared across every target in one invocation.
type Orchestrator struct {
	Paths      *item.Paths
	Source     *sourcecache.Cache
	Deps       *depcache.Cache
	History    *history.History
	HotReload  *hotreload.State
}

// Open loads (or starts empty for) every cache under cacheDir.
func Open(paths *item.Paths, cacheDir string) *Orchestrator {
	return &Orchestrator{
		Paths:     paths,
		Source:    sourcecache.Load(paths, filepath.Join(cacheDir, "SourceMetadata.bin")),
		Deps:      depcache.Load(paths, filepath.Join(cacheDir, "Dependencies.bin")),
		History:   history.Load(paths, filepath.Join(cacheDir, "ActionHistory.bin")),
		HotReload: hotreload.Load(paths, filepath.Join(cacheDir, "HotReload.state")),
	}
}

// Save persists every cache that has unsaved mutations.
func (o *Orchestrator) Save(cacheDir string) error {
	if err := o.Source.Save(filepath.Join(cacheDir, "SourceMetadata.bin")); err != nil {
		return err
	}
	if err := o.Deps.Save(filepath.Join(cacheDir, "Dependencies.bin")); err != nil {
		return err
	}
	if err := o.History.Save(filepath.Join(cacheDir, "ActionHistory.bin")); err != nil {
		return err
	}
	if err := o.HotReload.Save(filepath.Join(cacheDir, "HotReload.state")); err != nil {
		return err
	}
	return nil
}

// Target bundles everything one target descriptor needs to build.
type Target struct {
	Descriptor *descriptor.TargetDescriptor
	Assembler  makefile.RuleAssembler
	WorkingSet map[item.FileID]bool
}

// Build runs the orchestrator's control-flow diagram for every target:
// load-or-regenerate its makefile, apply a pending hot-reload edit,
// compute outdatedness, merge the per-target graphs, execute, and
// persist every cache and makefile that changed.
func (o *Orchestrator) Build(ctx context.Context, targets []Target, opts Options) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if opts.CacheDir == "" {
		return nil, builderr.New(builderr.IoError, "cache directory must be set")
	}

	result := &Result{}
	var graphs []*graph.Graph
	var roots []item.FileID

	for _, t := range targets {
		tr := TargetResult{Target: t.Descriptor.Name}

		mf, err := o.loadOrRegenerate(t, opts)
		if err != nil {
			return nil, err
		}
		tr.Regenerated = mf.regenerated
		tr.Makefile = mf.mf

		if opts.NoEngineChanges && opts.EngineDir != "" {
			if violatesEngineReadOnly(mf.mf, o.Paths, opts.EngineDir) {
				return nil, builderr.Newf(builderr.EngineReadOnlyViolation,
					"target %q would modify engine files under %s", t.Descriptor.Name, opts.EngineDir)
			}
		}

		g := graph.New(o.Paths)
		for _, a := range mf.mf.Actions {
			g.Add(a)
		}
		if err := g.Link(); err != nil {
			return nil, err
		}

		if opts.HotReloadFromEditor && len(opts.ChangedModules) > 0 {
			if _, err := hotreload.ApplySuffixMode(g, o.HotReload, mf.mf.ModuleNameToOutputItems, opts.ChangedModules); err != nil {
				return nil, err
			}
			if err := g.Link(); err != nil {
				return nil, err
			}
		}

		graphs = append(graphs, g)
		roots = append(roots, mf.mf.OutputItems...)

		result.Targets = append(result.Targets, tr)
	}

	merged, err := graph.MergeGraphs(graphs)
	if err != nil {
		return nil, err
	}

	toExecute, err := merged.GetActionsToExecute(roots, o.Deps, o.History, true)
	if err != nil {
		return nil, err
	}
	for i := range result.Targets {
		result.Targets[i].ActionsToExecute = toExecute
	}

	if opts.WriteOutdatedActions != "" {
		if err := writeOutdatedActions(merged, toExecute, opts.WriteOutdatedActions); err != nil {
			return nil, err
		}
	}

	if opts.SkipBuild || len(toExecute) == 0 {
		if err := o.Save(opts.CacheDir); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := merged.DeleteOutdatedProducedItems(toExecute); err != nil {
		return nil, err
	}
	if err := merged.CreateDirectoriesForProducedItems(toExecute); err != nil {
		return nil, err
	}

	var results []executor.ActionResult
	if opts.XGEExport {
		results, err = o.runDistributed(ctx, merged, toExecute, opts)
	} else {
		results, err = executor.RunLocal(ctx, merged, toExecute, executor.LocalOptions{
			MaxProcessorCount: opts.MaxProcessorCount,
			Multiplier:        1,
			UsePTY:            opts.UsePTY,
		})
	}
	if err != nil {
		return nil, err
	}

	exitCode := 0
	for _, r := range results {
		if r.Err != nil {
			exitCode = 1
			continue
		}
		a := merged.Actions[r.ID]
		hash := graph.HashCommandLine(o.Paths.Path(a.CommandPath), a.CommandArguments)
		for _, produced := range a.ProducedItems {
			o.History.Record(produced, hash)
			o.Paths.Reset(produced)
		}
		if a.DependencyListFile != nil {
			for _, produced := range a.ProducedItems {
				_ = o.Deps.Update(produced, o.Paths.Path(*a.DependencyListFile))
			}
		}
	}
	result.ExitCode = exitCode
	if len(result.Targets) > 0 {
		result.Targets[0].ActionsRun = results
	}

	if !opts.IgnoreJunk {
		if err := cleanStaleTempFiles(opts.CacheDir); err != nil {
			orchestratorLog.Printf("junk cleanup failed: %v", err)
		}
	}

	if err := o.Save(opts.CacheDir); err != nil {
		return nil, err
	}
	for _, t := range targets {
		mfPath := filepath.Join(opts.CacheDir, t.Descriptor.Name+".Makefile.bin")
		for _, tr := range result.Targets {
			if tr.Target == t.Descriptor.Name {
				if err := tr.Makefile.Save(mfPath); err != nil {
					return nil, err
				}
			}
		}
	}

	return result, nil
}

type loadResult struct {
	mf          *makefile.Makefile
	regenerated bool
}

func (o *Orchestrator) loadOrRegenerate(t Target, opts Options) (*loadResult, error) {
	mfPath := filepath.Join(opts.CacheDir, t.Descriptor.Name+".Makefile.bin")

	tracker := configtracker.New()
	mf, err := makefile.Load(o.Paths, mfPath, makefile.LoadOptions{
		AdditionalArguments: t.Descriptor.AdditionalArguments,
		CurrentConfig:       tracker,
	})
	if err == nil {
		if ok, reason := mf.IsValidForSourceFiles(t.WorkingSet, nil); ok {
			return &loadResult{mf: mf}, nil
		} else {
			orchestratorLog.Printf("regenerating makefile for %s: %s", t.Descriptor.Name, reason)
		}
	} else {
		orchestratorLog.Printf("makefile for %s not reused: %v", t.Descriptor.Name, err)
	}

	generated, err := makefile.Generate(o.Paths, t.Descriptor, t.Assembler, t.WorkingSet, nil, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	return &loadResult{mf: generated, regenerated: true}, nil
}

func violatesEngineReadOnly(mf *makefile.Makefile, paths *item.Paths, engineDir string) bool {
	for _, f := range mf.OutputItems {
		if withinDir(paths.Path(f), engineDir) {
			return true
		}
	}
	return false
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeOutdatedActions(g *graph.Graph, toExecute map[graph.ActionID]bool, path string) error {
	sub := graph.New(g.Paths)
	for id := range toExecute {
		sub.Add(g.Actions[id])
	}
	if err := sub.Link(); err != nil {
		return err
	}
	if err := sub.ExportJSON(path); err != nil {
		return builderr.Wrap(err, path, "failed to write outdated-actions report")
	}
	return nil
}

func (o *Orchestrator) runDistributed(ctx context.Context, g *graph.Graph, toExecute map[graph.ActionID]bool, opts Options) ([]executor.ActionResult, error) {
	taskPath := filepath.Join(opts.CacheDir, "tasks.xml")
	bs := executor.BuildTaskFile(g, toExecute, nil)
	if err := executor.WriteTaskFile(bs, taskPath); err != nil {
		return nil, err
	}

	err := executor.RunDistributed(ctx, executor.DistributedOptions{
		CoordinatorPath:  opts.DistributedCoordinator,
		TaskFilePath:     taskPath,
		SuppressWatchdog: opts.SuppressWatchdog,
	})

	var results []executor.ActionResult
	for id := range toExecute {
		results = append(results, executor.ActionResult{ID: id, Err: err})
	}
	return results, err
}

// cleanStaleTempFiles removes ".tmp" files left behind in cacheDir by an
// atomic save that crashed mid-rename, so -IgnoreJunk=false invocations
// don't accumulate them across runs.
func cleanStaleTempFiles(cacheDir string) error {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return builderr.Wrap(err, cacheDir, "failed to scan cache directory for stale temp files")
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			_ = os.Remove(filepath.Join(cacheDir, e.Name()))
		}
	}
	return nil
}
