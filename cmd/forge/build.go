package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/pkg/console"
	"github.com/forgebuild/forge/pkg/constants"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/manifest"
	"github.com/forgebuild/forge/pkg/orchestrator"
)

// buildFlags mirrors the CLI surface named in spec.md §6 verbatim plus
// the descriptor/manifest/coordinator plumbing the core needs to have
// something to build.
type buildFlags struct {
	cacheDir               string
	engineDir              string
	skipBuild              bool
	xgeExport              bool
	noEngineChanges        bool
	writeOutdatedActions   string
	ignoreJunk             bool
	logSuffix              string
	noLog                  bool
	maxProcessors          int
	distributedCoordinator string
	hotReloadModules       []string
	usePTY                 bool
	watch                  bool
	xgeNoWatchdog          bool
}

func newBuildCommand() *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build <target.yaml> <actions.json>",
		Short: "Build a target from its descriptor and action manifest",
		Long: `Build loads a target descriptor and its action manifest, computes
what is out of date against the on-disk caches, and runs it locally or
through a distributed coordinator.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0], args[1], f)
		},
	}

	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", constants.DefaultIntermediateDir, "directory holding Makefile.bin, caches and hot-reload state")
	cmd.Flags().StringVar(&f.engineDir, "engine-dir", "", "directory that -no-engine-changes protects from modification")
	cmd.Flags().BoolVar(&f.skipBuild, "skip-build", false, "compute outdatedness but do not execute any action")
	cmd.Flags().BoolVar(&f.xgeExport, "xge-export", false, "execute through the distributed coordinator instead of locally")
	cmd.Flags().BoolVar(&f.noEngineChanges, "no-engine-changes", false, "fail before any action runs if the build would modify files under --engine-dir")
	cmd.Flags().StringVar(&f.writeOutdatedActions, "write-outdated-actions", "", "write the outdated-action subgraph as JSON to this path")
	cmd.Flags().BoolVar(&f.ignoreJunk, "ignore-junk", false, "skip stale temp-file cleanup in the cache directory")
	cmd.Flags().StringVar(&f.logSuffix, "log-suffix", "", "suffix appended to the log namespace for this invocation")
	cmd.Flags().BoolVar(&f.noLog, "no-log", false, "suppress orchestrator logging")
	cmd.Flags().IntVar(&f.maxProcessors, "max-processors", 0, "cap the local executor's worker-pool size (0 = default)")
	cmd.Flags().StringVar(&f.distributedCoordinator, "distributed-coordinator", "", "path to the external distributed-build coordinator binary")
	cmd.Flags().StringSliceVar(&f.hotReloadModules, "hot-reload-module", nil, "module name to apply the hot-reload suffix rename to (repeatable); implies hot-reload mode")
	cmd.Flags().BoolVar(&f.usePTY, "pty", false, "attach spawned compiler/linker children through a pty, preserving colorized diagnostics")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "rebuild automatically whenever the descriptor or action manifest changes")
	cmd.Flags().BoolVar(&f.xgeNoWatchdog, "xge-no-watchdog", false, "pass the distributed coordinator's watchdog-suppression flag (--xge-export only)")

	return cmd
}

func runBuild(cmd *cobra.Command, descriptorPath, manifestPath string, f *buildFlags) error {
	if f.watch {
		return watchAndBuild(descriptorPath, manifestPath, f)
	}

	result, err := buildOnce(descriptorPath, manifestPath, f)
	if err != nil {
		return err
	}

	printBuildResult(result)
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

func buildOnce(descriptorPath, manifestPath string, f *buildFlags) (*orchestrator.Result, error) {
	td, err := descriptor.Load(descriptorPath)
	if err != nil {
		return nil, err
	}

	target := orchestrator.Target{
		Descriptor: td,
		Assembler:  manifest.Assembler{Path: manifestPath},
	}

	o := orchestrator.Open(item.New(), f.cacheDir)
	return o.Build(context.Background(), []orchestrator.Target{target}, orchestrator.Options{
		SkipBuild:              f.skipBuild,
		XGEExport:              f.xgeExport,
		NoEngineChanges:        f.noEngineChanges,
		WriteOutdatedActions:   f.writeOutdatedActions,
		IgnoreJunk:             f.ignoreJunk,
		LogSuffix:              f.logSuffix,
		NoLog:                  f.noLog,
		CacheDir:               f.cacheDir,
		EngineDir:              f.engineDir,
		MaxProcessorCount:      f.maxProcessors,
		DistributedCoordinator: f.distributedCoordinator,
		HotReloadFromEditor:    len(f.hotReloadModules) > 0,
		ChangedModules:         f.hotReloadModules,
		UsePTY:                 f.usePTY,
		SuppressWatchdog:       f.xgeNoWatchdog,
	})
}

// watchAndBuild rebuilds descriptorPath/manifestPath whenever either
// file changes, debouncing bursts of writes from an editor's save.
// Grounded on the pack's fsnotify.NewBufferedWatcher plus debounce-timer
// watch loop for recompiling on file change.
func watchAndBuild(descriptorPath, manifestPath string, f *buildFlags) error {
	watcher, err := fsnotify.NewBufferedWatcher(100)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{filepath.Dir(descriptorPath), filepath.Dir(manifestPath)} {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	rebuild := func() {
		result, err := buildOnce(descriptorPath, manifestPath, f)
		if err != nil {
			fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
			return
		}
		printBuildResult(result)
	}

	fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("watching %s and %s for changes...", descriptorPath, manifestPath)))
	rebuild()

	const debounceDelay = 300 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if event.Has(fsnotify.Chmod) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, rebuild)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			fmt.Fprintln(os.Stderr, console.FormatWarningMessage(fmt.Sprintf("watch error: %v", err)))
		case <-sigChan:
			fmt.Fprintln(os.Stderr, console.FormatInfoMessage("stopping watch"))
			return nil
		}
	}
}

func printBuildResult(result *orchestrator.Result) {
	rows := make([][]string, 0, len(result.Targets))
	for _, tr := range result.Targets {
		rows = append(rows, []string{
			tr.Target,
			fmt.Sprintf("%v", tr.Regenerated),
			fmt.Sprintf("%d", len(tr.ActionsToExecute)),
			fmt.Sprintf("%d", len(tr.ActionsRun)),
		})
	}
	fmt.Fprintln(os.Stderr, console.RenderTable(console.TableConfig{
		Title:   "Build Result",
		Headers: []string{"Target", "Regenerated", "Outdated", "Ran"},
		Rows:    rows,
	}))

	for _, tr := range result.Targets {
		for _, r := range tr.ActionsRun {
			if r.Err != nil {
				fmt.Fprintln(os.Stderr, console.FormatErrorMessage(fmt.Sprintf("action %d failed: %v\n%s", r.ID, r.Err, r.Output)))
			}
		}
	}

	if result.ExitCode != 0 {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage("build failed"))
	} else {
		fmt.Fprintln(os.Stderr, console.FormatSuccessMessage("build succeeded"))
	}
}
