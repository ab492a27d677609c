package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/pkg/console"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/hotreload"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/manifest"
)

func newHotReloadCommand() *cobra.Command {
	var cacheDir string
	var lockPath string

	cmd := &cobra.Command{
		Use:   "hot-reload <target.yaml> <actions.json> <module>...",
		Short: "Advance the hot-reload suffix for the given modules",
		Long: `Hot-reload links a target's action graph, rewrites the outputs of
every action feeding the named modules to the next "-NNNN" suffix, and
persists the rename in the hot-reload state file under --cache-dir.
Refuses to run while another session holds the lock file.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHotReload(args[0], args[1], args[2:], cacheDir, lockPath)
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "Intermediate/Build", "directory holding HotReload.state")
	cmd.Flags().StringVar(&lockPath, "lock", "", "session lock file path (default: <cache-dir>/HotReload.lock)")
	return cmd
}

func runHotReload(descriptorPath, manifestPath string, modules []string, cacheDir, lockPath string) error {
	if lockPath == "" {
		lockPath = filepath.Join(cacheDir, "HotReload.lock")
	}
	if err := hotreload.CheckNoSession(lockPath); err != nil {
		return err
	}

	td, err := descriptor.Load(descriptorPath)
	if err != nil {
		return err
	}

	paths := item.New()
	result, err := (manifest.Assembler{Path: manifestPath}).Assemble(td, paths, nil)
	if err != nil {
		return err
	}

	g := graph.New(paths)
	for _, a := range result.Actions {
		g.Add(a)
	}
	if err := g.Link(); err != nil {
		return err
	}

	statePath := filepath.Join(cacheDir, "HotReload.state")
	state := hotreload.Load(paths, statePath)

	rename, err := hotreload.ApplySuffixMode(g, state, result.ModuleNameToOutputItems, modules)
	if err != nil {
		return err
	}
	if err := state.Save(statePath); err != nil {
		return err
	}

	for old, new := range rename {
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("%s -> %s", paths.Path(old), paths.Path(new))))
	}
	fmt.Fprintln(os.Stderr, console.FormatSuccessMessage(fmt.Sprintf("renamed %d item(s), next suffix %04d", len(rename), state.NextSuffix)))
	return nil
}
