package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/pkg/console"
	"github.com/forgebuild/forge/pkg/depcache"
	"github.com/forgebuild/forge/pkg/history"
	"github.com/forgebuild/forge/pkg/hotreload"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/sourcecache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the on-disk caches under a cache directory",
	}
	cmd.AddCommand(newCacheStatsCommand(), newCacheClearCommand(), newCacheInspectCommand())
	return cmd
}

func openCaches(cacheDir string) (*item.Paths, *sourcecache.Cache, *depcache.Cache, *history.History, *hotreload.State) {
	paths := item.New()
	src := sourcecache.Load(paths, filepath.Join(cacheDir, "SourceMetadata.bin"))
	dep := depcache.Load(paths, filepath.Join(cacheDir, "Dependencies.bin"))
	hist := history.Load(paths, filepath.Join(cacheDir, "ActionHistory.bin"))
	hr := hotreload.Load(paths, filepath.Join(cacheDir, "HotReload.state"))
	return paths, src, dep, hist, hr
}

func newCacheStatsCommand() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts for every cache layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, src, dep, hist, hr := openCaches(cacheDir)
			fmt.Fprintln(os.Stderr, console.RenderTable(console.TableConfig{
				Title:   "Cache Stats",
				Headers: []string{"Cache", "Entries"},
				Rows: [][]string{
					{"SourceMetadata", fmt.Sprintf("%d", src.Count())},
					{"Dependencies", fmt.Sprintf("%d", dep.Count())},
					{"ActionHistory", fmt.Sprintf("%d", hist.Count())},
					{"HotReload (renamed)", fmt.Sprintf("%d", len(hr.OriginalToHotReload))},
				},
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "Intermediate/Build", "directory holding the cache files")
	return cmd
}

func newCacheClearCommand() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache file, forcing the next build to start cold",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := 0
			for _, name := range []string{"SourceMetadata.bin", "Dependencies.bin", "ActionHistory.bin", "HotReload.state"} {
				p := filepath.Join(cacheDir, name)
				if err := os.Remove(p); err == nil {
					removed++
				} else if !os.IsNotExist(err) {
					return err
				}
			}
			fmt.Fprintln(os.Stderr, console.FormatSuccessMessage(fmt.Sprintf("cleared %d cache file(s)", removed)))
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "Intermediate/Build", "directory holding the cache files")
	return cmd
}

func newCacheInspectCommand() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Interactively browse ActionHistory entries",
		Long: `Inspect opens a picker over every produced item recorded in
ActionHistory and prints its stored command-line hash.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheInspect(cacheDir)
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "Intermediate/Build", "directory holding the cache files")
	return cmd
}

func runCacheInspect(cacheDir string) error {
	if os.Getenv("CI") != "" {
		return fmt.Errorf("cache inspect is interactive and cannot run in CI")
	}

	paths, _, _, hist, _ := openCaches(cacheDir)
	entries := hist.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage("ActionHistory is empty"))
		return nil
	}

	options := make([]huh.Option[string], 0, len(entries))
	for _, produced := range entries {
		options = append(options, huh.NewOption(paths.Path(produced), paths.Path(produced)))
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select a produced item").
				Description("Browse ActionHistory entries to inspect their stored command hash").
				Options(options...).
				Height(10).
				Value(&selected),
		),
	).WithAccessible(isAccessibleMode())

	if err := form.Run(); err != nil {
		return err
	}

	hash, _ := hist.CommandHash(paths.File(selected))
	fmt.Fprintln(os.Stderr, console.FormatInfoMessage(fmt.Sprintf("%s: command hash %016x", selected, hash)))
	return nil
}

func isAccessibleMode() bool {
	return os.Getenv("ACCESSIBLE") != "" || os.Getenv("TERM") == "dumb" || os.Getenv("NO_COLOR") != ""
}
