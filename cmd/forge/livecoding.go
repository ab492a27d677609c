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

func newLiveCodingCommand() *cobra.Command {
	var linkerPath string
	var manifestOut string
	var lockPath string

	cmd := &cobra.Command{
		Use:   "live-coding <target.yaml> <actions.json>",
		Short: "Redirect a target's compiles to live-coding side-channel outputs",
		Long: `Live-coding links a target's action graph, redirects every compile
action's object output to a ".lc.obj" side channel, and writes the JSON
manifest the host's live-patch integration reads once linking completes.
Acquires the session lock for the duration of the command.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLiveCoding(args[0], args[1], linkerPath, manifestOut, lockPath)
		},
	}
	cmd.Flags().StringVar(&linkerPath, "linker", "", "linker path recorded in the live-coding manifest")
	cmd.Flags().StringVar(&manifestOut, "out", "livecoding.json", "path to write the live-coding manifest to")
	cmd.Flags().StringVar(&lockPath, "lock", "", "session lock file path (default: <out directory>/LiveCoding.lock)")
	return cmd
}

func runLiveCoding(descriptorPath, manifestPath, linkerPath, manifestOut, lockPath string) error {
	if lockPath == "" {
		lockPath = filepath.Join(filepath.Dir(manifestOut), "LiveCoding.lock")
	}
	lock, err := hotreload.AcquireForSession(lockPath)
	if err != nil {
		return err
	}
	defer lock.Release()

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

	redirected := hotreload.RedirectForLiveCoding(g)

	modulesByOutput := make(map[string][]string)
	for id, newObj := range redirected {
		a := g.Actions[id]
		for _, dependant := range a.Dependants {
			link := g.Actions[dependant]
			if link.Type != graph.Link || len(link.ProducedItems) == 0 {
				continue
			}
			out := paths.Path(link.ProducedItems[0])
			modulesByOutput[out] = append(modulesByOutput[out], newObj)
		}
	}

	live := &hotreload.LiveManifest{LinkerPath: linkerPath}
	for out, inputs := range modulesByOutput {
		live.Modules = append(live.Modules, hotreload.LiveModule{Output: out, Inputs: inputs})
	}

	if err := hotreload.WriteManifest(live, manifestOut); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, console.FormatSuccessMessage(fmt.Sprintf("redirected %d compile(s), wrote manifest to %s", len(redirected), manifestOut)))
	return nil
}
