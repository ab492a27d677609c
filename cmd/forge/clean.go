package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/pkg/console"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/manifest"
)

func newCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean <target.yaml> <actions.json>",
		Short: "Delete every item a target's manifest produces",
		Long: `Clean re-assembles a target's action manifest and removes every
produced item from disk, without touching the caches under --cache-dir
(the next build reuses the makefile and re-runs the actions whose
outputs were deleted, since a missing output makes an action outdated).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(args[0], args[1])
		},
	}
	return cmd
}

func runClean(descriptorPath, manifestPath string) error {
	td, err := descriptor.Load(descriptorPath)
	if err != nil {
		return err
	}

	paths := item.New()
	result, err := (manifest.Assembler{Path: manifestPath}).Assemble(td, paths, nil)
	if err != nil {
		return err
	}

	removed := 0
	for _, a := range result.Actions {
		for _, produced := range a.ProducedItems {
			p := paths.Path(produced)
			if err := os.Remove(p); err == nil {
				removed++
			} else if !os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, console.FormatWarningMessage(fmt.Sprintf("failed to remove %s: %v", p, err)))
			}
		}
	}
	fmt.Fprintln(os.Stderr, console.FormatSuccessMessage(fmt.Sprintf("removed %d produced item(s)", removed)))
	return nil
}
