// Command forge is the incremental build orchestrator's CLI entry
// point: it wires a target descriptor and an action manifest through
// pkg/orchestrator and reports the result. Grounded on the teacher's
// cmd/gh-aw/main.go cobra root-command setup (command groups, a
// persistent --verbose flag, a custom "help all", per-command
// NewXxxCommand factories assigned a GroupID before being added to the
// root).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/pkg/console"
	"github.com/forgebuild/forge/pkg/constants"
)

var version = "dev"

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:     constants.CLIName,
	Short:   "Incremental build orchestrator",
	Version: version,
	Long: `forge — an incremental build orchestrator for large C++ codebases

Common tasks:
  forge build target.yaml actions.json      # build one target from a descriptor + manifest
  forge export target.yaml actions.json out.json   # export the linked action graph as JSON
  forge cache stats                                # show cache sizes
  forge hot-reload target.yaml actions.json Game   # advance the hot-reload suffix

For detailed help on any command, use:
  forge [command] --help`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "build", Title: "Build Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "inspect", Title: "Inspection Commands:"})

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose output")
	rootCmd.SetOut(os.Stderr)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n", console.FormatInfoMessage(fmt.Sprintf("%s version {{.Version}}", constants.CLIName))))

	customHelpCmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides help for any command in forge.

Use "forge help all" to show help for every command.`,
		Run: func(c *cobra.Command, args []string) {
			if len(args) == 1 && args[0] == "all" {
				fmt.Fprintln(os.Stderr, console.FormatInfoMessage("forge — complete command reference"))
				fmt.Fprintln(os.Stderr, "")
				for _, subCmd := range rootCmd.Commands() {
					if subCmd.Hidden || subCmd.Name() == "help" {
						continue
					}
					fmt.Fprintf(os.Stderr, "\n%s\n\n", console.FormatInfoMessage("Command: forge "+subCmd.Name()))
					_ = subCmd.Help()
				}
				return
			}

			cmd, _, err := rootCmd.Find(args)
			if cmd == nil || err != nil {
				fmt.Fprintf(os.Stderr, "Unknown help topic %#q\n", args)
				_ = rootCmd.Usage()
				return
			}
			cmd.InitDefaultHelpFlag()
			_ = cmd.Help()
		},
	}
	rootCmd.SetHelpCommand(customHelpCmd)

	buildCmd := newBuildCommand()
	cleanCmd := newCleanCommand()
	exportCmd := newExportCommand()
	hotReloadCmd := newHotReloadCommand()
	liveCodingCmd := newLiveCodingCommand()
	cacheCmd := newCacheCommand()

	buildCmd.GroupID = "build"
	cleanCmd.GroupID = "build"
	hotReloadCmd.GroupID = "build"
	liveCodingCmd.GroupID = "build"
	exportCmd.GroupID = "inspect"
	cacheCmd.GroupID = "inspect"

	rootCmd.AddCommand(buildCmd, cleanCmd, exportCmd, hotReloadCmd, liveCodingCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
