package executor

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/cli/go-gh/v2/pkg/auth"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
	"github.com/forgebuild/forge/pkg/sliceutil"
	"github.com/forgebuild/forge/pkg/stringutil"
)

var distLog = logger.New("forge:executor:distributed")

// BuildSet is the distributed task XML root element, per spec.md §6.
type BuildSet struct {
	XMLName       xml.Name      `xml:"BuildSet"`
	FormatVersion string        `xml:"FormatVersion,attr"`
	Environments  Environments  `xml:"Environments"`
	Project       ProjectNode   `xml:"Project"`
}

type Environments struct {
	Environment []Environment `xml:"Environment"`
}

type Environment struct {
	Name      string     `xml:"Name,attr"`
	Tools     Tools      `xml:"Tools"`
	Variables []Variable `xml:"Variables>Variable,omitempty"`
}

type Tools struct {
	Tool []Tool `xml:"Tool"`
}

type Tool struct {
	Name              string `xml:"Name,attr"`
	AllowRemote       bool   `xml:"AllowRemote,attr"`
	AllowIntercept    bool   `xml:"AllowIntercept,attr"`
	OutputPrefix      string `xml:"OutputPrefix,attr"`
	GroupPrefix       string `xml:"GroupPrefix,attr"`
	Params            string `xml:"Params,attr"`
	Path              string `xml:"Path,attr"`
	OutputFileMasks   string `xml:"OutputFileMasks,attr"`
	AutoReserveMemory string `xml:"AutoReserveMemory,attr,omitempty"`
	AutoRecover       string `xml:"AutoRecover,attr,omitempty"`
	SkipIfProjectFailed bool `xml:"SkipIfProjectFailed,attr"`
}

type Variable struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

type ProjectNode struct {
	Name string `xml:"Name,attr"`
	Env  string `xml:"Env,attr"`
	Task []Task `xml:"Task"`
}

type Task struct {
	Name                string `xml:"Name,attr"`
	Tool                string `xml:"Tool,attr"`
	WorkingDir          string `xml:"WorkingDir,attr"`
	SourceFile          string `xml:"SourceFile,attr"`
	Caption             string `xml:"Caption,attr"`
	SkipIfProjectFailed bool   `xml:"SkipIfProjectFailed,attr"`
	AllowRestartOnLocal bool   `xml:"AllowRestartOnLocal,attr"`
	DependsOn           string `xml:"DependsOn,attr,omitempty"`
}

// progressLinePattern matches the tool-output progress prefix "@action".
var progressLinePattern = regexp.MustCompile(`^@action\b`)

// timingTrailerPattern matches a trailing " (HH:MM:SS)" to be suppressed.
var timingTrailerPattern = regexp.MustCompile(`\s\(\d{2}:\d{2}:\d{2}\)\s*$`)

// DistributedOptions configures the distributed executor.
type DistributedOptions struct {
	CoordinatorPath string
	TaskFilePath    string
	StopOnError     bool
	CoordinatorIsGHHosted bool
	// SuppressWatchdog passes /NoWatchdogThread, working around
	// coordinator builds whose watchdog thread misfires against slow
	// CI hosts and aborts an otherwise-healthy build (spec.md §4.4's
	// "watchdog-suppression" flag).
	SuppressWatchdog bool
	OnProgress      func(n int)
	OnLine          func(line string)
}

// BuildTaskFile constructs the BuildSet XML for the actions in toExecute,
// one Tool/Task per action, naming each task "Action{index}" (stable
// across a batch). Edges to producers outside the batch are omitted
// (the dependency is assumed already satisfied).
func BuildTaskFile(g *graph.Graph, toExecute map[graph.ActionID]bool, env map[string]string) *BuildSet {
	var tools []Tool
	var tasks []Task

	for id := range toExecute {
		a := g.Actions[id]
		toolName := fmt.Sprintf("Tool%d", id)
		taskName := fmt.Sprintf("Action%d", id)

		tools = append(tools, Tool{
			Name:                toolName,
			AllowRemote:         a.CanExecuteRemotely,
			AllowIntercept:      a.CanExecuteRemotely,
			OutputPrefix:        "@action",
			GroupPrefix:         strings.Join(a.GroupNames, ","),
			Params:              a.CommandArguments,
			Path:                g.Paths.Path(a.CommandPath),
			OutputFileMasks:     joinProducedPaths(g, a.ProducedItems),
			SkipIfProjectFailed: true,
		})

		var depends []string
		for _, prereq := range a.PrerequisiteItems {
			if producer, ok := g.ProducerOf(prereq); ok && toExecute[producer] {
				depends = append(depends, fmt.Sprintf("Action%d", producer))
			}
		}

		tasks = append(tasks, Task{
			Name:                taskName,
			Tool:                toolName,
			WorkingDir:          g.Paths.DirPath(a.WorkingDirectory),
			Caption:             a.StatusDescription,
			SkipIfProjectFailed: true,
			AllowRestartOnLocal: true,
			DependsOn:           strings.Join(depends, ";"),
		})
	}

	// The environment block is echoed verbatim into the task XML and
	// back out into the coordinator's own logs, so redact secret-looking
	// values the same way child-process output gets redacted below.
	var vars []Variable
	for k, v := range env {
		vars = append(vars, Variable{Name: k, Value: stringutil.SanitizeErrorMessage(v)})
	}

	return &BuildSet{
		FormatVersion: "1",
		Environments: Environments{Environment: []Environment{
			{Name: "Default", Tools: Tools{Tool: tools}, Variables: vars},
		}},
		Project: ProjectNode{Name: "Default", Env: "Default", Task: tasks},
	}
}

func joinProducedPaths(g *graph.Graph, ids []item.FileID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = g.Paths.Path(id)
	}
	return strings.Join(parts, ";")
}

// WriteTaskFile writes bs as XML to path.
func WriteTaskFile(bs *BuildSet, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return builderr.Wrap(err, path, "failed to create task file")
	}
	defer f.Close()
	if _, err := f.WriteString(xml.Header); err != nil {
		return builderr.Wrap(err, path, "failed to write task file header")
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(bs); err != nil {
		return builderr.Wrap(err, path, "failed to encode task file")
	}
	return nil
}

// ResolveGHHostedToken looks up a gh-hosted coordinator's auth token the
// way the teacher's pkg/ghcli wrapper resolves GH_TOKEN, for macro
// expansion of ${GH_TOKEN} in the task XML's environment block.
func ResolveGHHostedToken() (token string, source string, ok bool) {
	token, source = auth.TokenForHost("github.com")
	return token, source, token != ""
}

// RunDistributed launches the external coordinator against taskFilePath,
// filtering its stdout: progress-prefixed lines advance a counter and
// are stripped, timing-trailer lines are dropped, everything else is
// passed to OnLine. The coordinator's exit code is the build result.
func RunDistributed(ctx context.Context, opts DistributedOptions) error {
	if _, err := exec.LookPath(opts.CoordinatorPath); err != nil {
		return builderr.Newf(builderr.ExecutorUnavailable,
			"distributed coordinator %q not found", opts.CoordinatorPath)
	}

	args := []string{
		"/Rebuild", "/NoWait", "/NoLogo", "/ShowAgent", "/ShowTime",
		"/IDEMonitor", fmt.Sprintf("/Title=%s", taskFileTitle(opts.TaskFilePath)),
	}
	if opts.StopOnError {
		args = append(args, "/StopOnErrors")
	}
	if opts.SuppressWatchdog {
		args = append(args, "/NoWatchdogThread")
	}

	cmd := exec.CommandContext(ctx, opts.CoordinatorPath, append(args, opts.TaskFilePath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return builderr.Wrap(err, opts.CoordinatorPath, "failed to attach coordinator stdout")
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return builderr.Wrap(err, opts.CoordinatorPath, "failed to launch coordinator")
	}

	progress := 0
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if progressLinePattern.MatchString(line) {
			progress++
			if opts.OnProgress != nil {
				opts.OnProgress(progress)
			}
			continue
		}
		if timingTrailerPattern.MatchString(line) {
			continue
		}

		sanitized := stringutil.SanitizeErrorMessage(line)
		if opts.OnLine != nil {
			opts.OnLine(sanitized)
		}
		if sliceutil.ContainsAny(sanitized, "error", "Error", "ERROR", "fatal", "Fatal") {
			distLog.Printf("coordinator error: %s", stringutil.Truncate(sanitized, 500))
		} else {
			distLog.Printf("coordinator: %s", stringutil.Truncate(sanitized, 500))
		}
	}

	if err := cmd.Wait(); err != nil {
		return &builderr.BuildError{Kind: builderr.ActionFailed, Message: "distributed coordinator reported failure", Cause: err}
	}
	return nil
}

func taskFileTitle(path string) string {
	return strings.TrimSuffix(path, ".xml")
}
