package executor

import (
	"context"
	"encoding/xml"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
)

func TestBuildTaskFile_EncodesActionsAndDependencies(t *testing.T) {
	paths := item.New()
	cl := paths.File("/usr/bin/cl")
	obj := paths.File("/proj/a.obj")
	exe := paths.File("/proj/a.exe")
	workDir := paths.Dir("/proj")

	g := graph.New(paths)
	g.Add(&graph.Action{
		Type:             graph.Compile,
		WorkingDirectory: workDir,
		CommandPath:      cl,
		CommandArguments: "/c a.cpp",
		ProducedItems:    []item.FileID{obj},
		StatusDescription: "Compile a.cpp",
		CanExecuteRemotely: true,
	})
	g.Add(&graph.Action{
		Type:              graph.Link,
		WorkingDirectory:  workDir,
		CommandPath:       cl,
		CommandArguments:  "/out:a.exe a.obj",
		PrerequisiteItems: []item.FileID{obj},
		ProducedItems:     []item.FileID{exe},
		StatusDescription: "Link a.exe",
	})
	require.NoError(t, g.Link())

	toExecute := map[graph.ActionID]bool{0: true, 1: true}
	bs := BuildTaskFile(g, toExecute, map[string]string{"FOO": "bar"})

	require.Len(t, bs.Project.Task, 2)
	require.Len(t, bs.Environments.Environment, 1)
	require.Len(t, bs.Environments.Environment[0].Tools.Tool, 2)

	var linkTask *Task
	for i := range bs.Project.Task {
		if bs.Project.Task[i].Name == "Action1" {
			linkTask = &bs.Project.Task[i]
		}
	}
	require.NotNil(t, linkTask)
	assert.Equal(t, "Action0", linkTask.DependsOn)

	assert.Equal(t, "bar", bs.Environments.Environment[0].Variables[0].Value)
}

func TestWriteTaskFile_ProducesWellFormedXML(t *testing.T) {
	paths := item.New()
	g := graph.New(paths)
	bs := BuildTaskFile(g, map[graph.ActionID]bool{}, nil)

	path := filepath.Join(t.TempDir(), "tasks.xml")
	require.NoError(t, WriteTaskFile(bs, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var roundtrip BuildSet
	require.NoError(t, xml.Unmarshal(data, &roundtrip))
	assert.Equal(t, "1", roundtrip.FormatVersion)
}

func TestRunDistributed_FiltersProgressAndTimingLines(t *testing.T) {
	script := filepath.Join(t.TempDir(), "coordinator.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho '@action compiling a.cpp'\necho 'warning: unused variable (00:00:01)'\necho 'plain status line'\nexit 0\n"), 0o755))
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no posix shell available")
	}

	var progressCalls []int
	var lines []string
	err := RunDistributed(context.Background(), DistributedOptions{
		CoordinatorPath: script,
		TaskFilePath:    filepath.Join(t.TempDir(), "tasks.xml"),
		OnProgress: func(n int) { progressCalls = append(progressCalls, n) },
		OnLine:     func(line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, progressCalls)
	assert.Equal(t, []string{"plain status line"}, lines)
}

func TestResolveGHHostedToken_NoCrashWithoutAuth(t *testing.T) {
	_, _, _ = ResolveGHHostedToken()
}
