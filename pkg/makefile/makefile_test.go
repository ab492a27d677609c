package makefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forge/pkg/configtracker"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
)

type stubAssembler struct {
	result *AssemblyResult
}

func (s stubAssembler) Assemble(td *descriptor.TargetDescriptor, paths *item.Paths, workingSet map[item.FileID]bool) (*AssemblyResult, error) {
	return s.result, nil
}

func TestGenerate_SnapshotsSourceDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cpp"), []byte("x"), 0o644))

	paths := item.New()
	srcDir := paths.Dir(dir)
	td := &descriptor.TargetDescriptor{Name: "game", TargetType: "Executable"}

	assembler := stubAssembler{result: &AssemblyResult{
		Actions:           []*graph.Action{{Type: graph.Compile}},
		SourceDirectories: []item.DirID{srcDir},
	}}

	mf, err := Generate(paths, td, assembler, nil, nil, 1000)
	require.NoError(t, err)
	assert.Len(t, mf.DirectoryToSourceFiles[srcDir], 1)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "Makefile.bin")

	paths := item.New()
	obj := paths.File(filepath.Join(dir, "a.obj"))
	exe := paths.File(filepath.Join(dir, "a.exe"))

	mf := &Makefile{
		CreateTimeUTC:   100,
		ModifiedTimeUTC: 100,
		TargetType:      "Executable",
		ExecutableFile:  exe,
		Actions: []*graph.Action{
			{Type: graph.Compile, ProducedItems: []item.FileID{obj}, GroupNames: []string{"engine"}},
		},
		OutputItems:          []item.FileID{exe},
		ConfigValueTracker:   configtracker.New(),
		EnvironmentVariables: map[string]string{"PATH": "/usr/bin"},
		paths:                paths,
	}
	require.NoError(t, mf.Save(cachePath))

	reloadedPaths := item.New()
	reloaded, err := readFrom(reloadedPaths, mustOpen(t, cachePath))
	require.NoError(t, err)

	require.Len(t, reloaded.Actions, 1)
	assert.Equal(t, graph.Compile, reloaded.Actions[0].Type)
	assert.Equal(t, []string{"engine"}, reloaded.Actions[0].GroupNames)
	assert.Equal(t, "/usr/bin", reloaded.EnvironmentVariables["PATH"])
}

func TestLoad_MissingFileReportsReason(t *testing.T) {
	paths := item.New()
	_, err := Load(paths, filepath.Join(t.TempDir(), "missing"), LoadOptions{})
	assert.Equal(t, ReasonFileAbsent, err)
}

func TestIsValidForSourceFiles_DetectsAddedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cpp"), []byte("x"), 0o644))

	paths := item.New()
	srcDir := paths.Dir(dir)
	files, _ := paths.Children(srcDir)

	mf := &Makefile{
		paths:                  paths,
		SourceDirectories:      []item.DirID{srcDir},
		DirectoryToSourceFiles: map[item.DirID][]item.FileID{srcDir: files},
	}
	ok, _ := mf.IsValidForSourceFiles(nil, nil)
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cpp"), []byte("y"), 0o644))
	paths.ResetDir(srcDir)

	ok, reason := mf.IsValidForSourceFiles(nil, nil)
	assert.False(t, ok)
	assert.Equal(t, "source file added or removed", reason)
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}
