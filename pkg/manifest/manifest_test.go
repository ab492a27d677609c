package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/item"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "target.actions.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestAssemble_DecodesActionsAndInternsPaths(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"actions": [
			{
				"type": "Compile",
				"working_directory": "` + dir + `",
				"command_path": "/usr/bin/cc",
				"command_arguments": "-c a.cpp -o a.obj",
				"prerequisite_items": ["` + filepath.Join(dir, "a.cpp") + `"],
				"produced_items": ["` + filepath.Join(dir, "a.obj") + `"],
				"can_execute_remotely": true
			}
		],
		"output_items": ["` + filepath.Join(dir, "a.obj") + `"],
		"module_outputs": {"Module": ["` + filepath.Join(dir, "a.obj") + `"]},
		"source_directories": ["` + dir + `"]
	}`
	path := writeManifest(t, dir, body)

	paths := item.New()
	result, err := (Assembler{Path: path}).Assemble(&descriptor.TargetDescriptor{Name: "game"}, paths, nil)
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.True(t, result.Actions[0].CanExecuteRemotely)
	assert.Equal(t, paths.File(filepath.Join(dir, "a.obj")), result.Actions[0].ProducedItems[0])
	assert.Len(t, result.SourceDirectories, 1)
	assert.Contains(t, result.ModuleNameToOutputItems, "Module")
}

func TestAssemble_RejectsUnknownActionType(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `{"actions": [{"type": "Frobnicate", "command_path": "/bin/x"}]}`)

	paths := item.New()
	_, err := (Assembler{Path: path}).Assemble(&descriptor.TargetDescriptor{}, paths, nil)
	assert.Error(t, err)
}

func TestAssemble_RejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `{"actions": [{"command_path": "/bin/x"}]}`)

	paths := item.New()
	_, err := (Assembler{Path: path}).Assemble(&descriptor.TargetDescriptor{}, paths, nil)
	assert.Error(t, err)
}

func TestAssemble_MissingFile(t *testing.T) {
	paths := item.New()
	_, err := (Assembler{Path: filepath.Join(t.TempDir(), "missing.json")}).Assemble(&descriptor.TargetDescriptor{}, paths, nil)
	assert.Error(t, err)
}
