// Package manifest gives cmd/forge a concrete RuleAssembler: it reads a
// JSON file already containing the finalized action list spec.md §1
// says the core receives from an external rules-assembly collaborator
// (descriptor parsing, toolchain discovery and flag assembly all stay
// on the far side of that boundary). Grounded on the teacher's
// frontmatter JSON/YAML handoff shape in pkg/parser, generalized from
// "parsed markdown frontmatter" to "parsed action list", and validated
// against a JSON schema the way pkg/parser/schema_validation.go
// validates workflow frontmatter before trusting it.
package manifest

import (
	"encoding/json"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/configtracker"
	"github.com/forgebuild/forge/pkg/descriptor"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
	"github.com/forgebuild/forge/pkg/makefile"
)

var manifestLog = logger.New("forge:manifest")

// Action is the wire shape of one action entry.
type Action struct {
	Type                          string   `json:"type"`
	WorkingDirectory              string   `json:"working_directory"`
	CommandPath                   string   `json:"command_path"`
	CommandArguments              string   `json:"command_arguments"`
	PrerequisiteItems             []string `json:"prerequisite_items"`
	ProducedItems                 []string `json:"produced_items"`
	DeleteItems                   []string `json:"delete_items"`
	StatusDescription             string   `json:"status_description"`
	CommandDescription            string   `json:"command_description"`
	GroupNames                    []string `json:"group_names"`
	CanExecuteRemotely            bool     `json:"can_execute_remotely"`
	CanExecuteRemotelyWithSNDBS   bool     `json:"can_execute_remotely_with_sndbs"`
	IsGCCCompiler                 bool     `json:"is_gcc_compiler"`
	ShouldOutputStatusDescription bool     `json:"should_output_status_description"`
	ProducesImportLibrary         bool     `json:"produces_import_library"`
	DependencyListFile            string   `json:"dependency_list_file,omitempty"`
}

// ConfigValue is one recorded config_value_tracker observation.
type ConfigValue struct {
	HierarchyType string   `json:"hierarchy_type"`
	ProjectDir    string   `json:"project_dir"`
	Platform      string   `json:"platform"`
	Section       string   `json:"section"`
	ConfigKey     string   `json:"config_key"`
	Values        []string `json:"values"`
}

// Document is the on-disk manifest handed to forge build --manifest.
type Document struct {
	Actions              []Action               `json:"actions"`
	OutputItems          []string                `json:"output_items"`
	ModuleOutputs        map[string][]string     `json:"module_outputs"`
	HotReloadModules     []string                `json:"hot_reload_modules"`
	SourceDirectories    []string                `json:"source_directories"`
	PluginFiles          []string                `json:"plugin_files"`
	UObjectModules       []string                `json:"uobject_modules"`
	UObjectModuleHeaders []string                `json:"uobject_module_headers"`
	PreBuildScripts      []string                `json:"pre_build_scripts"`
	ConfigValues         []ConfigValue           `json:"config_values"`
}

var actionTypes = map[string]graph.ActionType{
	"Compile":       graph.Compile,
	"Link":          graph.Link,
	"Archive":       graph.Archive,
	"BuildProject":  graph.BuildProject,
	"WriteMetadata": graph.WriteMetadata,
	"PostBuild":     graph.PostBuild,
}

// schema is compiled once; Document's shape rarely changes and every
// Assemble call revalidates a fresh manifest file against it, the same
// defense-in-depth pkg/configtracker applies to config documents.
var schema = mustCompileSchema()

const documentSchemaJSON = `{
	"type": "object",
	"required": ["actions"],
	"properties": {
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "command_path"]
			}
		}
	}
}`

func mustCompileSchema() *jsonschema.Schema {
	s, err := configtracker.CompileSchema([]byte(documentSchemaJSON), "forge-manifest.json")
	if err != nil {
		panic(err)
	}
	return s
}

// Assembler implements makefile.RuleAssembler by reading one manifest
// file per call, ignoring the TargetDescriptor's own fields beyond
// using it purely as a key the caller already resolved to this path.
type Assembler struct {
	Path string
}

// Assemble reads and validates the manifest file, interning every path
// it names against paths, and returns the equivalent AssemblyResult.
func (a Assembler) Assemble(td *descriptor.TargetDescriptor, paths *item.Paths, workingSet map[item.FileID]bool) (*makefile.AssemblyResult, error) {
	raw, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, builderr.Wrap(err, a.Path, "failed to read action manifest")
	}

	var untyped any
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return nil, &builderr.BuildError{Kind: builderr.DescriptorParseFailed, Path: a.Path, Message: "manifest is not valid JSON", Cause: err}
	}
	if err := schema.Validate(untyped); err != nil {
		return nil, &builderr.BuildError{Kind: builderr.DescriptorParseFailed, Path: a.Path, Message: "manifest failed schema validation", Cause: err}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &builderr.BuildError{Kind: builderr.DescriptorParseFailed, Path: a.Path, Message: "manifest did not decode into the expected shape", Cause: err}
	}

	manifestLog.Printf("loaded manifest %s: %d actions", a.Path, len(doc.Actions))

	actions := make([]*graph.Action, 0, len(doc.Actions))
	for _, raw := range doc.Actions {
		typ, ok := actionTypes[raw.Type]
		if !ok {
			return nil, &builderr.BuildError{Kind: builderr.DescriptorParseFailed, Path: a.Path, Message: "unknown action type " + raw.Type}
		}
		act := &graph.Action{
			Type:                           typ,
			WorkingDirectory:               paths.Dir(raw.WorkingDirectory),
			CommandPath:                    paths.File(raw.CommandPath),
			CommandArguments:               raw.CommandArguments,
			PrerequisiteItems:              internFiles(paths, raw.PrerequisiteItems),
			ProducedItems:                  internFiles(paths, raw.ProducedItems),
			DeleteItems:                    internFiles(paths, raw.DeleteItems),
			StatusDescription:              raw.StatusDescription,
			CommandDescription:             raw.CommandDescription,
			GroupNames:                     raw.GroupNames,
			CanExecuteRemotely:             raw.CanExecuteRemotely,
			CanExecuteRemotelyWithSNDBS:    raw.CanExecuteRemotelyWithSNDBS,
			IsGCCCompiler:                  raw.IsGCCCompiler,
			ShouldOutputStatusDescription:  raw.ShouldOutputStatusDescription,
			ProducesImportLibrary:          raw.ProducesImportLibrary,
		}
		if raw.DependencyListFile != "" {
			id := paths.File(raw.DependencyListFile)
			act.DependencyListFile = &id
		}
		actions = append(actions, act)
	}

	moduleOutputs := make(map[string][]item.FileID, len(doc.ModuleOutputs))
	for module, files := range doc.ModuleOutputs {
		moduleOutputs[module] = internFiles(paths, files)
	}

	hotReload := make(map[string]bool, len(doc.HotReloadModules))
	for _, m := range doc.HotReloadModules {
		hotReload[m] = true
	}

	uobjectHeaders := make(map[item.FileID]bool, len(doc.UObjectModuleHeaders))
	for _, f := range doc.UObjectModuleHeaders {
		uobjectHeaders[paths.File(f)] = true
	}

	configValues := make(map[configtracker.Key][]string, len(doc.ConfigValues))
	for _, cv := range doc.ConfigValues {
		key := configtracker.Key{
			HierarchyType: cv.HierarchyType,
			ProjectDir:    cv.ProjectDir,
			Platform:      cv.Platform,
			Section:       cv.Section,
			ConfigKey:     cv.ConfigKey,
		}
		configValues[key] = cv.Values
	}

	sourceDirs := make([]item.DirID, 0, len(doc.SourceDirectories))
	for _, d := range doc.SourceDirectories {
		sourceDirs = append(sourceDirs, paths.Dir(d))
	}

	return &makefile.AssemblyResult{
		Actions:                 actions,
		OutputItems:             internFiles(paths, doc.OutputItems),
		ModuleNameToOutputItems: moduleOutputs,
		HotReloadModuleNames:    hotReload,
		SourceDirectories:       sourceDirs,
		PluginFiles:             internFiles(paths, doc.PluginFiles),
		UObjectModules:          doc.UObjectModules,
		UObjectModuleHeaders:    uobjectHeaders,
		PreBuildScripts:         internFiles(paths, doc.PreBuildScripts),
		ConfigValues:            configValues,
	}, nil
}

func internFiles(paths *item.Paths, files []string) []item.FileID {
	if len(files) == 0 {
		return nil
	}
	ids := make([]item.FileID, len(files))
	for i, f := range files {
		ids[i] = paths.File(f)
	}
	return ids
}
