// Package descriptor gives the minimal shape of what an external
// rules-assembly collaborator hands the core: a TargetDescriptor. The
// collaborator that turns project files into a concrete action list is
// out of scope (spec.md §1's Non-goals); this package only defines the
// YAML-parsed handoff shape and lets pkg/makefile.Generate consume it.
// Grounded on the teacher's frontmatter YAML handling (goccy/go-yaml
// Marshal/Unmarshal in pkg/cli/frontmatter_helpers.go).
package descriptor

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/forgebuild/forge/pkg/builderr"
)

// TargetDescriptor is the externally supplied shape of one build target:
// its identity, toolchain inputs, and the source directories/files the
// core should watch for invalidation. Everything else (flag assembly,
// rule selection, platform SDK discovery) stays with the collaborator
// that produced this value.
type TargetDescriptor struct {
	Name                 string            `yaml:"name"`
	TargetType           string            `yaml:"target_type"`
	ProjectDir           string            `yaml:"project_dir"`
	IntermediateDir      string            `yaml:"intermediate_dir"`
	Platform             string            `yaml:"platform"`
	Configuration        string            `yaml:"configuration"`
	SourceDirectories    []string          `yaml:"source_directories"`
	AdditionalArguments  []string          `yaml:"additional_arguments"`
	EnvironmentOverrides map[string]string `yaml:"environment_overrides"`
	HotReloadModules     []string          `yaml:"hot_reload_modules"`
}

// Load parses a target descriptor YAML file.
func Load(path string) (*TargetDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, builderr.Wrap(err, path, "failed to read target descriptor")
	}

	var td TargetDescriptor
	if err := yaml.Unmarshal(data, &td); err != nil {
		return nil, builderr.Wrap(err, path, "failed to parse target descriptor").
			WithSuggestion("check the descriptor YAML is well-formed")
	}
	if td.Name == "" {
		return nil, builderr.New(builderr.DescriptorParseFailed, "target descriptor is missing a name").WithPath(path)
	}
	return &td, nil
}

// Marshal serializes td back to YAML, used by diagnostic dumps.
func Marshal(td *TargetDescriptor) ([]byte, error) {
	out, err := yaml.Marshal(td)
	if err != nil {
		return nil, builderr.Wrap(err, "", "failed to marshal target descriptor")
	}
	return out, nil
}
