package graph

import (
	"encoding/json"
	"encoding/xml"
	"os"
)

// exportedAction is the stable wire shape for both JSON and XML action
// export, per the action-export format: array of
// {type, command_path, command_arguments, working_directory,
// prerequisite_items, produced_items, depends_on, can_execute_remotely,
// status_description}.
type exportedAction struct {
	XMLName            xml.Name `json:"-" xml:"Action"`
	Type               string   `json:"type" xml:"type,attr"`
	CommandPath        string   `json:"command_path" xml:"command_path"`
	CommandArguments   string   `json:"command_arguments" xml:"command_arguments"`
	WorkingDirectory   string   `json:"working_directory" xml:"working_directory"`
	PrerequisiteItems  []string `json:"prerequisite_items" xml:"prerequisite_items>item"`
	ProducedItems      []string `json:"produced_items" xml:"produced_items>item"`
	DependsOn          []int    `json:"depends_on" xml:"depends_on>index"`
	CanExecuteRemotely bool     `json:"can_execute_remotely" xml:"can_execute_remotely,attr"`
	StatusDescription  string   `json:"status_description" xml:"status_description"`
}

func (g *Graph) toExportable() []exportedAction {
	out := make([]exportedAction, len(g.Actions))
	for i, a := range g.Actions {
		prereq := make([]string, len(a.PrerequisiteItems))
		for j, f := range a.PrerequisiteItems {
			prereq[j] = g.Paths.Path(f)
		}
		produced := make([]string, len(a.ProducedItems))
		for j, f := range a.ProducedItems {
			produced[j] = g.Paths.Path(f)
		}
		var dependsOn []int
		seen := make(map[int]bool)
		for _, prereqFile := range a.PrerequisiteItems {
			if producer, ok := g.producerOf[prereqFile]; ok && int(producer) != i {
				if !seen[int(producer)] {
					seen[int(producer)] = true
					dependsOn = append(dependsOn, int(producer))
				}
			}
		}
		out[i] = exportedAction{
			Type:               a.Type.String(),
			CommandPath:        g.Paths.Path(a.CommandPath),
			CommandArguments:   a.CommandArguments,
			WorkingDirectory:   g.Paths.DirPath(a.WorkingDirectory),
			PrerequisiteItems:  prereq,
			ProducedItems:      produced,
			DependsOn:          dependsOn,
			CanExecuteRemotely: a.CanExecuteRemotely,
			StatusDescription:  a.StatusDescription,
		}
	}
	return out
}

// ExportJSON writes the graph's actions to path as a JSON array matching
// the stable action-export format.
func (g *Graph) ExportJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(g.toExportable())
}

// ExportXML writes the graph's actions to path as XML (forge export
// --xml); the outdated-actions dump uses ExportJSON. This is distinct from the
// distributed-executor's BuildSet task file, which has its own richer
// schema (see pkg/executor/distributed.go).
func (g *Graph) ExportXML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}

	type actionsRoot struct {
		XMLName xml.Name         `xml:"Actions"`
		Actions []exportedAction `xml:"Action"`
	}

	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(actionsRoot{Actions: g.toExportable()})
}
