package graph

import "github.com/forgebuild/forge/pkg/builderr"

// MergeGraphs combines multiple already-linked graphs sharing the same
// Paths arena into one. Preserves each action's GroupNames and fails
// with DuplicateProducer if any two input graphs produce the same item
// (merge safety: given each input graph has no duplicate producers and
// none share produced items, the result has none either).
func MergeGraphs(graphs []*Graph) (*Graph, error) {
	if len(graphs) == 0 {
		return nil, builderr.New(builderr.IoError, "no graphs to merge")
	}

	merged := New(graphs[0].Paths)
	for _, g := range graphs {
		if g.Paths != merged.Paths {
			return nil, builderr.New(builderr.IoError, "cannot merge graphs backed by different path arenas")
		}
		for _, a := range g.Actions {
			merged.Add(a)
		}
	}

	if err := merged.Link(); err != nil {
		return nil, err
	}
	return merged, nil
}
