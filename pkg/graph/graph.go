// Package graph implements the action graph: typed nodes with
// prerequisites and produced items, and the algorithms to link them,
// detect conflicts, compute outdatedness, gather transitive
// prerequisites and merge multiple targets into one graph.
//
// The cycle/topological-order skeleton is adapted from a GitHub Actions
// job-dependency manager: forward edges are recorded first, then
// reverse edges ("dependants") are computed as a separate parallel
// array rather than stored back-references inside Action, and cycle
// detection uses the same three-color DFS.
package graph

import (
	"fmt"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/item"
	"github.com/forgebuild/forge/pkg/logger"
)

var graphLog = logger.New("forge:graph")

// ActionType is the kind of external tool invocation an Action performs.
type ActionType int

const (
	Compile ActionType = iota
	Link
	Archive
	BuildProject
	WriteMetadata
	PostBuild
)

func (t ActionType) String() string {
	switch t {
	case Compile:
		return "Compile"
	case Link:
		return "Link"
	case Archive:
		return "Archive"
	case BuildProject:
		return "BuildProject"
	case WriteMetadata:
		return "WriteMetadata"
	case PostBuild:
		return "PostBuild"
	default:
		return "Unknown"
	}
}

// ActionID is the index of an Action within a Graph's Actions slice.
type ActionID int

// Action is the unit of work in the build graph.
type Action struct {
	Type              ActionType
	WorkingDirectory  item.DirID
	CommandPath       item.FileID
	CommandArguments  string
	PrerequisiteItems []item.FileID
	ProducedItems     []item.FileID
	DeleteItems       []item.FileID
	StatusDescription string
	CommandDescription string
	GroupNames        []string

	CanExecuteRemotely          bool
	CanExecuteRemotelyWithSNDBS bool
	IsGCCCompiler               bool
	ShouldOutputStatusDescription bool
	ProducesImportLibrary       bool

	DependencyListFile *item.FileID

	// Transient fields, recomputed by Link.
	Dependants             []ActionID
	TotalDependantCount    int
	MissingDependencyCount int
}

// Graph is a set of Actions plus the derived link structure.
type Graph struct {
	Paths   *item.Paths
	Actions []*Action

	// producerOf maps a produced FileID to the unique ActionID that
	// produces it. Built by Link.
	producerOf map[item.FileID]ActionID
}

// New returns an empty Graph backed by paths.
func New(paths *item.Paths) *Graph {
	return &Graph{Paths: paths, producerOf: make(map[item.FileID]ActionID)}
}

// Add appends a into the graph, returning its ActionID. Link must be
// called (again) before the derived fields are valid.
func (g *Graph) Add(a *Action) ActionID {
	g.Actions = append(g.Actions, a)
	return ActionID(len(g.Actions) - 1)
}

// Link resolves prerequisite->producer edges, populates Dependants and
// TotalDependantCount, and fails with DuplicateProducer if two actions
// produce the same item. Idempotent: every call resets and recomputes
// derived fields from scratch.
func (g *Graph) Link() error {
	g.producerOf = make(map[item.FileID]ActionID, len(g.Actions))
	for i, a := range g.Actions {
		a.Dependants = nil
		a.TotalDependantCount = 0
		a.MissingDependencyCount = 0
		for _, produced := range a.ProducedItems {
			if existing, ok := g.producerOf[produced]; ok {
				return builderr.Newf(builderr.DuplicateProducer,
					"both action %d and action %d produce %s", existing, i, g.Paths.Path(produced)).
					WithPath(g.Paths.Path(produced))
			}
			g.producerOf[produced] = ActionID(i)
		}
	}

	// Forward dependency resolution: each action's MissingDependencyCount
	// starts as the number of prerequisites that have a known producer
	// (prerequisites that already exist on disk with no producer are not
	// counted: they are satisfied from the start).
	for i, a := range g.Actions {
		id := ActionID(i)
		for _, prereq := range a.PrerequisiteItems {
			producer, ok := g.producerOf[prereq]
			if !ok {
				continue
			}
			if producer == id {
				return builderr.Newf(builderr.CycleDetected,
					"action %d depends on its own output %s", id, g.Paths.Path(prereq))
			}
			g.Actions[producer].Dependants = append(g.Actions[producer].Dependants, id)
			a.MissingDependencyCount++
		}
	}

	if err := g.detectCycles(); err != nil {
		return err
	}

	g.computeTotalDependantCounts()

	graphLog.Printf("linked graph: actions=%d producers=%d", len(g.Actions), len(g.producerOf))
	return nil
}

// ProducerOf returns the ActionID that produces f, and whether one
// exists. Valid only after a successful Link.
func (g *Graph) ProducerOf(f item.FileID) (ActionID, bool) {
	id, ok := g.producerOf[f]
	return id, ok
}

func (g *Graph) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make([]int, len(g.Actions))

	var visit func(id ActionID, path []ActionID) error
	visit = func(id ActionID, path []ActionID) error {
		state[id] = visiting
		for _, dep := range g.Actions[id].Dependants {
			switch state[dep] {
			case visiting:
				return builderr.Newf(builderr.CycleDetected,
					"cycle detected through action %d -> action %d", id, dep)
			case unvisited:
				if err := visit(dep, append(path, id)); err != nil {
					return err
				}
			}
		}
		state[id] = visited
		return nil
	}

	for i := range g.Actions {
		if state[i] == unvisited {
			if err := visit(ActionID(i), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeTotalDependantCounts performs a post-order traversal with a
// visited set so each action's TotalDependantCount is the size of its
// transitive dependant closure (memoized, computed once per action).
func (g *Graph) computeTotalDependantCounts() {
	memo := make([]int, len(g.Actions))
	done := make([]bool, len(g.Actions))

	var count func(id ActionID, onStack []bool) int
	count = func(id ActionID, onStack []bool) int {
		if done[id] {
			return memo[id]
		}
		seen := map[ActionID]bool{}
		var walk func(ActionID)
		walk = func(cur ActionID) {
			for _, dep := range g.Actions[cur].Dependants {
				if seen[dep] {
					continue
				}
				seen[dep] = true
				walk(dep)
			}
		}
		walk(id)
		memo[id] = len(seen)
		done[id] = true
		return memo[id]
	}

	for i := range g.Actions {
		g.Actions[i].TotalDependantCount = count(ActionID(i), nil)
	}
}

// CheckForConflicts reports, for each produced item shared by more than
// one of g's actions, any pair whose command line differs — signaling an
// accidentally merged graph. Unlike Link (which is fatal on any
// duplicate producer), it only reports; producers with identical
// command lines are not reported.
type Conflict struct {
	Item    item.FileID
	First   ActionID
	Second  ActionID
}

func (g *Graph) CheckForConflicts() []Conflict {
	seen := make(map[item.FileID]ActionID)
	var conflicts []Conflict
	for i, a := range g.Actions {
		id := ActionID(i)
		for _, produced := range a.ProducedItems {
			if prior, ok := seen[produced]; ok {
				if g.Actions[prior].CommandArguments != a.CommandArguments {
					conflicts = append(conflicts, Conflict{Item: produced, First: prior, Second: id})
				}
				continue
			}
			seen[produced] = id
		}
	}
	return conflicts
}

// GatherPrerequisiteActions returns, in original graph order, the
// transitive closure of actions whose outputs reach the given root
// files.
func (g *Graph) GatherPrerequisiteActions(roots []item.FileID) ([]ActionID, error) {
	visited := make(map[ActionID]bool)
	var order []ActionID

	var visit func(id ActionID)
	visit = func(id ActionID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, prereq := range g.Actions[id].PrerequisiteItems {
			if producer, ok := g.producerOf[prereq]; ok {
				visit(producer)
			}
		}
		order = append(order, id)
	}

	for _, root := range roots {
		producer, ok := g.producerOf[root]
		if !ok {
			return nil, builderr.Newf(builderr.MissingPrerequisite,
				"no action produces requested root %s", g.Paths.Path(root)).
				WithPath(g.Paths.Path(root))
		}
		visit(producer)
	}

	// order currently holds a post-order walk; reorder to match original
	// graph index order for stability.
	inClosure := make(map[ActionID]bool, len(order))
	for _, id := range order {
		inClosure[id] = true
	}
	result := make([]ActionID, 0, len(order))
	for i := range g.Actions {
		id := ActionID(i)
		if inClosure[id] {
			result = append(result, id)
		}
	}
	return result, nil
}

// CreateDirectoriesForProducedItems ensures the parent directory of
// every produced item of every action in toExecute exists.
func (g *Graph) CreateDirectoriesForProducedItems(toExecute map[ActionID]bool) error {
	for id := range toExecute {
		a := g.Actions[id]
		dirPath := g.Paths.DirPath(a.WorkingDirectory)
		if err := ensureDir(dirPath); err != nil {
			return builderr.Wrap(err, dirPath, "failed to create working directory")
		}
		for _, produced := range a.ProducedItems {
			if err := ensureDir(dirOf(g.Paths.Path(produced))); err != nil {
				return builderr.Wrap(err, g.Paths.Path(produced), "failed to create output directory")
			}
		}
	}
	return nil
}

func (g *Graph) String() string {
	return fmt.Sprintf("Graph{actions=%d}", len(g.Actions))
}
