package graph

import (
	"hash/fnv"
	"os"

	"github.com/forgebuild/forge/pkg/item"
)

// DepCache is the subset of pkg/depcache.Cache the graph needs: the
// header files an action's dependency-list file last recorded for a
// produced object file. Declared here, not imported from depcache,
// to keep graph decoupled from the concrete cache implementation.
type DepCache interface {
	Headers(produced item.FileID) []item.FileID
}

// History is the subset of pkg/history.History the graph needs: the
// command-line hash last recorded for a produced item.
type History interface {
	CommandHash(produced item.FileID) (uint64, bool)
}

// HashCommandLine returns a stable FNV-1a hash of a command line, used
// both to populate ActionHistory and to detect a changed command line
// on the next build. Must be stable across runs given identical
// argument strings.
func HashCommandLine(commandPath string, args string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(commandPath))
	h.Write([]byte{0})
	h.Write([]byte(args))
	return h.Sum64()
}

// GetActionsToExecute returns the minimal subset of actions (among the
// transitive closure reaching roots) that need execution: any action
// whose outputs are missing, whose command line changed, whose
// prerequisites (or dependency-list headers) are newer than its oldest
// output, or whose own transitive prerequisite is itself outdated.
func (g *Graph) GetActionsToExecute(roots []item.FileID, dep DepCache, hist History, ignoreOutdatedImportLibs bool) (map[ActionID]bool, error) {
	closure, err := g.GatherPrerequisiteActions(roots)
	if err != nil {
		return nil, err
	}

	outdated := make(map[ActionID]bool)
	memo := make(map[ActionID]bool)

	var isOutdated func(id ActionID) bool
	isOutdated = func(id ActionID) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		a := g.Actions[id]

		// (5) propagate: any transitive prerequisite action already
		// known outdated makes this one outdated too. Check this first
		// against prerequisites whose producer is in the closure.
		for _, prereq := range a.PrerequisiteItems {
			if producer, ok := g.producerOf[prereq]; ok {
				if isOutdated(producer) {
					memo[id] = true
					return true
				}
			}
		}

		// (1) missing produced item.
		oldestProducedMTime, allExist := g.oldestProducedMTime(a)
		if !allExist {
			memo[id] = true
			return true
		}

		// (2) command-line hash changed for any produced item.
		currentHash := HashCommandLine(g.Paths.Path(a.CommandPath), a.CommandArguments)
		for _, produced := range a.ProducedItems {
			recorded, ok := hist.CommandHash(produced)
			if !ok || recorded != currentHash {
				memo[id] = true
				return true
			}
		}

		// (3) prerequisite newer than oldest produced item.
		for _, prereq := range a.PrerequisiteItems {
			if ignoreOutdatedImportLibs {
				if producer, ok := g.producerOf[prereq]; ok && g.Actions[producer].ProducesImportLibrary {
					continue
				}
			}
			info := g.Paths.Stat(prereq)
			if info.Exists && info.ModTime > oldestProducedMTime {
				memo[id] = true
				return true
			}
		}

		// (4) header from dependency-list file newer than oldest output.
		if dep != nil {
			for _, produced := range a.ProducedItems {
				for _, header := range dep.Headers(produced) {
					info := g.Paths.Stat(header)
					if info.Exists && info.ModTime > oldestProducedMTime {
						memo[id] = true
						return true
					}
				}
			}
		}

		memo[id] = false
		return false
	}

	for _, id := range closure {
		if isOutdated(id) {
			outdated[id] = true
		}
	}
	return outdated, nil
}

// oldestProducedMTime returns the minimum mtime across a.ProducedItems,
// and false if any produced item is missing (equal mtimes are treated
// as up to date, per the timestamp tie-break rule).
func (g *Graph) oldestProducedMTime(a *Action) (int64, bool) {
	if len(a.ProducedItems) == 0 {
		return 0, true
	}
	oldest := int64(1<<63 - 1)
	for _, produced := range a.ProducedItems {
		info := g.Paths.Stat(produced)
		if !info.Exists {
			return 0, false
		}
		if info.ModTime < oldest {
			oldest = info.ModTime
		}
	}
	return oldest, true
}

// DeleteOutdatedProducedItems removes the files listed in each
// to-execute action's DeleteItems, plus any produced file older than
// one of its prerequisites (so link steps don't see a stale .obj).
func (g *Graph) DeleteOutdatedProducedItems(toExecute map[ActionID]bool) error {
	for id := range toExecute {
		a := g.Actions[id]
		for _, del := range a.DeleteItems {
			path := g.Paths.Path(del)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			g.Paths.Reset(del)
		}

		var newestPrereq int64
		havePrereq := false
		for _, prereq := range a.PrerequisiteItems {
			info := g.Paths.Stat(prereq)
			if !info.Exists {
				continue
			}
			if !havePrereq || info.ModTime > newestPrereq {
				newestPrereq = info.ModTime
				havePrereq = true
			}
		}
		if !havePrereq {
			continue
		}

		for _, produced := range a.ProducedItems {
			info := g.Paths.Stat(produced)
			if !info.Exists || info.ModTime >= newestPrereq {
				continue
			}
			path := g.Paths.Path(produced)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			g.Paths.Reset(produced)
		}
	}
	return nil
}
