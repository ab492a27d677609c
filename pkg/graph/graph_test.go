package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/item"
)

func newTestGraph(t *testing.T) (*Graph, *item.Paths) {
	t.Helper()
	paths := item.New()
	return New(paths), paths
}

func TestLink_ProducerDisjointness(t *testing.T) {
	g, paths := newTestGraph(t)

	aObj := paths.File("a.obj")
	bObj := paths.File("b.obj")
	exe := paths.File("ab.exe")

	g.Add(&Action{Type: Compile, ProducedItems: []item.FileID{aObj}})
	g.Add(&Action{Type: Compile, ProducedItems: []item.FileID{bObj}})
	g.Add(&Action{Type: Link, PrerequisiteItems: []item.FileID{aObj, bObj}, ProducedItems: []item.FileID{exe}})

	require.NoError(t, g.Link())

	seen := make(map[item.FileID]bool)
	for _, a := range g.Actions {
		for _, produced := range a.ProducedItems {
			assert.False(t, seen[produced], "produced item reused across actions")
			seen[produced] = true
		}
	}
}

func TestLink_DuplicateProducerIsFatal(t *testing.T) {
	g, paths := newTestGraph(t)

	x := paths.File("x.o")
	g.Add(&Action{Type: Compile, ProducedItems: []item.FileID{x}})
	g.Add(&Action{Type: Compile, ProducedItems: []item.FileID{x}})

	err := g.Link()
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.DuplicateProducer))
}

func TestLink_Idempotent(t *testing.T) {
	g, paths := newTestGraph(t)

	aObj := paths.File("a.obj")
	exe := paths.File("a.exe")
	g.Add(&Action{Type: Compile, ProducedItems: []item.FileID{aObj}})
	g.Add(&Action{Type: Link, PrerequisiteItems: []item.FileID{aObj}, ProducedItems: []item.FileID{exe}})

	require.NoError(t, g.Link())
	first := g.Actions[0].TotalDependantCount
	require.NoError(t, g.Link())
	second := g.Actions[0].TotalDependantCount

	assert.Equal(t, first, second)
}

func TestGatherPrerequisiteActions_MissingProducerIsFatal(t *testing.T) {
	g, paths := newTestGraph(t)

	missing := paths.File("missing.obj")
	exe := paths.File("a.exe")
	g.Add(&Action{Type: Link, PrerequisiteItems: []item.FileID{missing}, ProducedItems: []item.FileID{exe}})
	require.NoError(t, g.Link())

	_, err := g.GatherPrerequisiteActions([]item.FileID{missing})
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.MissingPrerequisite))
}

type fakeHistory struct {
	hashes map[item.FileID]uint64
}

func (h *fakeHistory) CommandHash(f item.FileID) (uint64, bool) {
	v, ok := h.hashes[f]
	return v, ok
}

type fakeDepCache struct{}

func (fakeDepCache) Headers(item.FileID) []item.FileID { return nil }

func TestGetActionsToExecute_Monotone(t *testing.T) {
	dir := t.TempDir()
	g, paths := newTestGraph(t)

	srcPath := dir + "/a.cpp"
	objPath := dir + "/a.obj"
	writeFile(t, srcPath, "int main(){}")
	writeFile(t, objPath, "obj")

	src := paths.File(srcPath)
	obj := paths.File(objPath)

	g.Add(&Action{
		Type:              Compile,
		CommandPath:       paths.File("/usr/bin/cc"),
		CommandArguments:  "-c a.cpp",
		PrerequisiteItems: []item.FileID{src},
		ProducedItems:     []item.FileID{obj},
	})
	require.NoError(t, g.Link())

	hist := &fakeHistory{hashes: map[item.FileID]uint64{
		obj: HashCommandLine("/usr/bin/cc", "-c a.cpp"),
	}}

	before, err := g.GetActionsToExecute([]item.FileID{obj}, fakeDepCache{}, hist, false)
	require.NoError(t, err)
	assert.Empty(t, before)

	// Touch the source forward in time; the outdated set can only grow.
	future := time.Now().Add(time.Hour)
	require.NoError(t, touch(srcPath, future))
	paths.Reset(src)

	after, err := g.GetActionsToExecute([]item.FileID{obj}, fakeDepCache{}, hist, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(after), len(before))
	assert.Contains(t, after, ActionID(0))
}

func TestMergeGraphs_SafeWhenDisjoint(t *testing.T) {
	paths := item.New()
	g1 := New(paths)
	g2 := New(paths)

	g1.Add(&Action{Type: Compile, ProducedItems: []item.FileID{paths.File("a.obj")}, GroupNames: []string{"g1"}})
	g2.Add(&Action{Type: Compile, ProducedItems: []item.FileID{paths.File("b.obj")}, GroupNames: []string{"g2"}})

	require.NoError(t, g1.Link())
	require.NoError(t, g2.Link())

	merged, err := MergeGraphs([]*Graph{g1, g2})
	require.NoError(t, err)
	assert.Len(t, merged.Actions, 2)
}

func TestMergeGraphs_DuplicateProducerFails(t *testing.T) {
	paths := item.New()
	g1 := New(paths)
	g2 := New(paths)

	shared := paths.File("x.o")
	g1.Add(&Action{Type: Compile, ProducedItems: []item.FileID{shared}})
	g2.Add(&Action{Type: Compile, ProducedItems: []item.FileID{shared}})

	require.NoError(t, g1.Link())
	require.NoError(t, g2.Link())

	_, err := MergeGraphs([]*Graph{g1, g2})
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.DuplicateProducer))
}
