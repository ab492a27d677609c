package configtracker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
)

func TestRevalidate_DetectsChangedValue(t *testing.T) {
	recorded := New()
	key := Key{HierarchyType: "project", ProjectDir: "/game", Platform: "Linux", Section: "BuildSettings", ConfigKey: "bUseUnityBuild"}
	recorded.Record(key, []string{"true"})

	current := New()
	current.Record(key, []string{"false"})

	err := recorded.Revalidate(current, nil, nil)
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.ConfigInvalid))
}

func TestRevalidate_MissingKeyFails(t *testing.T) {
	recorded := New()
	key := Key{ConfigKey: "bUseUnityBuild"}
	recorded.Record(key, []string{"true"})

	current := New()
	err := recorded.Revalidate(current, nil, nil)
	require.Error(t, err)
}

func TestRevalidate_UnchangedPasses(t *testing.T) {
	key := Key{ConfigKey: "bUseUnityBuild"}
	recorded := New()
	recorded.Record(key, []string{"true"})
	current := New()
	current.Record(key, []string{"true"})

	require.NoError(t, recorded.Revalidate(current, nil, nil))
}

func TestWriteTo_ReadFrom_RoundTrip(t *testing.T) {
	tr := New()
	tr.Record(Key{HierarchyType: "engine", Section: "BuildSettings", ConfigKey: "bUseUnityBuild"}, []string{"true"})
	tr.Record(Key{HierarchyType: "project", Section: "BuildSettings", ConfigKey: "bUsePCH"}, []string{"true", "fast"})

	var buf bytes.Buffer
	w, err := archive.NewWriter(&buf, 19)
	require.NoError(t, err)
	require.NoError(t, tr.WriteTo(w))

	r, err := archive.NewReader(&buf)
	require.NoError(t, err)
	got, err := ReadFrom(r)
	require.NoError(t, err)

	require.NoError(t, tr.Revalidate(got, nil, nil))
	require.NoError(t, got.Revalidate(tr, nil, nil))
}
