package hotreload

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/graph"
)

// LiveModule is one linker input listed in the live-coding manifest.
type LiveModule struct {
	Output string   `json:"output"`
	Inputs []string `json:"inputs"`
}

// LiveManifest is the JSON sidecar the host's live-patch integration
// reads after a live-coding compile pass, per spec.md §4.5.
type LiveManifest struct {
	LinkerPath        string       `json:"linker_path"`
	LinkerEnvironment  []string     `json:"linker_environment"`
	Modules           []LiveModule `json:"modules"`
}

// RedirectForLiveCoding rewrites every compile action's dependency-list
// and object-output flags to a ".lc.response"/".lc.obj" location,
// leaving the original action untouched on disk until the redirected
// one has actually run. Returns the rewritten output paths so the
// caller can assemble a LiveManifest once linking completes.
func RedirectForLiveCoding(g *graph.Graph) map[graph.ActionID]string {
	redirected := make(map[graph.ActionID]string)

	for id, a := range g.Actions {
		if a.Type != graph.Compile || len(a.ProducedItems) == 0 {
			continue
		}
		newObj := liveCodingPath(g.Paths.Path(a.ProducedItems[0]), ".lc.obj")
		a.CommandArguments = redirectDashO(a.CommandArguments, newObj)
		if a.DependencyListFile != nil {
			rsp := liveCodingPath(g.Paths.Path(*a.DependencyListFile), ".lc.response")
			a.CommandArguments = replaceToken(a.CommandArguments, g.Paths.Path(*a.DependencyListFile), rsp)
		}
		redirected[graph.ActionID(id)] = newObj
	}

	return redirected
}

func liveCodingPath(path, newExt string) string {
	dir, base := filepath.Split(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+newExt)
}

// redirectDashO rewrites the "-o <path>"/"/Fo<path>" style output flag's
// value to newObj. Only the flag immediately preceding or attached to an
// object-file path is touched; every other argument is left alone.
func redirectDashO(args, newObj string) string {
	isObj := func(p string) bool { return strings.HasSuffix(p, ".obj") || strings.HasSuffix(p, ".o") }
	tokens := strings.Fields(args)
	for i, tok := range tokens {
		for _, flag := range []string{"-o", "/Fo"} {
			if tok == flag && i+1 < len(tokens) && isObj(tokens[i+1]) {
				tokens[i+1] = newObj
			} else if len(tok) > len(flag) && strings.HasPrefix(tok, flag) && isObj(tok) {
				tokens[i] = flag + newObj
			}
		}
	}
	return strings.Join(tokens, " ")
}

// WriteManifest serializes manifest as JSON to path, for the host's
// live-patch integration to consume. No hot-reload state file is
// written for this mode; the host owns the merge.
func WriteManifest(manifest *LiveManifest, path string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return builderr.Wrap(err, path, "failed to marshal live-coding manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return builderr.Wrap(err, path, "failed to write live-coding manifest")
	}
	return nil
}
