package hotreload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
)

var existingSuffixPattern = regexp.MustCompile(`^-\d{4}`)

// ReplaceSuffix implements spec.md §4.5's rename rule: find the first
// '-' in the filename, strip any existing "-NNNN" suffix that
// immediately follows it, and insert "-{suffix:04}" in its place.
// Idempotent in the sense that ReplaceSuffix(ReplaceSuffix(f, n), m)
// equals ReplaceSuffix(f, m).
func ReplaceSuffix(path string, suffix uint32) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	idx := strings.IndexByte(name, '-')
	moduleName := name
	rest := ""
	if idx >= 0 {
		moduleName = name[:idx]
		rest = name[idx:]
		if loc := existingSuffixPattern.FindStringIndex(rest); loc != nil {
			rest = rest[loc[1]:]
		}
	}

	newName := fmt.Sprintf("%s-%04d%s%s", moduleName, suffix, rest, ext)
	return filepath.Join(dir, newName)
}

// responseFileExtensions are the on-disk response files a rename must
// also copy and rewrite.
var responseFileExtensions = map[string]bool{".response": true, ".rsp": true}

// ApplySuffixMode computes the minimal rename closure for changedModules,
// rewrites every affected action in g in place, copies and rewrites
// affected response files on disk, and registers the renames in state.
// Returns the old->new path rename map actually applied.
func ApplySuffixMode(g *graph.Graph, state *State, moduleOutputs map[string][]item.FileID, changedModules []string) (map[item.FileID]item.FileID, error) {
	paths := g.Paths

	target := make(map[item.FileID]bool)
	for _, m := range changedModules {
		for _, f := range moduleOutputs[m] {
			target[f] = true
		}
	}

	producerByOutput := make(map[item.FileID]graph.ActionID, len(g.Actions))
	consumersByInput := make(map[item.FileID][]graph.ActionID)
	for id, a := range g.Actions {
		for _, out := range a.ProducedItems {
			producerByOutput[out] = graph.ActionID(id)
		}
		for _, in := range a.PrerequisiteItems {
			consumersByInput[in] = append(consumersByInput[in], graph.ActionID(id))
		}
	}

	affected := make(map[graph.ActionID]bool)
	for {
		grew := false

		for f := range target {
			if id, ok := producerByOutput[f]; ok && !affected[id] {
				affected[id] = true
				grew = true
				for _, out := range g.Actions[id].ProducedItems {
					if !target[out] {
						target[out] = true
						grew = true
					}
				}
			}
		}

		for f := range target {
			for _, id := range consumersByInput[f] {
				if affected[id] {
					continue
				}
				affected[id] = true
				grew = true
				for _, out := range g.Actions[id].ProducedItems {
					if !target[out] {
						target[out] = true
						grew = true
					}
				}
			}
		}

		if !grew {
			break
		}
	}

	// Each affected action's own response file (if any) is renamed
	// alongside its outputs, even though it is not itself a module
	// output, so its on-disk copy and the action's self-reference to it
	// both get rewritten below.
	for id := range affected {
		a := g.Actions[id]
		for _, f := range a.PrerequisiteItems {
			if responseFileExtensions[filepath.Ext(paths.Path(f))] {
				target[f] = true
			}
		}
	}

	rename := make(map[item.FileID]item.FileID, len(target))
	for f := range target {
		newPath := ReplaceSuffix(paths.Path(f), state.NextSuffix)
		rename[f] = paths.File(newPath)
	}

	renamedPaths := make(map[string]string, len(rename))
	for old, new := range rename {
		renamedPaths[paths.Path(old)] = paths.Path(new)
	}

	for id := range affected {
		a := g.Actions[id]
		rewriteItemList(a.ProducedItems, rename)
		rewriteItemList(a.PrerequisiteItems, rename)
		rewriteItemList(a.DeleteItems, rename)
		a.CommandArguments = replaceAllTokens(a.CommandArguments, renamedPaths)
		a.StatusDescription = replaceAllTokens(a.StatusDescription, renamedPaths)
		a.CommandDescription = replaceAllTokens(a.CommandDescription, renamedPaths)
	}

	if err := copyResponseFiles(paths, renamedPaths); err != nil {
		return nil, err
	}

	// moduleOutputs is the caller's record of each module's current
	// output FileIDs; update it in place so the next hot-reload cycle
	// seeds its closure from the just-renamed outputs instead of the
	// now-stale ones no action produces anymore.
	for _, outs := range moduleOutputs {
		for i, f := range outs {
			if n, ok := rename[f]; ok {
				outs[i] = n
			}
		}
	}

	state.mu.Lock()
	for old, new := range rename {
		state.OriginalToHotReload[old] = new
		state.TemporaryFiles[new] = true
	}
	state.NextSuffix++
	state.dirty = true
	state.mu.Unlock()

	return rename, nil
}

func rewriteItemList(items []item.FileID, rename map[item.FileID]item.FileID) {
	for i, f := range items {
		if n, ok := rename[f]; ok {
			items[i] = n
		}
	}
}

// replaceAllTokens applies replaceToken for every (old, new) pair found
// as a token-bounded substring of s.
func replaceAllTokens(s string, renamed map[string]string) string {
	for old, new := range renamed {
		if old == new {
			continue
		}
		s = replaceToken(s, old, new)
	}
	return s
}

// replaceToken replaces every occurrence of old in s that is bounded on
// both sides by a non-identifier character (or string start/end),
// matching spec.md §4.5's "substring must be surrounded by
// non-identifier characters" rule.
func replaceToken(s, old, new string) string {
	if old == "" || !strings.Contains(s, old) {
		return s
	}
	var b strings.Builder
	i := 0
	for i < len(s) {
		if i+len(old) <= len(s) && s[i:i+len(old)] == old {
			leftOK := i == 0 || !isIdentByte(s[i-1])
			rightOK := i+len(old) == len(s) || !isIdentByte(s[i+len(old)])
			if leftOK && rightOK {
				b.WriteString(new)
				i += len(old)
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// copyResponseFiles copies every renamed response file on disk to its
// new location and rewrites any renamed path referenced inside it.
func copyResponseFiles(paths *item.Paths, renamed map[string]string) error {
	for oldPath, newPath := range renamed {
		if !responseFileExtensions[filepath.Ext(oldPath)] {
			continue
		}
		if err := copyAndRewrite(oldPath, newPath, renamed); err != nil {
			return err
		}
	}
	return nil
}

func copyAndRewrite(oldPath, newPath string, renamed map[string]string) error {
	src, err := os.Open(oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return builderr.Wrap(err, oldPath, "failed to open response file for hot-reload copy")
	}
	defer src.Close()

	contents, err := io.ReadAll(src)
	if err != nil {
		return builderr.Wrap(err, oldPath, "failed to read response file")
	}

	rewritten := replaceAllTokens(string(contents), renamed)

	if err := os.WriteFile(newPath, []byte(rewritten), 0o644); err != nil {
		return builderr.Wrap(err, newPath, "failed to write hot-reload response file")
	}
	return nil
}
