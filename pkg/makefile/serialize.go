package makefile

import (
	"io"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/configtracker"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/item"
)

// writeTo serializes mf to w using the archive format: scalar fields
// first, then the action list (each action's FileID/DirID fields
// written as plain path strings, re-interned on read), then every
// invalidation input collection, in the field order listed in spec.md
// §3.
func (mf *Makefile) writeTo(w io.Writer) error {
	aw, err := archive.NewWriter(w, FormatVersion)
	if err != nil {
		return err
	}

	if err := aw.Int64(mf.CreateTimeUTC); err != nil {
		return err
	}
	if err := aw.Int64(mf.ModifiedTimeUTC); err != nil {
		return err
	}
	if err := aw.String(mf.TargetType); err != nil {
		return err
	}
	if err := aw.String(mf.paths.Path(mf.ExecutableFile)); err != nil {
		return err
	}
	if err := aw.String(mf.paths.Path(mf.ReceiptFile)); err != nil {
		return err
	}
	if err := aw.String(mf.paths.DirPath(mf.ProjectIntermediateDirectory)); err != nil {
		return err
	}

	if err := writeActions(aw, mf.paths, mf.Actions); err != nil {
		return err
	}

	if err := writeFileIDSlice(aw, mf.paths, mf.OutputItems); err != nil {
		return err
	}

	if err := writeModuleOutputs(aw, mf.paths, mf.ModuleNameToOutputItems); err != nil {
		return err
	}

	if err := writeStringSet(aw, mf.HotReloadModuleNames); err != nil {
		return err
	}
	if err := writeDirIDSlice(aw, mf.paths, mf.SourceDirectories); err != nil {
		return err
	}
	if err := writeFileIDSet(aw, mf.paths, mf.WorkingSet); err != nil {
		return err
	}
	if err := writeFileIDSet(aw, mf.paths, mf.CandidatesForWorkingSet); err != nil {
		return err
	}
	if err := writeFileIDSlice(aw, mf.paths, mf.ExternalDependencies); err != nil {
		return err
	}
	if err := writeFileIDSlice(aw, mf.paths, mf.InternalDependencies); err != nil {
		return err
	}
	if err := writeFileIDSlice(aw, mf.paths, mf.PluginFiles); err != nil {
		return err
	}
	if err := aw.StringSlice(mf.UObjectModules); err != nil {
		return err
	}
	if err := writeFileIDSet(aw, mf.paths, mf.UObjectModuleHeaders); err != nil {
		return err
	}
	if err := mf.ConfigValueTracker.WriteTo(aw); err != nil {
		return err
	}
	if err := writeFileIDSlice(aw, mf.paths, mf.PreBuildScripts); err != nil {
		return err
	}
	if err := aw.StringSlice(mf.AdditionalArguments); err != nil {
		return err
	}
	if err := writeStringMap(aw, mf.EnvironmentVariables); err != nil {
		return err
	}
	if err := aw.StringSlice(mf.Diagnostics); err != nil {
		return err
	}
	if err := aw.String(mf.ExternalMetadata); err != nil {
		return err
	}
	if err := aw.Bool(mf.DeployAfterCompile); err != nil {
		return err
	}
	return aw.Bool(mf.HasProjectScriptPlugin)
}

func readFrom(paths *item.Paths, r io.Reader) (*Makefile, error) {
	ar, err := archive.NewReader(r)
	if err != nil {
		return nil, err
	}
	if err := ar.CheckVersion(FormatVersion); err != nil {
		return nil, err
	}

	mf := &Makefile{paths: paths}
	if mf.CreateTimeUTC, err = ar.Int64(); err != nil {
		return nil, err
	}
	if mf.ModifiedTimeUTC, err = ar.Int64(); err != nil {
		return nil, err
	}
	if mf.TargetType, err = ar.String(); err != nil {
		return nil, err
	}
	exe, err := ar.String()
	if err != nil {
		return nil, err
	}
	mf.ExecutableFile = paths.File(exe)
	receipt, err := ar.String()
	if err != nil {
		return nil, err
	}
	mf.ReceiptFile = paths.File(receipt)
	interDir, err := ar.String()
	if err != nil {
		return nil, err
	}
	mf.ProjectIntermediateDirectory = paths.Dir(interDir)

	if mf.Actions, err = readActions(ar, paths); err != nil {
		return nil, err
	}
	if mf.OutputItems, err = readFileIDSlice(ar, paths); err != nil {
		return nil, err
	}
	if mf.ModuleNameToOutputItems, err = readModuleOutputs(ar, paths); err != nil {
		return nil, err
	}
	if mf.HotReloadModuleNames, err = readStringSet(ar); err != nil {
		return nil, err
	}
	if mf.SourceDirectories, err = readDirIDSlice(ar, paths); err != nil {
		return nil, err
	}
	if mf.WorkingSet, err = readFileIDSet(ar, paths); err != nil {
		return nil, err
	}
	if mf.CandidatesForWorkingSet, err = readFileIDSet(ar, paths); err != nil {
		return nil, err
	}
	if mf.ExternalDependencies, err = readFileIDSlice(ar, paths); err != nil {
		return nil, err
	}
	if mf.InternalDependencies, err = readFileIDSlice(ar, paths); err != nil {
		return nil, err
	}
	if mf.PluginFiles, err = readFileIDSlice(ar, paths); err != nil {
		return nil, err
	}
	if mf.UObjectModules, err = ar.StringSlice(); err != nil {
		return nil, err
	}
	if mf.UObjectModuleHeaders, err = readFileIDSet(ar, paths); err != nil {
		return nil, err
	}
	if mf.ConfigValueTracker, err = configtracker.ReadFrom(ar); err != nil {
		return nil, err
	}
	if mf.PreBuildScripts, err = readFileIDSlice(ar, paths); err != nil {
		return nil, err
	}
	if mf.AdditionalArguments, err = ar.StringSlice(); err != nil {
		return nil, err
	}
	if mf.EnvironmentVariables, err = readStringMap(ar); err != nil {
		return nil, err
	}
	if mf.Diagnostics, err = ar.StringSlice(); err != nil {
		return nil, err
	}
	if mf.ExternalMetadata, err = ar.String(); err != nil {
		return nil, err
	}
	if mf.DeployAfterCompile, err = ar.Bool(); err != nil {
		return nil, err
	}
	if mf.HasProjectScriptPlugin, err = ar.Bool(); err != nil {
		return nil, err
	}

	// DirectoryToSourceFiles is rebuilt by re-scanning rather than
	// trusting a possibly-stale snapshot: IsValidForSourceFiles always
	// compares against whatever was recorded at generation time, so the
	// snapshot itself must come from the archive, not a live re-scan.
	mf.DirectoryToSourceFiles = make(map[item.DirID][]item.FileID, len(mf.SourceDirectories))
	for _, dir := range mf.SourceDirectories {
		files, _ := paths.Children(dir)
		mf.DirectoryToSourceFiles[dir] = files
	}

	return mf, nil
}

func writeActions(w *archive.Writer, paths *item.Paths, actions []*graph.Action) error {
	return w.Map(len(actions), func(i int) error {
		a := actions[i]
		if err := w.Int32(int32(a.Type)); err != nil {
			return err
		}
		if err := w.String(paths.DirPath(a.WorkingDirectory)); err != nil {
			return err
		}
		if err := w.String(paths.Path(a.CommandPath)); err != nil {
			return err
		}
		if err := w.String(a.CommandArguments); err != nil {
			return err
		}
		if err := writeFileIDSlice(w, paths, a.PrerequisiteItems); err != nil {
			return err
		}
		if err := writeFileIDSlice(w, paths, a.ProducedItems); err != nil {
			return err
		}
		if err := writeFileIDSlice(w, paths, a.DeleteItems); err != nil {
			return err
		}
		if err := w.String(a.StatusDescription); err != nil {
			return err
		}
		if err := w.String(a.CommandDescription); err != nil {
			return err
		}
		if err := w.StringSlice(a.GroupNames); err != nil {
			return err
		}
		if err := w.Bool(a.CanExecuteRemotely); err != nil {
			return err
		}
		if err := w.Bool(a.CanExecuteRemotelyWithSNDBS); err != nil {
			return err
		}
		if err := w.Bool(a.IsGCCCompiler); err != nil {
			return err
		}
		if err := w.Bool(a.ShouldOutputStatusDescription); err != nil {
			return err
		}
		if err := w.Bool(a.ProducesImportLibrary); err != nil {
			return err
		}
		hasDepFile := a.DependencyListFile != nil
		if err := w.Bool(hasDepFile); err != nil {
			return err
		}
		if hasDepFile {
			return w.String(paths.Path(*a.DependencyListFile))
		}
		return nil
	})
}

func readActions(r *archive.Reader, paths *item.Paths) ([]*graph.Action, error) {
	var actions []*graph.Action
	n, err := r.Map(func(i int) error {
		a := &graph.Action{}
		t, err := r.Int32()
		if err != nil {
			return err
		}
		a.Type = graph.ActionType(t)
		dir, err := r.String()
		if err != nil {
			return err
		}
		a.WorkingDirectory = paths.Dir(dir)
		cmd, err := r.String()
		if err != nil {
			return err
		}
		a.CommandPath = paths.File(cmd)
		if a.CommandArguments, err = r.String(); err != nil {
			return err
		}
		if a.PrerequisiteItems, err = readFileIDSlice(r, paths); err != nil {
			return err
		}
		if a.ProducedItems, err = readFileIDSlice(r, paths); err != nil {
			return err
		}
		if a.DeleteItems, err = readFileIDSlice(r, paths); err != nil {
			return err
		}
		if a.StatusDescription, err = r.String(); err != nil {
			return err
		}
		if a.CommandDescription, err = r.String(); err != nil {
			return err
		}
		if a.GroupNames, err = r.StringSlice(); err != nil {
			return err
		}
		if a.CanExecuteRemotely, err = r.Bool(); err != nil {
			return err
		}
		if a.CanExecuteRemotelyWithSNDBS, err = r.Bool(); err != nil {
			return err
		}
		if a.IsGCCCompiler, err = r.Bool(); err != nil {
			return err
		}
		if a.ShouldOutputStatusDescription, err = r.Bool(); err != nil {
			return err
		}
		if a.ProducesImportLibrary, err = r.Bool(); err != nil {
			return err
		}
		hasDepFile, err := r.Bool()
		if err != nil {
			return err
		}
		if hasDepFile {
			depPath, err := r.String()
			if err != nil {
				return err
			}
			f := paths.File(depPath)
			a.DependencyListFile = &f
		}
		actions = append(actions, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = n
	return actions, nil
}

func writeModuleOutputs(w *archive.Writer, paths *item.Paths, m map[string][]item.FileID) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return w.Map(len(keys), func(i int) error {
		if err := w.String(keys[i]); err != nil {
			return err
		}
		return writeFileIDSlice(w, paths, m[keys[i]])
	})
}

func readModuleOutputs(r *archive.Reader, paths *item.Paths) (map[string][]item.FileID, error) {
	m := make(map[string][]item.FileID)
	_, err := r.Map(func(i int) error {
		k, err := r.String()
		if err != nil {
			return err
		}
		ids, err := readFileIDSlice(r, paths)
		if err != nil {
			return err
		}
		m[k] = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func writeFileIDSlice(w *archive.Writer, paths *item.Paths, ids []item.FileID) error {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = paths.Path(id)
	}
	return w.StringSlice(strs)
}

func readFileIDSlice(r *archive.Reader, paths *item.Paths) ([]item.FileID, error) {
	strs, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	out := make([]item.FileID, len(strs))
	for i, s := range strs {
		out[i] = paths.File(s)
	}
	return out, nil
}

func writeDirIDSlice(w *archive.Writer, paths *item.Paths, ids []item.DirID) error {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = paths.DirPath(id)
	}
	return w.StringSlice(strs)
}

func readDirIDSlice(r *archive.Reader, paths *item.Paths) ([]item.DirID, error) {
	strs, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	out := make([]item.DirID, len(strs))
	for i, s := range strs {
		out[i] = paths.Dir(s)
	}
	return out, nil
}

func writeFileIDSet(w *archive.Writer, paths *item.Paths, set map[item.FileID]bool) error {
	ids := make([]item.FileID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return writeFileIDSlice(w, paths, ids)
}

func readFileIDSet(r *archive.Reader, paths *item.Paths) (map[item.FileID]bool, error) {
	ids, err := readFileIDSlice(r, paths)
	if err != nil {
		return nil, err
	}
	set := make(map[item.FileID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func writeStringSet(w *archive.Writer, set map[string]bool) error {
	strs := make([]string, 0, len(set))
	for s := range set {
		strs = append(strs, s)
	}
	return w.StringSlice(strs)
}

func readStringSet(r *archive.Reader) (map[string]bool, error) {
	strs, err := r.StringSlice()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(strs))
	for _, s := range strs {
		set[s] = true
	}
	return set, nil
}

func writeStringMap(w *archive.Writer, m map[string]string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return w.Map(len(keys), func(i int) error {
		if err := w.String(keys[i]); err != nil {
			return err
		}
		return w.String(m[keys[i]])
	})
}

func readStringMap(r *archive.Reader) (map[string]string, error) {
	m := make(map[string]string)
	_, err := r.Map(func(i int) error {
		k, err := r.String()
		if err != nil {
			return err
		}
		v, err := r.String()
		if err != nil {
			return err
		}
		m[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
