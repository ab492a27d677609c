// Package configtracker records the config values observed while a
// makefile was generated and revalidates them on load, the way the
// teacher's schema_validation.go revalidates workflow frontmatter
// against a compiled JSON schema before trusting it.
package configtracker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/forgebuild/forge/pkg/archive"
	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/logger"
)

var trackerLog = logger.New("forge:configtracker")

// Key identifies one config value read: a hierarchy layer, the project
// directory it was read for, the target platform, and a section/key pair
// within that platform's config file.
type Key struct {
	HierarchyType string
	ProjectDir    string
	Platform      string
	Section       string
	ConfigKey     string
}

// Tracker is the exact mapping from spec.md §3's ConfigValueTracker:
// Key -> the list of string values observed when the makefile was built.
type Tracker struct {
	mu     sync.Mutex
	values map[Key][]string
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{values: make(map[Key][]string)}
}

// Record stores the values observed for key, overwriting any prior entry.
func (t *Tracker) Record(key Key, values []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = append([]string(nil), values...)
}

// Lookup returns the recorded values for key, if any.
func (t *Tracker) Lookup(key Key) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[key]
	return v, ok
}

// Revalidate re-reads every recorded key through current and reports the
// first mismatch. A schema mismatch of the config document itself (if
// schema is non-nil) is reported before any key comparison.
func (t *Tracker) Revalidate(current *Tracker, schema *jsonschema.Schema, configDoc map[string]any) error {
	if schema != nil && configDoc != nil {
		if err := schema.Validate(configDoc); err != nil {
			return builderr.Wrap(err, "", "config document failed schema validation")
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, want := range t.values {
		got, ok := current.Lookup(key)
		if !ok || !stringSliceEqual(want, got) {
			trackerLog.Printf("config value changed: key=%+v want=%v got=%v", key, want, got)
			return builderr.Newf(builderr.ConfigInvalid,
				"config value for %s/%s changed since makefile was built", key.Section, key.ConfigKey)
		}
	}
	return nil
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CompileSchema compiles a JSON schema document into a *jsonschema.Schema,
// mirroring the teacher's compileSchema helper: parse the schema JSON,
// register it as a resource, then compile it by URL.
func CompileSchema(schemaJSON []byte, schemaURL string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add config schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	return schema, nil
}

// WriteTo persists t using the archive format: a flat list of
// (hierarchy_type, project_dir, platform, section, config_key, values...).
func (t *Tracker) WriteTo(w *archive.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]Key, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	return w.Map(len(keys), func(i int) error {
		k := keys[i]
		if err := w.String(k.HierarchyType); err != nil {
			return err
		}
		if err := w.String(k.ProjectDir); err != nil {
			return err
		}
		if err := w.String(k.Platform); err != nil {
			return err
		}
		if err := w.String(k.Section); err != nil {
			return err
		}
		if err := w.String(k.ConfigKey); err != nil {
			return err
		}
		return w.StringSlice(t.values[k])
	})
}

// ReadFrom populates a fresh Tracker from r, the inverse of WriteTo.
func ReadFrom(r *archive.Reader) (*Tracker, error) {
	t := New()
	_, err := r.Map(func(i int) error {
		var k Key
		var err error
		if k.HierarchyType, err = r.String(); err != nil {
			return err
		}
		if k.ProjectDir, err = r.String(); err != nil {
			return err
		}
		if k.Platform, err = r.String(); err != nil {
			return err
		}
		if k.Section, err = r.String(); err != nil {
			return err
		}
		if k.ConfigKey, err = r.String(); err != nil {
			return err
		}
		values, err := r.StringSlice()
		if err != nil {
			return err
		}
		t.values[k] = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
