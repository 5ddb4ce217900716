// Package registry indexes discovered models and sources and resolves the
// names used by ref and source into model paths.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// ModelRegistry maps model names and paths to models.
type ModelRegistry struct {
	mu sync.RWMutex

	// byPath maps model paths to models: "silver.slv_orders" → *Model
	byPath map[string]*core.Model

	// byName maps unqualified names to every path using that name.
	byName map[string][]string

	sources map[string]*core.Source
}

// NewModelRegistry creates a new empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		byPath:  make(map[string]*core.Model),
		byName:  make(map[string][]string),
		sources: make(map[string]*core.Source),
	}
}

// Register adds a model. Registering the same path twice is an error.
func (r *ModelRegistry) Register(model *core.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byPath[model.Path]; ok {
		return fmt.Errorf("model %s defined twice: %s and %s", model.Path, existing.FilePath, model.FilePath)
	}
	r.byPath[model.Path] = model
	r.byName[model.Name] = append(r.byName[model.Name], model.Path)
	sort.Strings(r.byName[model.Name])
	return nil
}

// RegisterSource adds a raw source.
func (r *ModelRegistry) RegisterSource(src *core.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Name] = src
}

// Resolve finds the model for a name or a full path.
func (r *ModelRegistry) Resolve(name string) (*core.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.byPath[name]; ok {
		return m, nil
	}
	paths := r.byName[name]
	switch len(paths) {
	case 0:
		return nil, &ModelNotFoundError{Name: name, Suggestions: r.suggest(name)}
	case 1:
		return r.byPath[paths[0]], nil
	default:
		return nil, &AmbiguousModelError{Name: name, Paths: append([]string(nil), paths...)}
	}
}

// ResolveRef implements template.Resolver.
func (r *ModelRegistry) ResolveRef(name string) (*core.Model, error) {
	return r.Resolve(name)
}

// HasSource reports whether a source with this name is declared.
func (r *ModelRegistry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[name]
	return ok
}

// Source returns a declared source.
func (r *ModelRegistry) Source(name string) (*core.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// GetModel returns the model registered under path.
func (r *ModelRegistry) GetModel(path string) (*core.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byPath[path]
	return m, ok
}

// AllModels returns all registered models ordered by path.
func (r *ModelRegistry) AllModels() []*core.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]*core.Model, 0, len(r.byPath))
	for _, m := range r.byPath {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Path < models[j].Path })
	return models
}

// AllSources returns all declared sources ordered by name.
func (r *ModelRegistry) AllSources() []*core.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]*core.Source, 0, len(r.sources))
	for _, s := range r.sources {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

// Count returns the number of registered models.
func (r *ModelRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPath)
}

// ResolveDependencies resolves a model's recorded refs and sources.
// It returns the parent model paths and the source names, both deduplicated
// and sorted. Unknown names are collected into a single error.
func (r *ModelRegistry) ResolveDependencies(m *core.Model) (deps []string, sources []string, err error) {
	seen := make(map[string]bool)
	var problems []string

	for _, ref := range m.Refs {
		parent, rerr := r.Resolve(ref)
		if rerr != nil {
			problems = append(problems, rerr.Error())
			continue
		}
		if parent.Path == m.Path {
			problems = append(problems, fmt.Sprintf("model %s references itself", m.Path))
			continue
		}
		if !seen[parent.Path] {
			seen[parent.Path] = true
			deps = append(deps, parent.Path)
		}
	}

	for _, name := range m.Sources {
		if !r.HasSource(name) {
			problems = append(problems, fmt.Sprintf("unknown source %q", name))
			continue
		}
		sources = append(sources, name)
	}

	sort.Strings(deps)
	sort.Strings(sources)
	if len(problems) > 0 {
		return deps, sources, fmt.Errorf("%s: %s", m.Path, strings.Join(problems, "; "))
	}
	return deps, sources, nil
}

// suggest returns up to three known names close to name. Caller holds the lock.
func (r *ModelRegistry) suggest(name string) []string {
	type candidate struct {
		name string
		dist int
	}
	maxDist := max(2, len(name)/3)

	var cands []candidate
	for known := range r.byName {
		if d := levenshtein(name, known); d <= maxDist {
			cands = append(cands, candidate{known, d})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].name < cands[j].name
	})

	out := make([]string, 0, 3)
	for i := 0; i < len(cands) && i < 3; i++ {
		out = append(out, cands[i].name)
	}
	return out
}

func levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// ModelNotFoundError is returned when ref names an unknown model.
type ModelNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *ModelNotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("model %q not found", e.Name)
	}
	return fmt.Sprintf("model %q not found (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

// AmbiguousModelError is returned when a name matches models in several layers.
type AmbiguousModelError struct {
	Name  string
	Paths []string
}

func (e *AmbiguousModelError) Error() string {
	return fmt.Sprintf("model name %q is ambiguous, use one of: %s", e.Name, strings.Join(e.Paths, ", "))
}
