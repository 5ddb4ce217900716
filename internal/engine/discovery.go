package engine

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/leapstack-labs/shopflow/internal/dag"
	"github.com/leapstack-labs/shopflow/internal/loader"
	"github.com/leapstack-labs/shopflow/internal/registry"
	"github.com/leapstack-labs/shopflow/internal/template"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// DiscoveryOptions controls model discovery.
type DiscoveryOptions struct {
	// SkipPersist disables writing models and dependencies to the state store.
	SkipPersist bool
}

// DiscoveryResult summarizes a discovery pass.
type DiscoveryResult struct {
	Models  int
	Sources int
	// Changed lists model paths that are new or whose content hash differs
	// from the state store.
	Changed []string
	// Errors are per-file problems; the offending models are left out.
	Errors []error
	// Warnings are layer-order violations between models.
	Warnings []dag.LayerViolation
}

// HasErrors reports whether any file failed to parse or resolve.
func (r *DiscoveryResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err joins the per-file errors.
func (r *DiscoveryResult) Err() error {
	return errors.Join(r.Errors...)
}

// Discover parses sources.yml and every model file, builds the registry and
// dependency graph and persists them to the state store. Parse errors are
// collected in the result; only a dependency cycle aborts discovery.
func (e *Engine) Discover(opts DiscoveryOptions) (*DiscoveryResult, error) {
	if _, err := os.Stat(e.modelsDir); err != nil {
		return nil, fmt.Errorf("models directory %s: %w", e.modelsDir, err)
	}

	e.logger.Debug("discovering models", "dir", e.modelsDir)
	result := &DiscoveryResult{}
	reg := registry.NewModelRegistry()

	sources, err := loader.LoadSources(e.modelsDir)
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	for _, src := range sources {
		reg.RegisterSource(src)
	}
	result.Sources = len(sources)

	files, err := loader.ModelFiles(e.modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list model files: %w", err)
	}

	hashes := make(map[string]string, len(files))
	for _, file := range files {
		m, perr := loader.ParseModelFile(file)
		if perr != nil {
			result.Errors = append(result.Errors, perr)
			continue
		}

		// Recording render: ref and source are captured, not validated.
		rendered, rerr := template.RenderModel(m, &template.Context{
			Dialect: e.dialect,
			Target:  e.target,
			Vars:    e.vars,
		})
		if rerr != nil {
			result.Errors = append(result.Errors, rerr)
			continue
		}
		m.Refs = rendered.Refs
		m.Sources = rendered.Sources

		if rerr := reg.Register(m); rerr != nil {
			result.Errors = append(result.Errors, rerr)
			continue
		}
		hashes[m.Path] = loader.ContentHash(m.RawContent)
	}

	graph := dag.NewGraph()
	models := make(map[string]*core.Model)
	for _, m := range reg.AllModels() {
		graph.AddNode(m.Path, m)
		models[m.Path] = m
	}
	for _, m := range reg.AllModels() {
		deps, _, derr := reg.ResolveDependencies(m)
		if derr != nil {
			result.Errors = append(result.Errors, derr)
		}
		for _, parent := range deps {
			if err := graph.AddEdge(parent, m.Path); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
	}

	if hasCycle, path := graph.HasCycle(); hasCycle {
		return nil, &dag.CycleError{Path: path}
	}

	result.Models = graph.NodeCount()
	result.Warnings = graph.LayerViolations()
	for _, v := range result.Warnings {
		e.logger.Warn("layer violation", "parent", v.Parent, "child", v.Child, "reason", v.Reason)
	}

	if !opts.SkipPersist {
		changed, err := e.persistModels(graph, hashes)
		if err != nil {
			return nil, err
		}
		result.Changed = changed
	}

	e.graph = graph
	e.models = models
	e.registry = reg
	e.discovered = true

	e.logger.Debug("discovery complete",
		"models", result.Models, "sources", result.Sources,
		"changed", len(result.Changed), "errors", len(result.Errors))
	return result, nil
}

// persistModels upserts every model and its dependency edges.
func (e *Engine) persistModels(graph *dag.Graph, hashes map[string]string) ([]string, error) {
	var changed []string
	ids := make(map[string]string, graph.NodeCount())

	for _, node := range graph.GetAllNodes() {
		hash := hashes[node.ID]
		existing, err := e.store.GetModelByPath(node.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up model %s: %w", node.ID, err)
		}
		if existing == nil || existing.ContentHash != hash {
			changed = append(changed, node.ID)
		}

		pm := &core.PersistedModel{Model: node.Model, ContentHash: hash}
		if err := e.store.RegisterModel(pm); err != nil {
			return nil, fmt.Errorf("failed to register model %s: %w", node.ID, err)
		}
		ids[node.ID] = pm.ID
	}

	for _, node := range graph.GetAllNodes() {
		parents := graph.GetParents(node.ID)
		parentIDs := make([]string, 0, len(parents))
		for _, p := range parents {
			parentIDs = append(parentIDs, ids[p])
		}
		if err := e.store.SetDependencies(ids[node.ID], parentIDs); err != nil {
			return nil, fmt.Errorf("failed to set dependencies for %s: %w", node.ID, err)
		}
	}

	sort.Strings(changed)
	e.modelIDs = ids
	return changed, nil
}

// ensureDiscovered runs discovery once if nothing has been discovered yet.
func (e *Engine) ensureDiscovered() error {
	if e.discovered {
		return nil
	}
	res, err := e.Discover(DiscoveryOptions{})
	if err != nil {
		return err
	}
	for _, derr := range res.Errors {
		e.logger.Warn("discovery problem", "error", derr)
	}
	return nil
}

// modelID returns the persisted id for a model path, registering the
// model on demand when discovery skipped persistence.
func (e *Engine) modelID(m *core.Model) (string, error) {
	if id, ok := e.modelIDs[m.Path]; ok {
		return id, nil
	}
	pm := &core.PersistedModel{Model: m, ContentHash: loader.ContentHash(m.RawContent)}
	if err := e.store.RegisterModel(pm); err != nil {
		return "", fmt.Errorf("failed to register model %s: %w", m.Path, err)
	}
	e.modelIDs[m.Path] = pm.ID
	return pm.ID, nil
}
