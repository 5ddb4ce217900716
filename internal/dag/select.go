package dag

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// Select returns the sorted IDs matched by any of the selector patterns.
//
// A pattern is a model name or path, "layer:<layer>" or "tag:<tag>". A
// leading "+" adds every upstream node and a trailing "+" adds every
// downstream node. No patterns selects the whole graph. A pattern that
// matches nothing is an error.
func (g *Graph) Select(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return g.IDs(), nil
	}

	selected := make(map[string]bool)
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		upstream := strings.HasPrefix(pattern, "+")
		downstream := strings.HasSuffix(pattern, "+")
		base := strings.TrimSuffix(strings.TrimPrefix(pattern, "+"), "+")
		if base == "" {
			return nil, fmt.Errorf("empty selector %q", raw)
		}

		matched, err := g.match(base)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("selector %q matched no models", raw)
		}

		for _, id := range matched {
			selected[id] = true
			if upstream {
				for _, up := range g.GetUpstreamNodes(id) {
					selected[up] = true
				}
			}
			if downstream {
				for _, down := range g.GetDownstreamNodes(id) {
					selected[down] = true
				}
			}
		}
	}
	return sortedSet(selected), nil
}

func (g *Graph) match(base string) ([]string, error) {
	var ids []string
	switch {
	case strings.HasPrefix(base, "layer:"):
		layer, err := core.ParseLayer(strings.TrimPrefix(base, "layer:"))
		if err != nil {
			return nil, err
		}
		for _, n := range g.GetAllNodes() {
			if n.Model != nil && n.Model.Layer == layer {
				ids = append(ids, n.ID)
			}
		}
	case strings.HasPrefix(base, "tag:"):
		tag := strings.TrimPrefix(base, "tag:")
		for _, n := range g.GetAllNodes() {
			if n.Model != nil && n.Model.HasTag(tag) {
				ids = append(ids, n.ID)
			}
		}
	default:
		for _, n := range g.GetAllNodes() {
			if n.ID == base || (n.Model != nil && n.Model.Name == base) {
				ids = append(ids, n.ID)
			}
		}
	}
	return ids, nil
}

// LayerViolation is an edge that runs against the medallion order.
type LayerViolation struct {
	Parent string
	Child  string
	Reason string
}

func (v LayerViolation) String() string {
	return fmt.Sprintf("%s -> %s: %s", v.Parent, v.Child, v.Reason)
}

// LayerViolations reports edges where a model reads from a later layer, or
// where a bronze model reads anything but sources.
func (g *Graph) LayerViolations() []LayerViolation {
	var out []LayerViolation
	for _, child := range g.GetAllNodes() {
		if child.Model == nil {
			continue
		}
		for _, parentID := range g.parents[child.ID] {
			parent := g.nodes[parentID]
			if parent.Model == nil {
				continue
			}
			switch {
			case child.Model.Layer == core.LayerBronze:
				out = append(out, LayerViolation{
					Parent: parentID, Child: child.ID,
					Reason: "bronze models should only read sources",
				})
			case parent.Model.Layer.Rank() > child.Model.Layer.Rank():
				out = append(out, LayerViolation{
					Parent: parentID, Child: child.ID,
					Reason: fmt.Sprintf("%s model reads from %s", child.Model.Layer, parent.Model.Layer),
				})
			}
		}
	}
	return out
}
