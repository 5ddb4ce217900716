// Package dag provides directed acyclic graph operations for model dependencies.
// It supports cycle detection, topological sorting, execution levels and
// selection of subsets of the pipeline.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (model path)
	ID string
	// Model is the model behind the node; may be nil in tests.
	Model *core.Model
}

// Graph represents a directed acyclic graph.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph, replacing the model of an existing node.
func (g *Graph) AddNode(id string, model *core.Model) {
	if n, exists := g.nodes[id]; exists {
		n.Model = model
		return
	}
	g.nodes[id] = &Node{ID: id, Model: model}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = insertSorted(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = insertSorted(g.parents[childID], parentID)
	}
	return nil
}

func insertSorted(s []string, v string) []string {
	i, _ := slices.BinarySearch(s, v)
	return slices.Insert(s, i, v)
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the parents (dependencies) of a node in ID order.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the children (dependents) of a node in ID order.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// IDs returns every node ID in sorted order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAllNodes returns all nodes sorted by ID.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, id := range g.IDs() {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// CycleError reports a dependency cycle. Path starts and ends on the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
// The search visits nodes in ID order so the reported cycle is stable.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var stack []string
	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true
		stack = append(stack, id)

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				start := slices.Index(stack, childID)
				cyclePath = append(slices.Clone(stack[start:]), childID)
				return true
			}
		}

		stack = stack[:len(stack)-1]
		recStack[id] = false
		return false
	}

	for _, id := range g.IDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

func (g *Graph) checkCycle() error {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return &CycleError{Path: path}
	}
	return nil
}

// TopologicalSort returns nodes in topological order (dependencies before
// dependents). Independent nodes are ordered by ID.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if err := g.checkCycle(); err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	result := make([]*Node, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.parents[id] {
			visit(parentID)
		}
		result = append(result, g.nodes[id])
	}

	for _, id := range g.IDs() {
		visit(id)
	}
	return result, nil
}

// GetExecutionLevels returns nodes grouped by execution level.
// Nodes at level N can be executed in parallel after level N-1 completes.
// Level 0 contains nodes with no dependencies.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	if err := g.checkCycle(); err != nil {
		return nil, err
	}
	if len(g.nodes) == 0 {
		return [][]string{}, nil
	}

	assigned := make(map[string]int)
	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			level = max(level, getLevel(parentID)+1)
		}
		assigned[id] = level
		return level
	}

	maxLevel := 0
	for _, id := range g.IDs() {
		maxLevel = max(maxLevel, getLevel(id))
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range g.IDs() {
		levels[assigned[id]] = append(levels[assigned[id]], id)
	}
	return levels, nil
}

// GetAffectedNodes returns the given nodes and all their downstream dependents.
func (g *Graph) GetAffectedNodes(changedIDs []string) []string {
	affected := make(map[string]bool)

	var markAffected func(id string)
	markAffected = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			markAffected(childID)
		}
	}

	for _, id := range changedIDs {
		if _, exists := g.nodes[id]; exists {
			markAffected(id)
		}
	}
	return sortedSet(affected)
}

// GetDownstreamNodes returns every node that depends on id, excluding id.
func (g *Graph) GetDownstreamNodes(id string) []string {
	down := make(map[string]bool)
	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, childID := range g.edges[nodeID] {
			if !down[childID] {
				down[childID] = true
				mark(childID)
			}
		}
	}
	mark(id)
	return sortedSet(down)
}

// GetUpstreamNodes returns all nodes upstream of the given node (its dependencies and their dependencies).
func (g *Graph) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]bool)

	var markUpstream func(nodeID string)
	markUpstream = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				markUpstream(parentID)
			}
		}
	}

	markUpstream(id)
	return sortedSet(upstream)
}

// GetRoots returns nodes with no parents (no dependencies).
func (g *Graph) GetRoots() []string {
	var roots []string
	for _, id := range g.IDs() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetLeaves returns nodes with no children (no dependents).
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for _, id := range g.IDs() {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Subgraph returns a new graph containing only the specified nodes and the
// edges between them.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	subgraph := NewGraph()
	nodeSet := make(map[string]bool)

	for _, id := range nodeIDs {
		if node, exists := g.nodes[id]; exists {
			nodeSet[id] = true
			subgraph.AddNode(id, node.Model)
		}
	}

	for id := range nodeSet {
		for _, childID := range g.edges[id] {
			if nodeSet[childID] {
				_ = subgraph.AddEdge(id, childID)
			}
		}
	}
	return subgraph
}

func sortedSet(set map[string]bool) []string {
	result := make([]string, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
