// Package dag provides graph operations over rule hierarchies.
// It supports typed edges, breadth-first walks that tolerate cycles in bad
// data, and cycle detection for validating parent links.
package dag

import (
	"fmt"
	"slices"
)

// EdgeKind distinguishes the relationships stored in a Graph. Kinds are bit
// flags so callers can walk several kinds at once.
type EdgeKind uint8

// Edge kinds.
const (
	// EdgeParent links a parent rule to a child rule.
	EdgeParent EdgeKind = 1 << iota
	// EdgeCriticalLink links a global critical rule to a target rule.
	EdgeCriticalLink

	EdgeAll = EdgeParent | EdgeCriticalLink
)

// Node represents a node in the graph.
type Node struct {
	// ID is the rule identifier
	ID int64
	// Data holds arbitrary node data
	Data any
}

type edge struct {
	to   int64
	kind EdgeKind
}

// Graph is a directed graph keyed by int64 ids. Unlike a strict DAG it
// accepts cycles; every walk keeps a visited set.
type Graph struct {
	nodes   map[int64]*Node
	edges   map[int64][]edge // parent -> children
	parents map[int64][]edge // child -> parents
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[int64]*Node),
		edges:   make(map[int64][]edge),
		parents: make(map[int64][]edge),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id int64, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
}

// AddEdge adds a directed edge of the given kind from parent to child.
func (g *Graph) AddEdge(parentID, childID int64, kind EdgeKind) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %d does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %d does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %d", parentID)
	}

	e := edge{to: childID, kind: kind}
	if !slices.Contains(g.edges[parentID], e) {
		g.edges[parentID] = append(g.edges[parentID], e)
	}
	back := edge{to: parentID, kind: kind}
	if !slices.Contains(g.parents[childID], back) {
		g.parents[childID] = append(g.parents[childID], back)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id int64) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id int64) bool {
	_, ok := g.nodes[id]
	return ok
}

// Children returns the direct children of id reachable through edges of the
// given kinds, in ascending order.
func (g *Graph) Children(id int64, kinds EdgeKind) []int64 {
	return collect(g.edges[id], kinds)
}

// Parents returns the direct parents of id through edges of the given kinds,
// in ascending order.
func (g *Graph) Parents(id int64, kinds EdgeKind) []int64 {
	return collect(g.parents[id], kinds)
}

func collect(es []edge, kinds EdgeKind) []int64 {
	var out []int64
	for _, e := range es {
		if e.kind&kinds != 0 && !slices.Contains(out, e.to) {
			out = append(out, e.to)
		}
	}
	slices.Sort(out)
	return out
}

// IDs returns all node ids in ascending order.
func (g *Graph) IDs() []int64 {
	ids := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges of the given kinds.
func (g *Graph) EdgeCount(kinds EdgeKind) int {
	count := 0
	for _, es := range g.edges {
		for _, e := range es {
			if e.kind&kinds != 0 {
				count++
			}
		}
	}
	return count
}

// Roots returns nodes without parents of the given kinds, in ascending order.
func (g *Graph) Roots(kinds EdgeKind) []int64 {
	var roots []int64
	for _, id := range g.IDs() {
		if len(g.Parents(id, kinds)) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Walk visits every node reachable from start through edges of the given
// kinds in breadth-first order. Children are queued in ascending id order.
// start itself is never visited, even when a cycle leads back to it. fn
// receives the node and its distance from start; returning false stops the
// walk. Walk returns the number of edges that led to an already visited node.
func (g *Graph) Walk(start int64, kinds EdgeKind, fn func(id int64, depth int) bool) int {
	type item struct {
		id    int64
		depth int
	}

	visited := map[int64]bool{start: true}
	queue := []item{{start, 0}}
	revisits := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, child := range g.Children(cur.id, kinds) {
			if visited[child] {
				revisits++
				continue
			}
			visited[child] = true
			if !fn(child, cur.depth+1) {
				return revisits
			}
			queue = append(queue, item{child, cur.depth + 1})
		}
	}
	return revisits
}

// Descendants returns every node reachable from id, excluding id, in
// ascending order.
func (g *Graph) Descendants(id int64, kinds EdgeKind) []int64 {
	var out []int64
	g.Walk(id, kinds, func(n int64, _ int) bool {
		out = append(out, n)
		return true
	})
	slices.Sort(out)
	return out
}

// Ancestors returns all nodes upstream of id, excluding id, in ascending order.
func (g *Graph) Ancestors(id int64, kinds EdgeKind) []int64 {
	upstream := make(map[int64]bool)

	var mark func(nodeID int64)
	mark = func(nodeID int64) {
		for _, p := range g.Parents(nodeID, kinds) {
			if p != id && !upstream[p] {
				upstream[p] = true
				mark(p)
			}
		}
	}
	mark(id)

	result := make([]int64, 0, len(upstream))
	for n := range upstream {
		result = append(result, n)
	}
	slices.Sort(result)
	return result
}

// HasCycle returns true if edges of the given kinds form a cycle, along with
// the cycle path (first node repeated at the end).
func (g *Graph) HasCycle(kinds EdgeKind) (bool, []int64) {
	visited := make(map[int64]bool)
	recStack := make(map[int64]bool)
	path := make(map[int64]int64)

	var cyclePath []int64

	var dfs func(id int64) bool
	dfs = func(id int64) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.Children(id, kinds) {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []int64{id}
				for curr := id; curr != childID; {
					curr = path[curr]
					cyclePath = append([]int64{curr}, cyclePath...)
				}
				cyclePath = append(cyclePath, childID)
				return true
			}
		}

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
