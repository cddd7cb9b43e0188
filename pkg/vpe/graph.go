package vpe

import (
	"fmt"

	"github.com/pulseone-io/collector/pkg/model"
)

// edge binds a formula alias to one input source.
type edge struct {
	alias string
	sourceID int64
	isVirtual bool
}

// node is one virtual point's position in the dependency graph.
type node struct {
	vp model.VirtualPoint
	edges []edge

	// dependents lists the virtual-point ids whose inputs include this
	// node's id, i.e. the forward edges, used to propagate re-evaluation
	// after this node's value changes.
	dependents []int64
}

// graph is the VirtualPointEngine's dependency graph. It is a DAG by
// construction; Build rejects cycles with ConfigInvalid.
type graph struct {
	nodes map[int64]*node
	// order is the full topological order of nodes, computed once at
	// Build time and reused for every batch evaluation.
	order []int64
}

// buildGraph constructs the dependency graph from a virtual point set and
// validates it is acyclic. Virtual points failing model.Validate are
// rejected individually and do not abort the others, matching
// propagation policy (only bootstrap-wide ConfigInvalid aborts
// initialization; the caller decides how to treat build failures returned
// here, which are always virtual-point-scoped).
func buildGraph(vps []model.VirtualPoint) (*graph, map[int64]error) {
	g := &graph{nodes: make(map[int64]*node, len(vps))}
	rejected := make(map[int64]error)

	for _, vp := range vps {
		if !vp.Enabled {
			continue
		}
		if err := vp.Validate(); err != nil {
			rejected[vp.ID] = err
			continue
		}
		edges := make([]edge, 0, len(vp.Inputs))
		for _, in := range vp.Inputs {
			edges = append(edges, edge{alias: in.Alias, sourceID: in.SourcePointID, isVirtual: in.IsVirtual})
		}
		g.nodes[vp.ID] = &node{vp: vp, edges: edges}
	}

	for id, n := range g.nodes {
		for _, e := range n.edges {
			if !e.isVirtual {
				continue
			}
			src, ok := g.nodes[e.sourceID]
			if !ok {
				continue // upstream virtual point missing/disabled/rejected
			}
			src.dependents = append(src.dependents, id)
		}
	}

	order, cyclic := topoSort(g.nodes)
	if len(cyclic) > 0 {
		for _, id := range cyclic {
			rejected[id] = model.NewConfigInvalidError(
				fmt.Sprintf("virtual_point:%d", id),
			"virtual point dependency graph contains a cycle")
			delete(g.nodes, id)
		}
		order, _ = topoSort(g.nodes)
	}
	g.order = order

	return g, rejected
}

// topoSort runs Kahn's algorithm over the virtual-point-to-virtual-point
// edges. Nodes left unvisited once the queue drains participate in a
// cycle and are returned in cyclic.
func topoSort(nodes map[int64]*node) (order []int64, cyclic []int64) {
	indegree := make(map[int64]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for _, n := range nodes {
		for _, e := range n.edges {
			if !e.isVirtual {
				continue
			}
			if _, ok := nodes[e.sourceID]; ok {
				indegree[n.vp.ID]++
			}
		}
	}

	var queue []int64
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := make(map[int64]bool, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited[id] = true
		order = append(order, id)

		for _, depID := range nodes[id].dependents {
			indegree[depID]--
			if indegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	for id := range nodes {
		if !visited[id] {
			cyclic = append(cyclic, id)
		}
	}
	return order, cyclic
}

// downstreamOf returns every node id reachable from roots via dependents
// edges, in the graph's topological order, so a batch triggered by one or
// more input changes evaluates each affected virtual point at most once
//.
func (g *graph) downstreamOf(roots []int64) []int64 {
	affected := make(map[int64]bool, len(roots))
	var mark func(id int64)
	mark = func(id int64) {
		n, ok := g.nodes[id]
		if !ok || affected[id] {
			return
		}
		affected[id] = true
		for _, dep := range n.dependents {
			mark(dep)
		}
	}
	for _, id := range roots {
		mark(id)
	}

	var out []int64
	for _, id := range g.order {
		if affected[id] {
			out = append(out, id)
		}
	}
	return out
}
