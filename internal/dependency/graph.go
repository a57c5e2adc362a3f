package dependency

import (
	"sort"

	"cognical/internal/domain"
)

// Node is one task's view inside a graph snapshot.
type Node struct {
	TaskID       string   `json:"taskId"`
	Status       string   `json:"status"`
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
	IsReady      bool     `json:"isReady"`
}

// Graph is an immutable snapshot of the dependency DAG with derived orders.
type Graph struct {
	Nodes        map[string]*Node    `json:"nodes"`
	Edges        []domain.Dependency `json:"edges"`
	TopoOrder    []string            `json:"topoOrder"`
	CriticalPath []string            `json:"criticalPath,omitempty"`
}

func buildGraph(tasks []domain.Task, edges []domain.Dependency) *Graph {
	g := &Graph{Nodes: make(map[string]*Node, len(tasks)), Edges: edges}
	statuses := make(map[string]string, len(tasks))
	for _, t := range tasks {
		g.Nodes[t.ID] = &Node{TaskID: t.ID, Status: t.Status}
		statuses[t.ID] = t.Status
	}
	for _, e := range edges {
		pred, okP := g.Nodes[e.PredecessorID]
		succ, okS := g.Nodes[e.SuccessorID]
		if !okP || !okS {
			continue
		}
		pred.Dependents = append(pred.Dependents, e.SuccessorID)
		succ.Dependencies = append(succ.Dependencies, e.PredecessorID)
	}
	for _, n := range g.Nodes {
		sort.Strings(n.Dependencies)
		sort.Strings(n.Dependents)
		n.IsReady = !domain.Terminal(n.Status) && allDone(n.Dependencies, statuses)
	}
	g.TopoOrder = topoOrder(g)
	g.CriticalPath = longestChain(g)
	return g
}

func allDone(ids []string, statuses map[string]string) bool {
	for _, id := range ids {
		if statuses[id] != domain.StatusDone {
			return false
		}
	}
	return true
}

// topoOrder runs Kahn's algorithm with ties broken by task id so the order
// is deterministic for equal graphs.
func topoOrder(g *Graph) []string {
	indegree := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		indegree[id] = len(n.Dependencies)
	}
	var frontier []string
	for id, d := range indegree {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)
	order := make([]string, 0, len(g.Nodes))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		var released []string
		for _, succ := range g.Nodes[id].Dependents {
			indegree[succ]--
			if indegree[succ] == 0 {
				released = append(released, succ)
			}
		}
		if len(released) > 0 {
			frontier = append(frontier, released...)
			sort.Strings(frontier)
		}
	}
	return order
}

// longestChain finds the longest predecessor chain, by edge count, ending at
// any terminal node of the DAG.
func longestChain(g *Graph) []string {
	depth := make(map[string]int, len(g.Nodes))
	prev := make(map[string]string, len(g.Nodes))
	best := ""
	for _, id := range g.TopoOrder {
		for _, predID := range g.Nodes[id].Dependencies {
			if d := depth[predID] + 1; d > depth[id] || (d == depth[id] && predID < prev[id]) {
				depth[id] = d
				prev[id] = predID
			}
		}
		if best == "" || depth[id] > depth[best] || (depth[id] == depth[best] && id < best) {
			best = id
		}
	}
	if best == "" || depth[best] == 0 {
		return nil
	}
	return chainTo(best, depth, prev)
}

// chainTo walks prev links back from end and returns the chain front-first.
func chainTo(end string, depth map[string]int, prev map[string]string) []string {
	path := make([]string, 0, depth[end]+1)
	for id := end; ; {
		path = append(path, id)
		p, ok := prev[id]
		if !ok || depth[id] == 0 {
			break
		}
		id = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// pathBetween returns a directed path from -> to over successor edges, or nil.
func pathBetween(g *Graph, from, to string) []string {
	if _, ok := g.Nodes[from]; !ok {
		return nil
	}
	visited := map[string]bool{}
	var dfs func(id string, trail []string) []string
	dfs = func(id string, trail []string) []string {
		trail = append(trail, id)
		if id == to {
			return append([]string(nil), trail...)
		}
		visited[id] = true
		for _, succ := range g.Nodes[id].Dependents {
			if visited[succ] {
				continue
			}
			if found := dfs(succ, trail); found != nil {
				return found
			}
		}
		return nil
	}
	return dfs(from, nil)
}
