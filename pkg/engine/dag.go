package engine

import "sort"

// dependencyGraph is the adjacency view of a plan's subtasks used for cycle
// detection and ordering. Built once per validation pass.
type dependencyGraph struct {
	order     []string
	indegree  map[string]int
	adjacency map[string][]string
}

func buildDependencyGraph(subtasks []Subtask) *dependencyGraph {
	g := &dependencyGraph{
		order:     make([]string, 0, len(subtasks)),
		indegree:  make(map[string]int, len(subtasks)),
		adjacency: make(map[string][]string, len(subtasks)),
	}
	for _, st := range subtasks {
		g.order = append(g.order, st.ID)
		g.indegree[st.ID] = 0
		g.adjacency[st.ID] = nil
	}
	for _, st := range subtasks {
		for _, dep := range st.DependsOn {
			g.adjacency[dep] = append(g.adjacency[dep], st.ID)
			g.indegree[st.ID]++
		}
	}
	return g
}

// cycleMembers runs iterative Kahn reduction: repeatedly remove nodes with
// no unresolved dependencies. Whatever remains is part of, or downstream of,
// at least one cycle. Returns the remainder sorted, or nil for an acyclic
// graph.
func (g *dependencyGraph) cycleMembers() []string {
	indegree := make(map[string]int, len(g.indegree))
	for id, d := range g.indegree {
		indegree[id] = d
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	removed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		removed++
		for _, child := range g.adjacency[current] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if removed == len(g.order) {
		return nil
	}

	members := make([]string, 0, len(g.order)-removed)
	for _, id := range g.order {
		if indegree[id] > 0 {
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members
}

// TopologicalOrder returns the plan's subtasks in dependency order. Ties are
// broken by original subtask position, so the ordering is stable across
// runs. Returns a validation error naming the cycle members if the graph is
// cyclic.
func TopologicalOrder(plan *Plan) ([]Subtask, error) {
	g := buildDependencyGraph(plan.Subtasks)
	if members := g.cycleMembers(); members != nil {
		return nil, NewValidationError("subtask dependency graph contains a cycle", nil).
			WithCode(ErrCodeCycle).
			WithPlan(plan.PlanID).
			WithDetail("cycleMembers", members)
	}

	position := make(map[string]int, len(plan.Subtasks))
	byID := make(map[string]Subtask, len(plan.Subtasks))
	for i, st := range plan.Subtasks {
		position[st.ID] = i
		byID[st.ID] = st
	}

	indegree := make(map[string]int, len(g.indegree))
	for id, d := range g.indegree {
		indegree[id] = d
	}

	ready := make([]string, 0, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		if indegree[st.ID] == 0 {
			ready = append(ready, st.ID)
		}
	}
	sortByPosition(ready, position)

	ordered := make([]Subtask, 0, len(plan.Subtasks))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byID[current])
		for _, child := range g.adjacency[current] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sortByPosition(ready, position)
	}
	return ordered, nil
}

func sortByPosition(ids []string, position map[string]int) {
	sort.Slice(ids, func(i, j int) bool {
		return position[ids[i]] < position[ids[j]]
	})
}
