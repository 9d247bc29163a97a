// Package graph computes deterministic execution orders for the signal
// topology. It is pure data-in data-out: the engine's compiler hands it node
// IDs and dependency edges and gets back either a stable topological order or
// a CycleError naming the offending nodes.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports that the dependency relation contains a cycle. Members
// holds the IDs of every node still blocked when ordering stalled, sorted for
// stable messages; the cycle itself is some subset of them.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving: %s", strings.Join(e.Members, ", "))
}

// Order returns the nodes sorted so every node appears after all of its
// dependencies. dependsOn maps a node ID to the IDs it reads from; edges to
// unknown nodes are ignored, since the compiler drops dangling cables before
// ordering.
//
// The order is deterministic: among nodes whose dependencies are all
// satisfied, the lexicographically smallest ID runs first. Determinism here
// is what makes whole-engine renders reproducible, so changing the tie break
// changes rendered output for graphs with parallel branches.
func Order(nodes []string, dependsOn map[string][]string) ([]string, error) {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		indegree[id] = 0
	}
	for id, deps := range dependsOn {
		if !known[id] {
			continue
		}
		seen := make(map[string]bool, len(deps))
		for _, dep := range deps {
			if !known[dep] || dep == id || seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]string, 0, len(nodes))
	for _, id := range nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := dependents[id]
		sort.Strings(released)
		for _, dep := range released {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		blocked := make([]string, 0, len(nodes)-len(order))
		for id, deg := range indegree {
			if deg > 0 {
				blocked = append(blocked, id)
			}
		}
		sort.Strings(blocked)
		return nil, &CycleError{Members: blocked}
	}
	return order, nil
}

// insertSorted keeps the ready queue sorted as nodes unblock.
func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
