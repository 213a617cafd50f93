package routing

import "strings"

// Cycle detection treats each rule as a directed edge from its source
// pattern to its target: rule r feeds rule s when r's target matches
// s's source pattern. A draft is rejected when following feeds-into
// edges from the draft leads back to the draft.

type ruleEdge struct {
	id      string
	pattern string
	target  string
}

// findCycle returns the chain of rule edges forming a cycle through
// the draft, or nil when no cycle would be closed.
func findCycle(draft Draft, existing []*RoutingRule) []ruleEdge {
	self := ruleEdge{id: draft.RuleID, pattern: draft.SourcePattern, target: draft.Target}

	// Direct self-loop: the draft's target feeds its own pattern
	if MatchPattern(self.pattern, self.target) {
		return []ruleEdge{self}
	}

	edges := make([]ruleEdge, 0, len(existing)+1)
	edges = append(edges, self)
	for _, rule := range existing {
		if rule.RuleID == draft.RuleID {
			continue
		}
		edges = append(edges, ruleEdge{id: rule.RuleID, pattern: rule.SourcePattern, target: rule.Target})
	}

	// Adjacency by index: i feeds j when edges[i].target matches
	// edges[j].pattern. Wildcard targets never occur (targets are
	// concrete names), so matching is pattern-against-name.
	adjacency := make([][]int, len(edges))
	for i := range edges {
		for j := range edges {
			if i == j {
				continue
			}
			if MatchPattern(edges[j].pattern, edges[i].target) {
				adjacency[i] = append(adjacency[i], j)
			}
		}
	}

	const (
		unvisited = iota
		inStack
		done
	)
	state := make([]int, len(edges))
	var stack []int

	var dfs func(node int) bool
	dfs = func(node int) bool {
		state[node] = inStack
		stack = append(stack, node)
		for _, next := range adjacency[node] {
			if next == 0 {
				// back to the draft: cycle closed
				return true
			}
			if state[next] == unvisited {
				if dfs(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return false
	}

	if !dfs(0) {
		return nil
	}

	cycle := make([]ruleEdge, 0, len(stack))
	for _, idx := range stack {
		cycle = append(cycle, edges[idx])
	}
	return cycle
}

func formatCycle(cycle []ruleEdge) string {
	var sb strings.Builder
	for i, edge := range cycle {
		if i > 0 {
			sb.WriteString(" -> ")
		}
		sb.WriteString(edge.pattern)
	}
	if len(cycle) > 0 {
		sb.WriteString(" -> ")
		sb.WriteString(cycle[0].pattern)
	}
	return sb.String()
}
