package validation

import (
	"fmt"
	"sort"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

// validateReachability walks the graph from the entry node over every
// declared edge (next, target, branch arms). Cycles are legal here, goto
// and loop create them on purpose; the analysis only flags nodes no run
// can ever stand on.
func validateReachability(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	edges := make(map[string][]string, len(def.Nodes))
	nodeIDs := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		nodeIDs[n.ID] = true
	}
	for _, n := range def.Nodes {
		var out []string
		if n.Next != "" {
			out = append(out, n.Next)
		}
		if n.Target != "" {
			out = append(out, n.Target)
		}
		arms := make([]string, 0, len(n.Branch))
		for _, ref := range n.Branch {
			arms = append(arms, ref)
		}
		sort.Strings(arms)
		out = append(out, arms...)

		for _, ref := range out {
			if nodeIDs[ref] {
				edges[n.ID] = append(edges[n.ID], ref)
			}
		}
	}

	reachable := map[string]bool{def.Entry: true}
	queue := []string{def.Entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, ref := range edges[id] {
			if !reachable[ref] {
				reachable[ref] = true
				queue = append(queue, ref)
			}
		}
	}

	for _, n := range def.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID),
				schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the entry node", n.ID))
		}
	}

	return result
}
