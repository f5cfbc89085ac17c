package validation

import (
	"fmt"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

// AgentLookup answers whether a node code has an agent bound to it.
// The agent registry satisfies this; nil skips binding checks.
type AgentLookup interface {
	Has(code string) bool
}

// validateSemantic checks what JSON Schema cannot: the entry node exists,
// every node reference lands on a real node, and action-specific fields
// are present where the action demands them.
func validateSemantic(def *schema.WorkflowDefinition, lookup AgentLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		nodeIDs[n.ID] = true
	}

	if !nodeIDs[def.Entry] {
		result.AddError("entry", schema.ErrCodeValidation,
			fmt.Sprintf("entry references non-existent node %q", def.Entry))
	}

	for i := range def.Nodes {
		validateNodeSemantic(&def.Nodes[i], fmt.Sprintf("nodes[%d]", i), nodeIDs, lookup, result)
	}

	return result
}

func validateNodeSemantic(node *schema.NodeDefinition, path string, nodeIDs map[string]bool, lookup AgentLookup, result *schema.ValidationResult) {
	action := node.Action
	if action == "" {
		action = schema.ActionCall
	}

	if lookup != nil && !lookup.Has(node.Code) {
		result.AddError(path+".code", schema.ErrCodeNotFound,
			fmt.Sprintf("no agent bound to code %q", node.Code))
	}

	checkRef := func(field, ref string) {
		if ref != "" && !nodeIDs[ref] {
			result.AddError(path+"."+field, schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", ref))
		}
	}
	checkRef("pid", node.PID)
	checkRef("next", node.Next)
	checkRef("target", node.Target)
	for discriminant, ref := range node.Branch {
		if !nodeIDs[ref] {
			result.AddError(fmt.Sprintf("%s.branch[%s]", path, discriminant),
				schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", ref))
		}
	}

	switch action {
	case schema.ActionGoto:
		if node.Target == "" {
			result.AddError(path+".target", schema.ErrCodeValidation,
				"goto node requires a target")
		}
	case schema.ActionBranch:
		if len(node.Branch) == 0 {
			result.AddError(path+".branch", schema.ErrCodeValidation,
				"branch node requires at least one successor")
		}
		if node.Check == nil {
			result.AddError(path+".check", schema.ErrCodeValidation,
				"branch node requires a check producing a discriminant")
		}
	case schema.ActionLoop:
		if node.Check == nil {
			result.AddError(path+".check", schema.ErrCodeValidation,
				"loop node requires a check deciding loop exit")
		}
		if node.MaxIter > 100 {
			result.AddWarning(path+".max_iter", schema.ErrCodeValidation,
				fmt.Sprintf("high loop bound (%d) may run for a long time", node.MaxIter))
		}
	}

	if node.Retry != nil && node.Retry.Max > 10 {
		result.AddWarning(path+".retry.max", schema.ErrCodeValidation,
			fmt.Sprintf("high retry count (%d) may cause excessive delays", node.Retry.Max))
	}
}
