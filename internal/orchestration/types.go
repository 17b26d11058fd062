// Package orchestration implements the Orchestration Engine (spec §4.G):
// Sequential, Hierarchical, and Collaborative composition over a registry
// of named agents.
package orchestration

// Pattern selects which composition Execute runs.
type Pattern string

const (
	PatternSequential    Pattern = "sequential"
	PatternHierarchical  Pattern = "hierarchical"
	PatternCollaborative Pattern = "collaborative"
)

// MergePolicy controls how Collaborative combines parallel agent outputs.
type MergePolicy string

const (
	MergeConcat MergePolicy = "concat"
	MergeVote   MergePolicy = "vote"
	MergeFirst  MergePolicy = "first"
)

// AgentRef is one entry in a Sequential orchestration's agent list,
// grounded on original_source/src/agents/orchestration/sequential.rs's
// agent_ref (condition + input_transform are scripted, evaluated against
// {results, input}).
type AgentRef struct {
	Agent          string `json:"agent"`
	Condition      string `json:"condition,omitempty"`       // JS boolean expression
	InputTransform string `json:"input_transform,omitempty"` // JS expression producing this agent's input
}

// Config describes one orchestration run (spec §4.G's OrchestrationConfig).
type Config struct {
	Pattern      Pattern     `json:"pattern"`
	Agents       []AgentRef  `json:"agents,omitempty"`        // Sequential
	ManagerAgent string      `json:"manager_agent,omitempty"` // Hierarchical
	Workers      []string    `json:"workers,omitempty"`       // Hierarchical
	Participants []string    `json:"participants,omitempty"`  // Collaborative
	MergePolicy  MergePolicy `json:"merge_policy,omitempty"`  // Collaborative
}
