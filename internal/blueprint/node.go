// Package blueprint implements the authoring-time DAG document model:
// NodeSpec, Blueprint, PartialBlueprint and Draft (spec §3).
package blueprint

import "regexp"

// Kind enumerates the node kinds a blueprint may contain.
type Kind string

const (
	KindTool      Kind = "tool"
	KindLLM       Kind = "llm"
	KindAgent     Kind = "agent"
	KindCondition Kind = "condition"
	KindLoop      Kind = "loop"
	KindParallel  Kind = "parallel"
	KindWorkflow  Kind = "workflow"
	KindRecursive Kind = "recursive"
	KindCode      Kind = "code"
	KindHuman     Kind = "human"
	KindMonitor   Kind = "monitor"
	KindSwarm     Kind = "swarm"
)

var validKinds = map[Kind]bool{
	KindTool: true, KindLLM: true, KindAgent: true, KindCondition: true,
	KindLoop: true, KindParallel: true, KindWorkflow: true, KindRecursive: true,
	KindCode: true, KindHuman: true, KindMonitor: true, KindSwarm: true,
}

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// ValidNodeID reports whether id is a syntactically valid node identifier.
func ValidNodeID(id string) bool {
	return nodeIDPattern.MatchString(id)
}

// InputMapping describes where a consumer field's value comes from.
type InputMapping struct {
	SourceNodeID     string `json:"source_node_id" yaml:"source_node_id"`
	SourceOutputPath string `json:"source_output_path" yaml:"source_output_path"`
}

// LLMConfig carries provider/model/sampling settings for an llm node.
type LLMConfig struct {
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// AgentSpec describes one participant in a swarm node.
type AgentSpec struct {
	Package string                 `json:"package" yaml:"package"`
	Role    string                 `json:"role" yaml:"role"`
	Config  map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// WaitStrategy controls how a parallel node waits on its branches.
type WaitStrategy string

const (
	WaitAll  WaitStrategy = "all"
	WaitAny  WaitStrategy = "any"
	WaitRace WaitStrategy = "race"
)

// ApprovalType enumerates human-node interaction modes.
type ApprovalType string

const (
	ApprovalApproveReject ApprovalType = "approve_reject"
	ApprovalInputRequired ApprovalType = "input_required"
	ApprovalChoice        ApprovalType = "choice"
)

// MonitorAction enumerates what a monitor node does when triggered.
type MonitorAction string

const (
	MonitorPause     MonitorAction = "pause"
	MonitorAbort     MonitorAction = "abort"
	MonitorAlertOnly MonitorAction = "alert_only"
)

// CoordinationStrategy enumerates swarm coordination modes.
type CoordinationStrategy string

const (
	CoordinationConsensus     CoordinationStrategy = "consensus"
	CoordinationHierarchical  CoordinationStrategy = "hierarchical"
	CoordinationMarketplace   CoordinationStrategy = "marketplace"
)

// CodeLanguage enumerates languages accepted by a code node.
type CodeLanguage string

const (
	CodePython     CodeLanguage = "python"
	CodeJavaScript CodeLanguage = "javascript"
)

// NodeSpec is the authoring-time description of a single DAG node (spec §3).
type NodeSpec struct {
	ID              string                    `json:"id" yaml:"id"`
	Kind            Kind                      `json:"kind" yaml:"kind"`
	Dependencies    []string                  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	InputMappings   map[string]InputMapping   `json:"input_mappings,omitempty" yaml:"input_mappings,omitempty"`
	OutputSchema    map[string]interface{}    `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	InputSchema     map[string]interface{}    `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Retries         int                       `json:"retries,omitempty" yaml:"retries,omitempty"`
	BackoffSeconds  float64                   `json:"backoff_seconds,omitempty" yaml:"backoff_seconds,omitempty"`
	TimeoutSeconds  float64                   `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Provider        string                    `json:"provider,omitempty" yaml:"provider,omitempty"`

	// tool
	ToolName string                 `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	ToolArgs map[string]interface{} `json:"tool_args,omitempty" yaml:"tool_args,omitempty"`

	// llm
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
	Prompt    string    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	LLMConfig LLMConfig `json:"llm_config,omitempty" yaml:"llm_config,omitempty"`
	LLMName   string    `json:"llm_name,omitempty" yaml:"llm_name,omitempty"`

	// agent
	Package       string                 `json:"package,omitempty" yaml:"package,omitempty"`
	AgentConfig   map[string]interface{} `json:"agent_config,omitempty" yaml:"agent_config,omitempty"`
	MaxIterations int                    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	AllowedTools  []string               `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`

	// condition
	Expression  string   `json:"expression,omitempty" yaml:"expression,omitempty"`
	TrueBranch  []string `json:"true_branch,omitempty" yaml:"true_branch,omitempty"`
	FalseBranch []string `json:"false_branch,omitempty" yaml:"false_branch,omitempty"`

	// loop
	ItemsSource      string     `json:"items_source,omitempty" yaml:"items_source,omitempty"`
	ItemVar          string     `json:"item_var,omitempty" yaml:"item_var,omitempty"`
	Body             []NodeSpec `json:"body,omitempty" yaml:"body,omitempty"`
	LoopMaxIterations int       `json:"loop_max_iterations,omitempty" yaml:"loop_max_iterations,omitempty"`

	// parallel
	Branches     [][]NodeSpec `json:"branches,omitempty" yaml:"branches,omitempty"`
	WaitStrategy WaitStrategy `json:"wait_strategy,omitempty" yaml:"wait_strategy,omitempty"`
	MergeOutputs bool         `json:"merge_outputs,omitempty" yaml:"merge_outputs,omitempty"`

	// workflow
	WorkflowRef     string            `json:"workflow_ref,omitempty" yaml:"workflow_ref,omitempty"`
	ConfigOverrides map[string]interface{} `json:"config_overrides,omitempty" yaml:"config_overrides,omitempty"`
	ExposedOutputs  map[string]string `json:"exposed_outputs,omitempty" yaml:"exposed_outputs,omitempty"`

	// recursive
	AgentPackage         string `json:"agent_package,omitempty" yaml:"agent_package,omitempty"`
	ConvergenceCondition string `json:"convergence_condition,omitempty" yaml:"convergence_condition,omitempty"`
	RecursiveMaxIterations int  `json:"recursive_max_iterations,omitempty" yaml:"recursive_max_iterations,omitempty"`
	ContextKey           string `json:"context_key,omitempty" yaml:"context_key,omitempty"`
	PreserveContext      bool   `json:"preserve_context,omitempty" yaml:"preserve_context,omitempty"`

	// code
	Language CodeLanguage `json:"language,omitempty" yaml:"language,omitempty"`
	Code     string       `json:"code,omitempty" yaml:"code,omitempty"`
	Imports  []string     `json:"imports,omitempty" yaml:"imports,omitempty"`
	Sandbox  bool         `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`

	// human
	PromptMessage  string       `json:"prompt_message,omitempty" yaml:"prompt_message,omitempty"`
	ApprovalType   ApprovalType `json:"approval_type,omitempty" yaml:"approval_type,omitempty"`
	Choices        []string     `json:"choices,omitempty" yaml:"choices,omitempty"`
	HumanTimeoutSeconds float64 `json:"human_timeout_seconds,omitempty" yaml:"human_timeout_seconds,omitempty"`

	// monitor
	MetricExpression string        `json:"metric_expression,omitempty" yaml:"metric_expression,omitempty"`
	ActionOnTrigger  MonitorAction `json:"action_on_trigger,omitempty" yaml:"action_on_trigger,omitempty"`
	AlertChannels    []string      `json:"alert_channels,omitempty" yaml:"alert_channels,omitempty"`

	// swarm
	Agents               []AgentSpec          `json:"agents,omitempty" yaml:"agents,omitempty"`
	CoordinationStrategy CoordinationStrategy `json:"coordination_strategy,omitempty" yaml:"coordination_strategy,omitempty"`
}

// DefaultOutputSchema is applied to llm nodes that declare none.
var DefaultOutputSchema = map[string]interface{}{"text": "string"}

// ApplyDefaults fills in kind-specific defaults the validator depends on.
func (n *NodeSpec) ApplyDefaults() {
	if n.Kind == KindLLM && n.OutputSchema == nil {
		n.OutputSchema = DefaultOutputSchema
	}
	if n.Kind == KindCode {
		// untrusted code always runs sandboxed; there is no opt-out here.
		n.Sandbox = true
	}
}
