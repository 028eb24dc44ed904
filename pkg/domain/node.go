package domain

import "context"

// NodeID identifies one node of the execution graph.
type NodeID string

const (
	NodeIntentComprehension   NodeID = "intent_comprehension"
	NodeRequestClassification NodeID = "request_classification"
	NodeAnalysisOrchestration NodeID = "analysis_orchestration"
	NodeDataRetrieval         NodeID = "data_retrieval"
	NodeDataUnavailability    NodeID = "data_unavailability"
	NodeComputationPlanning   NodeID = "computation_planning"
	NodeSandboxEnvironment    NodeID = "sandbox_environment"
	NodeObservation           NodeID = "observation"
	NodeSelfCorrection        NodeID = "self_correction"
	NodeSelfReflection        NodeID = "self_reflection"
	NodeAnalysisResponse      NodeID = "analysis_response"
	NodeDirectResponse        NodeID = "direct_response"
	NodePuntResponse          NodeID = "punt_response"
	NodeSummarization         NodeID = "summarization"

	// Terminal is the router's sink marker. It is never executed.
	Terminal NodeID = "__terminal__"
)

// Outcome is the symbolic result a node returns. Outcomes are consumed only
// by the router; a node never interprets another node's outcome.
type Outcome string

const (
	OutcomeIntentResolved  Outcome = "intent_resolved"
	OutcomeAnalytical      Outcome = "analytical"
	OutcomeConversational  Outcome = "conversational"
	OutcomeOutOfDomain     Outcome = "out_of_domain"
	OutcomeDataSufficient  Outcome = "data_sufficient"
	OutcomeNeedRetrieval   Outcome = "need_retrieval"
	OutcomeReadyToCompute  Outcome = "ready_to_compute"
	OutcomeRetrievalOK     Outcome = "retrieval_ok"
	OutcomeRetrievalEmpty  Outcome = "retrieval_empty"
	OutcomeRetrievalFailed Outcome = "retrieval_failed"
	OutcomePlanReady       Outcome = "plan_ready"
	OutcomeExecSuccess     Outcome = "exec_success"
	OutcomeExecError       Outcome = "exec_error"
	OutcomeSufficient      Outcome = "sufficient"
	OutcomeInsufficient    Outcome = "insufficient"
	OutcomeRetryExhausted  Outcome = "retry_exhausted"
	OutcomeResponded       Outcome = "responded"
	OutcomePersisted       Outcome = "persisted"
)

// Node is the unit of work the executor drives. Execute mutates the state it
// is handed and reports where the run should go next through an outcome tag.
//
// Execute returns an error only for fatal taxonomy failures (a structured
// output violating its schema, a corrupted prompt document). Collaborator
// faults such as model timeouts and unreachable stores must be converted
// into the node's own outcome vocabulary and never escape as errors.
type Node interface {
	ID() NodeID

	// Outcomes declares the node's closed outcome vocabulary. The router
	// validates its table against this set at build time.
	Outcomes() []Outcome

	Execute(ctx context.Context, st *ExecutionState) (Outcome, error)
}

// RetryKind names a bounded retry loop.
type RetryKind string

const (
	RetryCorrection RetryKind = "correction"
	RetryReflection RetryKind = "reflection"
)

// ReasonCode explains why a run terminated the way it did. It distinguishes
// true data absence from exhausted retries, ceiling hits and cancellation.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonDataEmpty      ReasonCode = "data_empty"
	ReasonDataFailed     ReasonCode = "data_failed"
	ReasonRetryExhausted ReasonCode = "retry_exhausted"
	ReasonHopCeiling     ReasonCode = "hop_ceiling"
	ReasonCancelled      ReasonCode = "cancelled"
)
