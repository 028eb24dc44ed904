package schema

import "github.com/getkin/kin-openapi/openapi3"

// Typed results for each LLM-facing node. Field names and enums mirror the
// wire contracts; nodes translate these into domain types.

// IntentComprehension restates the user's question in standalone form and
// points at the prior turns it depends on.
type IntentComprehension struct {
	Question      string `json:"question"`
	RelevantTurns []int  `json:"relevant_turns"`
	Rationale     string `json:"rationale"`
}

// RequestClassification routes the run: analytical, conversational or
// out_of_domain.
type RequestClassification struct {
	Route     string `json:"route"`
	Rationale string `json:"rationale"`
}

// AnalysisOrchestration decides the data strategy. SQLQuery carries the
// retrieval query when the route is retrieve_external_data; it may be empty
// otherwise.
type AnalysisOrchestration struct {
	Route     string `json:"route"`
	SQLQuery  string `json:"sql_query"`
	Rationale string `json:"rationale"`
}

// PlanStep is one generated step of a computation plan.
type PlanStep struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Rationale   string `json:"rationale"`
}

// ComputationPlanning is a whole generated plan. Plans are regenerated
// wholesale; there is no patch format.
type ComputationPlanning struct {
	AnalysisType string     `json:"analysis_type"`
	Steps        []PlanStep `json:"steps"`
	Rationale    string     `json:"rationale"`
}

// Observation judges whether an execution result actually answers the
// question.
type Observation struct {
	Status    string `json:"status"`
	Rationale string `json:"rationale"`
}

// Summarization condenses a finished turn for session memory.
type Summarization struct {
	Summary string `json:"summary"`
}

// Contracts, one per structured output. Names match the owning node.
var (
	IntentComprehensionContract = &Contract{
		Name:        "intent_comprehension",
		Description: "standalone restatement of the user question plus the prior turns it relies on",
		Schema: object(map[string]*openapi3.Schema{
			"question": openapi3.NewStringSchema().WithMinLength(1),
			// Out-of-range indices are clamped by the node, not rejected
			// here: a stray index must not abort the run.
			"relevant_turns": openapi3.NewArraySchema().WithItems(openapi3.NewIntegerSchema()),
			"rationale":      openapi3.NewStringSchema(),
		}, "question", "relevant_turns", "rationale"),
	}

	RequestClassificationContract = &Contract{
		Name:        "request_classification",
		Description: "route decision for the run",
		Schema: object(map[string]*openapi3.Schema{
			"route":     openapi3.NewStringSchema().WithEnum("analytical", "conversational", "out_of_domain"),
			"rationale": openapi3.NewStringSchema(),
		}, "route", "rationale"),
	}

	AnalysisOrchestrationContract = &Contract{
		Name:        "analysis_orchestration",
		Description: "data strategy decision plus retrieval SQL when data must be fetched",
		Schema: object(map[string]*openapi3.Schema{
			"route":     openapi3.NewStringSchema().WithEnum("use_existing_data", "retrieve_external_data", "compute_now"),
			"sql_query": openapi3.NewStringSchema(),
			"rationale": openapi3.NewStringSchema(),
		}, "route", "sql_query", "rationale"),
	}

	ComputationPlanningContract = &Contract{
		Name:        "computation_planning",
		Description: "ordered executable plan for the sandbox",
		Schema: object(map[string]*openapi3.Schema{
			"analysis_type": openapi3.NewStringSchema().WithEnum("descriptive", "diagnostic", "predictive", "inferential"),
			"steps": openapi3.NewArraySchema().WithMinItems(1).WithItems(object(map[string]*openapi3.Schema{
				"number":      openapi3.NewIntegerSchema().WithMin(1),
				"description": openapi3.NewStringSchema().WithMinLength(1),
				"code":        openapi3.NewStringSchema().WithMinLength(1),
				"rationale":   openapi3.NewStringSchema(),
			}, "number", "description", "code", "rationale")),
			"rationale": openapi3.NewStringSchema(),
		}, "analysis_type", "steps", "rationale"),
	}

	ObservationContract = &Contract{
		Name:        "observation",
		Description: "sufficiency judgement on the latest execution result",
		Schema: object(map[string]*openapi3.Schema{
			"status":    openapi3.NewStringSchema().WithEnum("sufficient", "insufficient"),
			"rationale": openapi3.NewStringSchema(),
		}, "status", "rationale"),
	}

	SummarizationContract = &Contract{
		Name:        "summarization",
		Description: "one-paragraph summary of the finished turn",
		Schema: object(map[string]*openapi3.Schema{
			"summary": openapi3.NewStringSchema().WithMinLength(1),
		}, "summary"),
	}
)
