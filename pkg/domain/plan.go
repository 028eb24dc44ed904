package domain

import (
	"fmt"
	"time"
)

// AnalysisType categorizes what a computation plan sets out to do.
type AnalysisType string

const (
	AnalysisDescriptive AnalysisType = "descriptive"
	AnalysisDiagnostic  AnalysisType = "diagnostic"
	AnalysisPredictive  AnalysisType = "predictive"
	AnalysisInferential AnalysisType = "inferential"
)

// Step is one executable unit of a computation plan. Code must define
// RunStep(input string) (string, error); the sandbox chains step outputs.
type Step struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Rationale   string `json:"rationale,omitempty"`
}

// Plan is an ordered sequence of executable steps. Plans are regenerated
// wholesale on self-correction or self-reflection, never patched in place.
type Plan struct {
	AnalysisType AnalysisType `json:"analysis_type"`
	Steps        []Step       `json:"steps"`
	Rationale    string       `json:"rationale,omitempty"`
	// Attempt is 0 for the initial plan and increments with each
	// regeneration.
	Attempt int `json:"attempt"`
}

// Empty reports whether the plan has no steps to run.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// ExecErrorKind classifies a sandbox failure.
type ExecErrorKind string

const (
	ExecErrEval            ExecErrorKind = "eval"
	ExecErrRuntime         ExecErrorKind = "runtime"
	ExecErrTimeout         ExecErrorKind = "timeout"
	ExecErrForbiddenImport ExecErrorKind = "forbidden_import"
	ExecErrEmptyPlan       ExecErrorKind = "empty_plan"
	ExecErrOutputLimit     ExecErrorKind = "output_limit"
)

// ExecError is the structured error a sandbox run reports. Step is the
// 1-based index of the failing step; output of earlier steps is discarded.
type ExecError struct {
	Kind    ExecErrorKind `json:"kind"`
	Message string        `json:"message"`
	Step    int           `json:"step"`
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("sandbox step %d: %s: %s", e.Step, e.Kind, e.Message)
}

// ExecutionResult is the outcome of the last sandbox run: either a success
// payload or a structured error, never both.
type ExecutionResult struct {
	OK       bool          `json:"ok"`
	Output   string        `json:"output,omitempty"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      *ExecError    `json:"err,omitempty"`
}
