package graph

import "github.com/quarrydata/quarry/pkg/domain"

// DefaultEntry is where every run starts.
const DefaultEntry = domain.NodeIntentComprehension

// DefaultRoutes returns the stable topology. Notable policies encoded here:
// empty retrieval and failed retrieval both land on data_unavailability (data
// absence ends the run, it is not retried); exec_error always goes to
// self_correction first; punt_response skips summarization.
func DefaultRoutes() []Route {
	return []Route{
		{From: domain.NodeIntentComprehension, On: domain.OutcomeIntentResolved, To: domain.NodeRequestClassification},

		{From: domain.NodeRequestClassification, On: domain.OutcomeAnalytical, To: domain.NodeAnalysisOrchestration},
		{From: domain.NodeRequestClassification, On: domain.OutcomeConversational, To: domain.NodeDirectResponse},
		{From: domain.NodeRequestClassification, On: domain.OutcomeOutOfDomain, To: domain.NodePuntResponse},

		{From: domain.NodeAnalysisOrchestration, On: domain.OutcomeDataSufficient, To: domain.NodeComputationPlanning},
		{From: domain.NodeAnalysisOrchestration, On: domain.OutcomeReadyToCompute, To: domain.NodeComputationPlanning},
		{From: domain.NodeAnalysisOrchestration, On: domain.OutcomeNeedRetrieval, To: domain.NodeDataRetrieval},

		{From: domain.NodeDataRetrieval, On: domain.OutcomeRetrievalOK, To: domain.NodeComputationPlanning},
		{From: domain.NodeDataRetrieval, On: domain.OutcomeRetrievalEmpty, To: domain.NodeDataUnavailability},
		{From: domain.NodeDataRetrieval, On: domain.OutcomeRetrievalFailed, To: domain.NodeDataUnavailability},

		{From: domain.NodeComputationPlanning, On: domain.OutcomePlanReady, To: domain.NodeSandboxEnvironment},

		{From: domain.NodeSandboxEnvironment, On: domain.OutcomeExecSuccess, To: domain.NodeObservation},
		{From: domain.NodeSandboxEnvironment, On: domain.OutcomeExecError, To: domain.NodeSelfCorrection},

		{From: domain.NodeObservation, On: domain.OutcomeSufficient, To: domain.NodeAnalysisResponse},
		{From: domain.NodeObservation, On: domain.OutcomeInsufficient, To: domain.NodeSelfReflection},

		{From: domain.NodeSelfCorrection, On: domain.OutcomePlanReady, To: domain.NodeSandboxEnvironment},
		{From: domain.NodeSelfCorrection, On: domain.OutcomeRetryExhausted, To: domain.NodeDataUnavailability},

		{From: domain.NodeSelfReflection, On: domain.OutcomePlanReady, To: domain.NodeSandboxEnvironment},
		{From: domain.NodeSelfReflection, On: domain.OutcomeRetryExhausted, To: domain.NodeDataUnavailability},

		{From: domain.NodeAnalysisResponse, On: domain.OutcomeResponded, To: domain.NodeSummarization},
		{From: domain.NodeDirectResponse, On: domain.OutcomeResponded, To: domain.NodeSummarization},
		{From: domain.NodeDataUnavailability, On: domain.OutcomeResponded, To: domain.NodeSummarization},
		{From: domain.NodePuntResponse, On: domain.OutcomeResponded, To: domain.Terminal},

		{From: domain.NodeSummarization, On: domain.OutcomePersisted, To: domain.Terminal},
	}
}

// DefaultVocabulary is the per-node outcome table the default topology is
// validated against. Kept as data so the table can be audited in isolation.
func DefaultVocabulary() map[domain.NodeID][]domain.Outcome {
	return map[domain.NodeID][]domain.Outcome{
		domain.NodeIntentComprehension:   {domain.OutcomeIntentResolved},
		domain.NodeRequestClassification: {domain.OutcomeAnalytical, domain.OutcomeConversational, domain.OutcomeOutOfDomain},
		domain.NodeAnalysisOrchestration: {domain.OutcomeDataSufficient, domain.OutcomeNeedRetrieval, domain.OutcomeReadyToCompute},
		domain.NodeDataRetrieval:         {domain.OutcomeRetrievalOK, domain.OutcomeRetrievalEmpty, domain.OutcomeRetrievalFailed},
		domain.NodeDataUnavailability:    {domain.OutcomeResponded},
		domain.NodeComputationPlanning:   {domain.OutcomePlanReady},
		domain.NodeSandboxEnvironment:    {domain.OutcomeExecSuccess, domain.OutcomeExecError},
		domain.NodeObservation:           {domain.OutcomeSufficient, domain.OutcomeInsufficient},
		domain.NodeSelfCorrection:        {domain.OutcomePlanReady, domain.OutcomeRetryExhausted},
		domain.NodeSelfReflection:        {domain.OutcomePlanReady, domain.OutcomeRetryExhausted},
		domain.NodeAnalysisResponse:      {domain.OutcomeResponded},
		domain.NodeDirectResponse:        {domain.OutcomeResponded},
		domain.NodePuntResponse:          {domain.OutcomeResponded},
		domain.NodeSummarization:         {domain.OutcomePersisted},
	}
}
