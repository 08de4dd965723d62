package engine

import (
	"strings"

	contractx "github.com/hubenschmidt/pina-colada-sub000/agent/contract"
	statex "github.com/hubenschmidt/pina-colada-sub000/agent/state"
)

// Route is the outcome of the fast-path decision.
type Route string

const (
	RouteFastLookup Route = "fast_lookup"
	RouteFastCount  Route = "fast_count"
	RouteFastList   Route = "fast_list"
	RouteTriage     Route = "triage"
)

// documentEntityType is never fast-path eligible: document retrieval needs
// multi-step binary content handling unsuited to one synchronous lookup.
const documentEntityType = "document"

// RouteFromClassification maps a classification to a route. Any ambiguity
// fails safe into the full tool-capable flow: the fast path exists purely
// to cap cost on trivially answerable questions, and a wrong direct answer
// is worse than a slow correct one.
func RouteFromClassification(result contractx.ClassificationResult) Route {
	entityType := strings.TrimSpace(result.LookupEntityType)
	query := strings.TrimSpace(result.LookupQuery)

	if entityType == documentEntityType {
		return RouteTriage
	}

	switch result.FastPathIntent {
	case contractx.IntentLookup:
		if entityType != "" && query != "" {
			return RouteFastLookup
		}
	case contractx.IntentCount:
		if entityType != "" {
			return RouteFastCount
		}
	case contractx.IntentList:
		if entityType != "" {
			return RouteFastList
		}
	}
	return RouteTriage
}

// RouteFromEvaluation decides whether the turn ends or re-enters the
// worker loop. The second return is true when the turn is over.
func RouteFromEvaluation(result contractx.EvaluationResult, st *statex.TurnState) (contractx.WorkerType, bool) {
	if result.SuccessCriteriaMet || result.UserInputNeeded {
		return "", true
	}
	if st != nil && contractx.IsWorkerType(st.RouteToAgent) {
		return contractx.WorkerType(st.RouteToAgent), false
	}
	return contractx.WorkerTypeGeneral, false
}
