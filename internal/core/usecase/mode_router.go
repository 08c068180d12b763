package usecase

import (
	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

// shortQueryTokens is the content-token count at or below which a query is
// treated as ambiguous.
const shortQueryTokens = 2

// ModeRouter classifies queries with a keyword rule set. It performs no I/O.
type ModeRouter struct {
	rules domain.RouterRules
}

func NewModeRouter(rules domain.RouterRules) *ModeRouter {
	return &ModeRouter{rules: rules}
}

func (r *ModeRouter) Classify(q domain.Query) domain.Route {
	text := q.Normalized
	if text == "" {
		text = q.Raw
	}
	padded := paddedTokens(splitAlphaNumLower(text))
	content := contentTokens(text)
	legal := containsAnyPhrase(padded, r.rules.LegalTerms)

	if !legal && (len(content) == 0 || containsAnyPhrase(padded, r.rules.Smalltalk)) {
		return domain.Route{Mode: domain.ModeDirectChat, Intent: domain.IntentSmalltalk}
	}

	route := domain.Route{Mode: domain.ModeAssistedRAG, Intent: domain.IntentFactual}
	if containsAnyPhrase(padded, r.rules.EvidenceOnly) {
		route.Mode = domain.ModeEvidenceOnly
	}

	switch {
	case containsAnyPhrase(padded, r.rules.EdgeCase):
		route.Intent = domain.IntentEdgeCase
	case containsAnyPhrase(padded, r.rules.Procedural):
		route.Intent = domain.IntentProcedural
	case len(content) <= shortQueryTokens && !legal:
		route.Intent = domain.IntentEdgeCase
	}

	switch route.Intent {
	case domain.IntentEdgeCase:
		route.BroadenFilters = true
	case domain.IntentProcedural:
		route.RelaxThresholds = true
	}
	return route
}
