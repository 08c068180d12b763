package usecase

import (
	"strings"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

type EvidenceConfig struct {
	GreenThreshold    float64
	YellowThreshold   float64
	GreenMinDocuments int
	// ProceduralRelax lowers both thresholds for procedural questions.
	ProceduralRelax    float64
	PrimarySourceTypes []string
}

func DefaultEvidenceConfig() EvidenceConfig {
	return EvidenceConfig{
		GreenThreshold:     0.75,
		YellowThreshold:    0.55,
		GreenMinDocuments:  2,
		ProceduralRelax:    0.05,
		PrimarySourceTypes: []string{"statute", "regulation", "constitution", "code"},
	}
}

func (c EvidenceConfig) normalize() EvidenceConfig {
	def := DefaultEvidenceConfig()
	if c.GreenThreshold <= 0 {
		c.GreenThreshold = def.GreenThreshold
	}
	if c.YellowThreshold <= 0 {
		c.YellowThreshold = def.YellowThreshold
	}
	if c.YellowThreshold > c.GreenThreshold {
		c.YellowThreshold = c.GreenThreshold
	}
	if c.GreenMinDocuments <= 0 {
		c.GreenMinDocuments = def.GreenMinDocuments
	}
	if c.ProceduralRelax < 0 {
		c.ProceduralRelax = 0
	}
	if len(c.PrimarySourceTypes) == 0 {
		c.PrimarySourceTypes = def.PrimarySourceTypes
	}
	return c
}

// EvidenceEvaluator grades a candidate set. Every rule either raises the
// verdict when an input improves or caps it, so the verdict is monotone in
// top score, candidate count and document diversity.
type EvidenceEvaluator struct {
	cfg     EvidenceConfig
	primary map[string]struct{}
}

func NewEvidenceEvaluator(cfg EvidenceConfig) *EvidenceEvaluator {
	cfg = cfg.normalize()
	primary := make(map[string]struct{}, len(cfg.PrimarySourceTypes))
	for _, t := range cfg.PrimarySourceTypes {
		primary[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &EvidenceEvaluator{cfg: cfg, primary: primary}
}

func (e *EvidenceEvaluator) Evaluate(candidates []domain.RetrievalCandidate, q domain.Query) domain.Verdict {
	if len(candidates) == 0 {
		return domain.VerdictRed
	}

	green, yellow := e.cfg.GreenThreshold, e.cfg.YellowThreshold
	if q.Intent == domain.IntentProcedural {
		green -= e.cfg.ProceduralRelax
		yellow -= e.cfg.ProceduralRelax
	}

	top := 0.0
	documents := make(map[string]struct{}, len(candidates))
	hasPrimary := false
	for _, c := range candidates {
		top = max(top, c.FusedScore)
		for _, chunk := range c.Chunks() {
			documents[chunk.DocumentID] = struct{}{}
			if _, ok := e.primary[strings.ToLower(chunk.SourceType)]; ok {
				hasPrimary = true
			}
		}
	}

	verdict := domain.VerdictRed
	switch {
	case top >= green && len(documents) >= e.cfg.GreenMinDocuments:
		verdict = domain.VerdictGreen
	case top >= yellow:
		verdict = domain.VerdictYellow
	}

	if q.Intent == domain.IntentFactual && !hasPrimary {
		verdict = domain.MinVerdict(verdict, domain.VerdictYellow)
	}
	return verdict
}

// EvaluateResult additionally caps a degraded search at yellow.
func (e *EvidenceEvaluator) EvaluateResult(result domain.SearchResult, q domain.Query) domain.Verdict {
	verdict := e.Evaluate(result.Candidates, q)
	if result.Degraded {
		verdict = domain.MinVerdict(verdict, domain.VerdictYellow)
	}
	return verdict
}
