package domain

import (
	"fmt"
	"strings"
	"time"
)

type Intent string

const (
	IntentFactual    Intent = "factual"
	IntentProcedural Intent = "procedural"
	IntentSmalltalk  Intent = "smalltalk"
	IntentEdgeCase   Intent = "edge_case"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentFactual, IntentProcedural, IntentSmalltalk, IntentEdgeCase:
		return true
	default:
		return false
	}
}

type ResponseMode string

const (
	ModeDirectChat   ResponseMode = "direct_chat"
	ModeAssistedRAG  ResponseMode = "assisted_rag"
	ModeEvidenceOnly ResponseMode = "evidence_only"
)

func (m ResponseMode) RequiresRetrieval() bool {
	return m == ModeAssistedRAG || m == ModeEvidenceOnly
}

// Route is the Mode Router decision for a query.
type Route struct {
	Mode            ResponseMode `json:"mode"`
	Intent          Intent       `json:"intent"`
	BroadenFilters  bool         `json:"broaden_filters,omitempty"`
	RelaxThresholds bool         `json:"relax_thresholds,omitempty"`
}

type SearchFilter struct {
	Source     string     `json:"source,omitempty"`
	Category   string     `json:"category,omitempty"`
	SourceType string     `json:"source_type,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return f.Source == "" && f.Category == "" && f.SourceType == "" && f.DateFrom == nil && f.DateTo == nil
}

func (f SearchFilter) HasDateRange() bool {
	return f.DateFrom != nil || f.DateTo != nil
}

// Key is a canonical representation used to detect repeated retrieval states.
func (f SearchFilter) Key() string {
	return fmt.Sprintf("src=%s;cat=%s;type=%s;from=%s;to=%s",
		strings.ToLower(f.Source),
		strings.ToLower(f.Category),
		strings.ToLower(f.SourceType),
		formatFilterDate(f.DateFrom),
		formatFilterDate(f.DateTo),
	)
}

func (f SearchFilter) Validate() error {
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return fmt.Errorf("date_from %s is after date_to %s", formatFilterDate(f.DateFrom), formatFilterDate(f.DateTo))
	}
	return nil
}

func formatFilterDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

type Query struct {
	Raw        string       `json:"raw"`
	Normalized string       `json:"normalized"`
	Intent     Intent       `json:"intent"`
	Filters    SearchFilter `json:"filters"`
}

// NormalizeQueryText collapses whitespace and trims the raw user text.
func NormalizeQueryText(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// RouterRules is the keyword rule set consulted by the Mode Router.
type RouterRules struct {
	Smalltalk    []string `yaml:"smalltalk" json:"smalltalk"`
	Procedural   []string `yaml:"procedural" json:"procedural"`
	EdgeCase     []string `yaml:"edge_case" json:"edge_case"`
	EvidenceOnly []string `yaml:"evidence_only" json:"evidence_only"`
	LegalTerms   []string `yaml:"legal_terms" json:"legal_terms"`
}

// RuleSet bundles the router rules with the term-expansion table used for broadening.
type RuleSet struct {
	Router   RouterRules         `yaml:"router" json:"router"`
	Synonyms map[string][]string `yaml:"synonyms" json:"synonyms"`
}
