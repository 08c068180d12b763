package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/legal-rag-assistant/internal/core/domain"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Default returns the embedded rule set.
func Default() (domain.RuleSet, error) {
	return Parse(defaultRules)
}

// Load reads the rule set from path, or the embedded defaults when path is empty.
// Sections missing from the file fall back to the defaults.
func Load(path string) (domain.RuleSet, error) {
	defaults, err := Default()
	if err != nil {
		return domain.RuleSet{}, err
	}
	if strings.TrimSpace(path) == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("read router rules %s: %w", path, err)
	}
	custom, err := Parse(raw)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("parse router rules %s: %w", path, err)
	}
	return merge(defaults, custom), nil
}

func Parse(raw []byte) (domain.RuleSet, error) {
	var set domain.RuleSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return domain.RuleSet{}, fmt.Errorf("unmarshal rules: %w", err)
	}
	set.Router.Smalltalk = normalizePhrases(set.Router.Smalltalk)
	set.Router.Procedural = normalizePhrases(set.Router.Procedural)
	set.Router.EdgeCase = normalizePhrases(set.Router.EdgeCase)
	set.Router.EvidenceOnly = normalizePhrases(set.Router.EvidenceOnly)
	set.Router.LegalTerms = normalizePhrases(set.Router.LegalTerms)

	synonyms := make(map[string][]string, len(set.Synonyms))
	for term, related := range set.Synonyms {
		key := normalizePhrase(term)
		if key == "" {
			return domain.RuleSet{}, errors.New("synonym table contains an empty term")
		}
		synonyms[key] = normalizePhrases(related)
	}
	set.Synonyms = synonyms
	return set, nil
}

func merge(base, override domain.RuleSet) domain.RuleSet {
	out := base
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&out.Router.Smalltalk, override.Router.Smalltalk)
	pick(&out.Router.Procedural, override.Router.Procedural)
	pick(&out.Router.EdgeCase, override.Router.EdgeCase)
	pick(&out.Router.EvidenceOnly, override.Router.EvidenceOnly)
	pick(&out.Router.LegalTerms, override.Router.LegalTerms)
	if len(override.Synonyms) > 0 {
		out.Synonyms = override.Synonyms
	}
	return out
}

func normalizePhrases(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		n := normalizePhrase(p)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func normalizePhrase(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}
