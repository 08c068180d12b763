package rules

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDefaultRulesParse(t *testing.T) {
	set, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if !slices.Contains(set.Router.Smalltalk, "what time is it") {
		t.Fatalf("expected smalltalk rules to cover time questions, got %v", set.Router.Smalltalk)
	}
	if len(set.Router.Procedural) == 0 || len(set.Router.LegalTerms) == 0 || len(set.Synonyms) == 0 {
		t.Fatalf("expected populated default rules, got %+v", set)
	}
}

func TestLoadOverrideMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "router:\n  smalltalk:\n    - '  Good Night '\n    - good night\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(set.Router.Smalltalk) != 1 || set.Router.Smalltalk[0] != "good night" {
		t.Fatalf("expected normalized, deduplicated override, got %v", set.Router.Smalltalk)
	}
	if len(set.Router.Procedural) == 0 {
		t.Fatal("expected procedural rules to fall back to defaults")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("router: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
