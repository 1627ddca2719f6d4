package persona

import (
	"strings"
	"testing"
)

func TestLoadEmbedded(t *testing.T) {
	cfg, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded(): %v", err)
	}

	wanted := []string{"healing", "friend", "funny", "knowledge", "soul", "wisdom"}
	names := cfg.Names()
	for _, w := range wanted {
		found := false
		for _, n := range names {
			if n == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("embedded config missing persona %q", w)
		}
	}

	if cfg.Default != "friend" {
		t.Errorf("expected default persona friend, got %q", cfg.Default)
	}
	if cfg.FallbackReply == "" {
		t.Error("expected non-empty fallback reply")
	}
	for _, p := range cfg.Personas {
		if p.Style == "" {
			t.Errorf("persona %q has no style instruction", p.Name)
		}
		if len(p.Greetings) == 0 || len(p.Endings) == 0 {
			t.Errorf("persona %q missing phrase variations", p.Name)
		}
	}
}

func TestLoadRejectsUnknownDefault(t *testing.T) {
	doc := `
version: 1
default: ghost
fallback_reply: hi
personas:
  - name: friend
    style: be friendly
`
	if _, err := Load([]byte(doc)); err == nil {
		t.Fatal("expected error for undefined default persona")
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing fallback reply", `
version: 1
default: friend
personas:
  - name: friend
    style: be friendly
`},
		{"empty personas", `
version: 1
default: friend
fallback_reply: hi
personas: []
`},
		{"bad persona name", `
version: 1
default: friend
fallback_reply: hi
personas:
  - name: "Friend!"
    style: be friendly
`},
		{"missing style", `
version: 1
default: friend
fallback_reply: hi
personas:
  - name: friend
`},
		{"wrong version", `
version: 2
default: friend
fallback_reply: hi
personas:
  - name: friend
    style: be friendly
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.doc)); err == nil {
				t.Error("expected schema validation error")
			}
		})
	}
}

func TestLoadRejectsDuplicatePersona(t *testing.T) {
	doc := `
version: 1
default: friend
fallback_reply: hi
personas:
  - name: friend
    style: one
  - name: friend
    style: two
`
	_, err := Load([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate persona error, got %v", err)
	}
}

func TestGetFallsBackToDefault(t *testing.T) {
	cfg, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded(): %v", err)
	}
	if got := cfg.Get("nonexistent"); got.Name != cfg.Default {
		t.Errorf("expected default persona for unknown name, got %q", got.Name)
	}
	if got := cfg.Get("healing"); got.Name != "healing" {
		t.Errorf("expected healing persona, got %q", got.Name)
	}
}

func TestVariation(t *testing.T) {
	pool := []string{"a", "b", "c"}
	if got := Variation(pool, 0); got != "a" {
		t.Errorf("Variation(0) = %q", got)
	}
	if got := Variation(pool, 4); got != "b" {
		t.Errorf("Variation(4) = %q, want wrap-around b", got)
	}
	if got := Variation(nil, 0); got != "" {
		t.Errorf("Variation(nil) = %q, want empty", got)
	}
	if got := Variation(pool, -1); got != "" {
		t.Errorf("Variation(-1) = %q, want empty", got)
	}
}
