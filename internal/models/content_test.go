package models

import "testing"

func TestSectionEmbeddingText(t *testing.T) {
	tests := []struct {
		name                    string
		title, summary, content string
		want                    string
	}{
		{"all segments", "Right to life", "Everyone has a right to life.", "No one shall be deprived...", "Right to life\n\nEveryone has a right to life.\n\nNo one shall be deprived..."},
		{"blank summary dropped", " Right to life ", "   ", "Body", "Right to life\n\nBody"},
		{"all blank", "", " ", "\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SectionEmbeddingText(tt.title, tt.summary, tt.content); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScenarioEmbeddingText(t *testing.T) {
	got := ScenarioEmbeddingText("Arrested by police", "What to do when arrested", []string{"arrest", " ", "bail "})
	want := "Arrested by police\n\nWhat to do when arrested\n\nKeywords: arrest, bail"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := ScenarioEmbeddingText("Title", "", []string{" "}); got != "Title" {
		t.Errorf("blank keywords should be omitted, got %q", got)
	}
}

func TestSection_EmbeddingText_matchesTemplate(t *testing.T) {
	s := &Section{Title: "T", Summary: "S", Content: "C"}
	if s.EmbeddingText() != SectionEmbeddingText("T", "S", "C") {
		t.Error("method and template disagree")
	}
	sc := &Scenario{Title: "T", Description: "D", Keywords: []string{"k"}}
	if sc.EmbeddingText() != "T\n\nD\n\nKeywords: k" {
		t.Errorf("got %q", sc.EmbeddingText())
	}
}

func TestParseContentType(t *testing.T) {
	for in, want := range map[string]ContentType{"section": ContentSection, "Sections": ContentSection, "scenario": ContentScenario, " scenarios ": ContentScenario} {
		got, err := ParseContentType(in)
		if err != nil || got != want {
			t.Errorf("ParseContentType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseContentType("laws"); err == nil {
		t.Error("expected error for unknown type")
	}
}
