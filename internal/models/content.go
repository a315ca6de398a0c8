// Package models defines legal content, search items, queries, and embedding status structures.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentType names an embeddable content family.
type ContentType string

const (
	ContentSection  ContentType = "section"
	ContentScenario ContentType = "scenario"
)

// ContentTypes lists every embeddable family in reporting order.
var ContentTypes = []ContentType{ContentSection, ContentScenario}

// ParseContentType accepts the singular or plural family name.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "section", "sections":
		return ContentSection, nil
	case "scenario", "scenarios":
		return ContentScenario, nil
	default:
		return "", fmt.Errorf("unknown content type: %q", s)
	}
}

// Law is the parent of sections.
type Law struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Section is one section of a law.
type Section struct {
	ID          string    `json:"id"`
	LawID       string    `json:"law_id"`
	Number      string    `json:"section_number"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmbeddingText returns the text the section is embedded from.
func (s *Section) EmbeddingText() string {
	return SectionEmbeddingText(s.Title, s.Summary, s.Content)
}

// Scenario is an everyday situation mapped to relevant law.
type Scenario struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords,omitempty"`
	Category    string    `json:"category,omitempty"`
	Embedding   []float32 `json:"-"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmbeddingText returns the text the scenario is embedded from.
func (s *Scenario) EmbeddingText() string {
	return ScenarioEmbeddingText(s.Title, s.Description, s.Keywords)
}

// Segment order below is part of the stored hash. Reordering forces a full re-embed.

// SectionEmbeddingText joins title, summary and content, skipping blank segments.
func SectionEmbeddingText(title, summary, content string) string {
	return joinSegments(title, summary, content)
}

// ScenarioEmbeddingText joins title, description and a keywords line, skipping blank segments.
func ScenarioEmbeddingText(title, description string, keywords []string) string {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}
	var kwLine string
	if len(kw) > 0 {
		kwLine = "Keywords: " + strings.Join(kw, ", ")
	}
	return joinSegments(title, description, kwLine)
}

func joinSegments(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ContentDoc is the text-only projection of an embeddable item.
// It never carries the embedding vector.
type ContentDoc struct {
	ID          string      `json:"id"`
	Type        ContentType `json:"type"`
	Title       string      `json:"title"`
	Text        string      `json:"text"`
	LawSlug     string      `json:"law_slug,omitempty"`
	Category    string      `json:"category,omitempty"`
	ContentHash string      `json:"content_hash,omitempty"` // empty when never embedded
}
