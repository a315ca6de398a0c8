// Package cli formats search results and embedding reports for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
	"github.com/catuchi/LawMadeSimple-sub002/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (mode: %s)\n", response.Total, response.QueryTime, response.Mode)
	if response.SemanticError != "" {
		fmt.Fprintf(w, "Semantic search unavailable: %s\n", response.SemanticError)
	}
	fmt.Fprintln(w)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
	return nil
}

func formatRank(r *int) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *r)
}

func writeOneResult(w io.Writer, pos int, result *models.RankedResult[*models.Item]) {
	item := result.Item
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%d. [%s] Score: %.5f (semantic rank: %s, keyword rank: %s)\n",
		pos, item.Type, result.FusedScore, formatRank(result.SemanticRank), formatRank(result.KeywordRank))
	switch item.Type {
	case models.ContentSection:
		fmt.Fprintf(w, "Section %s: %s\n", item.Number, item.Title)
		if item.LawTitle != "" {
			fmt.Fprintf(w, "Law: %s\n", item.LawTitle)
		}
	default:
		fmt.Fprintf(w, "%s\n", item.Title)
		if item.Category != "" {
			fmt.Fprintf(w, "Category: %s\n", item.Category)
		}
	}
	fmt.Fprintf(w, "ID: %s\n", item.ID)
	if item.Snippet != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(utils.OneLine(item.Snippet), 200))
	}
	fmt.Fprintln(w)
}

func writeFamily(w io.Writer, name string, fs models.FamilyStats) {
	fmt.Fprintf(w, "  %-10s %6d total  %6d embedded  %6d pending\n", name, fs.Total, fs.Embedded, fs.Pending)
}

// WriteStats writes embedding coverage to w.
func WriteStats(w io.Writer, stats *models.EmbeddingStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintln(w, "Embedding coverage:")
	writeFamily(w, "sections", stats.Sections)
	writeFamily(w, "scenarios", stats.Scenarios)
	writeFamily(w, "overall", stats.Overall)
	return nil
}

// WriteHealth writes the embedding health report to w.
func WriteHealth(w io.Writer, report *models.HealthReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	c := report.Config
	fmt.Fprintf(w, "Status: %s\n", report.Status)
	fmt.Fprintf(w, "Provider: %s (model %s, %d dimensions)\n", c.Provider, c.Model, c.Dimensions)
	fmt.Fprintf(w, "Batch size: %d, max tokens: %d\n", c.BatchSize, c.MaxTokens)
	fmt.Fprintf(w, "Similarity threshold: %.2f, max semantic results: %d\n", c.SimilarityThreshold, c.MaxSemanticResults)
	fmt.Fprintf(w, "RRF k: %.0f, default semantic weight: %.2f\n", c.RRFK, c.DefaultSemanticWeight)
	if !c.Valid {
		fmt.Fprintf(w, "Configuration error: %s\n", c.Error)
	}
	if report.Statistics != nil {
		fmt.Fprintln(w)
		return WriteStats(w, report.Statistics, OutputText)
	}
	return nil
}

// WriteBackfillReport writes a backfill summary to w, listing failed ids.
func WriteBackfillReport(w io.Writer, report *models.BackfillReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	for _, f := range report.Families {
		if report.DryRun {
			fmt.Fprintf(w, "%s: %d stale (dry run)\n", f.Type, f.Stale)
			continue
		}
		fmt.Fprintf(w, "%s: %d stale, %d embedded, %d failed\n", f.Type, f.Stale, f.Successful, len(f.Failed))
		for _, item := range f.Failed {
			fmt.Fprintf(w, "  %s: %s\n", item.ID, item.Error)
		}
	}
	return nil
}
