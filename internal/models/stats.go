package models

// FamilyStats counts embedded items of one content family.
type FamilyStats struct {
	Total    int64 `json:"total"`
	Embedded int64 `json:"embedded"`
	Pending  int64 `json:"pending"`
}

// NewFamilyStats derives Pending from the two counts.
func NewFamilyStats(total, embedded int64) FamilyStats {
	return FamilyStats{Total: total, Embedded: embedded, Pending: total - embedded}
}

// PendingRatio is the fraction of items without an embedding; 0 when empty.
func (f FamilyStats) PendingRatio() float64 {
	if f.Total == 0 {
		return 0
	}
	return float64(f.Pending) / float64(f.Total)
}

// EmbeddingStats is the count-based embedding status.
type EmbeddingStats struct {
	Sections  FamilyStats `json:"sections"`
	Scenarios FamilyStats `json:"scenarios"`
	Overall   FamilyStats `json:"overall"`
}

// Family returns the stats for ct.
func (s *EmbeddingStats) Family(ct ContentType) FamilyStats {
	if ct == ContentScenario {
		return s.Scenarios
	}
	return s.Sections
}

// HealthStatus is the coarse state of the semantic search subsystem.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthError    HealthStatus = "error"
)

// ConfigSummary is the non-secret part of the embedding configuration.
type ConfigSummary struct {
	Provider              string  `json:"provider"`
	Model                 string  `json:"model"`
	Dimensions            int     `json:"dimensions"`
	BatchSize             int     `json:"batch_size"`
	MaxTokens             int     `json:"max_tokens"`
	SimilarityThreshold   float64 `json:"similarity_threshold"`
	MaxSemanticResults    int     `json:"max_semantic_results"`
	RRFK                  float64 `json:"rrf_k"`
	DefaultSemanticWeight float64 `json:"default_semantic_weight"`
	Valid                 bool    `json:"valid"`
	Error                 string  `json:"error,omitempty"`
}

// HealthReport is served by the embedding stats endpoint.
type HealthReport struct {
	Status     HealthStatus    `json:"status"`
	Config     ConfigSummary   `json:"config"`
	Statistics *EmbeddingStats `json:"statistics,omitempty"`
}

// FailedItem records why one id could not be embedded.
type FailedItem struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult is the per-id outcome of an embedding batch.
type BatchResult struct {
	Successful []string     `json:"successful"`
	Failed     []FailedItem `json:"failed"`
}

// BackfillOptions selects what a backfill run does.
type BackfillOptions struct {
	Types  []ContentType
	DryRun bool
	Limit  int // max stale items per family; 0 means no limit
}

// FamilyBackfill reports a backfill run for one family.
type FamilyBackfill struct {
	Type       ContentType  `json:"type"`
	Stale      int          `json:"stale"`
	Successful int          `json:"successful"`
	Failed     []FailedItem `json:"failed,omitempty"`
}

// BackfillReport aggregates a backfill run.
type BackfillReport struct {
	DryRun   bool              `json:"dry_run"`
	Families []*FamilyBackfill `json:"families"`
}

// FailedCount sums failures across families.
func (r *BackfillReport) FailedCount() int {
	n := 0
	for _, f := range r.Families {
		n += len(f.Failed)
	}
	return n
}
