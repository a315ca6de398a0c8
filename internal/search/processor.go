package search

import (
	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

// ProcessQuery validates the query and applies limit and weight defaults from cfg.
func ProcessQuery(query *models.SearchQuery, cfg config.SearchConfig) error {
	return query.Validate(cfg.DefaultLimit, cfg.MaxLimit, cfg.DefaultSemanticWeight)
}
