// Package search merges keyword and semantic results with Reciprocal Rank Fusion and
// orchestrates hybrid search over sections and scenarios.
package search

import (
	"sort"

	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

// DefaultRRFK is the standard RRF constant.
const DefaultRRFK = 60.0

// RRFScore returns weight/(k+semanticRank) + (1-weight)/(k+keywordRank). A nil rank
// contributes nothing.
func RRFScore(semanticRank, keywordRank *int, weight, k float64) float64 {
	var score float64
	if semanticRank != nil {
		score += weight / (k + float64(*semanticRank))
	}
	if keywordRank != nil {
		score += (1 - weight) / (k + float64(*keywordRank))
	}
	return score
}

// MergeWithRRF unions semantic and keyword results by id, assigns 1-based ranks from each
// list and sorts by fused score, highest first. Ranks count distinct ids: a repeated id keeps
// its first rank and does not push later items down. Equal scores keep first-seen order:
// semantic list order, then keyword-only items in keyword order. Items are carried through
// unchanged. k <= 0 means DefaultRRFK; weight is clamped to [0, 1].
func MergeWithRRF[T models.Identifiable](semantic, keyword []T, weight, k float64) []*models.RankedResult[T] {
	if k <= 0 {
		k = DefaultRRFK
	}
	weight = min(max(weight, 0), 1)

	merged := make([]*models.RankedResult[T], 0, len(semantic)+len(keyword))
	byID := make(map[string]*models.RankedResult[T], len(semantic)+len(keyword))

	semRank := 0
	for _, item := range semantic {
		id := item.GetID()
		if _, ok := byID[id]; ok {
			continue
		}
		semRank++
		rank := semRank
		r := &models.RankedResult[T]{Item: item, SemanticRank: &rank}
		byID[id] = r
		merged = append(merged, r)
	}

	kwRank := 0
	kwSeen := make(map[string]bool, len(keyword))
	for _, item := range keyword {
		id := item.GetID()
		if kwSeen[id] {
			continue
		}
		kwSeen[id] = true
		kwRank++
		rank := kwRank
		if r, ok := byID[id]; ok {
			r.KeywordRank = &rank
			continue
		}
		r := &models.RankedResult[T]{Item: item, KeywordRank: &rank}
		byID[id] = r
		merged = append(merged, r)
	}

	for _, r := range merged {
		r.FusedScore = RRFScore(r.SemanticRank, r.KeywordRank, weight, k)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].FusedScore > merged[j].FusedScore })
	return merged
}

// mergeFamilies combines already fused lists by score. Equal scores keep list order.
func mergeFamilies[T models.Identifiable](lists ...[]*models.RankedResult[T]) []*models.RankedResult[T] {
	if len(lists) == 1 {
		return lists[0]
	}
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]*models.RankedResult[T], 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FusedScore > out[j].FusedScore })
	return out
}
