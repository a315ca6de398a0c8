package vector

import "sort"

// Candidate is a stored vector awaiting scoring.
type Candidate struct {
	ID     string
	Vector []float32
}

// Match is a candidate that passed the similarity threshold.
type Match struct {
	ID         string
	Similarity float64
}

// TopK scores every candidate against query by cosine similarity, drops those below
// threshold and returns up to k matches, most similar first. Equal scores keep input order.
func TopK(query []float32, candidates []Candidate, threshold float64, k int) []Match {
	if k <= 0 || len(query) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			continue
		}
		sim := CosineSimilarity(query, c.Vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
