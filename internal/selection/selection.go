// Package selection picks a bias-diverse subset of scored articles.
package selection

// DefaultAnchors are the spectrum points the selector aims for.
var DefaultAnchors = []int{0, 25, 75, 100}

// Candidate is an article id with its bias score.
type Candidate struct {
	ID    string
	Score int
}

// Select returns, for each anchor in order, the unclaimed candidate whose score
// is nearest to it; ties go to the earlier candidate. When there are no more
// distinct candidates than anchors, all of them are returned in input order.
// Repeated ids keep their first occurrence.
func Select(candidates []Candidate, anchors []int) []Candidate {
	pool := make([]Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		pool = append(pool, c)
	}

	if len(pool) <= len(anchors) {
		return pool
	}

	picked := make([]Candidate, 0, len(anchors))
	for _, anchor := range anchors {
		best := 0
		for i := 1; i < len(pool); i++ {
			if distance(pool[i].Score, anchor) < distance(pool[best].Score, anchor) {
				best = i
			}
		}
		picked = append(picked, pool[best])
		pool = append(pool[:best], pool[best+1:]...)
	}
	return picked
}

func distance(score, anchor int) int {
	if score > anchor {
		return score - anchor
	}
	return anchor - score
}
