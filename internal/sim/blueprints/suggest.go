package blueprints

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// suggest ranks candidates by edit distance to the case-folded input and
// keeps those within a threshold that grows with the input length.
func suggest(wrong string, candidates []string) []string {
	w := fold.String(wrong)
	limit := len([]rune(w)) / 3
	if limit < 2 {
		limit = 2
	}

	type scored struct {
		ref  string
		dist int
	}
	var hits []scored
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(w, fold.String(c))
		if d <= limit {
			hits = append(hits, scored{ref: c, dist: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].ref < hits[j].ref
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ref
	}
	return out
}
