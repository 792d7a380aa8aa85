package recognition

import (
	"fmt"
	"math"
)

// Unknown is the identity of a query that matched no gallery entry.
const Unknown = "unknown"

// DefaultThreshold is stricter than the usual 0.6 to curb false accepts.
const DefaultThreshold = 0.5

// Match is the result of one matching pass.
type Match struct {
	Identity string
	Distance float64
}

// Known reports whether the match resolved to a gallery identity.
func (m Match) Known() bool {
	return m.Identity != Unknown
}

// Matcher resolves embeddings to identities by nearest neighbour. A candidate is
// accepted only when its distance is strictly below Threshold.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a matcher for a positive threshold.
func NewMatcher(threshold float64) (*Matcher, error) {
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("invalid match threshold %v", threshold)
	}
	return &Matcher{threshold: threshold}, nil
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the closest gallery identity, or Unknown when the gallery is
// empty or the closest distance is not below the threshold. Ties keep the
// first minimal entry.
func (m *Matcher) Match(query Embedding, g Gallery) Match {
	if len(g) == 0 {
		return Match{Identity: Unknown, Distance: math.Inf(1)}
	}

	best := -1
	bestDist := math.Inf(1)
	for i, entry := range g {
		if d := query.Distance(entry.Embedding); d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 || bestDist >= m.threshold {
		return Match{Identity: Unknown, Distance: bestDist}
	}
	return Match{Identity: g[best].Identity, Distance: bestDist}
}

// MatchFirst matches each face in order and returns the first known match along
// with its face. When none match it returns the closest miss.
func (m *Matcher) MatchFirst(faces []Face, g Gallery) (Match, *Face) {
	miss := Match{Identity: Unknown, Distance: math.Inf(1)}
	for i := range faces {
		res := m.Match(faces[i].Embedding, g)
		if res.Known() {
			return res, &faces[i]
		}
		if res.Distance < miss.Distance {
			miss = res
		}
	}
	return miss, nil
}
