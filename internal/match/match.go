// Package match resolves free-text queries to canonical record names.
package match

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Tier identifies which rule produced a match. Lower tiers take precedence.
type Tier int

const (
	NoMatch Tier = iota
	TierNormalized
	TierExact
	TierAllWords
	TierSubstring
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierNormalized:
		return "normalized"
	case TierExact:
		return "exact"
	case TierAllWords:
		return "all-words"
	case TierSubstring:
		return "substring"
	case TierFuzzy:
		return "fuzzy"
	}
	return "none"
}

// Default fuzzy-match bounds: near-miss typos only, at most three candidates.
const (
	DefaultFuzzyCutoff = 0.8
	DefaultFuzzyLimit  = 3
)

// Result is the outcome of a query. Names keeps the order of the candidate
// list passed to Find.
type Result struct {
	Names []string
	Tier  Tier
}

// Matched reports whether any tier produced a name.
func (r Result) Matched() bool { return r.Tier != NoMatch && len(r.Names) > 0 }

// Normalizer canonicalizes a query before the first tier.
type Normalizer interface {
	Normalize(name string) string
}

// Matcher evaluates the precedence tiers over a set of names.
type Matcher struct {
	normalizer Normalizer
	cutoff     float64
	limit      int
}

// New returns a Matcher that uses n for the normalized tier.
func New(n Normalizer) *Matcher {
	return &Matcher{normalizer: n, cutoff: DefaultFuzzyCutoff, limit: DefaultFuzzyLimit}
}

// Find returns the names matched by the first tier that yields anything.
// A blank query never matches.
func (m *Matcher) Find(query string, names []string) Result {
	lower := strings.ToLower(query)
	if strings.TrimSpace(lower) == "" {
		return Result{Tier: NoMatch}
	}

	normalized := strings.ToLower(m.normalizer.Normalize(query))
	if found := filter(names, func(n string) bool { return n == normalized }); len(found) > 0 {
		return Result{Names: found, Tier: TierNormalized}
	}

	if found := filter(names, func(n string) bool { return n == lower }); len(found) > 0 {
		return Result{Names: found, Tier: TierExact}
	}

	if words := strings.Fields(lower); len(words) > 1 {
		found := filter(names, func(n string) bool {
			for _, w := range words {
				if !strings.Contains(n, w) {
					return false
				}
			}
			return true
		})
		if len(found) > 0 {
			return Result{Names: found, Tier: TierAllWords}
		}
	}

	if found := filter(names, func(n string) bool { return strings.Contains(n, lower) }); len(found) > 0 {
		return Result{Names: found, Tier: TierSubstring}
	}

	near := closeMatches(lower, names, m.limit, m.cutoff)
	if found := filter(names, func(n string) bool { _, ok := near[n]; return ok }); len(found) > 0 {
		return Result{Names: found, Tier: TierFuzzy}
	}

	return Result{Tier: NoMatch}
}

// filter returns the names whose lowercased form satisfies keep.
func filter(names []string, keep func(lower string) bool) []string {
	var out []string
	for _, n := range names {
		if keep(strings.ToLower(n)) {
			out = append(out, n)
		}
	}
	return out
}

type scored struct {
	score float64
	name  string
}

// closeMatches returns the lowercased candidates whose similarity to word
// reaches cutoff, keeping the best n.
func closeMatches(word string, names []string, n int, cutoff float64) map[string]struct{} {
	sm := difflib.NewMatcher(nil, chars(word))
	var hits []scored
	for _, name := range names {
		lower := strings.ToLower(name)
		sm.SetSeq1(chars(lower))
		if sm.RealQuickRatio() >= cutoff && sm.QuickRatio() >= cutoff && sm.Ratio() >= cutoff {
			hits = append(hits, scored{score: sm.Ratio(), name: lower})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].name > hits[j].name
	})
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	out := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		out[h.name] = struct{}{}
	}
	return out
}

func chars(s string) []string { return strings.Split(s, "") }
