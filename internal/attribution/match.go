// Package attribution links externally observed reviews back to the
// customers who were asked for them. Matching is heuristic: reviewer names
// are compared with customer names using a fixed rule ladder, reviews are
// considered in input order and each review takes the first candidate that
// passes. Nothing here is a best-fit search.
package attribution

import (
	"strings"
	"unicode"
)

// Rule identifies which comparison accepted a pair
type Rule string

const (
	RuleExact     Rule = "exact"
	RuleCompact   Rule = "compact"
	RuleFirstName Rule = "first_name"
	RuleSubstring Rule = "substring"
)

// A shared first name this long is enough on its own
const minFirstNameLen = 4

// Candidate is a customer eligible for attribution
type Candidate struct {
	ID   string
	Name string
}

// Assignment pairs a review with the candidate it was attributed to
type Assignment struct {
	ReviewIndex int
	Candidate   Candidate
	Rule        Rule
}

// Outcome is the result of a matching pass
type Outcome struct {
	Assignments []Assignment
	// Remaining holds candidates nobody matched, in their original order
	Remaining []Candidate
	// Unmatched holds indexes of reviews without a candidate
	Unmatched []int
}

// NormalizeName lowercases a name, turns dots into spaces, drops anything
// other than ASCII letters, digits and spaces, and collapses whitespace.
// "Pavan Reddy.K" becomes "pavan reddy k".
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '.':
			b.WriteByte(' ')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Compare reports whether two normalized names refer to the same person
// and which rule decided it. Empty names never match.
func Compare(a, b string) (Rule, bool) {
	if a == "" || b == "" {
		return "", false
	}
	if a == b {
		return RuleExact, true
	}
	if strings.ReplaceAll(a, " ", "") == strings.ReplaceAll(b, " ", "") {
		return RuleCompact, true
	}

	at, bt := strings.Fields(a), strings.Fields(b)
	if at[0] == bt[0] {
		if len(at[0]) >= minFirstNameLen {
			return RuleFirstName, true
		}
		if len(at) > 1 && len(bt) > 1 {
			al, bl := at[len(at)-1], bt[len(bt)-1]
			if strings.Contains(al, bl) || strings.Contains(bl, al) {
				return RuleFirstName, true
			}
		}
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return RuleSubstring, true
	}
	return "", false
}

// Match attributes reviewer names to candidates. Each review, in order,
// takes the earliest remaining candidate that passes Compare; a matched
// candidate leaves the pool. The inputs are not modified.
func Match(candidates []Candidate, reviewerNames []string) Outcome {
	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	normalized := make([]string, len(pool))
	for i, c := range pool {
		normalized[i] = NormalizeName(c.Name)
	}

	var out Outcome
	for ri, reviewer := range reviewerNames {
		name := NormalizeName(reviewer)
		found := -1
		var rule Rule
		for ci := range pool {
			if r, ok := Compare(name, normalized[ci]); ok {
				found, rule = ci, r
				break
			}
		}
		if found < 0 {
			out.Unmatched = append(out.Unmatched, ri)
			continue
		}

		out.Assignments = append(out.Assignments, Assignment{ReviewIndex: ri, Candidate: pool[found], Rule: rule})
		pool = append(pool[:found], pool[found+1:]...)
		normalized = append(normalized[:found], normalized[found+1:]...)
	}

	out.Remaining = pool
	return out
}
