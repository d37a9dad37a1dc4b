// Package bayes implements the naive-Bayes posterior computation and the
// information-gain question selection used by the diagnostic loop. Everything
// here is pure: no I/O, no state, deterministic for identical inputs.
package bayes

import "sort"

const (
	// Probabilities are clamped into [probFloor, probCeil] before
	// multiplication so a single answer can never collapse a condition to
	// zero or certainty.
	probFloor = 0.01
	probCeil  = 0.99

	// defaultCondProb is used when the oracle supplied no entry for a
	// (question, condition, answer) triple: uninformative.
	defaultCondProb = 0.5

	// maxDifferential caps the ranked differential.
	maxDifferential = 5
)

// Answer is one answered question within a visit.
type Answer struct {
	QuestionID string `json:"id"`
	Value      string `json:"value"`
}

// CondProbs maps questionID -> condition -> answer value -> P(answer|condition).
// Treated as untrusted partial data: any missing level defaults to 0.5.
type CondProbs map[string]map[string]map[string]float64

// DifferentialEntry is one ranked candidate condition.
type DifferentialEntry struct {
	Condition   string  `json:"name"`
	Probability float64 `json:"confidence"`
	ICD10       string  `json:"icd10"`
}

func clamp(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}

// CondProb returns the clamped conditional probability for a triple,
// defaulting to 0.5 when the oracle did not supply one.
func (cp CondProbs) CondProb(questionID, condition, value string) float64 {
	byCondition, ok := cp[questionID]
	if !ok {
		return defaultCondProb
	}
	byValue, ok := byCondition[condition]
	if !ok {
		return defaultCondProb
	}
	p, ok := byValue[value]
	if !ok {
		return defaultCondProb
	}
	return clamp(p)
}

// Posterior computes P(condition | answers) for every candidate under the
// naive conditional-independence assumption:
//
//	score(d) = prior(d) * Π over answered (q,v) of clamp(condProbs[q][d][v])
//
// Scores are normalized to sum to 1. If every score is zero (degenerate
// priors), the result falls back to a uniform distribution.
func Posterior(priors map[string]float64, condProbs CondProbs, candidates []string, answers []Answer) map[string]float64 {
	posterior := make(map[string]float64, len(candidates))
	if len(candidates) == 0 {
		return posterior
	}

	total := 0.0
	for _, d := range candidates {
		score := priors[d]
		if score < 0 {
			score = 0
		}
		for _, a := range answers {
			score *= condProbs.CondProb(a.QuestionID, d, a.Value)
		}
		posterior[d] = score
		total += score
	}

	if total <= 0 {
		uniform := 1.0 / float64(len(candidates))
		for _, d := range candidates {
			posterior[d] = uniform
		}
		return posterior
	}

	for d := range posterior {
		posterior[d] /= total
	}
	return posterior
}

// Rank orders the posterior descending by probability and truncates to the
// top five. Equal probabilities are ordered by condition name so the
// differential is stable across runs.
func Rank(posterior map[string]float64, codeMap map[string]string) []DifferentialEntry {
	entries := make([]DifferentialEntry, 0, len(posterior))
	for d, p := range posterior {
		entries = append(entries, DifferentialEntry{
			Condition:   d,
			Probability: p,
			ICD10:       codeMap[d],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Probability != entries[j].Probability {
			return entries[i].Probability > entries[j].Probability
		}
		return entries[i].Condition < entries[j].Condition
	})
	if len(entries) > maxDifferential {
		entries = entries[:maxDifferential]
	}
	return entries
}
