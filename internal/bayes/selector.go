package bayes

import (
	"math"

	"diagnosis-engine/internal/questionbank"
)

// Entropy computes the Shannon entropy (base 2) of a distribution.
// Zero-probability terms contribute nothing.
func Entropy(dist map[string]float64) float64 {
	h := 0.0
	for _, p := range dist {
		if p <= 0 {
			continue
		}
		h -= p * math.Log2(p)
	}
	return h
}

// ExpectedEntropy computes the posterior entropy expected after asking q:
// for each answer option a, the marginal P(a) = Σ_d posterior(d)·condProb(q,d,a)
// weights the entropy of the posterior conditioned on that hypothetical answer.
func ExpectedEntropy(posterior map[string]float64, condProbs CondProbs, q questionbank.Question) float64 {
	expected := 0.0
	hypothetical := make(map[string]float64, len(posterior))

	for _, option := range q.Options {
		pAnswer := 0.0
		total := 0.0
		for d, p := range posterior {
			joint := p * condProbs.CondProb(q.ID, d, option)
			hypothetical[d] = joint
			pAnswer += joint
			total += joint
		}
		if pAnswer <= 0 {
			continue
		}
		for d := range hypothetical {
			hypothetical[d] /= total
		}
		expected += pAnswer * Entropy(hypothetical)
	}
	return expected
}

// NextQuestion picks the unasked question with the highest expected reduction
// in posterior entropy. Ties are broken by bank order (first occurrence wins),
// which keeps the selection deterministic. Returns false when every question
// has been asked.
func NextQuestion(bank *questionbank.Bank, posterior map[string]float64, condProbs CondProbs, answered map[string]bool) (questionbank.Question, bool) {
	remaining := bank.Unanswered(answered)
	if len(remaining) == 0 {
		return questionbank.Question{}, false
	}

	base := Entropy(posterior)
	best := remaining[0]
	bestGain := math.Inf(-1)
	for _, q := range remaining {
		gain := base - ExpectedEntropy(posterior, condProbs, q)
		if gain > bestGain {
			best = q
			bestGain = gain
		}
	}
	return best, true
}
