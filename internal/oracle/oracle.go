// Package oracle adapts an external reasoning service into a probability
// source for the diagnostic engine. The service is treated as a black box
// with a strict JSON contract; anything it returns is untrusted and is
// defaulted/clamped downstream.
package oracle

import (
	"context"
	"errors"

	"diagnosis-engine/internal/bayes"
	"diagnosis-engine/internal/questionbank"
)

var (
	// ErrUnavailable indicates a transport-level failure (network error,
	// timeout, 5xx). Retryable; callers are expected to degrade instead.
	ErrUnavailable = errors.New("oracle unavailable")

	// ErrInvalidResponse indicates the service answered but the payload did
	// not match the contract. Not retryable; callers degrade to uniform.
	ErrInvalidResponse = errors.New("oracle response invalid")
)

// Candidate is one condition the oracle is asked to score.
type Candidate struct {
	Name  string `json:"name"`
	ICD10 string `json:"icd10"`
}

// EvidenceBundle is everything the oracle sees for one inference call.
type EvidenceBundle struct {
	FreeText   string                  `json:"symptom_text"`
	Symptoms   []string                `json:"selected_symptoms"`
	Answers    []bayes.Answer          `json:"answers"`
	Questions  []questionbank.Question `json:"questions"`
	Candidates []Candidate             `json:"candidate_conditions"`
}

// Result holds the parsed oracle output. Degraded marks results built from
// safe defaults rather than a real inference.
type Result struct {
	Priors    map[string]float64
	CondProbs bayes.CondProbs
	CodeMap   map[string]string
	Degraded  bool
}

// ProbabilityOracle is the injected inference dependency. Implementations
// must be stateless and must not retry internally.
type ProbabilityOracle interface {
	Infer(ctx context.Context, bundle EvidenceBundle) (*Result, error)
}

// Uniform builds the degraded fallback result: uniform priors over the
// candidates and no conditional probabilities (which default to 0.5 in the
// posterior engine). Used whenever the real oracle fails or times out.
func Uniform(candidates []Candidate) *Result {
	priors := make(map[string]float64, len(candidates))
	codeMap := make(map[string]string, len(candidates))
	if len(candidates) > 0 {
		uniform := 1.0 / float64(len(candidates))
		for _, c := range candidates {
			priors[c.Name] = uniform
			codeMap[c.Name] = c.ICD10
		}
	}
	return &Result{
		Priors:    priors,
		CondProbs: bayes.CondProbs{},
		CodeMap:   codeMap,
		Degraded:  true,
	}
}
