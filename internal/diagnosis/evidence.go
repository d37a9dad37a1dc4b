package diagnosis

import (
	"diagnosis-engine/internal/oracle"
	"diagnosis-engine/internal/pharmacy"
	"diagnosis-engine/internal/questionbank"
	"diagnosis-engine/internal/visit"
)

// buildEvidence merges the visit's free text, selected symptoms and answer
// history with the question bank and the capped candidate list into the
// bundle the oracle sees. Only conditions with an active treatment protocol
// are offered as candidates, so the oracle is never asked about a disease the
// safety gate cannot act on.
func buildEvidence(v *visit.Visit, bank *questionbank.Bank, catalog *pharmacy.Catalog) oracle.EvidenceBundle {
	return oracle.EvidenceBundle{
		FreeText:   v.FreeText,
		Symptoms:   v.Symptoms,
		Answers:    v.Answers,
		Questions:  bank.Questions(),
		Candidates: catalog.Candidates(),
	}
}
