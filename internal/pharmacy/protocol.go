// Package pharmacy holds the treatment knowledge the engine can act on:
// per-condition protocols, drug code and interaction lookups, the safety
// gate, and prescription records.
package pharmacy

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"diagnosis-engine/internal/oracle"
)

// maxCandidates caps the candidate-condition list sent to the oracle
// (token/latency budget for the inference call).
const maxCandidates = 12

// Medication is one drug entry within a protocol.
type Medication struct {
	Name              string   `json:"name"`
	Dosage            string   `json:"dosage"`
	Frequency         string   `json:"frequency"`
	Duration          string   `json:"duration"`
	Contraindications []string `json:"contraindications,omitempty"`
}

// Protocol is a condition's treatment definition.
type Protocol struct {
	Condition   string       `json:"condition"`
	ICD10       string       `json:"icd10"`
	Medications []Medication `json:"medications"`
	Advice      string       `json:"advice,omitempty"`
}

// Catalog is the active protocol set, keyed by lower-cased condition name.
type Catalog struct {
	protocols []Protocol
	byName    map[string]int
}

func NewCatalog(protocols []Protocol) *Catalog {
	c := &Catalog{
		protocols: make([]Protocol, len(protocols)),
		byName:    make(map[string]int, len(protocols)),
	}
	copy(c.protocols, protocols)
	for i, p := range c.protocols {
		c.byName[strings.ToLower(p.Condition)] = i
	}
	return c
}

func (c *Catalog) Find(condition string) (Protocol, bool) {
	i, ok := c.byName[strings.ToLower(condition)]
	if !ok {
		return Protocol{}, false
	}
	return c.protocols[i], true
}

// Candidates returns the conditions the oracle may be asked about: every
// active protocol, sorted by ICD-10 code for a stable order, truncated at
// twelve. The truncation is a known limitation and is logged so an oversized
// catalog does not silently drop protocols.
func (c *Catalog) Candidates() []oracle.Candidate {
	out := make([]oracle.Candidate, 0, len(c.protocols))
	for _, p := range c.protocols {
		out = append(out, oracle.Candidate{Name: p.Condition, ICD10: p.ICD10})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ICD10 != out[j].ICD10 {
			return out[i].ICD10 < out[j].ICD10
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxCandidates {
		log.Warn().
			Int("active_protocols", len(out)).
			Int("cap", maxCandidates).
			Msg("candidate list truncated; protocols beyond the cap are never diagnosed")
		out = out[:maxCandidates]
	}
	return out
}

// DefaultProtocols is the built-in treatment set, aligned with the default
// question bank.
func DefaultProtocols() []Protocol {
	return []Protocol{
		{
			Condition: "Influenza",
			ICD10:     "J11.1",
			Medications: []Medication{
				{Name: "Oseltamivir", Dosage: "75 mg", Frequency: "twice daily", Duration: "5 days"},
				{Name: "Paracetamol", Dosage: "500 mg", Frequency: "every 6 hours as needed", Duration: "up to 5 days"},
			},
			Advice: "Rest, fluids, stay home until fever-free for 24 hours.",
		},
		{
			Condition: "Common cold",
			ICD10:     "J00",
			Medications: []Medication{
				{Name: "Paracetamol", Dosage: "500 mg", Frequency: "every 6 hours as needed", Duration: "up to 5 days"},
				{Name: "Pseudoephedrine", Dosage: "60 mg", Frequency: "every 6 hours", Duration: "3 days",
					Contraindications: []string{"hypertension", "pregnancy"}},
			},
			Advice: "Symptomatic care; see a doctor if symptoms persist beyond 10 days.",
		},
		{
			Condition: "Streptococcal pharyngitis",
			ICD10:     "J02.0",
			Medications: []Medication{
				{Name: "Amoxicillin", Dosage: "500 mg", Frequency: "three times daily", Duration: "10 days",
					Contraindications: []string{"penicillin allergy"}},
			},
			Advice: "Complete the full antibiotic course even if symptoms resolve.",
		},
		{
			Condition: "Acute sinusitis",
			ICD10:     "J01.9",
			Medications: []Medication{
				{Name: "Amoxicillin-clavulanate", Dosage: "875/125 mg", Frequency: "twice daily", Duration: "7 days",
					Contraindications: []string{"penicillin allergy"}},
				{Name: "Ibuprofen", Dosage: "400 mg", Frequency: "every 8 hours as needed", Duration: "up to 5 days",
					Contraindications: []string{"pregnancy", "peptic ulcer"}},
			},
		},
		{
			Condition: "Allergic rhinitis",
			ICD10:     "J30.9",
			Medications: []Medication{
				{Name: "Loratadine", Dosage: "10 mg", Frequency: "once daily", Duration: "14 days"},
			},
			Advice: "Avoid known triggers where possible.",
		},
		{
			Condition: "Migraine",
			ICD10:     "G43.9",
			Medications: []Medication{
				{Name: "Sumatriptan", Dosage: "50 mg", Frequency: "at onset, may repeat after 2 hours", Duration: "as needed",
					Contraindications: []string{"ischemic heart disease", "pregnancy"}},
				{Name: "Ibuprofen", Dosage: "400 mg", Frequency: "at onset", Duration: "as needed",
					Contraindications: []string{"pregnancy", "peptic ulcer"}},
			},
			Advice: "Rest in a dark, quiet room.",
		},
		{
			Condition: "Acute cystitis",
			ICD10:     "N30.0",
			Medications: []Medication{
				{Name: "Nitrofurantoin", Dosage: "100 mg", Frequency: "twice daily", Duration: "5 days",
					Contraindications: []string{"renal impairment", "pregnancy at term"}},
			},
			Advice: "Increase fluid intake; seek care if fever or flank pain develops.",
		},
		{
			Condition: "Viral gastroenteritis",
			ICD10:     "A09",
			Medications: []Medication{
				{Name: "Oral rehydration salts", Dosage: "1 sachet in 200 ml water", Frequency: "after each loose stool", Duration: "until resolved"},
				{Name: "Ondansetron", Dosage: "4 mg", Frequency: "every 8 hours as needed", Duration: "2 days"},
			},
			Advice: "Small frequent sips; avoid dairy for 48 hours.",
		},
		{
			Condition: "Acute bronchitis",
			ICD10:     "J20.9",
			Medications: []Medication{
				{Name: "Dextromethorphan", Dosage: "20 mg", Frequency: "every 6-8 hours", Duration: "up to 7 days"},
			},
			Advice: "Antibiotics are not indicated for uncomplicated cases.",
		},
		{
			Condition: "Tension headache",
			ICD10:     "G44.2",
			Medications: []Medication{
				{Name: "Paracetamol", Dosage: "1000 mg", Frequency: "every 6 hours as needed", Duration: "as needed"},
			},
			Advice: "Regular sleep and hydration; review screen habits.",
		},
	}
}
