package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a medical probability estimator. Given a patient's symptom description, selected symptoms and answered clarifying questions, estimate probabilities for the listed candidate conditions ONLY.

Respond with strict JSON, no prose, using exactly these keys:
{
  "priors": {"<condition>": <probability before considering the answered questions>},
  "cond_probs": {"<question_id>": {"<condition>": {"<answer option>": <P(answer|condition), 0..1>}}},
  "icd10_map": {"<condition>": "<ICD-10 code>"}
}

Rules:
- Cover every candidate condition in "priors" and "icd10_map".
- For "cond_probs", cover every listed question, condition and answer option.
- Probabilities in "priors" must be non-negative; they do not need to sum to 1.`

func buildUserPrompt(bundle EvidenceBundle) string {
	var b strings.Builder

	b.WriteString("Patient description:\n")
	if bundle.FreeText != "" {
		b.WriteString(bundle.FreeText)
	} else {
		b.WriteString("(none provided)")
	}
	b.WriteString("\n\nSelected symptoms: ")
	if len(bundle.Symptoms) > 0 {
		b.WriteString(strings.Join(bundle.Symptoms, ", "))
	} else {
		b.WriteString("(none)")
	}

	b.WriteString("\n\nAnswered questions:\n")
	if len(bundle.Answers) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, a := range bundle.Answers {
		fmt.Fprintf(&b, "- %s: %s\n", a.QuestionID, a.Value)
	}

	b.WriteString("\nClarifying questions and their answer options:\n")
	for _, q := range bundle.Questions {
		opts, _ := json.Marshal(q.Options)
		fmt.Fprintf(&b, "- %s (%q): options %s\n", q.ID, q.Text, opts)
	}

	b.WriteString("\nCandidate conditions:\n")
	for _, c := range bundle.Candidates {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Name, c.ICD10)
	}
	return b.String()
}
