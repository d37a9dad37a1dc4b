package questionbank

// Question is one clarifying question with a fixed set of discrete answers.
// Questions are defined at process start and never mutated.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Bank is an ordered, immutable catalog of questions. Declaration order is
// significant: the selector breaks information-gain ties by bank order.
type Bank struct {
	questions []Question
	byID      map[string]int
}

func New(questions []Question) *Bank {
	b := &Bank{
		questions: make([]Question, len(questions)),
		byID:      make(map[string]int, len(questions)),
	}
	copy(b.questions, questions)
	for i, q := range b.questions {
		b.byID[q.ID] = i
	}
	return b
}

func (b *Bank) Get(id string) (Question, bool) {
	i, ok := b.byID[id]
	if !ok {
		return Question{}, false
	}
	return b.questions[i], true
}

// Questions returns the catalog in bank order.
func (b *Bank) Questions() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// Unanswered returns, in bank order, every question whose id is not in answered.
func (b *Bank) Unanswered(answered map[string]bool) []Question {
	var out []Question
	for _, q := range b.questions {
		if !answered[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

func (b *Bank) Len() int {
	return len(b.questions)
}

// HasOption reports whether value is a valid answer option for question id.
func (b *Bank) HasOption(id, value string) bool {
	q, ok := b.Get(id)
	if !ok {
		return false
	}
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// Default returns the built-in triage catalog used by the engine.
func Default() *Bank {
	return New([]Question{
		{
			ID:      "fever_duration",
			Text:    "How long have you had a fever?",
			Options: []string{"no fever", "less than 2 days", "2-4 days", "more than 4 days"},
		},
		{
			ID:      "cough_type",
			Text:    "Do you have a cough, and if so what kind?",
			Options: []string{"no cough", "dry cough", "productive cough"},
		},
		{
			ID:      "sore_throat",
			Text:    "Do you have a sore throat?",
			Options: []string{"no", "mild", "severe with difficulty swallowing"},
		},
		{
			ID:      "nasal_symptoms",
			Text:    "Do you have a runny or blocked nose?",
			Options: []string{"no", "runny nose", "blocked nose", "both"},
		},
		{
			ID:      "headache_pattern",
			Text:    "If you have a headache, how would you describe it?",
			Options: []string{"no headache", "dull and constant", "throbbing on one side", "pressure around the face"},
		},
		{
			ID:      "body_aches",
			Text:    "Do you have muscle or body aches?",
			Options: []string{"no", "mild", "severe"},
		},
		{
			ID:      "digestive_symptoms",
			Text:    "Any nausea, vomiting or diarrhea?",
			Options: []string{"none", "nausea only", "vomiting", "diarrhea", "vomiting and diarrhea"},
		},
		{
			ID:      "urinary_symptoms",
			Text:    "Any pain or burning when urinating?",
			Options: []string{"no", "burning sensation", "pain and frequent urge"},
		},
		{
			ID:      "symptom_onset",
			Text:    "How did your symptoms start?",
			Options: []string{"suddenly", "gradually over days"},
		},
		{
			ID:      "itchy_eyes",
			Text:    "Are your eyes itchy or watery?",
			Options: []string{"no", "yes"},
		},
	})
}
