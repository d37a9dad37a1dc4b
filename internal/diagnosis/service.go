package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"diagnosis-engine/internal/bayes"
	"diagnosis-engine/internal/oracle"
	"diagnosis-engine/internal/patient"
	"diagnosis-engine/internal/pharmacy"
	"diagnosis-engine/internal/questionbank"
	"diagnosis-engine/internal/visit"
)

const (
	// DefaultThreshold is the posterior confidence at which the session stops.
	DefaultThreshold = 0.75
	// DefaultMaxQuestions is the per-visit question budget.
	DefaultMaxQuestions = 6

	defaultOracleTimeout = 30 * time.Second
)

// Options tune one inference step. Zero values fall back to the defaults;
// out-of-range values are rejected.
type Options struct {
	Threshold    float64 `json:"threshold"`
	MaxQuestions int     `json:"max_questions"`
}

func (o *Options) validate() error {
	if o == nil {
		return nil
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be between 0 and 1", ErrInvalidInput)
	}
	if o.MaxQuestions < 0 {
		return fmt.Errorf("%w: max_questions must not be negative", ErrInvalidInput)
	}
	return nil
}

func (o *Options) threshold() float64 {
	if o == nil || o.Threshold == 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

func (o *Options) maxQuestions() int {
	if o == nil || o.MaxQuestions == 0 {
		return DefaultMaxQuestions
	}
	return o.MaxQuestions
}

// StepRequest is one round of the diagnostic loop. Answers are the newly
// collected answers for this step, not the full history.
type StepRequest struct {
	VisitID          *uuid.UUID
	PatientID        uuid.UUID
	SymptomText      string
	SelectedSymptoms []string
	Answers          []bayes.Answer
	Options          *Options
	PregnancyStatus  *bool
}

// StepResult is what the caller gets back: either the next question or the
// completed differential with the safety-gate outcome.
type StepResult struct {
	VisitID      uuid.UUID
	Finished     bool
	NextQuestion *questionbank.Question
	Differential []bayes.DifferentialEntry
	SafetyFlags  []string
	Prescription *pharmacy.PrescriptionRecord
	Status       string
}

type Service interface {
	Step(ctx context.Context, req StepRequest) (*StepResult, error)
	GetVisit(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
	GetPrescription(ctx context.Context, id uuid.UUID) (*pharmacy.PrescriptionRecord, error)
}

type service struct {
	visits        visit.Repository
	locks         *visit.Locks
	bank          *questionbank.Bank
	catalog       *pharmacy.Catalog
	oracle        oracle.ProbabilityOracle
	patients      patient.Reader
	gate          *pharmacy.Gate
	prescriptions pharmacy.PrescriptionRepository
	oracleTimeout time.Duration
}

func NewService(
	visits visit.Repository,
	bank *questionbank.Bank,
	catalog *pharmacy.Catalog,
	probOracle oracle.ProbabilityOracle,
	patients patient.Reader,
	gate *pharmacy.Gate,
	prescriptions pharmacy.PrescriptionRepository,
	oracleTimeout time.Duration,
) Service {
	if oracleTimeout <= 0 {
		oracleTimeout = defaultOracleTimeout
	}
	return &service{
		visits:        visits,
		locks:         visit.NewLocks(),
		bank:          bank,
		catalog:       catalog,
		oracle:        probOracle,
		patients:      patients,
		gate:          gate,
		prescriptions: prescriptions,
		oracleTimeout: oracleTimeout,
	}
}

func (s *service) GetVisit(ctx context.Context, id uuid.UUID) (*visit.Visit, error) {
	return s.visits.GetByID(ctx, id)
}

func (s *service) GetPrescription(ctx context.Context, id uuid.UUID) (*pharmacy.PrescriptionRecord, error) {
	return s.prescriptions.GetByID(ctx, id)
}

// Step runs one round: aggregate evidence, consult the oracle, recompute the
// posterior, then either return the next question or finalize through the
// safety gate.
func (s *service) Step(ctx context.Context, req StepRequest) (*StepResult, error) {
	if err := req.Options.validate(); err != nil {
		return nil, err
	}
	maxQuestions := req.Options.maxQuestions()
	threshold := req.Options.threshold()

	if err := s.validateAnswers(req.Answers); err != nil {
		return nil, err
	}

	v, unlock, err := s.loadVisit(ctx, req)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if v.Status == visit.StatusCompleted {
		return nil, ErrVisitCompleted
	}

	if err := s.applyEvidence(v, req, maxQuestions); err != nil {
		return nil, err
	}

	bundle := buildEvidence(v, s.bank, s.catalog)

	result := s.infer(ctx, bundle)

	names := make([]string, len(bundle.Candidates))
	for i, c := range bundle.Candidates {
		names[i] = c.Name
	}
	posterior := bayes.Posterior(result.Priors, result.CondProbs, names, v.Answers)
	v.Differential = bayes.Rank(posterior, result.CodeMap)

	answered := v.AnsweredIDs()
	finished := s.shouldStop(v, posterior, answered, threshold, maxQuestions)
	if !finished {
		next, ok := bayes.NextQuestion(s.bank, posterior, result.CondProbs, answered)
		if !ok {
			// Bank exhausted between checks; treat as a stop.
			return s.finalize(ctx, v, req)
		}
		if err := s.visits.Save(ctx, v); err != nil {
			return nil, err
		}
		return &StepResult{
			VisitID:      v.ID,
			NextQuestion: &next,
			Differential: v.Differential,
		}, nil
	}

	return s.finalize(ctx, v, req)
}

func (s *service) validateAnswers(answers []bayes.Answer) error {
	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		if seen[a.QuestionID] {
			return fmt.Errorf("%w: duplicate answer for question %q", ErrInvalidInput, a.QuestionID)
		}
		seen[a.QuestionID] = true
		if _, ok := s.bank.Get(a.QuestionID); !ok {
			return fmt.Errorf("%w: unknown question %q", ErrInvalidInput, a.QuestionID)
		}
		if !s.bank.HasOption(a.QuestionID, a.Value) {
			return fmt.Errorf("%w: %q is not an option for question %q", ErrInvalidInput, a.Value, a.QuestionID)
		}
	}
	return nil
}

// loadVisit returns the (locked) visit for this step, creating a fresh one
// when no id was supplied. The lock is taken before the read so concurrent
// submissions for the same visit serialize instead of losing updates.
func (s *service) loadVisit(ctx context.Context, req StepRequest) (*visit.Visit, func(), error) {
	if req.VisitID == nil {
		v := visit.New(req.PatientID)
		unlock := s.locks.Lock(v.ID)
		return v, unlock, nil
	}

	unlock := s.locks.Lock(*req.VisitID)
	v, err := s.visits.GetByID(ctx, *req.VisitID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return v, unlock, nil
}

// applyEvidence folds the request's evidence into the visit, enforcing the
// no-repeat and question-budget invariants.
func (s *service) applyEvidence(v *visit.Visit, req StepRequest, maxQuestions int) error {
	if req.SymptomText != "" {
		v.FreeText = req.SymptomText
	}
	if len(req.SelectedSymptoms) > 0 {
		existing := make(map[string]bool, len(v.Symptoms))
		for _, sym := range v.Symptoms {
			existing[sym] = true
		}
		for _, sym := range req.SelectedSymptoms {
			if !existing[sym] {
				v.Symptoms = append(v.Symptoms, sym)
				existing[sym] = true
			}
		}
	}

	answered := v.AnsweredIDs()
	for _, a := range req.Answers {
		if answered[a.QuestionID] {
			return fmt.Errorf("%w: question %q was already answered in this visit", ErrInvalidInput, a.QuestionID)
		}
	}
	if len(v.Answers)+len(req.Answers) > maxQuestions {
		return fmt.Errorf("%w: answer count would exceed the question budget of %d", ErrInvalidInput, maxQuestions)
	}
	v.Answers = append(v.Answers, req.Answers...)
	return nil
}

// infer consults the oracle under a timeout. Any failure degrades to the
// uniform fallback rather than aborting the visit; the degradation is logged
// distinctly so a transient outage stays observable.
func (s *service) infer(ctx context.Context, bundle oracle.EvidenceBundle) *oracle.Result {
	oracleCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	result, err := s.oracle.Infer(oracleCtx, bundle)
	if err != nil {
		log.Warn().
			Err(err).
			Str("event", "oracle_degraded").
			Bool("retryable", errors.Is(err, oracle.ErrUnavailable)).
			Msg("oracle inference failed; using uniform priors")
		return oracle.Uniform(bundle.Candidates)
	}
	return result
}

func (s *service) shouldStop(v *visit.Visit, posterior map[string]float64, answered map[string]bool, threshold float64, maxQuestions int) bool {
	if len(v.Differential) > 0 && v.Differential[0].Probability >= threshold {
		return true
	}
	if len(v.Answers) >= maxQuestions {
		return true
	}
	if len(s.bank.Unanswered(answered)) == 0 {
		return true
	}
	return false
}

// finalize marks the visit completed, runs the safety gate, and only then
// creates the prescription record (if any), backfilling its id on the visit.
func (s *service) finalize(ctx context.Context, v *visit.Visit, req StepRequest) (*StepResult, error) {
	rec := s.patientRecord(ctx, v)
	if req.PregnancyStatus != nil {
		rec.Pregnant = *req.PregnancyStatus
	}

	outcome := s.gate.Evaluate(ctx, v.ID, v.PatientID, rec, v.Differential)

	v.Status = visit.StatusCompleted
	v.SafetyFlags = append(v.SafetyFlags, outcome.SafetyFlags...)
	if err := s.visits.Save(ctx, v); err != nil {
		return nil, err
	}

	if outcome.Prescription != nil {
		if err := s.prescriptions.Create(ctx, outcome.Prescription); err != nil {
			return nil, fmt.Errorf("failed to store prescription: %w", err)
		}
		v.PrescriptionID = &outcome.Prescription.ID
		if err := s.visits.Save(ctx, v); err != nil {
			return nil, err
		}
	}

	return &StepResult{
		VisitID:      v.ID,
		Finished:     true,
		Differential: v.Differential,
		SafetyFlags:  v.SafetyFlags,
		Prescription: outcome.Prescription,
		Status:       outcome.Status,
	}, nil
}

// patientRecord loads the patient's chart for the safety checks. A missing
// record means there is simply nothing on file; a failing lookup is absorbed
// with a flag so the reviewing doctor can see the checks ran without chart
// data.
func (s *service) patientRecord(ctx context.Context, v *visit.Visit) patient.Record {
	rec, err := s.patients.Get(ctx, v.PatientID)
	if err != nil {
		if !errors.Is(err, patient.ErrNotFound) {
			log.Warn().
				Err(err).
				Str("event", "patient_record_unavailable").
				Str("visit_id", v.ID.String()).
				Msg("patient record lookup failed; safety checks run without chart data")
			v.SafetyFlags = append(v.SafetyFlags, "Patient record unavailable; checks ran without chart data")
		}
		return patient.Record{PatientID: v.PatientID}
	}
	return *rec
}
