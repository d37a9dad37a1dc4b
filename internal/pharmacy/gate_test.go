package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnosis-engine/internal/bayes"
	"diagnosis-engine/internal/patient"
)

type stubCodes struct {
	codes map[string]string
	err   error
}

func (s *stubCodes) Code(ctx context.Context, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.codes[name], nil
}

type stubInteractions struct {
	result *InteractionResult
	err    error
	calls  int
}

func (s *stubInteractions) Check(ctx context.Context, codes []string) (*InteractionResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testCatalog() *Catalog {
	return NewCatalog(DefaultProtocols())
}

func differential(entries ...bayes.DifferentialEntry) []bayes.DifferentialEntry {
	return entries
}

func TestGateIssuesPrescriptionForCleanCandidate(t *testing.T) {
	gate := NewGate(testCatalog(), &stubCodes{}, &stubInteractions{})
	visitID, patientID := uuid.New(), uuid.New()

	outcome := gate.Evaluate(context.Background(), visitID, patientID,
		patient.Record{PatientID: patientID},
		differential(bayes.DifferentialEntry{Condition: "Influenza", Probability: 0.82, ICD10: "J11.1"}))

	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, StatusPrescriptionGenerated, outcome.Status)
	assert.Equal(t, visitID, outcome.Prescription.VisitID)
	assert.Equal(t, "Influenza", outcome.Prescription.Diagnosis.Name)
	assert.InDelta(t, 0.82, outcome.Prescription.Diagnosis.Confidence, 1e-9)
	assert.NotEmpty(t, outcome.Prescription.Medications)
	assert.Empty(t, outcome.SafetyFlags)
}

func TestGateAllergyConflictFallsThrough(t *testing.T) {
	gate := NewGate(testCatalog(), &stubCodes{}, &stubInteractions{})
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID, Allergies: "severe rash from Amoxicillin as a child"},
		differential(
			bayes.DifferentialEntry{Condition: "Streptococcal pharyngitis", Probability: 0.6, ICD10: "J02.0"},
			bayes.DifferentialEntry{Condition: "Common cold", Probability: 0.3, ICD10: "J00"},
		))

	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, "Common cold", outcome.Prescription.Diagnosis.Name)
	require.Len(t, outcome.SafetyFlags, 1)
	assert.Contains(t, outcome.SafetyFlags[0], "Allergy conflict for Streptococcal pharyngitis")
}

func TestGateAllergyNoSafeMedication(t *testing.T) {
	gate := NewGate(testCatalog(), &stubCodes{}, &stubInteractions{})
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID, Allergies: "amoxicillin"},
		differential(bayes.DifferentialEntry{Condition: "Streptococcal pharyngitis", Probability: 0.9, ICD10: "J02.0"}))

	assert.Nil(t, outcome.Prescription)
	assert.Equal(t, StatusNoSafeMedication, outcome.Status)
	assert.NotEmpty(t, outcome.SafetyFlags)
}

func TestGatePregnancyContraindication(t *testing.T) {
	gate := NewGate(testCatalog(), &stubCodes{}, &stubInteractions{})
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID, Pregnant: true},
		differential(
			bayes.DifferentialEntry{Condition: "Migraine", Probability: 0.7, ICD10: "G43.9"},
			bayes.DifferentialEntry{Condition: "Tension headache", Probability: 0.2, ICD10: "G44.2"},
		))

	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, "Tension headache", outcome.Prescription.Diagnosis.Name)
	require.Len(t, outcome.SafetyFlags, 1)
	assert.Contains(t, outcome.SafetyFlags[0], "Pregnancy contraindication for Migraine")
}

func TestGateDetectedInteractionFailsClosed(t *testing.T) {
	codes := &stubCodes{codes: map[string]string{
		"Sumatriptan": "37418",
		"Ibuprofen":   "5640",
		"warfarin":    "11289",
	}}
	interactions := &stubInteractions{result: &InteractionResult{
		Risky:   true,
		Details: []string{"sumatriptan + warfarin", "finding two", "finding three", "finding four"},
	}}
	gate := NewGate(testCatalog(), codes, interactions)
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID, CurrentMedications: []string{"warfarin"}},
		differential(bayes.DifferentialEntry{Condition: "Migraine", Probability: 0.8, ICD10: "G43.9"}))

	assert.Nil(t, outcome.Prescription)
	assert.Equal(t, StatusNoSafeMedication, outcome.Status)
	require.Len(t, outcome.SafetyFlags, 1)
	assert.Contains(t, outcome.SafetyFlags[0], "Drug interaction risk for Migraine")
	// At most three example findings are carried.
	assert.NotContains(t, outcome.SafetyFlags[0], "finding four")
}

func TestGateLookupErrorFailsOpen(t *testing.T) {
	codes := &stubCodes{err: errors.New("rxnorm timeout")}
	interactions := &stubInteractions{}
	gate := NewGate(testCatalog(), codes, interactions)
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID, CurrentMedications: []string{"warfarin"}},
		differential(bayes.DifferentialEntry{Condition: "Migraine", Probability: 0.8, ICD10: "G43.9"}))

	// The candidate must not be rejected solely because the lookup failed.
	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, StatusPrescriptionGenerated, outcome.Status)
	assert.Equal(t, 0, interactions.calls)
}

func TestGateInteractionServiceErrorFailsOpen(t *testing.T) {
	codes := &stubCodes{codes: map[string]string{
		"Sumatriptan": "37418",
		"Ibuprofen":   "5640",
		"warfarin":    "11289",
	}}
	interactions := &stubInteractions{err: errors.New("service unavailable")}
	gate := NewGate(testCatalog(), codes, interactions)
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID, CurrentMedications: []string{"warfarin"}},
		differential(bayes.DifferentialEntry{Condition: "Migraine", Probability: 0.8, ICD10: "G43.9"}))

	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, StatusPrescriptionGenerated, outcome.Status)
	assert.Equal(t, 1, interactions.calls)
}

func TestGateNoCurrentMedicationsSkipsInteractionCheck(t *testing.T) {
	interactions := &stubInteractions{result: &InteractionResult{Risky: true}}
	gate := NewGate(testCatalog(), &stubCodes{}, interactions)
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID},
		differential(bayes.DifferentialEntry{Condition: "Migraine", Probability: 0.8, ICD10: "G43.9"}))

	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, 0, interactions.calls)
}

func TestGateFirstSafeMatchWins(t *testing.T) {
	gate := NewGate(testCatalog(), &stubCodes{}, &stubInteractions{})
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID},
		differential(
			bayes.DifferentialEntry{Condition: "Common cold", Probability: 0.5, ICD10: "J00"},
			bayes.DifferentialEntry{Condition: "Influenza", Probability: 0.4, ICD10: "J11.1"},
		))

	require.NotNil(t, outcome.Prescription)
	assert.Equal(t, "Common cold", outcome.Prescription.Diagnosis.Name)
}

func TestGateNoProtocolMatch(t *testing.T) {
	gate := NewGate(testCatalog(), &stubCodes{}, &stubInteractions{})
	patientID := uuid.New()

	outcome := gate.Evaluate(context.Background(), uuid.New(), patientID,
		patient.Record{PatientID: patientID},
		differential(bayes.DifferentialEntry{Condition: "Unknown syndrome", Probability: 0.9}))

	assert.Nil(t, outcome.Prescription)
	assert.Equal(t, StatusNoSafeMedication, outcome.Status)
	assert.NotEmpty(t, outcome.SafetyFlags)
}

func TestCatalogCandidatesSortedAndCapped(t *testing.T) {
	var protocols []Protocol
	for i := 0; i < 15; i++ {
		protocols = append(protocols, Protocol{
			Condition: fmt.Sprintf("Condition %02d", i),
			ICD10:     fmt.Sprintf("Z%02d", 15-i),
		})
	}
	catalog := NewCatalog(protocols)

	candidates := catalog.Candidates()

	require.Len(t, candidates, 12)
	for i := 1; i < len(candidates); i++ {
		assert.Less(t, candidates[i-1].ICD10, candidates[i].ICD10)
	}
	// Deterministic: repeated calls agree.
	assert.Equal(t, candidates, catalog.Candidates())
}

func TestCatalogFindCaseInsensitive(t *testing.T) {
	catalog := testCatalog()

	p, ok := catalog.Find("influenza")
	require.True(t, ok)
	assert.Equal(t, "J11.1", p.ICD10)

	_, ok = catalog.Find("no such condition")
	assert.False(t, ok)
}
