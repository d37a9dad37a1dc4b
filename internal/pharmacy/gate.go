package pharmacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"diagnosis-engine/internal/bayes"
	"diagnosis-engine/internal/patient"
)

const (
	// StatusPrescriptionGenerated means a candidate cleared every check.
	StatusPrescriptionGenerated = "prescription_generated"
	// StatusNoSafeMedication means every candidate was blocked; a doctor
	// must review the visit.
	StatusNoSafeMedication = "no_safe_medication"

	// maxInteractionDetails caps how many example findings are carried in a
	// single interaction flag.
	maxInteractionDetails = 3
)

// Gate walks a ranked differential and emits a prescription for the first
// condition whose protocol clears the allergy, pregnancy and drug-interaction
// checks. Detected risk is fail-closed; lookup failures are fail-open and
// logged as residual risk, never conflated with a clean pass.
type Gate struct {
	catalog      *Catalog
	codes        CodeLookup
	interactions InteractionClient
}

// Outcome is the gate's verdict for one completed visit. Prescription is
// populated but not persisted; the caller stores it once the visit is
// finalized.
type Outcome struct {
	Prescription *PrescriptionRecord
	SafetyFlags  []string
	Status       string
}

func NewGate(catalog *Catalog, codes CodeLookup, interactions InteractionClient) *Gate {
	return &Gate{catalog: catalog, codes: codes, interactions: interactions}
}

// Evaluate iterates the differential in rank order. First safe match wins;
// no attempt is made to find a "best" safe match among later candidates.
func (g *Gate) Evaluate(ctx context.Context, visitID, patientID uuid.UUID, rec patient.Record, differential []bayes.DifferentialEntry) *Outcome {
	outcome := &Outcome{Status: StatusNoSafeMedication}

	for _, entry := range differential {
		protocol, ok := g.catalog.Find(entry.Condition)
		if !ok {
			continue
		}

		if med, conflict := allergyConflict(rec, protocol); conflict {
			outcome.SafetyFlags = append(outcome.SafetyFlags,
				fmt.Sprintf("Allergy conflict for %s (%s)", entry.Condition, med))
			continue
		}

		if med, conflict := pregnancyConflict(rec, protocol); conflict {
			outcome.SafetyFlags = append(outcome.SafetyFlags,
				fmt.Sprintf("Pregnancy contraindication for %s (%s)", entry.Condition, med))
			continue
		}

		if result := g.interactionRisk(ctx, rec, protocol); result != nil && result.Risky {
			details := result.Details
			if len(details) > maxInteractionDetails {
				details = details[:maxInteractionDetails]
			}
			flag := fmt.Sprintf("Drug interaction risk for %s", entry.Condition)
			if len(details) > 0 {
				flag += ": " + strings.Join(details, "; ")
			}
			outcome.SafetyFlags = append(outcome.SafetyFlags, flag)
			continue
		}

		outcome.Prescription = &PrescriptionRecord{
			ID:          uuid.New(),
			VisitID:     visitID,
			PatientID:   patientID,
			Medications: append([]Medication(nil), protocol.Medications...),
			Diagnosis: Diagnosis{
				Name:       entry.Condition,
				ICD10:      entry.ICD10,
				Confidence: entry.Probability,
			},
			Status: PrescriptionStatusIssued,
		}
		outcome.Status = StatusPrescriptionGenerated
		return outcome
	}

	if len(outcome.SafetyFlags) == 0 {
		outcome.SafetyFlags = append(outcome.SafetyFlags, "No treatment protocol matched the differential")
	}
	return outcome
}

// allergyConflict reports whether any protocol medication name appears in the
// patient's free-text allergy field.
func allergyConflict(rec patient.Record, protocol Protocol) (string, bool) {
	allergies := strings.ToLower(rec.Allergies)
	if allergies == "" {
		return "", false
	}
	for _, med := range protocol.Medications {
		if strings.Contains(allergies, strings.ToLower(med.Name)) {
			return med.Name, true
		}
	}
	return "", false
}

// pregnancyConflict reports whether the patient is pregnant and any protocol
// medication lists a pregnancy-related contraindication.
func pregnancyConflict(rec patient.Record, protocol Protocol) (string, bool) {
	if !rec.Pregnant {
		return "", false
	}
	for _, med := range protocol.Medications {
		for _, contra := range med.Contraindications {
			if strings.Contains(strings.ToLower(contra), "pregnan") {
				return med.Name, true
			}
		}
	}
	return "", false
}

// interactionRisk resolves protocol and current medications to drug codes and
// queries the interaction service. Every lookup failure is absorbed (fail-open)
// but logged distinctly so the residual risk stays observable.
func (g *Gate) interactionRisk(ctx context.Context, rec patient.Record, protocol Protocol) *InteractionResult {
	if len(rec.CurrentMedications) == 0 {
		return nil
	}

	var lookupErrs *multierror.Error

	var protocolCodes []string
	for _, med := range protocol.Medications {
		code, err := g.codes.Code(ctx, med.Name)
		if err != nil {
			lookupErrs = multierror.Append(lookupErrs, err)
			continue
		}
		if code != "" {
			protocolCodes = append(protocolCodes, code)
		}
	}

	var patientCodes []string
	for _, name := range rec.CurrentMedications {
		code, err := g.codes.Code(ctx, name)
		if err != nil {
			lookupErrs = multierror.Append(lookupErrs, err)
			continue
		}
		if code != "" {
			patientCodes = append(patientCodes, code)
		}
	}

	var result *InteractionResult
	if len(protocolCodes) > 0 && len(patientCodes) > 0 {
		var err error
		result, err = g.interactions.Check(ctx, append(protocolCodes, patientCodes...))
		if err != nil {
			lookupErrs = multierror.Append(lookupErrs, err)
			result = nil
		}
	}

	if err := lookupErrs.ErrorOrNil(); err != nil {
		log.Warn().
			Err(err).
			Str("event", "interaction_lookup_failed").
			Str("condition", protocol.Condition).
			Msg("interaction lookup failed; treating as no interaction found")
	}
	return result
}
