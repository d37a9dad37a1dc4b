package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"diagnosis-engine/internal/bayes"
	"diagnosis-engine/internal/pharmacy"
	"diagnosis-engine/internal/questionbank"
	"diagnosis-engine/internal/visit"
)

// ReportRenderer turns a completed visit into a downloadable document.
type ReportRenderer interface {
	Render(ctx context.Context, v *visit.Visit, p *pharmacy.PrescriptionRecord) ([]byte, error)
}

type Handler struct {
	svc     Service
	reports ReportRenderer
}

func NewHandler(svc Service, reports ReportRenderer) *Handler {
	return &Handler{svc: svc, reports: reports}
}

type answerPayload struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type diagnoseRequest struct {
	VisitID          string          `json:"visitId"`
	PatientID        string          `json:"patientId"`
	SymptomText      string          `json:"symptomText"`
	SelectedSymptoms []string        `json:"selectedSymptoms"`
	Answers          []answerPayload `json:"answers"`
	Options          *Options        `json:"options"`
	PregnancyStatus  *bool           `json:"pregnancy_status"`
}

type questionPayload struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type diagnoseResponse struct {
	VisitID      string                       `json:"visitId"`
	Finished     bool                         `json:"finished"`
	NextQuestion *questionPayload             `json:"nextQuestion,omitempty"`
	Differential []bayes.DifferentialEntry    `json:"differential,omitempty"`
	Diagnoses    []bayes.DifferentialEntry    `json:"diagnoses,omitempty"`
	SafetyFlags  []string                     `json:"safetyFlags,omitempty"`
	Prescription *pharmacy.PrescriptionRecord `json:"prescription"`
	Status       string                       `json:"status,omitempty"`
}

func (h *Handler) HandleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stepReq := StepRequest{
		SymptomText:      req.SymptomText,
		SelectedSymptoms: req.SelectedSymptoms,
		Options:          req.Options,
		PregnancyStatus:  req.PregnancyStatus,
	}

	if req.VisitID != "" {
		id, err := uuid.Parse(req.VisitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid visit id")
			return
		}
		stepReq.VisitID = &id
	}

	if req.PatientID != "" {
		pid, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid patient id")
			return
		}
		stepReq.PatientID = pid
	} else if stepReq.VisitID == nil {
		// A brand-new session without a caller-supplied patient gets an
		// anonymous identity, matching how the front end starts a visit.
		stepReq.PatientID = uuid.New()
	}

	for _, a := range req.Answers {
		stepReq.Answers = append(stepReq.Answers, bayes.Answer{QuestionID: a.ID, Value: a.Value})
	}

	result, err := h.svc.Step(r.Context(), stepReq)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := diagnoseResponse{
		VisitID:      result.VisitID.String(),
		Finished:     result.Finished,
		SafetyFlags:  result.SafetyFlags,
		Prescription: result.Prescription,
		Status:       result.Status,
	}
	if result.Finished {
		resp.Diagnoses = result.Differential
	} else {
		resp.Differential = result.Differential
		if result.NextQuestion != nil {
			resp.NextQuestion = questionToPayload(*result.NextQuestion)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) HandleGetVisit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit id")
		return
	}

	v, err := h.svc.GetVisit(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) HandleVisitReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit id")
		return
	}

	v, err := h.svc.GetVisit(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if v.Status != visit.StatusCompleted {
		writeError(w, http.StatusConflict, "visit is not completed yet")
		return
	}

	var prescription *pharmacy.PrescriptionRecord
	if v.PrescriptionID != nil {
		prescription, err = h.svc.GetPrescription(r.Context(), *v.PrescriptionID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	pdf, err := h.reports.Render(r.Context(), v, prescription)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="visit_%s.pdf"`, v.ID))
	w.Write(pdf)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, visit.ErrNotFound):
		writeError(w, http.StatusNotFound, "visit not found")
	case errors.Is(err, ErrVisitCompleted):
		writeError(w, http.StatusConflict, "visit already completed")
	case errors.Is(err, visit.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, pharmacy.ErrPrescriptionNotFound):
		writeError(w, http.StatusNotFound, "prescription not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func questionToPayload(q questionbank.Question) *questionPayload {
	return &questionPayload{ID: q.ID, Text: q.Text, Options: q.Options}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/diagnose", h.HandleDiagnose)
	r.Get("/visits/{id}", h.HandleGetVisit)
	r.Get("/visits/{id}/report", h.HandleVisitReport)
}
