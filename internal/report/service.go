package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/signintech/gopdf"

	"diagnosis-engine/internal/pharmacy"
	"diagnosis-engine/internal/visit"
)

// Service renders completed visits to PDF for the reviewing doctor.
type Service struct {
	fontPaths []string
}

func NewService() *Service {
	return &Service{
		// Common DejaVuSans locations across base images.
		fontPaths: []string{
			"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		},
	}
}

func (s *Service) Render(ctx context.Context, v *visit.Visit, p *pharmacy.PrescriptionRecord) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, ensure ttf-dejavu is installed: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Diagnostic Visit Report")
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", time.Now().Format("02.01.2006 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Visit ID: %s", v.ID))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Patient ID: %s", v.PatientID))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Questions answered: %d", len(v.Answers)))
	pdf.Br(25)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Differential:")
	pdf.Br(15)
	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	if len(v.Differential) == 0 {
		pdf.Cell(nil, "- No candidate conditions.")
		pdf.Br(15)
	}
	for _, d := range v.Differential {
		s.writeWrapped(&pdf, fmt.Sprintf("- %s (%s): %.1f%%", d.Condition, d.ICD10, d.Probability*100))
	}
	pdf.Br(15)

	if len(v.SafetyFlags) > 0 {
		if err := pdf.SetFont("DejaVu", "", 14); err != nil {
			return nil, err
		}
		pdf.Cell(nil, "Safety flags:")
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		for _, flag := range v.SafetyFlags {
			s.writeWrapped(&pdf, "- "+flag)
		}
		pdf.Br(15)
	}

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	if p != nil {
		pdf.Cell(nil, fmt.Sprintf("Prescription for %s (%s)", p.Diagnosis.Name, p.Diagnosis.ICD10))
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		for _, med := range p.Medications {
			s.writeWrapped(&pdf, fmt.Sprintf("- %s %s, %s, %s", med.Name, med.Dosage, med.Frequency, med.Duration))
		}
	} else {
		pdf.Cell(nil, "No prescription issued. Doctor review required.")
		pdf.Br(15)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) writeWrapped(pdf *gopdf.GoPdf, text string) {
	lines, _ := pdf.SplitText(text, 500)
	for _, l := range lines {
		pdf.Cell(nil, l)
		pdf.Br(12)
	}
	pdf.Br(3)
}
