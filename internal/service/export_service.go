package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
	"github.com/noah-isme/fasch-registrar-api/pkg/export"
)

// ExportFormat selects the rendering of an export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, subtitle ...string) ([]byte, error)
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders transcripts as CSV or PDF documents.
type ExportService struct {
	csv csvRenderer
	pdf pdfRenderer
	now func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(csv csvRenderer, pdf pdfRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("Faculté des Sciences Humaines")
	}
	return &ExportService{csv: csv, pdf: pdf, now: time.Now}
}

// Transcript renders a transcript with its courses and summary lines.
func (s *ExportService) Transcript(detail *models.TranscriptDetail, format ExportFormat) (*ExportResult, error) {
	if detail == nil {
		return nil, fmt.Errorf("transcript nil")
	}
	dataset := transcriptDataset(detail)

	var (
		payload []byte
		err     error
	)
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		title := fmt.Sprintf("Transcript %s %d", detail.Semester, detail.Year)
		payload, err = s.pdf.Render(dataset, title, fmt.Sprintf("%s (%s)", detail.StudentName, detail.StudentNumber))
	default:
		return nil, appErrors.Validation("unsupported export format", map[string]string{"format": string(format)})
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}

	return &ExportResult{
		Filename:    s.buildFilename(detail, format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

func transcriptDataset(detail *models.TranscriptDetail) export.Dataset {
	headers := []string{"Course", "Title", "Credits", "Status", "Final", "Letter"}
	rows := make([]map[string]string, 0, len(detail.Courses))
	for _, course := range detail.Courses {
		rows = append(rows, map[string]string{
			"Course":  course.CourseCode,
			"Title":   course.CourseName,
			"Credits": fmt.Sprintf("%d", course.Credits),
			"Status":  string(course.Status),
			"Final":   formatScore(course.FinalGrade),
			"Letter":  course.LetterGrade,
		})
	}
	return export.Dataset{
		Headers: headers,
		Rows:    rows,
		Summary: []export.SummaryLine{
			{Label: "GPA", Value: formatScore(detail.GPA)},
			{Label: "Credits attempted", Value: fmt.Sprintf("%d", detail.CreditsAttempted)},
			{Label: "Credits earned", Value: fmt.Sprintf("%d", detail.CreditsEarned)},
			{Label: "Generated at", Value: detail.GeneratedAt.UTC().Format(time.RFC3339)},
		},
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func (s *ExportService) buildFilename(detail *models.TranscriptDetail, format ExportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	student := sanitizeFilename(detail.StudentNumber)
	return fmt.Sprintf("transcript_%s_%s_%d_%s.%s", student, strings.ToLower(string(detail.Semester)), detail.Year, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
