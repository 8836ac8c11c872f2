package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transcriptDataset() Dataset {
	return Dataset{
		Headers: []string{"Course", "Credits", "Grade", "Letter"},
		Rows: []map[string]string{
			{"Course": "PSY101", "Credits": "3", "Grade": "91.50", "Letter": "A"},
			{"Course": "SOC210", "Credits": "4", "Grade": "58.00", "Letter": "F"},
		},
		Summary: []SummaryLine{{Label: "GPA", Value: "1.71"}, {Label: "Credits earned", Value: "3"}},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(transcriptDataset())
	require.NoError(t, err)

	expected := "Course,Credits,Grade,Letter\nPSY101,3,91.50,A\nSOC210,4,58.00,F\n\nGPA,1.71\nCredits earned,3\n"
	assert.Equal(t, expected, string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter("Faculté des Sciences Humaines").Render(transcriptDataset(), "Official Transcript", "Student: STU0001")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
