package progress

import (
	"fmt"
	"strings"

	"srap/models"
	"srap/pkg/sheet"
)

var requiredHeaders = map[models.FileType][]string{
	models.FileTypeKpiProgress:       {"KPI ID", "Reporting Date", "Current Value"},
	models.FileTypeMilestoneProgress: {"Milestone ID", "Completion Percentage"},
}

var optionalHeaders = map[models.FileType][]string{
	models.FileTypeKpiProgress:       {"KPI Title", "Notes", "Entry Type", "Source"},
	models.FileTypeMilestoneProgress: {"Milestone Title", "Status", "Notes", "Completed Date"},
}

// RequiredHeaders returns the columns an upload of type t must carry.
func RequiredHeaders(t models.FileType) []string {
	return append([]string(nil), requiredHeaders[t]...)
}

// TemplateHeaders returns required then optional columns, the header row of a generated template.
func TemplateHeaders(t models.FileType) []string {
	return append(RequiredHeaders(t), optionalHeaders[t]...)
}

// ValidateHeaders fails with a FileError naming the missing and found columns
// when any required header for t is absent. Comparison ignores case and extra spaces.
func ValidateHeaders(headers []string, t models.FileType) error {
	if _, ok := requiredHeaders[t]; !ok {
		return &FileError{Msg: fmt.Sprintf("Unknown upload type %q", t)}
	}
	missing := missingHeaders(headers, t)
	if len(missing) == 0 {
		return nil
	}
	found := sheet.CleanHeaders(headers)
	foundText := strings.Join(found, ", ")
	if foundText == "" {
		foundText = "(none)"
	}
	return &FileError{Msg: fmt.Sprintf("Missing required columns: %s. Found columns: %s", strings.Join(missing, ", "), foundText)}
}

// DetectType returns the type whose required headers are satisfied when exactly
// one type matches; otherwise the declared type is kept.
func DetectType(headers []string, declared models.FileType) models.FileType {
	kpi := len(missingHeaders(headers, models.FileTypeKpiProgress)) == 0
	ms := len(missingHeaders(headers, models.FileTypeMilestoneProgress)) == 0
	switch {
	case kpi && !ms:
		return models.FileTypeKpiProgress
	case ms && !kpi:
		return models.FileTypeMilestoneProgress
	default:
		return declared
	}
}

func missingHeaders(headers []string, t models.FileType) []string {
	have := make(map[string]bool, len(headers))
	for _, h := range sheet.CleanHeaders(headers) {
		have[sheet.NormalizeHeader(h)] = true
	}
	var missing []string
	for _, req := range requiredHeaders[t] {
		if !have[sheet.NormalizeHeader(req)] {
			missing = append(missing, req)
		}
	}
	return missing
}

// columns maps a normalized header name to its position in the header row.
type columns map[string]int

func indexColumns(headers []string) columns {
	c := make(columns, len(headers))
	for i, h := range headers {
		n := sheet.NormalizeHeader(h)
		if n == "" {
			continue
		}
		if _, dup := c[n]; !dup {
			c[n] = i
		}
	}
	return c
}

// get returns the trimmed cell under header name, or "" when the column is absent.
func (c columns) get(row []string, name string) string {
	i, ok := c[sheet.NormalizeHeader(name)]
	if !ok {
		return ""
	}
	return strings.TrimSpace(sheet.Cell(row, i))
}
