// Package report prints month-bounded progress summaries per department.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/sheet"
	"srap/pkg/storage"
)

// Line is one KPI's activity within the month.
type Line struct {
	KpiID       uint
	Title       string
	Target      float64
	Current     float64
	Percentage  float64
	Entries     int64
	Verified    int64
	Pending     int64
	Rejected    int64
	LatestValue *float64
}

type Summary struct {
	Department models.Department
	Start, End time.Time
	Lines      []Line
	Uploads    int64
	Failed     int64
}

// MonthBounds parses YYYY-MM into [start, end) in UTC.
func MonthBounds(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Build collects the summary for the department with code deptCode.
func Build(db *gorm.DB, deptCode, month string) (*Summary, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return nil, err
	}
	var dept models.Department
	if err := db.Where("code = ?", strings.ToUpper(strings.TrimSpace(deptCode))).First(&dept).Error; err != nil {
		return nil, fmt.Errorf("department %q not found: %w", deptCode, err)
	}
	s := &Summary{Department: dept, Start: start, End: end}

	var kpis []models.Kpi
	if err := db.Where("department_id = ? AND status = ?", dept.ID, models.KpiActive).Order("id").Find(&kpis).Error; err != nil {
		return nil, err
	}
	for i := range kpis {
		k := &kpis[i]
		l := Line{KpiID: k.ID, Title: k.Title, Target: k.TargetValue, Current: k.CurrentValue, Percentage: k.Percentage()}
		type row struct {
			Status string
			N      int64
		}
		var counts []row
		if err := db.Model(&models.KpiProgress{}).
			Select("verification_status as status, count(*) as n").
			Where("kpi_id = ? AND reporting_date >= ? AND reporting_date < ?", k.ID, start, end).
			Group("verification_status").Scan(&counts).Error; err != nil {
			return nil, err
		}
		for _, c := range counts {
			l.Entries += c.N
			switch models.VerificationStatus(c.Status) {
			case models.VerificationVerified:
				l.Verified = c.N
			case models.VerificationPending:
				l.Pending = c.N
			case models.VerificationRejected:
				l.Rejected = c.N
			}
		}
		var latest models.KpiProgress
		err := db.Where("kpi_id = ? AND verification_status = ? AND reporting_date >= ? AND reporting_date < ?",
			k.ID, models.VerificationVerified, start, end).
			Order("reporting_date desc, id desc").Limit(1).Find(&latest).Error
		if err != nil {
			return nil, err
		}
		if latest.ID != 0 {
			v := latest.Value
			l.LatestValue = &v
		}
		s.Lines = append(s.Lines, l)
	}

	uploads := func() *gorm.DB {
		return db.Model(&models.UploadedFile{}).
			Where("uploaded_by IN (?)", db.Model(&models.User{}).Select("id").Where("department_id = ?", dept.ID)).
			Where("created_at >= ? AND created_at < ?", start, end)
	}
	if err := uploads().Count(&s.Uploads).Error; err != nil {
		return nil, err
	}
	if err := uploads().Where("status = ?", models.UploadFailed).Count(&s.Failed).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// Write renders s as a table; list adds one line per KPI.
func Write(w io.Writer, s *Summary, list bool) error {
	var verified, pending int64
	for _, l := range s.Lines {
		verified += l.Verified
		pending += l.Pending
	}
	fmt.Fprintf(w, "Report for department=%s (%s) month=%s (UTC):\n", s.Department.Code, s.Department.Name, s.Start.Format("2006-01"))
	fmt.Fprintf(w, "  kpis=%d entries_verified=%d entries_pending=%d uploads=%d uploads_failed=%d\n",
		len(s.Lines), verified, pending, s.Uploads, s.Failed)
	if !list {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKPI\tTARGET\tCURRENT\tPCT\tENTRIES\tVERIFIED\tPENDING\tREJECTED\tLATEST")
	for _, l := range s.Lines {
		latest := "-"
		if l.LatestValue != nil {
			latest = fmt.Sprintf("%.2f", *l.LatestValue)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f%%\t%d\t%d\t%d\t%d\t%s\n",
			l.KpiID, l.Title, l.Target, l.Current, l.Percentage, l.Entries, l.Verified, l.Pending, l.Rejected, latest)
	}
	return tw.Flush()
}

var xlsxHeaders = []string{"KPI ID", "KPI", "Target", "Current", "Percentage", "Entries", "Verified", "Pending", "Rejected", "Latest Verified Value"}

// WriteXLSX renders the per-KPI lines of s as a workbook.
func WriteXLSX(w io.Writer, s *Summary) error {
	rows := make([][]interface{}, 0, len(s.Lines))
	for _, l := range s.Lines {
		var latest interface{} = ""
		if l.LatestValue != nil {
			latest = *l.LatestValue
		}
		rows = append(rows, []interface{}{l.KpiID, l.Title, l.Target, l.Current, l.Percentage, l.Entries, l.Verified, l.Pending, l.Rejected, latest})
	}
	name := fmt.Sprintf("%s %s", s.Department.Code, s.Start.Format("2006-01"))
	if len(name) > 31 {
		name = name[:31]
	}
	return sheet.WriteTable(w, name, xlsxHeaders, rows)
}

// SaveXLSX stores the workbook under reports/<department-id>_<timestamp>.xlsx and returns the key.
func SaveXLSX(ctx context.Context, store storage.Storage, s *Summary, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, s); err != nil {
		return "", err
	}
	key := storage.ReportKey(s.Department.ID, now, "xlsx")
	if err := store.Save(ctx, key, &buf, int64(buf.Len()), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return key, nil
}
