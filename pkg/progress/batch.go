package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/sheet"
)

// Results is what an upload reports back: counts plus per-row errors.
type Results struct {
	Success      int               `json:"success"`
	Errors       int               `json:"errors"`
	ErrorDetails []models.RowError `json:"error_details"`
}

func (r *Results) fail(row int, msg string) {
	r.Errors++
	r.ErrorDetails = append(r.ErrorDetails, models.RowError{Row: row, Error: msg})
}

// batch processes the data rows of one upload inside its transaction.
type batch struct {
	tx        *gorm.DB
	upload    *models.UploadedFile
	uploader  *models.User
	overwrite bool
	policy    ErrorPolicy
	now       time.Time
	cols      columns
	touched   map[uint]struct{}
}

func (b *batch) run(ctx context.Context, rows [][]string) (Results, error) {
	res := Results{ErrorDetails: []models.RowError{}}
	b.touched = map[uint]struct{}{}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if sheet.BlankRow(row) {
			continue
		}
		rowNum := i + 2
		var err error
		switch b.upload.FileType {
		case models.FileTypeKpiProgress:
			err = b.kpiRow(row, rowNum)
		case models.FileTypeMilestoneProgress:
			err = b.milestoneRow(row, rowNum)
		default:
			return res, &FileError{Msg: fmt.Sprintf("Unknown upload type %q", b.upload.FileType)}
		}
		var rowErr *RowError
		switch {
		case err == nil:
			res.Success++
		case errors.As(err, &rowErr):
			if b.policy == PolicyFailFast {
				return res, rowErr
			}
			res.fail(rowErr.Row, rowErr.Msg)
		default:
			return res, err
		}
	}
	for id := range b.touched {
		if _, err := RefreshKpiCurrentValue(b.tx, id); err != nil {
			return res, fmt.Errorf("refresh kpi %d: %w", id, err)
		}
	}
	return res, nil
}

func (b *batch) kpiRow(row []string, rowNum int) error {
	in := kpiProgressRow{
		KpiID:         b.cols.get(row, "KPI ID"),
		ReportingDate: b.cols.get(row, "Reporting Date"),
		CurrentValue:  b.cols.get(row, "Current Value"),
		KpiTitle:      b.cols.get(row, "KPI Title"),
		Notes:         b.cols.get(row, "Notes"),
		EntryType:     b.cols.get(row, "Entry Type"),
		Source:        b.cols.get(row, "Source"),
	}
	if err := validate.Struct(in); err != nil {
		return &RowError{Row: rowNum, Msg: requiredFieldsError(err)}
	}
	id, ok := parseID(in.KpiID)
	if !ok {
		return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid KPI ID '%s'", in.KpiID)}
	}
	var kpi models.Kpi
	if err := b.tx.First(&kpi, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &RowError{Row: rowNum, Msg: fmt.Sprintf("KPI with ID %d not found", id)}
		}
		return err
	}
	if b.uploader.RoleName().IsRestricted() && !b.uploader.SameDepartment(&kpi.DepartmentID) {
		return &RowError{Row: rowNum, Msg: "You can only upload data for KPIs in your department"}
	}
	day, ok := sheet.ParseDate(in.ReportingDate)
	if !ok {
		return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid reporting date '%s'", in.ReportingDate)}
	}
	value, ok := sheet.ParseNumber(in.CurrentValue)
	if !ok {
		return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid current value '%s'", in.CurrentValue)}
	}
	entryType := models.EntryUpload
	if in.EntryType != "" {
		entryType = models.EntryType(strings.ToLower(in.EntryType))
		if !entryType.Valid() {
			return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid entry type '%s'", in.EntryType)}
		}
	}
	source := models.SourceExcelUpload
	if in.Source != "" {
		source = in.Source
	}

	uploadID := b.upload.ID
	meta := map[string]interface{}{"row": rowNum, "upload_id": uploadID}
	if in.KpiTitle != "" {
		meta["kpi_title"] = in.KpiTitle
	}
	entry := &models.KpiProgress{
		KpiID:          kpi.ID,
		ReportingDate:  day,
		Value:          value,
		Percentage:     models.ProgressPercentage(value, kpi.TargetValue),
		Notes:          in.Notes,
		EntryType:      entryType,
		Source:         source,
		ReportedBy:     b.uploader.ID,
		UploadedFileID: &uploadID,
		Metadata:       jsonMeta(meta),
	}
	verificationFor(entry, b.uploader, b.now)
	if err := saveProgress(b.tx, entry, b.overwrite); err != nil {
		if errors.Is(err, errDuplicateEntry) {
			return &RowError{Row: rowNum, Msg: duplicateMessage(kpi.ID, day)}
		}
		return err
	}
	b.touched[kpi.ID] = struct{}{}
	return nil
}

func (b *batch) milestoneRow(row []string, rowNum int) error {
	in := milestoneRow{
		MilestoneID:   b.cols.get(row, "Milestone ID"),
		Completion:    b.cols.get(row, "Completion Percentage"),
		Title:         b.cols.get(row, "Milestone Title"),
		Status:        b.cols.get(row, "Status"),
		Notes:         b.cols.get(row, "Notes"),
		CompletedDate: b.cols.get(row, "Completed Date"),
	}
	if err := validate.Struct(in); err != nil {
		return &RowError{Row: rowNum, Msg: requiredFieldsError(err)}
	}
	id, ok := parseID(in.MilestoneID)
	if !ok {
		return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid Milestone ID '%s'", in.MilestoneID)}
	}
	var ms models.Milestone
	if err := b.tx.Preload("Kpi").First(&ms, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &RowError{Row: rowNum, Msg: fmt.Sprintf("Milestone with ID %d not found", id)}
		}
		return err
	}
	if b.uploader.RoleName().IsRestricted() {
		if ms.Kpi == nil || !b.uploader.SameDepartment(&ms.Kpi.DepartmentID) {
			return &RowError{Row: rowNum, Msg: "You can only upload data for milestones in your department"}
		}
	}
	pct, ok := sheet.ParseNumber(in.Completion)
	if !ok {
		return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid completion percentage '%s'", in.Completion)}
	}
	if err := validate.Var(pct, "gte=0,lte=100"); err != nil {
		return &RowError{Row: rowNum, Msg: "Completion percentage must be between 0 and 100"}
	}
	status := models.DeriveMilestoneStatus(pct)
	if in.Status != "" {
		st, ok := models.ParseMilestoneStatus(strings.ReplaceAll(strings.ToLower(in.Status), " ", "_"))
		if !ok {
			return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid status '%s'. Allowed: not_started, in_progress, completed, delayed, on_hold", in.Status)}
		}
		status = st
	}
	var completed *time.Time
	if in.CompletedDate != "" {
		d, ok := sheet.ParseDate(in.CompletedDate)
		if !ok {
			return &RowError{Row: rowNum, Msg: fmt.Sprintf("Invalid completed date '%s'", in.CompletedDate)}
		}
		completed = &d
	} else if status == models.MilestoneCompleted {
		d := models.ReportingDay(b.now)
		if ms.CompletedDate != nil && ms.Status == models.MilestoneCompleted {
			d = *ms.CompletedDate
		}
		completed = &d
	}
	if ms.LastReportedAt != nil && !b.overwrite {
		return &RowError{Row: rowNum, Msg: fmt.Sprintf("Progress for milestone %d was already reported. Enable overwrite to update it.", ms.ID)}
	}

	uploadID := b.upload.ID
	reporter := b.uploader.ID
	now := b.now
	updates := map[string]interface{}{
		"completion_percentage": pct,
		"status":                status,
		"completed_date":        completed,
		"last_reported_at":      &now,
		"last_reported_by":      &reporter,
		"uploaded_file_id":      &uploadID,
	}
	if in.Notes != "" {
		updates["notes"] = in.Notes
	}
	return b.tx.Model(&models.Milestone{}).Where("id = ?", ms.ID).Updates(updates).Error
}
