package progress

import (
	"errors"
	"strings"
)

var (
	ErrForbidden      = errors.New("you are not allowed to perform this action")
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("upload has already been approved or rejected")
	ErrReasonRequired = errors.New("a rejection reason is required")
	errDuplicateEntry = errors.New("progress entry already exists")
)

// FileError aborts a whole batch: unreadable file, bad headers, storage failure.
// Msg is safe to show to the uploader; Err carries the underlying cause for logs.
type FileError struct {
	Msg string
	Err error
}

func (e *FileError) Error() string { return e.Msg }
func (e *FileError) Unwrap() error { return e.Err }

// RowError is a single failed data row. Row is the 1-based spreadsheet row number.
type RowError struct {
	Row int
	Msg string
}

func (e *RowError) Error() string { return e.Msg }

// ErrorPolicy decides what a row error does to the rest of the batch.
type ErrorPolicy string

const (
	// PolicyBestEffort collects row errors and commits the rows that succeeded.
	PolicyBestEffort ErrorPolicy = "best_effort"
	// PolicyFailFast rolls back the batch on the first row error.
	PolicyFailFast ErrorPolicy = "fail_fast"
)

func ParsePolicy(s string) (ErrorPolicy, bool) {
	p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PolicyBestEffort, PolicyFailFast:
		return p, true
	}
	return "", false
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
