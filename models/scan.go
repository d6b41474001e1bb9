package models

import "time"

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanQueued     ScanStatus = "queued"
	ScanInProgress ScanStatus = "in_progress"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

func (s ScanStatus) rank() int {
	switch s {
	case ScanQueued:
		return 1
	case ScanInProgress:
		return 2
	case ScanCompleted, ScanFailed:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether moving from s to next keeps the state
// machine one-directional. Re-applying the current non-terminal state is
// allowed; a queued scan may go straight to a terminal state.
func (s ScanStatus) CanTransitionTo(next ScanStatus) bool {
	if next.rank() == 0 {
		return false
	}
	if s == "" {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// Scan tracks one run of the pipeline over a source tree.
type Scan struct {
	ID           string     `json:"id"            db:"id"`
	Name         string     `json:"name"          db:"name"`
	RootPath     string     `json:"root_path"     db:"root_path"`
	TriggeredBy  string     `json:"triggered_by"  db:"triggered_by"`
	Status       ScanStatus `json:"status"        db:"status"`
	TotalFiles   int        `json:"total_files"   db:"total_files"`
	FilesScanned int        `json:"files_scanned" db:"files_scanned"`
	FailedFiles  int        `json:"failed_files"  db:"failed_files"`
	Findings     int        `json:"findings"      db:"findings"`
	StartTime    time.Time  `json:"start_time"    db:"start_time"`
	EndTime      *time.Time `json:"end_time"      db:"end_time"`
	ErrorMsg     string     `json:"error_msg"     db:"error_msg"`
	LastUpdated  time.Time  `json:"last_updated"  db:"last_updated"`
}

// Percentage returns the share of files scanned, 0-100. A scan with no
// files reports 100 once it is completed.
func (s *Scan) Percentage() float64 {
	if s.TotalFiles == 0 {
		if s.Status == ScanCompleted {
			return 100
		}
		return 0
	}
	return float64(s.FilesScanned) * 100 / float64(s.TotalFiles)
}

// Remaining returns the number of files not yet processed.
func (s *Scan) Remaining() int {
	if r := s.TotalFiles - s.FilesScanned; r > 0 {
		return r
	}
	return 0
}

// ScanUpdate is a partial progress update. Nil fields are left untouched.
type ScanUpdate struct {
	TotalFiles   *int
	FilesScanned *int
	FailedFiles  *int
	Status       *ScanStatus
	Findings     *int
	EndTime      *time.Time
	ErrorMsg     *string
}

// Empty reports whether the update carries no fields.
func (u ScanUpdate) Empty() bool {
	return u.TotalFiles == nil && u.FilesScanned == nil && u.FailedFiles == nil &&
		u.Status == nil && u.Findings == nil && u.EndTime == nil && u.ErrorMsg == nil
}

// Ptr returns a pointer to v; handy for building ScanUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}
