// Package scheduler runs periodic maintenance for the analysis service:
// dropping expired results from the in-memory registry, purging expired
// rows from the result archive, and pruning rate limit windows.
package scheduler

import "time"

// TaskType identifies a maintenance task. Each constant maps to one
// MaintenanceService method.
type TaskType string

const (
	TaskSweepResults TaskType = "sweep_results"
	TaskPurgeArchive TaskType = "purge_archive"
)

// Tasks lists every task MaintenanceService.Run accepts.
func Tasks() []TaskType {
	return []TaskType{TaskSweepResults, TaskPurgeArchive}
}

// MaintenancePayload is the event that triggers one task outside the API
// process, for example from an EventBridge schedule. ReferenceTime overrides
// the cutoff for backfills.
type MaintenancePayload struct {
	Task          TaskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// TaskReport summarizes one task run.
type TaskReport struct {
	Task     TaskType      `json:"task"`
	Removed  int64         `json:"removed"`
	Duration time.Duration `json:"duration"`
}
