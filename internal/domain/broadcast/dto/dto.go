package dto

import (
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// JobResponse broadcast job view
type JobResponse struct {
	UserID      int64      `json:"user_id"`
	AccountID   int64      `json:"account_id"`
	Status      string     `json:"status"`
	Cycle       int        `json:"cycle"`
	DailySent   int        `json:"daily_sent"`
	StartedAt   time.Time  `json:"started_at"`
	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
}

// NewJobResponse converts a job snapshot
func NewJobResponse(job *entities.Job) *JobResponse {
	resp := &JobResponse{
		UserID:    job.Key.UserID,
		AccountID: job.Key.AccountID,
		Status:    string(job.Status),
		Cycle:     job.Cycle,
		DailySent: job.DailySent,
		StartedAt: job.StartedAt,
	}
	if !job.LastCycleAt.IsZero() {
		at := job.LastCycleAt
		resp.LastCycleAt = &at
	}
	if !job.NextRunAt.IsZero() {
		at := job.NextRunAt
		resp.NextRunAt = &at
	}
	return resp
}

// CycleResponse finished cycle view
type CycleResponse struct {
	Cycle      int       `json:"cycle"`
	Source     string    `json:"source"`
	Outcome    string    `json:"outcome"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}

// NewCycleResponse converts cycle stats
func NewCycleResponse(stats *entities.CycleStats) CycleResponse {
	return CycleResponse{
		Cycle:      stats.Cycle,
		Source:     string(stats.Source),
		Outcome:    string(stats.Outcome),
		Sent:       stats.Sent,
		Failed:     stats.Failed,
		Skipped:    stats.Skipped,
		StartedAt:  stats.StartedAt,
		FinishedAt: stats.FinishedAt,
		DurationMs: stats.Duration().Milliseconds(),
	}
}

// BroadcastStatusResponse response for a single account
type BroadcastStatusResponse struct {
	AccountID    int64           `json:"account_id"`
	Running      bool            `json:"running"`
	Job          *JobResponse    `json:"job,omitempty"`
	RecentCycles []CycleResponse `json:"recent_cycles"`
}

// UserBroadcastResponse response listing every job of a user
type UserBroadcastResponse struct {
	// RunningAccountID may differ from the user's active account
	RunningAccountID *int64         `json:"running_account_id,omitempty"`
	Jobs             []*JobResponse `json:"jobs"`
}
