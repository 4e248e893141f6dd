package entities

import (
	"fmt"
	"time"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain"
)

// JobKey identifies a broadcast job
type JobKey struct {
	UserID    int64
	AccountID int64
}

func (k JobKey) String() string {
	return fmt.Sprintf("%d:%d", k.UserID, k.AccountID)
}

// JobStatus is the lifecycle position of a broadcast job
type JobStatus string

const (
	StatusIdle     JobStatus = "idle"
	StatusRunning  JobStatus = "running"
	StatusStopping JobStatus = "stopping"
)

// Job is a snapshot of a broadcast job
type Job struct {
	Key         JobKey
	Status      JobStatus
	Cycle       int
	DailySent   int
	StartedAt   time.Time
	LastCycleAt time.Time
	NextRunAt   time.Time
}

// Window is a daily [Start, End) range in minutes since midnight, it may wrap midnight.
// Equal bounds disable the window.
type Window struct {
	Start int
	End   int
}

// Enabled reports whether the window restricts anything
func (w Window) Enabled() bool {
	return w.Start != w.End
}

// Contains reports whether minute falls inside the window
func (w Window) Contains(minute int) bool {
	if !w.Enabled() {
		return false
	}
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

// PoolMode selects how the message pool is walked
type PoolMode string

const (
	PoolRandom PoolMode = "random"
	PoolRotate PoolMode = "rotate"
	// PoolSequential walks the pool exactly like PoolRotate
	PoolSequential PoolMode = "sequential"
)

// ABMode selects between two message variants
type ABMode string

const (
	ABOff    ABMode = ""
	ABSingle ABMode = "single"
	ABRotate ABMode = "rotate"
	ABSplit  ABMode = "split"
)

// Variant names an A/B message variant
type Variant string

const (
	VariantNone Variant = ""
	VariantA    Variant = "A"
	VariantB    Variant = "B"
)

// Settings is the per-account broadcast configuration and counters
type Settings struct {
	AccountID     int64
	Interval      time.Duration
	GroupDelayMin time.Duration
	GroupDelayMax time.Duration
	DailyCap      int
	DailySent     int
	// DailyDay is the day DailySent belongs to, YYYY-MM-DD in the broadcast timezone
	DailyDay   string
	QuietHours Window
	Schedule   Window

	// TemplateSlot points at a saved template, nil when unset
	TemplateSlot *int
	ForwardMode  bool
	PoolEnabled  bool
	PoolMode     PoolMode
	PoolCursor   int
	ABMode       ABMode
	LastVariant  Variant
}

// SentOn returns the daily counter as seen on day
func (s *Settings) SentOn(day string) int {
	if s.DailyDay != day {
		return 0
	}
	return s.DailySent
}

// Content is every message an account may broadcast
type Content struct {
	Templates map[int]domain.Message
	Pool      []domain.Message
	VariantA  *domain.Message
	VariantB  *domain.Message
	Active    *domain.Message
}

// Source names the policy that produced a selection
type Source string

const (
	SourceNone     Source = "none"
	SourceTemplate Source = "template"
	SourceForward  Source = "forward"
	SourcePool     Source = "pool"
	SourceAB       Source = "ab"
	SourceActive   Source = "active"
)

// Decision is the outcome of message selection for one cycle
type Decision struct {
	Source Source
	// Message is nil for SourceForward and SourceNone
	Message *domain.Message
	// NextPoolCursor is set for SourcePool
	NextPoolCursor int
	// Variant is set for SourceAB
	Variant Variant
}

// Skip reports whether the cycle has nothing to send
func (d Decision) Skip() bool {
	return d.Source == SourceNone
}

// Destination is a group an account broadcasts to
type Destination struct {
	ID           int64
	AccountID    int64
	Peer         domain.Peer
	Title        string
	Blacklisted  bool
	FailureCount int
	LastError    string
	SyncedAt     time.Time
}

// CycleOutcome classifies how a cycle ended
type CycleOutcome string

const (
	OutcomeCompleted CycleOutcome = "completed"
	OutcomeNothing   CycleOutcome = "nothing_to_send"
	OutcomeNoGroups  CycleOutcome = "no_groups"
	OutcomeRevoked   CycleOutcome = "session_revoked"
	OutcomeFailed    CycleOutcome = "failed"
)

// CycleStats summarizes one broadcast cycle
type CycleStats struct {
	UserID     int64        `json:"user_id"`
	AccountID  int64        `json:"account_id"`
	Cycle      int          `json:"cycle"`
	Source     Source       `json:"source"`
	Outcome    CycleOutcome `json:"outcome"`
	Sent       int          `json:"sent"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Duration returns how long the cycle took
func (s *CycleStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// EventType names a notification event
type EventType string

const (
	EventStarted      EventType = "broadcast.started"
	EventStopped      EventType = "broadcast.stopped"
	EventCycleSummary EventType = "broadcast.cycle_summary"
)

// Event is a best-effort notification about a job
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    int64       `json:"user_id"`
	AccountID int64       `json:"account_id"`
	Reason    string      `json:"reason,omitempty"`
	Stats     *CycleStats `json:"stats,omitempty"`
	At        time.Time   `json:"at"`
}

// CommandAction names a remote control action
type CommandAction string

const (
	CommandStart CommandAction = "start"
	CommandStop  CommandAction = "stop"
)

// Command asks the scheduler to start or stop a job, it arrives over the message bus
type Command struct {
	RequestID string        `json:"request_id"`
	Action    CommandAction `json:"action"`
	UserID    int64         `json:"user_id"`
	AccountID int64         `json:"account_id"`
}
