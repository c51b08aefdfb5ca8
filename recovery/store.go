// Package recovery implements the Recovery Store (spec.md §4.4, C4): durable
// RecoverySession/AgentCheckpoint/ErrorRecord/QuotaCounter persistence plus
// the run event journal eventbus.Bus replays from. It is grounded on the
// teacher's runtime/agent/run (session status/phase lifecycle),
// runtime/agent/runlog (append-only event log), and features/*/mongo store
// packages (Options/Client wrapper, index bootstrap, cursor pagination
// idioms), generalized to this spec's RecoverySession/AgentCheckpoint
// entities.
package recovery

import (
	"context"
	"time"

	"github.com/resumeforge/tailorcore/eventbus"
)

// Status mirrors spec.md §3's Run.status enumeration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s is a terminal Run status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// RecoverySession is the durable reflection of a Run used for retry
// (spec.md §3).
type RecoverySession struct {
	RunID           string
	FormData        map[string]any
	FileMetadata    map[string]any
	Status          Status
	CompletedAgents []int
	ErrorContext    *ErrorRecord
	RetryCount      int
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// AgentCheckpoint is a RecoverySession's saved AgentOutput for one agent;
// (RunID, AgentIndex) is unique (spec.md §3).
type AgentCheckpoint struct {
	RunID          string
	AgentIndex     int
	OutputJSON     []byte
	RawText        string
	TokensIn       int
	TokensOut      int
	ThinkingTokens int
	CostMicroUSD   int64
	ModelID        string
	DurationMS     int64
	CreatedAt      time.Time
}

// ErrorRecord is a sanitized, user-facing error occurrence (spec.md §3).
type ErrorRecord struct {
	ErrorID    string
	RunID      string
	Category   string
	Type       string
	Message    string
	StackTrace string
	CreatedAt  time.Time
}

// QuotaCounter is a per-client run counter compared against MAX_FREE_RUNS
// (spec.md §3).
type QuotaCounter struct {
	ClientID string
	Count    int
}

// ErrNotFound is returned by Get-style operations for an unknown key.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "recovery: not found" }

// Store is the Recovery Store's full operation surface (spec.md §4.4). It
// also satisfies eventbus.Journal so the Bus can use a Store directly as its
// durable backing journal.
type Store interface {
	eventbus.Journal

	CreateSession(ctx context.Context, sess RecoverySession) error
	GetSession(ctx context.Context, runID string) (RecoverySession, error)
	UpdateSession(ctx context.Context, runID string, mutate func(*RecoverySession)) error

	// DeleteSession removes a session and its checkpoints/errors/events, for
	// the user-initiated discard path (spec.md §6 DELETE /recovery-session/{id}).
	DeleteSession(ctx context.Context, runID string) error

	// SaveCheckpoint is idempotent on (RunID, AgentIndex): a second call for
	// the same pair replaces the row only if the session's current status
	// is not yet terminal-completed, per spec.md §4.4.
	SaveCheckpoint(ctx context.Context, cp AgentCheckpoint) error
	GetCheckpoints(ctx context.Context, runID string) ([]AgentCheckpoint, error)

	LogError(ctx context.Context, rec ErrorRecord) error

	// CleanupExpired deletes sessions (and their checkpoints/events) eligible
	// for automatic deletion per spec.md §3 invariant 4, returning the count
	// removed.
	CleanupExpired(ctx context.Context, now time.Time) (int, error)

	// IncrementAndCheckQuota is atomic: a single read-compare-increment
	// critical section, never mutated by any other caller path.
	IncrementAndCheckQuota(ctx context.Context, clientID string, cap int) (allowed bool, remaining int, err error)
}
