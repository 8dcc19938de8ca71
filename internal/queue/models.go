package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending         Status = "pending"
	StatusLoading         Status = "loading"
	StatusLoaded          Status = "loaded"
	StatusMerging         Status = "merging"
	StatusMerged          Status = "merged"
	StatusTempoEstimating Status = "tempo_estimating"
	StatusTempoEstimated  Status = "tempo_estimated"
	StatusQuantizing      Status = "quantizing"
	StatusQuantized       Status = "quantized"
	StatusPedalInferring  Status = "pedal_inferring"
	StatusPedalInferred   Status = "pedal_inferred"
	StatusHandSplitting   Status = "hand_splitting"
	StatusHandsSplit      Status = "hands_split"
	StatusAssembling      Status = "assembling"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusReview          Status = "review"
)

// DaemonStopReason is the error message set when items are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusLoading,
	StatusLoaded,
	StatusMerging,
	StatusMerged,
	StatusTempoEstimating,
	StatusTempoEstimated,
	StatusQuantizing,
	StatusQuantized,
	StatusPedalInferring,
	StatusPedalInferred,
	StatusHandSplitting,
	StatusHandsSplit,
	StatusAssembling,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusLoading:         {},
	StatusMerging:         {},
	StatusTempoEstimating: {},
	StatusQuantizing:      {},
	StatusPedalInferring:  {},
	StatusHandSplitting:   {},
	StatusAssembling:      {},
}

type statusTransition struct {
	from Status
	to   Status
}

var stageRollbackTransitions = []statusTransition{
	{from: StatusLoading, to: StatusPending},
	{from: StatusMerging, to: StatusLoaded},
	{from: StatusTempoEstimating, to: StatusMerged},
	{from: StatusQuantizing, to: StatusTempoEstimated},
	{from: StatusPedalInferring, to: StatusQuantized},
	{from: StatusHandSplitting, to: StatusPedalInferred},
	{from: StatusAssembling, to: StatusHandsSplit},
}

// RollbackStatus returns the stage entry status a processing item should
// return to when its work is interrupted.
func RollbackStatus(status Status) (Status, bool) {
	for _, tr := range stageRollbackTransitions {
		if tr.from == status {
			return tr.to, true
		}
	}
	return "", false
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Review     int
	Completed  int
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID                 int64
	SessionPath        string
	PieceTitle         string
	Status             Status
	SourceCount        int
	NoteCount          int
	FeatureFingerprint string
	ScoreFile          string
	EnvelopeData       string
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ProgressStage      string
	ProgressPercent    float64
	ProgressMessage    string
	LastHeartbeat      *time.Time
	NeedsReview        bool
	ReviewReason       string
	BackgroundLogPath  string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether an item has finished processing for good.
func (i Item) IsTerminal() bool {
	switch i.Status {
	case StatusCompleted, StatusFailed, StatusReview:
		return true
	default:
		return false
	}
}

// InitProgress resets progress fields for a new stage.
// If ProgressStage is currently empty, it is set to the provided stage value;
// otherwise the existing stage is preserved (to support resume scenarios).
// ProgressMessage is set to message, ProgressPercent is reset to 0,
// and ErrorMessage is cleared.
func (i *Item) InitProgress(stage, message string) {
	if i.ProgressStage == "" {
		i.ProgressStage = stage
	}
	i.ProgressMessage = message
	i.ProgressPercent = 0
	i.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically.
// Use this instead of setting ProgressStage, ProgressPercent, and ProgressMessage individually.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
// Convenience method for stage completion.
func (i *Item) SetProgressComplete(stage, message string) {
	i.SetProgress(stage, message, 100)
}

// SetFailed marks the item as failed with the given error message.
// Clears heartbeat and sets progress fields appropriately.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.LastHeartbeat = nil
	i.ProgressStage = "Failed"
}

// SetReview parks the item for operator attention with the given reason.
// Review items keep their envelope so artifacts stay inspectable; a rerun
// rebuilds them from the session inputs.
func (i *Item) SetReview(reason string) {
	i.Status = StatusReview
	i.NeedsReview = true
	i.ReviewReason = reason
	i.ErrorMessage = reason
	i.ProgressPercent = 0
	i.ProgressMessage = reason
	i.LastHeartbeat = nil
	i.ProgressStage = "Needs review"
}

// StageKey returns the normalized stage identifier used in CLI presentation.
func (s Status) StageKey() string {
	switch s {
	case "":
		return ""
	case StatusPending:
		return "planned"
	case StatusCompleted:
		return "final"
	default:
		if _, ok := statusSet[s]; ok {
			return string(s)
		}
		return ""
	}
}

// ProcessingLane partitions workflow into user-facing foreground stages and background work.
type ProcessingLane string

const (
	LaneForeground ProcessingLane = "foreground"
	LaneBackground ProcessingLane = "background"
)

// LaneForItem maps a queue item to its processing lane for observability purposes.
func LaneForItem(item *Item) ProcessingLane {
	if item == nil {
		return LaneForeground
	}
	switch item.Status {
	case StatusPending, StatusLoading, StatusLoaded, StatusMerging:
		return LaneForeground
	case StatusMerged, StatusTempoEstimating, StatusTempoEstimated, StatusQuantizing,
		StatusQuantized, StatusPedalInferring, StatusPedalInferred, StatusHandSplitting,
		StatusHandsSplit, StatusAssembling, StatusCompleted:
		return LaneBackground
	case StatusFailed, StatusReview:
		if item.EnvelopeData != "" {
			return LaneBackground
		}
		return LaneForeground
	default:
		return LaneForeground
	}
}
