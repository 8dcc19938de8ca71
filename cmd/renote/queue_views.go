package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"renote/internal/queue"
)

func buildQueueListRows(items []*queue.Item) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]*queue.Item, len(items))
	copy(sorted, items)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			displayTitle(item),
			formatStatusLabel(string(item.Status)),
			formatProgress(item),
			formatDisplayTime(item.CreatedAt),
		})
	}
	return rows
}

func displayTitle(item *queue.Item) string {
	if item == nil {
		return "Unknown"
	}
	title := strings.TrimSpace(item.PieceTitle)
	if title != "" {
		return title
	}
	source := strings.TrimSpace(item.SessionPath)
	if source != "" {
		return filepath.Base(source)
	}
	return "Unknown"
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatProgress(item *queue.Item) string {
	if item == nil {
		return ""
	}
	stage := strings.TrimSpace(item.ProgressStage)
	if stage == "" {
		return ""
	}
	if item.ProgressPercent > 0 && item.ProgressPercent < 100 {
		return fmt.Sprintf("%s (%.0f%%)", stage, item.ProgressPercent)
	}
	return stage
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatFingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > 12 {
		return value[:12]
	}
	return value
}

type itemView struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	SessionPath     string  `json:"session_path"`
	Status          string  `json:"status"`
	ProgressStage   string  `json:"progress_stage,omitempty"`
	ProgressPercent float64 `json:"progress_percent,omitempty"`
	ProgressMessage string  `json:"progress_message,omitempty"`
	SourceCount     int     `json:"source_count,omitempty"`
	NoteCount       int     `json:"note_count,omitempty"`
	Fingerprint     string  `json:"fingerprint,omitempty"`
	ScoreFile       string  `json:"score_file,omitempty"`
	Error           string  `json:"error,omitempty"`
	NeedsReview     bool    `json:"needs_review,omitempty"`
	ReviewReason    string  `json:"review_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func newItemView(item *queue.Item) itemView {
	return itemView{
		ID:              item.ID,
		Title:           displayTitle(item),
		SessionPath:     item.SessionPath,
		Status:          string(item.Status),
		ProgressStage:   item.ProgressStage,
		ProgressPercent: item.ProgressPercent,
		ProgressMessage: item.ProgressMessage,
		SourceCount:     item.SourceCount,
		NoteCount:       item.NoteCount,
		Fingerprint:     item.FeatureFingerprint,
		ScoreFile:       item.ScoreFile,
		Error:           item.ErrorMessage,
		NeedsReview:     item.NeedsReview,
		ReviewReason:    item.ReviewReason,
		CreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
