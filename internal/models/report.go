package models

import (
	"errors"
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusInProgress ReportStatus = "in-progress"
	StatusDone       ReportStatus = "done"
)

var ErrAlreadyDone = errors.New("report is already done")

// Next returns the status that follows s. Reports only move forward:
// pending -> in-progress -> done.
func (s ReportStatus) Next() (ReportStatus, error) {
	switch s {
	case StatusPending:
		return StatusInProgress, nil
	case StatusInProgress:
		return StatusDone, nil
	case StatusDone:
		return "", ErrAlreadyDone
	default:
		return "", fmt.Errorf("unknown report status %q", string(s))
	}
}

// Reporter is the denormalized owner projection embedded in report reads.
type Reporter struct {
	ID   string
	Name string
}

type Report struct {
	ID         string
	ReporterID string
	Reporter   Reporter
	Title      string
	Location   string
	Priority   Priority
	Status     ReportStatus
	Photos     []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Progress struct {
	ID          string
	ReportID    string
	Description string
	Photos      []string
	CreatedAt   time.Time
}

// ReportPatch carries a partial update; nil fields are left untouched.
type ReportPatch struct {
	Title    *string
	Location *string
	Priority *Priority
	Photos   []string
}

func (p ReportPatch) Empty() bool {
	return p.Title == nil && p.Location == nil && p.Priority == nil && p.Photos == nil
}
