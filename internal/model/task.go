package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrParentCycle  = errors.New("task cannot be nested under itself or its descendant")
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task: карточка на доске. Status совпадает со Status одной из колонок.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      Priority   `json:"priority"`
	Status        string     `json:"status"`
	Label         string     `json:"label"`
	ParentID      string     `json:"parentId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	MovedToDoneAt *time.Time `json:"movedToDoneAt,omitempty"`
}

// NewTask fills in the generated fields of a freshly created task.
func NewTask(title, description, status string, priority Priority, label, parentID string, now time.Time) Task {
	if !priority.Valid() {
		priority = PriorityMedium
	}
	t := Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      status,
		Label:       label,
		ParentID:    parentID,
		CreatedAt:   now,
	}
	if IsDoneStatus(status) {
		t.MovedToDoneAt = &now
	}
	return t
}

// doneStatuses are the column statuses treated as "completed" across locales.
var doneStatuses = []string{"done", "готово", "completed", "finished"}

// IsDoneStatus reports whether status is a done-like status.
func IsDoneStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	for _, d := range doneStatuses {
		if s == d {
			return true
		}
	}
	return false
}

// SetStatus moves the task to status and stamps MovedToDoneAt the first
// time it enters a done-like status.
func (t *Task) SetStatus(status string, now time.Time) {
	if IsDoneStatus(status) && !IsDoneStatus(t.Status) {
		t.MovedToDoneAt = &now
	}
	t.Status = status
}

// DoneSince returns the time the task has been done since: MovedToDoneAt,
// or CreatedAt when the task never recorded the transition.
func (t Task) DoneSince() time.Time {
	if t.MovedToDoneAt != nil {
		return *t.MovedToDoneAt
	}
	return t.CreatedAt
}
