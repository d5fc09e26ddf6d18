package agent

import (
	"time"

	"kanbansync/internal/model"
	"kanbansync/internal/protocol"
)

// TaskDraft holds the user-entered fields of a new task.
type TaskDraft struct {
	Title       string
	Description string
	Status      string
	Priority    model.Priority
	Label       string
	ParentID    string
}

// mutate applies fn to a copy of the board. On success the copy replaces
// the board, is persisted offline, queued for the document store and the
// returned event (if any) is emitted to peers.
func (a *Agent) mutate(fn func(b *model.Board, now time.Time) (*protocol.Envelope, error)) error {
	a.mu.Lock()
	next := a.board.Clone()
	env, err := fn(&next, a.clock.Now())
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.board = next
	a.persistLocked(true)
	a.mu.Unlock()

	if env != nil {
		a.emit(*env)
	}
	a.render()
	return nil
}

func taskEvent(t protocol.MessageType, change protocol.TaskChange, now time.Time) (*protocol.Envelope, error) {
	env, err := protocol.New(t, change, now)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func snapshotEvent(b *model.Board, now time.Time) (*protocol.Envelope, error) {
	env, err := protocol.New(protocol.TypeSyncData, protocol.SyncDataFrom(*b), now)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (a *Agent) CreateTask(d TaskDraft) (model.Task, error) {
	var created model.Task
	err := a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		if _, ok := b.Column(d.Status); !ok {
			return nil, model.ErrColumnNotFound
		}
		if d.ParentID != "" {
			if _, ok := b.Task(d.ParentID); !ok {
				return nil, model.ErrTaskNotFound
			}
		}
		created = model.NewTask(d.Title, d.Description, d.Status, d.Priority, d.Label, d.ParentID, now)
		b.AddTask(created)
		return taskEvent(protocol.TypeTaskCreated, protocol.TaskChange{TaskID: created.ID, Task: &created}, now)
	})
	return created, err
}

// UpdateTask replaces the editable fields of an existing task. CreatedAt
// is preserved and a status change follows the done-tracking rule.
func (a *Agent) UpdateTask(t model.Task) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		existing, ok := b.Task(t.ID)
		if !ok {
			return nil, model.ErrTaskNotFound
		}
		if _, ok := b.Column(t.Status); !ok {
			return nil, model.ErrColumnNotFound
		}
		updated := t
		updated.CreatedAt = existing.CreatedAt
		updated.MovedToDoneAt = existing.MovedToDoneAt
		updated.Status = existing.Status
		updated.SetStatus(t.Status, now)
		if !updated.Priority.Valid() {
			updated.Priority = existing.Priority
		}
		if err := b.ReplaceTask(updated); err != nil {
			return nil, err
		}
		return taskEvent(protocol.TypeTaskUpdated, protocol.TaskChange{TaskID: updated.ID, Task: &updated}, now)
	})
}

// DeleteTask removes the task and its subtasks.
func (a *Agent) DeleteTask(id string) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		task, ok := b.Task(id)
		if !ok {
			return nil, model.ErrTaskNotFound
		}
		b.DeleteTask(id)
		return taskEvent(protocol.TypeTaskDeleted, protocol.TaskChange{TaskID: id, Task: &task}, now)
	})
}

// MoveTask changes the column of a task and, when parentID is non-nil, its
// parent ("" detaches it).
func (a *Agent) MoveTask(id, status string, parentID *string) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		if _, ok := b.Column(status); !ok {
			return nil, model.ErrColumnNotFound
		}
		if parentID != nil && *parentID != "" {
			if _, ok := b.Task(*parentID); !ok {
				return nil, model.ErrTaskNotFound
			}
		}
		from, err := b.MoveTask(id, status, parentID, now)
		if err != nil {
			return nil, err
		}
		moved, _ := b.Task(id)
		return taskEvent(protocol.TypeTaskMoved, protocol.TaskChange{
			TaskID:     id,
			Task:       &moved,
			FromStatus: from,
			ToStatus:   status,
			ParentID:   parentID,
		}, now)
	})
}

func (a *Agent) AddColumn(title string) (model.Column, error) {
	var col model.Column
	err := a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		var err error
		if col, err = b.AddColumn(title); err != nil {
			return nil, err
		}
		return snapshotEvent(b, now)
	})
	return col, err
}

func (a *Agent) RenameColumn(status, title string) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		if err := b.RenameColumn(status, title); err != nil {
			return nil, err
		}
		return snapshotEvent(b, now)
	})
}

// DeleteColumn removes a column; its tasks move to the first remaining one.
func (a *Agent) DeleteColumn(status string) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		if err := b.DeleteColumn(status); err != nil {
			return nil, err
		}
		return snapshotEvent(b, now)
	})
}

func (a *Agent) AddLabel(label string) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		if err := b.AddLabel(label); err != nil {
			return nil, err
		}
		return snapshotEvent(b, now)
	})
}

func (a *Agent) DeleteLabel(label string) error {
	return a.mutate(func(b *model.Board, now time.Time) (*protocol.Envelope, error) {
		if !b.DeleteLabel(label) {
			return nil, model.ErrLabelNotFound
		}
		return snapshotEvent(b, now)
	})
}
