package model

import (
	"errors"
	"sort"
	"time"
)

var ErrLabelExists = errors.New("label already exists")

// Board is the full { tasks, columns } document exchanged during a resync.
// There is no version counter: the last full snapshot applied wins.
type Board struct {
	Tasks   []Task   `json:"tasks"`
	Columns []Column `json:"columns"`
	Labels  []string `json:"labels,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (b Board) Clone() Board {
	out := Board{
		Tasks:   make([]Task, len(b.Tasks)),
		Columns: make([]Column, len(b.Columns)),
	}
	for i, t := range b.Tasks {
		if t.MovedToDoneAt != nil {
			done := *t.MovedToDoneAt
			t.MovedToDoneAt = &done
		}
		out.Tasks[i] = t
	}
	copy(out.Columns, b.Columns)
	if b.Labels != nil {
		out.Labels = append([]string(nil), b.Labels...)
	}
	return out
}

func (b Board) taskIndex(id string) int {
	for i := range b.Tasks {
		if b.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Task returns the task with the given id.
func (b Board) Task(id string) (Task, bool) {
	if i := b.taskIndex(id); i >= 0 {
		return b.Tasks[i], true
	}
	return Task{}, false
}

// AddTask appends t unless a task with the same id already exists.
// Returns false for the duplicate, which makes creation idempotent.
func (b *Board) AddTask(t Task) bool {
	if b.taskIndex(t.ID) >= 0 {
		return false
	}
	b.Tasks = append(b.Tasks, t)
	return true
}

// ReplaceTask overwrites the stored task with the same id.
func (b *Board) ReplaceTask(t Task) error {
	i := b.taskIndex(t.ID)
	if i < 0 {
		return ErrTaskNotFound
	}
	if t.ParentID != b.Tasks[i].ParentID && b.wouldCycle(t.ID, t.ParentID) {
		return ErrParentCycle
	}
	b.Tasks[i] = t
	return nil
}

// DeleteTask removes the task and all of its subtasks. It returns the ids removed.
func (b *Board) DeleteTask(id string) []string {
	if b.taskIndex(id) < 0 {
		return nil
	}
	removed := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, t := range b.Tasks {
			if t.ParentID == parent && !removed[t.ID] {
				removed[t.ID] = true
				queue = append(queue, t.ID)
			}
		}
	}

	kept := b.Tasks[:0]
	ids := make([]string, 0, len(removed))
	for _, t := range b.Tasks {
		if removed[t.ID] {
			ids = append(ids, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	b.Tasks = kept
	return ids
}

// MoveTask changes the status of a task and, when parentID is non-nil, its
// parent ("" makes it a root task). It returns the previous status.
func (b *Board) MoveTask(id, status string, parentID *string, now time.Time) (string, error) {
	i := b.taskIndex(id)
	if i < 0 {
		return "", ErrTaskNotFound
	}
	if parentID != nil && *parentID != b.Tasks[i].ParentID && b.wouldCycle(id, *parentID) {
		return "", ErrParentCycle
	}
	from := b.Tasks[i].Status
	b.Tasks[i].SetStatus(status, now)
	if parentID != nil {
		b.Tasks[i].ParentID = *parentID
	}
	return from, nil
}

// wouldCycle reports whether placing id under parentID creates a cycle.
func (b *Board) wouldCycle(id, parentID string) bool {
	seen := map[string]bool{}
	for cur := parentID; cur != ""; {
		if cur == id {
			return true
		}
		if seen[cur] {
			// pre-existing cycle in replicated data; stop walking
			return true
		}
		seen[cur] = true
		p, ok := b.Task(cur)
		if !ok {
			return false
		}
		cur = p.ParentID
	}
	return false
}

// IsRoot reports whether t renders at the top level of its column. A task
// whose parent no longer exists is treated as a root task.
func (b *Board) IsRoot(t Task) bool {
	if t.ParentID == "" {
		return true
	}
	_, ok := b.Task(t.ParentID)
	return !ok
}

// RootTasks returns the top-level tasks of a column.
func (b *Board) RootTasks(status string) []Task {
	var out []Task
	for _, t := range b.Tasks {
		if t.Status == status && b.IsRoot(t) {
			out = append(out, t)
		}
	}
	return out
}

// Children returns the direct subtasks of id.
func (b *Board) Children(id string) []Task {
	var out []Task
	for _, t := range b.Tasks {
		if t.ParentID == id && t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// TaskNode is a task with its nested subtasks, used for rendering.
type TaskNode struct {
	Task     Task
	Children []TaskNode
}

// Tree returns the nested task tree for a column.
func (b *Board) Tree(status string) []TaskNode {
	roots := b.RootTasks(status)
	nodes := make([]TaskNode, 0, len(roots))
	for _, r := range roots {
		nodes = append(nodes, b.subtree(r, map[string]bool{}))
	}
	return nodes
}

func (b *Board) subtree(t Task, visiting map[string]bool) TaskNode {
	visiting[t.ID] = true
	node := TaskNode{Task: t}
	for _, c := range b.Children(t.ID) {
		if visiting[c.ID] {
			continue
		}
		node.Children = append(node.Children, b.subtree(c, visiting))
	}
	return node
}

// Column returns the column with the given status.
func (b *Board) Column(status string) (Column, bool) {
	for _, c := range b.Columns {
		if c.Status == status {
			return c, true
		}
	}
	return Column{}, false
}

// SortedColumns returns the columns in display order.
func (b *Board) SortedColumns() []Column {
	out := append([]Column(nil), b.Columns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// AddColumn appends a column whose status and id are derived from title.
func (b *Board) AddColumn(title string) (Column, error) {
	status := StatusFromTitle(title)
	if status == "" {
		return Column{}, ErrColumnNotFound
	}
	if _, ok := b.Column(status); ok {
		return Column{}, ErrDuplicateStatus
	}
	order := 0
	for _, c := range b.Columns {
		if c.Order >= order {
			order = c.Order + 1
		}
	}
	col := Column{ID: status, Title: title, Status: status, Order: order}
	b.Columns = append(b.Columns, col)
	return col, nil
}

// RenameColumn changes the title of a column; the status key is kept.
func (b *Board) RenameColumn(status, title string) error {
	for i := range b.Columns {
		if b.Columns[i].Status == status {
			b.Columns[i].Title = title
			return nil
		}
	}
	return ErrColumnNotFound
}

// DeleteColumn removes a column and moves its tasks to the first remaining
// column in display order.
func (b *Board) DeleteColumn(status string) error {
	if _, ok := b.Column(status); !ok {
		return ErrColumnNotFound
	}
	if len(b.Columns) <= 1 {
		return ErrLastColumn
	}
	kept := make([]Column, 0, len(b.Columns)-1)
	for _, c := range b.Columns {
		if c.Status != status {
			kept = append(kept, c)
		}
	}
	b.Columns = kept
	target := b.SortedColumns()[0].Status
	for i := range b.Tasks {
		if b.Tasks[i].Status == status {
			b.Tasks[i].Status = target
		}
	}
	return nil
}

// AddLabel appends a label unless it is already present.
func (b *Board) AddLabel(label string) error {
	for _, l := range b.Labels {
		if l == label {
			return ErrLabelExists
		}
	}
	b.Labels = append(b.Labels, label)
	return nil
}

// DeleteLabel removes a label. Tasks keep their label string.
func (b *Board) DeleteLabel(label string) bool {
	for i, l := range b.Labels {
		if l == label {
			b.Labels = append(b.Labels[:i], b.Labels[i+1:]...)
			return true
		}
	}
	return false
}

// SweepStale removes done-like tasks whose DoneSince is older than
// retention and returns the removed tasks.
func (b *Board) SweepStale(now time.Time, retention time.Duration) []Task {
	cutoff := now.Add(-retention)
	var removed []Task
	kept := b.Tasks[:0]
	for _, t := range b.Tasks {
		if IsDoneStatus(t.Status) && t.DoneSince().Before(cutoff) {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	b.Tasks = kept
	return removed
}
