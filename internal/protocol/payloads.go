package protocol

import "kanbansync/internal/model"

type ClientType string

const (
	ClientBrowser ClientType = "browser"
	ClientMiniApp ClientType = "miniApp"
)

// ParseClientType maps the connect-time query parameter to a role.
// Anything other than "miniApp" is a browser client.
func ParseClientType(s string) ClientType {
	if ClientType(s) == ClientMiniApp {
		return ClientMiniApp
	}
	return ClientBrowser
}

// ConnectionEstablished is sent by the relay right after accept.
type ConnectionEstablished struct {
	ClientID   string     `json:"clientId"`
	ClientType ClientType `json:"clientType"`
	Message    string     `json:"message,omitempty"`
}

// TaskChange is the payload of TASK_CREATED, TASK_UPDATED, TASK_DELETED and TASK_MOVED.
type TaskChange struct {
	TaskID     string      `json:"taskId"`
	Task       *model.Task `json:"task,omitempty"`
	FromStatus string      `json:"fromStatus,omitempty"`
	ToStatus   string      `json:"toStatus,omitempty"`
	ParentID   *string     `json:"parentId,omitempty"`
}

// SyncData is the SYNC_DATA payload. Nil Tasks or Columns means the field
// was absent on the wire, and the snapshot must not be applied.
type SyncData struct {
	Tasks   []model.Task   `json:"tasks"`
	Columns []model.Column `json:"columns"`
	Labels  []string       `json:"labels,omitempty"`
}

// Complete reports whether both collections were present.
func (s SyncData) Complete() bool { return s.Tasks != nil && s.Columns != nil }

// Board converts the payload to a board document.
func (s SyncData) Board() model.Board {
	return model.Board{Tasks: s.Tasks, Columns: s.Columns, Labels: s.Labels}
}

// SyncDataFrom builds a payload from a board, never emitting null collections.
func SyncDataFrom(b model.Board) SyncData {
	s := SyncData{Tasks: b.Tasks, Columns: b.Columns, Labels: b.Labels}
	if s.Tasks == nil {
		s.Tasks = []model.Task{}
	}
	if s.Columns == nil {
		s.Columns = []model.Column{}
	}
	return s
}

// ColumnStatusRequest is the REQUEST_COLUMN_STATUS payload.
type ColumnStatusRequest struct {
	ColumnStatus string `json:"columnStatus"`
}

type ColumnSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	TaskCount int    `json:"taskCount"`
}

// StatusResponse is the STATUS_RESPONSE payload.
type StatusResponse struct {
	Columns []ColumnSummary `json:"columns"`
	Labels  []string        `json:"labels,omitempty"`
}

type TaskBrief struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Priority    model.Priority `json:"priority"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
}

type ColumnDetail struct {
	ColumnSummary
	Tasks []TaskBrief `json:"tasks"`
}

// ColumnStatusResponse is the COLUMN_STATUS_RESPONSE payload.
type ColumnStatusResponse struct {
	Column ColumnDetail `json:"column"`
}

// BuildStatus summarizes root-task counts per column in display order.
func BuildStatus(b *model.Board) StatusResponse {
	cols := b.SortedColumns()
	resp := StatusResponse{Columns: make([]ColumnSummary, 0, len(cols)), Labels: b.Labels}
	for _, c := range cols {
		resp.Columns = append(resp.Columns, ColumnSummary{
			ID:        c.ID,
			Title:     c.Title,
			Status:    c.Status,
			TaskCount: len(b.RootTasks(c.Status)),
		})
	}
	return resp
}

// BuildColumnStatus lists the root tasks of one column.
func BuildColumnStatus(b *model.Board, status string) (ColumnStatusResponse, bool) {
	col, ok := b.Column(status)
	if !ok {
		return ColumnStatusResponse{}, false
	}
	roots := b.RootTasks(status)
	detail := ColumnDetail{
		ColumnSummary: ColumnSummary{ID: col.ID, Title: col.Title, Status: col.Status, TaskCount: len(roots)},
		Tasks:         make([]TaskBrief, 0, len(roots)),
	}
	for _, t := range roots {
		detail.Tasks = append(detail.Tasks, TaskBrief{
			ID:          t.ID,
			Title:       t.Title,
			Priority:    t.Priority,
			Label:       t.Label,
			Description: t.Description,
		})
	}
	return ColumnStatusResponse{Column: detail}, true
}
