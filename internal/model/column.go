package model

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrLastColumn      = errors.New("at least one column must exist")
	ErrDuplicateStatus = errors.New("column status already exists")
)

type Column struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Order  int    `json:"order"`
}

var whitespace = regexp.MustCompile(`\s+`)

// StatusFromTitle derives a column status key from its title: "In Review" -> "in-review".
func StatusFromTitle(title string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
}

// DefaultColumns seeds a board on first run. Extended adds the
// backlog/review/testing variants used by the translation team board.
func DefaultColumns(extended bool) []Column {
	columns := []Column{
		{ID: "todo", Title: "To Do", Status: "todo"},
		{ID: "in-progress", Title: "In Progress", Status: "in-progress"},
		{ID: "done", Title: "Done", Status: "done"},
	}
	if extended {
		columns = append(columns,
			Column{ID: "backlog", Title: "Backlog", Status: "backlog"},
			Column{ID: "review", Title: "Review", Status: "review"},
			Column{ID: "testing", Title: "Testing", Status: "testing"},
		)
	}
	for i := range columns {
		columns[i].Order = i
	}
	return columns
}
