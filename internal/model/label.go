package model

import "errors"

var ErrLabelNotFound = errors.New("label not found")

// DefaultLabels seeds the label list on first run.
func DefaultLabels() []string {
	return []string{"Баг", "Фича", "Проект X"}
}
