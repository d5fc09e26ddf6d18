package repository

import "errors"

// Common repository errors
var (
	// ErrDocumentNotFound is returned when a document path has never been written
	ErrDocumentNotFound = errors.New("document not found")
)
