package repository

import (
	"context"

	"kanbansync/internal/model"
)

const (
	documentRoot = "projects/default/"
	boardDoc     = documentRoot + "board"
	revisionDoc  = documentRoot + "revision"
)

// Revision identifies one board write. Stamp is a store-wide sequence
// number, so a larger stamp is always a later write.
type Revision struct {
	Writer string `json:"writer"`
	Stamp  int64  `json:"stamp"`
}

// Newer reports whether r was written after other.
func (r Revision) Newer(other Revision) bool { return r.Stamp > other.Stamp }

// Snapshot is the stored board together with the write that produced it.
type Snapshot struct {
	model.Board
	Revision Revision `json:"revision"`
}

// DocumentStore is the remote replica of the board: one overwrite-on-save
// document plus a change feed.
type DocumentStore interface {
	// Save stores b as a single document and announces it once.
	Save(ctx context.Context, b model.Board, writer string) (Revision, error)
	// Load returns ErrDocumentNotFound until the first Save.
	Load(ctx context.Context) (Snapshot, error)
	// Subscribe calls onChange with the stored snapshot after every remote
	// write until ctx is cancelled.
	Subscribe(ctx context.Context, onChange func(Snapshot)) error
}

func normalize(b model.Board) model.Board {
	if b.Tasks == nil {
		b.Tasks = []model.Task{}
	}
	if b.Columns == nil {
		b.Columns = []model.Column{}
	}
	return b
}
