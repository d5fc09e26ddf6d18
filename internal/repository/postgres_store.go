package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"kanbansync/internal/model"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document: одна запись в таблице documents: путь и JSON-значение.
type Document struct {
	Path      string `gorm:"primaryKey"`
	Data      string `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (Document) TableName() string { return "documents" }

// PostgresStore keeps documents in one table. Subscribe polls the revision row.
type PostgresStore struct {
	db           *gorm.DB
	logger       log.FieldLogger
	pollInterval time.Duration
}

func NewPostgresStore(db *gorm.DB, logger log.FieldLogger, pollInterval time.Duration) *PostgresStore {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &PostgresStore{db: db, logger: logger, pollInterval: pollInterval}
}

// Migrate creates the documents table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Document{})
}

func upsert(tx *gorm.DB, doc *Document) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(doc).Error
}

// Save writes the board and the next revision stamp in one transaction.
// The revision row is locked so concurrent writers get distinct stamps.
func (s *PostgresStore) Save(ctx context.Context, b model.Board, writer string) (Revision, error) {
	var rev Revision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		var doc Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("path = ?", revisionDoc).Take(&doc).Error
		switch {
		case err == nil:
			if last, err = strconv.ParseInt(doc.Data, 10, 64); err != nil {
				return fmt.Errorf("parse revision: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rev = Revision{Writer: writer, Stamp: last + 1}
		data, err := sonic.ConfigStd.MarshalToString(Snapshot{Board: normalize(b), Revision: rev})
		if err != nil {
			return fmt.Errorf("encode board: %w", err)
		}
		now := time.Now()
		if err := upsert(tx, &Document{Path: boardDoc, Data: data, UpdatedAt: now}); err != nil {
			return err
		}
		return upsert(tx, &Document{Path: revisionDoc, Data: strconv.FormatInt(rev.Stamp, 10), UpdatedAt: now})
	})
	if err != nil {
		return Revision{}, fmt.Errorf("postgres save board: %w", err)
	}
	return rev, nil
}

func (s *PostgresStore) load(ctx context.Context, path string) (*Document, error) {
	var doc Document
	if err := s.db.WithContext(ctx).Where("path = ?", path).Take(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	doc, err := s.load(ctx, boardDoc)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.UnmarshalFromString(doc.Data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode board: %w", err)
	}
	return snap, nil
}

// LatestStamp returns the revision stamp written by the latest Save.
func (s *PostgresStore) LatestStamp(ctx context.Context) (int64, error) {
	doc, err := s.load(ctx, revisionDoc)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(doc.Data, 10, 64)
}

// Subscribe polls the revision stamp and reports the board whenever it moves.
func (s *PostgresStore) Subscribe(ctx context.Context, onChange func(Snapshot)) error {
	seen, _ := s.LatestStamp(ctx)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		stamp, err := s.LatestStamp(ctx)
		if err != nil {
			if !errors.Is(err, ErrDocumentNotFound) && ctx.Err() == nil {
				s.logger.WithError(err).Warn("⚠️  Failed to poll revision")
			}
			continue
		}
		if stamp == seen {
			continue
		}
		snap, err := s.Load(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("⚠️  Remote change without a readable board")
			continue
		}
		seen = stamp
		onChange(snap)
	}
}
