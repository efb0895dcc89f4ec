// Package audit keeps a Postgres ledger of every mutation made to the
// configuration documents and their backups.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"brkdash/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

const (
	idPrefix   = "au-"
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idLength   = 10

	defaultListLimit = 100
	maxListLimit     = 500
)

// Operations recorded in the ledger.
const (
	OpSave          = "save"
	OpReset         = "reset"
	OpBackupsDelete = "backups.delete"
	OpEntityAdd     = "entity.add"
	OpEntityUpdate  = "entity.update"
	OpEntityDelete  = "entity.delete"
)

type Entry struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Document  string    `json:"document"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder appends entries to the ledger.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Repository struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db, Now: time.Now}
}

// NewID returns a fresh ledger id such as "au-3kTMd92jxQ".
func NewID() (string, error) {
	id, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("generating audit id: %w", err)
	}
	return idPrefix + id, nil
}

// Record stores e, assigning an id and timestamp when they are unset.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		e.ID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.Now().UTC()
	}

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO config_audit (id, operation, document, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Operation, e.Document, e.Detail, e.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to record audit entry %s: %v", e.Operation, err)
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// List returns the most recent entries first. limit is clamped to
// (0, 500]; zero or negative means 100.
func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, operation, document, detail, created_at FROM config_audit ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		logger.Sugar.Errorf("Failed to list audit entries: %v", err)
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Document, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return entries, nil
}
