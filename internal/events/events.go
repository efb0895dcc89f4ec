package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicConfigSaved    = "brk.config.saved"
	TopicConfigReset    = "brk.config.reset"
	TopicBackupCreated  = "brk.backup.created"
	TopicBackupsDeleted = "brk.backups.deleted"
	TopicEntityChanged  = "brk.entity.changed"

	// TopicAll matches every topic above on NATS.
	TopicAll = "brk.>"
)

// Event types

type ConfigSaved struct {
	Document string    `json:"document"`
	Path     string    `json:"path"`
	Backup   string    `json:"backup,omitempty"`
	At       time.Time `json:"at"`
}

type ConfigReset struct {
	Document string    `json:"document"`
	Archive  string    `json:"archive,omitempty"`
	At       time.Time `json:"at"`
}

type BackupCreated struct {
	Document string    `json:"document"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	At       time.Time `json:"at"`
}

type BackupsDeleted struct {
	Filenames []string  `json:"filenames"`
	At        time.Time `json:"at"`
}

type EntityChanged struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Action     string    `json:"action"` // added, updated or deleted
	At         time.Time `json:"at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
