package model

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the ISO-8601 form, always with milliseconds, used for
// every timestamp the service hands out.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DocumentName identifies one of the two persisted configuration documents.
type DocumentName string

const (
	Setup   DocumentName = "setup"
	Company DocumentName = "company"
)

// Entity collections of the company document, keyed by each element's "id".
const (
	CollectionMachines        = "machines"
	CollectionCycles          = "cycles"
	CollectionToolCategories  = "toolCategories"
	CollectionValidationRules = "validationRules"
)

// Collections lists every collection that supports entity operations.
var Collections = []string{
	CollectionMachines,
	CollectionCycles,
	CollectionToolCategories,
	CollectionValidationRules,
}

func IsCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// BackupRecord describes one backup file. It is derived from the filename
// and a stat of the file, never stored.
type BackupRecord struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
}

func (b BackupRecord) MarshalJSON() ([]byte, error) {
	type record BackupRecord
	return json.Marshal(struct {
		record
		Timestamp string `json:"timestamp"`
	}{record(b), b.Timestamp.UTC().Format(TimestampLayout)})
}

type SaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
	Backup  string `json:"backup,omitempty"`
}

type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	FirstTimeSetup bool   `json:"firstTimeSetup,omitempty"`
}

type BackupListResponse struct {
	Success bool           `json:"success"`
	Backups []BackupRecord `json:"backups"`
}

type DeleteBackupsRequest struct {
	Filenames []string `json:"filenames"`
}

type DeleteResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type DeleteBackupsResponse struct {
	Success      bool           `json:"success"`
	Results      []DeleteResult `json:"results"`
	DeletedCount int            `json:"deletedCount"`
	Message      string         `json:"message"`
}

type EntityResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Backup     string `json:"backup,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// SaveResult is what the service reports after a document write. Backup is
// empty when no prior version existed or the backup attempt failed.
type SaveResult struct {
	Path   string
	Backup string
}

// ResetResult names the archive taken before the document was removed, if
// any. Existed is false when there was nothing to remove.
type ResetResult struct {
	Archive string
	Existed bool
}

type EntityResult struct {
	ID     string
	Path   string
	Backup string
}
