package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"brkdash/internal/audit"
	"brkdash/internal/configdoc/model"
	"brkdash/internal/configdoc/repository"
	"brkdash/internal/events"
	"brkdash/internal/mirror"
	"brkdash/pkg/logger"
)

// SavedBy is the tag stamped into every setup document this service writes.
const SavedBy = "Dashboard"

// Options wires the optional side effects. Nil fields mean "disabled".
type Options struct {
	Publisher events.Publisher
	Audit     audit.Recorder
	Mirror    mirror.Mirror
	Now       func() time.Time
}

// ConfigService owns the two configuration documents. Mutations of one
// document are serialised inside the process; concurrent writers across
// processes still race and the last write wins.
type ConfigService struct {
	Repo      *repository.FileRepository
	Publisher events.Publisher
	Audit     audit.Recorder
	Mirror    mirror.Mirror
	Now       func() time.Time

	locks map[model.DocumentName]*sync.Mutex
}

func NewConfigService(repo *repository.FileRepository, opts Options) *ConfigService {
	s := &ConfigService{
		Repo:      repo,
		Publisher: opts.Publisher,
		Audit:     opts.Audit,
		Mirror:    opts.Mirror,
		Now:       opts.Now,
		locks: map[model.DocumentName]*sync.Mutex{
			model.Setup:   {},
			model.Company: {},
		},
	}
	if s.Publisher == nil {
		s.Publisher = &events.NoopPublisher{}
	}
	if s.Mirror == nil {
		s.Mirror = mirror.NoopMirror{}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

func (s *ConfigService) lock(doc model.DocumentName) func() {
	mu := s.locks[doc]
	mu.Lock()
	return mu.Unlock
}

func (s *ConfigService) LoadSetup(ctx context.Context) (json.RawMessage, error) {
	return s.load(model.Setup)
}

func (s *ConfigService) LoadCompany(ctx context.Context) (json.RawMessage, error) {
	return s.load(model.Company)
}

func (s *ConfigService) load(doc model.DocumentName) (json.RawMessage, error) {
	data, err := s.Repo.Read(doc)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Sugar.Infof("No %s config at %s, first time setup required", doc, s.Repo.PathOf(doc))
		}
		return nil, err
	}
	if !json.Valid(data) {
		logger.Sugar.Errorf("Failed to parse %s config %s", doc, s.Repo.PathOf(doc))
		return nil, fmt.Errorf("%w: %s is not valid JSON", model.ErrReadFailure, s.Repo.PathOf(doc))
	}
	return data, nil
}

// SaveSetup stamps savedAt and savedBy into body and writes it.
func (s *ConfigService) SaveSetup(ctx context.Context, body []byte) (model.SaveResult, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return model.SaveResult{}, err
	}

	now := s.Now().UTC()
	fields["savedAt"], _ = json.Marshal(now.Format(model.TimestampLayout))
	fields["savedBy"], _ = json.Marshal(SavedBy)

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return model.SaveResult{}, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}

	unlock := s.lock(model.Setup)
	path, err := s.Repo.Write(model.Setup, data)
	unlock()
	if err != nil {
		return model.SaveResult{}, err
	}

	logger.Sugar.Infof("Setup config saved to %s", path)
	s.publish(ctx, events.TopicConfigSaved, events.ConfigSaved{Document: string(model.Setup), Path: path, At: now})
	s.record(ctx, audit.OpSave, model.Setup, "")
	return model.SaveResult{Path: path}, nil
}

// ResetSetup archives the setup document and removes it. Archiving is best
// effort and a missing document is not an error.
func (s *ConfigService) ResetSetup(ctx context.Context) (model.ResetResult, error) {
	return s.reset(ctx, model.Setup, s.Repo.Paths.ArchiveDir)
}

// SaveCompany backs up the current company document, then writes body
// indented but otherwise as given.
func (s *ConfigService) SaveCompany(ctx context.Context, body []byte) (model.SaveResult, error) {
	if _, err := decodeObject(body); err != nil {
		return model.SaveResult{}, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		return model.SaveResult{}, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}

	unlock := s.lock(model.Company)
	res, backup, err := s.writeCompany(buf.Bytes())
	unlock()

	s.afterBackup(ctx, model.Company, backup)
	if err != nil {
		return model.SaveResult{}, err
	}

	logger.Sugar.Infof("Company config saved to %s", res.Path)
	s.publish(ctx, events.TopicConfigSaved, events.ConfigSaved{
		Document: string(model.Company), Path: res.Path, Backup: res.Backup, At: s.Now().UTC(),
	})
	s.record(ctx, audit.OpSave, model.Company, res.Backup)
	return res, nil
}

// ResetCompany backs up the company document into the backups directory and
// removes it.
func (s *ConfigService) ResetCompany(ctx context.Context) (model.ResetResult, error) {
	return s.reset(ctx, model.Company, s.Repo.Paths.BackupsDir)
}

// writeCompany is the two-phase save: a best-effort backup of the current
// file, then the write, which is attempted whatever the backup outcome.
// Callers hold the company lock.
func (s *ConfigService) writeCompany(data []byte) (model.SaveResult, *model.BackupRecord, error) {
	var backup *model.BackupRecord
	rec, err := s.Repo.Snapshot(model.Company, s.Repo.Paths.BackupsDir, s.Now())
	switch {
	case err == nil:
		logger.Sugar.Infof("Company config backed up to %s", rec.Path)
		backup = &rec
	case errors.Is(err, model.ErrNotFound):
		// First save, nothing to preserve.
	default:
		logger.Sugar.Warnf("Failed to backup company config: %v", err)
	}

	path, err := s.Repo.Write(model.Company, data)
	if err != nil {
		return model.SaveResult{}, backup, err
	}
	res := model.SaveResult{Path: path}
	if backup != nil {
		res.Backup = backup.Filename
	}
	return res, backup, nil
}

func (s *ConfigService) reset(ctx context.Context, doc model.DocumentName, archiveDir string) (model.ResetResult, error) {
	var res model.ResetResult
	var archive *model.BackupRecord

	unlock := s.lock(doc)
	rec, err := s.Repo.Snapshot(doc, archiveDir, s.Now())
	switch {
	case err == nil:
		logger.Sugar.Infof("Config archived to %s", rec.Path)
		archive = &rec
		res.Archive = rec.Filename
	case errors.Is(err, model.ErrNotFound):
	default:
		logger.Sugar.Warnf("Failed to archive %s config: %v", doc, err)
	}

	err = s.Repo.Remove(doc)
	unlock()

	s.afterBackup(ctx, doc, archive)
	switch {
	case err == nil:
		res.Existed = true
	case errors.Is(err, model.ErrNotFound):
		logger.Sugar.Infof("%s config already reset", doc)
	default:
		return res, err
	}

	s.publish(ctx, events.TopicConfigReset, events.ConfigReset{Document: string(doc), Archive: res.Archive, At: s.Now().UTC()})
	s.record(ctx, audit.OpReset, doc, res.Archive)
	return res, nil
}

// ListBackups returns the company backups, newest first.
func (s *ConfigService) ListBackups(ctx context.Context) ([]model.BackupRecord, error) {
	return s.Repo.ListBackups()
}

// OpenBackup opens one company backup for download. The caller closes it.
func (s *ConfigService) OpenBackup(ctx context.Context, name string) (*os.File, model.BackupRecord, error) {
	return s.Repo.OpenBackup(name)
}

// DeleteBackups removes each named backup independently. A bad or missing
// name fails only its own entry.
func (s *ConfigService) DeleteBackups(ctx context.Context, names []string) (model.DeleteBackupsResponse, error) {
	if len(names) == 0 {
		return model.DeleteBackupsResponse{}, fmt.Errorf("%w: no filenames provided", model.ErrInvalidRequest)
	}

	resp := model.DeleteBackupsResponse{Results: make([]model.DeleteResult, 0, len(names))}
	var deleted []string
	for _, name := range names {
		result := model.DeleteResult{Filename: name}
		err := s.Repo.DeleteBackup(name)
		switch {
		case err == nil:
			result.Success = true
			deleted = append(deleted, name)
		case errors.Is(err, model.ErrInvalidName):
			result.Error = "invalid filename"
		case errors.Is(err, model.ErrNotFound):
			result.Error = "backup file not found"
		default:
			result.Error = "failed to delete backup"
		}
		resp.Results = append(resp.Results, result)
	}

	resp.DeletedCount = len(deleted)
	resp.Success = resp.DeletedCount == len(names)
	resp.Message = fmt.Sprintf("Deleted %d of %d backup(s)", resp.DeletedCount, len(names))
	logger.Sugar.Infof("%s", resp.Message)

	if len(deleted) > 0 {
		s.publish(ctx, events.TopicBackupsDeleted, events.BackupsDeleted{Filenames: deleted, At: s.Now().UTC()})
		for _, name := range deleted {
			s.record(ctx, audit.OpBackupsDelete, model.Company, name)
		}
	}
	return resp, nil
}

// afterBackup mirrors a freshly written backup or archive and announces it.
func (s *ConfigService) afterBackup(ctx context.Context, doc model.DocumentName, rec *model.BackupRecord) {
	if rec == nil {
		return
	}
	s.publish(ctx, events.TopicBackupCreated, events.BackupCreated{
		Document: string(doc), Filename: rec.Filename, Size: rec.Size, At: rec.Timestamp,
	})

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		logger.Sugar.Warnf("Failed to read backup %s for mirroring: %v", rec.Path, err)
		return
	}
	if err := s.Mirror.Put(ctx, string(doc), rec.Filename, data); err != nil {
		logger.Sugar.Warnf("Failed to mirror backup %s: %v", rec.Filename, err)
	}
}

func (s *ConfigService) publish(ctx context.Context, topic string, event any) {
	if err := s.Publisher.Publish(ctx, topic, event); err != nil {
		logger.Sugar.Warnf("Failed to publish %s: %v", topic, err)
	}
}

func (s *ConfigService) record(ctx context.Context, op string, doc model.DocumentName, detail string) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, audit.Entry{Operation: op, Document: string(doc), Detail: detail}); err != nil {
		logger.Sugar.Warnf("Failed to record audit entry %s: %v", op, err)
	}
}

// decodeObject accepts only a JSON object.
func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", model.ErrInvalidRequest)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", model.ErrInvalidRequest)
	}
	return fields, nil
}
