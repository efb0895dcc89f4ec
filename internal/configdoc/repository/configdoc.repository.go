package repository

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"brkdash/internal/configdoc/model"
	"brkdash/pkg/logger"
)

// maxSnapshotAttempts bounds how many 1ms-later names Snapshot tries when a
// backup with the same timestamp already exists.
const maxSnapshotAttempts = 50

// Paths locates both documents and their snapshot directories.
type Paths struct {
	SetupConfig   string
	CompanyConfig string
	ArchiveDir    string
	BackupsDir    string
}

// FileRepository persists the two configuration documents as JSON files.
type FileRepository struct {
	Paths Paths
}

func NewFileRepository(paths Paths) *FileRepository {
	return &FileRepository{Paths: paths}
}

// PathOf returns the file backing doc.
func (r *FileRepository) PathOf(doc model.DocumentName) string {
	if doc == model.Setup {
		return r.Paths.SetupConfig
	}
	return r.Paths.CompanyConfig
}

func (r *FileRepository) Read(doc model.DocumentName) ([]byte, error) {
	path := r.PathOf(doc)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrNoDocument, path)
		}
		logger.Sugar.Errorf("Failed to read %s config %s: %v", doc, path, err)
		return nil, fmt.Errorf("%w: %v", model.ErrReadFailure, err)
	}
	return data, nil
}

// Write replaces the file backing doc with data. The content goes to a temp
// file in the same directory which is synced and renamed into place, so
// readers see either the old or the new document.
func (r *FileRepository) Write(doc model.DocumentName, data []byte) (string, error) {
	path := r.PathOf(doc)
	dir := filepath.Dir(path)

	// Lenient: if the directory really is missing the write below fails.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Sugar.Warnf("Failed to create config directory %s: %v", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		logger.Sugar.Errorf("Failed to write %s config %s: %v", doc, path, err)
		return "", fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		os.Remove(tmpName)
		logger.Sugar.Errorf("Failed to write %s config %s: %v", doc, path, err)
		return "", fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		logger.Sugar.Warnf("Failed to set permissions on %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		logger.Sugar.Errorf("Failed to replace %s config %s: %v", doc, path, err)
		return "", fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}

	return absPath(path), nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Snapshot copies the current file of doc into dir as
// "<stem>.backup_<token>.json". An existing backup is never overwritten: on a
// name collision the timestamp moves forward by a millisecond. ErrNotFound
// means there was nothing to copy.
func (r *FileRepository) Snapshot(doc model.DocumentName, dir string, now time.Time) (model.BackupRecord, error) {
	src := r.PathOf(doc)
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.BackupRecord{}, fmt.Errorf("%w: %s", model.ErrNoDocument, src)
		}
		return model.BackupRecord{}, fmt.Errorf("%w: %v", model.ErrReadFailure, err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.BackupRecord{}, fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}

	ts := now.UTC().Truncate(time.Millisecond)
	for attempt := 0; attempt < maxSnapshotAttempts; attempt++ {
		name := BackupName(src, ts)
		dst := filepath.Join(dir, name)

		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			ts = ts.Add(time.Millisecond)
			continue
		}
		if err != nil {
			return model.BackupRecord{}, fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
		}

		size, err := io.Copy(out, in)
		if err == nil {
			err = out.Sync()
		}
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
			return model.BackupRecord{}, fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
		}

		return model.BackupRecord{Filename: name, Timestamp: ts, Size: size, Path: absPath(dst)}, nil
	}
	return model.BackupRecord{}, fmt.Errorf("%w: no free backup name after %d attempts", model.ErrWriteFailure, maxSnapshotAttempts)
}

func (r *FileRepository) Remove(doc model.DocumentName) error {
	path := r.PathOf(doc)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrNoDocument, path)
		}
		logger.Sugar.Errorf("Failed to delete %s config %s: %v", doc, path, err)
		return fmt.Errorf("%w: %v", model.ErrResetFailure, err)
	}
	return nil
}

func (r *FileRepository) backupPrefix() string {
	return BackupPrefix(r.Paths.CompanyConfig)
}

// ListBackups returns the company document backups, newest first. A missing
// backups directory yields an empty list.
func (r *FileRepository) ListBackups() ([]model.BackupRecord, error) {
	dir := r.Paths.BackupsDir
	backups := []model.BackupRecord{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return backups, nil
		}
		logger.Sugar.Errorf("Failed to list backups in %s: %v", dir, err)
		return nil, fmt.Errorf("%w: %v", model.ErrReadFailure, err)
	}

	prefix := r.backupPrefix()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || ValidateBackupName(prefix, name) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and stat.
			continue
		}
		backups = append(backups, recordFor(dir, prefix, name, info))
	}

	sort.Slice(backups, func(i, j int) bool {
		a, b := backups[i], backups[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Filename > b.Filename
	})
	return backups, nil
}

// OpenBackup validates name and opens the backup for streaming. The caller
// closes the file.
func (r *FileRepository) OpenBackup(name string) (*os.File, model.BackupRecord, error) {
	prefix := r.backupPrefix()
	if err := ValidateBackupName(prefix, name); err != nil {
		return nil, model.BackupRecord{}, err
	}

	path := filepath.Join(r.Paths.BackupsDir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.BackupRecord{}, fmt.Errorf("%w: %s", model.ErrNotFound, name)
		}
		logger.Sugar.Errorf("Failed to open backup %s: %v", path, err)
		return nil, model.BackupRecord{}, fmt.Errorf("%w: %v", model.ErrReadFailure, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, model.BackupRecord{}, fmt.Errorf("%w: %v", model.ErrReadFailure, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, model.BackupRecord{}, fmt.Errorf("%w: %s", model.ErrNotFound, name)
	}
	return f, recordFor(r.Paths.BackupsDir, prefix, name, info), nil
}

// DeleteBackup validates name and unlinks the backup.
func (r *FileRepository) DeleteBackup(name string) error {
	if err := ValidateBackupName(r.backupPrefix(), name); err != nil {
		return err
	}
	path := filepath.Join(r.Paths.BackupsDir, name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrNotFound, name)
		}
		logger.Sugar.Errorf("Failed to delete backup %s: %v", path, err)
		return fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}
	return nil
}

func recordFor(dir, prefix, name string, info fs.FileInfo) model.BackupRecord {
	ts, ok := ParseToken(tokenOf(prefix, name))
	if !ok {
		ts = info.ModTime().UTC()
	}
	return model.BackupRecord{
		Filename:  name,
		Timestamp: ts,
		Size:      info.Size(),
		Path:      absPath(filepath.Join(dir, name)),
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
