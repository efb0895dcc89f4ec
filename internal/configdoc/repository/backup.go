package repository

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"brkdash/internal/configdoc/model"
)

const (
	backupMarker = ".backup_"
	backupExt    = ".json"
	tokenLayout  = "2006-01-02T15:04:05.000Z"
)

var (
	tokenReplacer = strings.NewReplacer(":", "-", ".", "-")
	tokenPattern  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2})-(\d{2})-(\d{2})-(\d{3})Z$`)
)

// FormatToken encodes t as a filesystem-safe timestamp token: the UTC
// ISO-8601 form with millisecond precision and ':' and '.' replaced by '-'.
func FormatToken(t time.Time) string {
	return tokenReplacer.Replace(t.UTC().Format(tokenLayout))
}

// ParseToken reverses FormatToken. It reports false for anything that is not
// a well-formed token.
func ParseToken(token string) (time.Time, bool) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return time.Time{}, false
	}
	n := make([]int, len(m)-1)
	for i, s := range m[1:] {
		v, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, false
		}
		n[i] = v
	}
	t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], n[6]*int(time.Millisecond), time.UTC)
	// time.Date normalises out-of-range fields; reject those instead.
	if FormatToken(t) != token {
		return time.Time{}, false
	}
	return t, true
}

// Stem returns the filename of path without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BackupPrefix is the filename prefix every backup of the document at path
// carries.
func BackupPrefix(path string) string {
	return Stem(path) + backupMarker
}

// BackupName builds "<stem>.backup_<token>.json" for the document at path.
func BackupName(path string, t time.Time) string {
	return BackupPrefix(path) + FormatToken(t) + backupExt
}

// ValidateBackupName accepts only bare filenames of the form
// "<prefix>*.json". It must pass before name is joined to any directory.
func ValidateBackupName(prefix, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", model.ErrInvalidName)
	case strings.ContainsAny(name, "/\\\x00"), strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	case !strings.HasPrefix(name, prefix), !strings.HasSuffix(name, backupExt):
		return fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	case len(name) < len(prefix)+len(backupExt):
		return fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	}
	return nil
}

// tokenOf extracts the timestamp token from a validated backup filename.
func tokenOf(prefix, name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), backupExt)
}
