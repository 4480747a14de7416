// Package archive persists passed messages as plain-text records, one
// file per message, named by receive time and UID.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Metadata is the header-level information written ahead of the body.
type Metadata struct {
	Date          time.Time
	From          string
	Subject       string
	HasAttachment bool
}

// Writer writes archive records into a single directory. The lifecycle
// of the directory is owned by the caller.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Archive writes one message record and returns the file path. The file
// stem is derived from the message date (falling back to now) and the
// UID; runes unsafe in filenames are replaced with underscores.
func (w *Writer) Archive(uid uint32, meta Metadata, body string) (string, error) {
	date := meta.Date
	if date.IsZero() {
		date = time.Now()
	}

	stem := sanitizeStem(fmt.Sprintf("%s_UID%d", date.Format("20060102_150405"), uid))
	path := filepath.Join(w.dir, stem+".txt")

	var b strings.Builder
	b.WriteString(fmt.Sprintf("UID: %d\n", uid))
	b.WriteString(fmt.Sprintf("Date: %s\n", date.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("From: %s\n", meta.From))
	b.WriteString(fmt.Sprintf("Subject: %s\n", meta.Subject))
	b.WriteString(fmt.Sprintf("Attachments: %t\n", meta.HasAttachment))
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n")

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory %s: %w", w.dir, err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing archive record %s: %w", path, err)
	}

	w.logger.Debug().Str("path", path).Uint32("uid", uid).Msg("archived message")
	return path, nil
}

// sanitizeStem keeps letters, digits, dashes and underscores; anything
// else becomes an underscore.
func sanitizeStem(stem string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, stem)
}
