// Package review records excluded messages for later human audit. Each
// logical day of mail gets its own CSV file; existing files are only
// ever appended to, and the header row is written once at creation.
package review

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmori/mailsift/internal/filter"
)

// header is the fixed column set of an exclusion record.
var header = []string{"logged_at", "uid", "date", "from", "subject", "reason", "detail"}

// Metadata is the message-level information attached to a record.
type Metadata struct {
	Date time.Time
	From string
}

// Recorder appends exclusion rows to per-day CSV files under dir.
type Recorder struct {
	dir    string
	logger zerolog.Logger
}

// NewRecorder creates a recorder rooted at dir.
func NewRecorder(dir string, logger zerolog.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logger}
}

// Record appends one exclusion row. The target file is chosen by the
// message's own date (falling back to now), so one file collects all
// exclusions for a logical day regardless of when the run happened.
// Calling Record repeatedly is safe: rows accumulate, prior entries are
// never rewritten.
func (r *Recorder) Record(uid uint32, meta Metadata, verdict filter.Verdict) error {
	date := meta.Date
	if date.IsZero() {
		date = time.Now()
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating review directory %s: %w", r.dir, err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("excluded_%s.csv", date.Format("20060102")))

	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening review file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing review header: %w", err)
		}
	}

	row := []string{
		time.Now().Format("2006-01-02 15:04:05"),
		strconv.FormatUint(uint64(uid), 10),
		date.Format("2006-01-02 15:04:05"),
		meta.From,
		verdict.Subject,
		string(verdict.Reason),
		verdict.Detail,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing review row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing review file %s: %w", path, err)
	}

	r.logger.Debug().Str("path", path).Uint32("uid", uid).Msg("recorded exclusion")
	return nil
}
