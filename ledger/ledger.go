// Package ledger keeps the persisted record of reports that were already
// scraped, so that a re-run never fetches the same report twice.
//
// The ledger is a flat CSV file rewritten in full after every addition. It is
// not safe for concurrent use; the driver is single-threaded.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/use-agent/perkins/models"
)

// Header is the column layout of the ledger file.
var Header = []string{
	"form_type",
	"district_college",
	"fiscal_year",
	"top_code",
	"headcount",
	"enrollment",
	"file_path",
}

// FileMode is the permission of the written ledger file.
const FileMode os.FileMode = 0o644

// Ledger is the in-memory table of scrape records backed by a CSV file.
type Ledger struct {
	path    string
	records []models.ScrapeRecord
	index   map[models.ReportKey]int
}

// New returns an empty ledger that persists to path. An empty path keeps the
// ledger in memory only.
func New(path string) *Ledger {
	return &Ledger{
		path:  path,
		index: make(map[models.ReportKey]int),
	}
}

// Load reads the ledger at path. A missing file is not an error: the result
// is an empty ledger that will create the file on the first Add.
func Load(path string) (*Ledger, error) {
	l := New(path)
	if path == "" {
		return l, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no ledger on disk, starting empty", "path", path)
			return l, nil
		}
		return nil, models.NewScrapeError(models.ErrCodeLedger, "failed to open ledger", err)
	}
	defer f.Close()

	if err := l.read(f); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLedger, fmt.Sprintf("failed to read ledger %s", path), err)
	}
	slog.Debug("ledger loaded", "path", path, "records", len(l.records))
	return l, nil
}

func (l *Ledger) read(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !slices.Equal(head, Header) {
		return fmt.Errorf("unexpected header %v", head)
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(row) != len(Header) {
			slog.Warn("skipping ledger row with wrong column count",
				"path", l.path, "line", line, "columns", len(row))
			continue
		}
		l.append(parseRow(row, l.path, line))
	}
}

// parseRow never fails: a summary cell that does not read as a number loads
// as zero, since the key columns are what dedup depends on.
func parseRow(row []string, path string, line int) models.ScrapeRecord {
	return models.ScrapeRecord{
		ReportKey:  models.NewReportKey(row[0], row[1], row[2], row[3]),
		Headcount:  parseCell(row[4], "headcount", path, line),
		Enrollment: parseCell(row[5], "enrollment", path, line),
		FilePath:   row[6],
	}
}

func parseCell(s, column, path string, line int) decimal.Decimal {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero
	}
	d, ok := models.ParseCount(s)
	if !ok {
		slog.Warn("ledger value is not a number, loading as zero",
			"path", path, "line", line, "column", column, "value", s)
	}
	return d
}

// append adds rec to the table. When the file already holds a duplicate key
// the first occurrence stays authoritative for lookups.
func (l *Ledger) append(rec models.ScrapeRecord) {
	l.records = append(l.records, rec)
	if _, ok := l.index[rec.ReportKey]; !ok {
		l.index[rec.ReportKey] = len(l.records) - 1
	}
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Len returns the number of records.
func (l *Ledger) Len() int { return len(l.records) }

// IsRecorded reports whether a record with exactly the same form type,
// trimmed institution, fiscal year and top code exists.
func (l *Ledger) IsRecorded(key models.ReportKey) bool {
	_, ok := l.index[key.Normalize()]
	return ok
}

// Lookup returns the record stored under key.
func (l *Ledger) Lookup(key models.ReportKey) (models.ScrapeRecord, bool) {
	i, ok := l.index[key.Normalize()]
	if !ok {
		return models.ScrapeRecord{}, false
	}
	return l.records[i], true
}

// Add appends one record and rewrites the whole file. A key that is already
// recorded is rejected with ErrCodeDuplicate. If the rewrite fails the record
// is rolled back so memory and disk stay in step.
func (l *Ledger) Add(key models.ReportKey, headcount, enrollment decimal.Decimal, filePath string) (models.ScrapeRecord, error) {
	key = key.Normalize()
	if l.IsRecorded(key) {
		return models.ScrapeRecord{}, models.NewScrapeError(
			models.ErrCodeDuplicate,
			fmt.Sprintf("%s is recorded already", key),
			nil,
		)
	}

	rec := models.ScrapeRecord{
		ReportKey:  key,
		Headcount:  headcount,
		Enrollment: enrollment,
		FilePath:   filePath,
	}
	l.append(rec)

	if err := l.Save(); err != nil {
		l.records = l.records[:len(l.records)-1]
		delete(l.index, key)
		return models.ScrapeRecord{}, err
	}
	return rec, nil
}

// Records returns a copy of all records in insertion order.
func (l *Ledger) Records() []models.ScrapeRecord {
	return slices.Clone(l.records)
}

// Filter returns the records for which keep returns true.
func (l *Ledger) Filter(keep func(models.ScrapeRecord) bool) []models.ScrapeRecord {
	var out []models.ScrapeRecord
	for _, rec := range l.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Save writes the full table to the ledger file through a temp file and
// rename, so a crash mid-write leaves the previous ledger intact.
func (l *Ledger) Save() error {
	if l.path == "" {
		return nil
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.NewScrapeError(models.ErrCodeLedger, "failed to create ledger directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return models.NewScrapeError(models.ErrCodeLedger, "failed to create temp ledger", err)
	}
	defer os.Remove(tmp.Name())

	if err := l.write(tmp); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeLedger, "failed to write ledger", err)
	}
	// CreateTemp uses 0600; the API may run as another user.
	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeLedger, "failed to set ledger permissions", err)
	}
	if err := tmp.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeLedger, "failed to flush ledger", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return models.NewScrapeError(models.ErrCodeLedger, "failed to replace ledger", err)
	}
	return nil
}

func (l *Ledger) write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, rec := range l.records {
		row := []string{
			rec.FormType,
			rec.DistrictCollege,
			rec.FiscalYear,
			rec.TopCode,
			rec.Headcount.String(),
			rec.Enrollment.String(),
			rec.FilePath,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
