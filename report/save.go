package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/use-agent/perkins/models"
)

// WriteCSV writes the header and rows to path, creating parent directories.
func (t *Table) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to create output directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to create report file", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to write report header", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to write report rows", err)
	}
	if err := f.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to close report file", err)
	}
	return nil
}

// WriteMarkdown writes a Markdown rendering of the source table to path.
func (t *Table) WriteMarkdown(path string) error {
	md, err := ToMarkdown(t.sourceHTML)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to convert table to markdown", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to create output directory", err)
	}
	if err := os.WriteFile(path, []byte(md+"\n"), 0o644); err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to write markdown copy", err)
	}
	return nil
}

// WriteHTML writes the rendered report container, as the portal showed it,
// to path. Without a container ID only the parsed table is written.
func (t *Table) WriteHTML(path string) error {
	out := t.sourceHTML
	if t.containerID != "" {
		var err error
		if out, err = ContainerHTML(t.rawHTML, t.containerID); err != nil {
			return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to render report container", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to create output directory", err)
	}
	if err := os.WriteFile(path, []byte(out+"\n"), 0o644); err != nil {
		return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to write html copy", err)
	}
	return nil
}

// SaveOptions selects the copies written next to the CSV extract.
type SaveOptions struct {
	Markdown bool
	HTML     bool
}

// Save persists t as <dir>/<stem>.csv, plus <stem>.md and <stem>.html when
// selected, and returns the CSV path.
func Save(t *Table, dir, stem string, opts SaveOptions) (string, error) {
	path := filepath.Join(dir, stem+".csv")
	if err := t.WriteCSV(path); err != nil {
		return "", fmt.Errorf("saving %s: %w", path, err)
	}
	if opts.Markdown {
		if err := t.WriteMarkdown(filepath.Join(dir, stem+".md")); err != nil {
			return "", fmt.Errorf("saving markdown for %s: %w", path, err)
		}
	}
	if opts.HTML {
		if err := t.WriteHTML(filepath.Join(dir, stem+".html")); err != nil {
			return "", fmt.Errorf("saving html for %s: %w", path, err)
		}
	}
	return path, nil
}
