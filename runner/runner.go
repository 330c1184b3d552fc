// Package runner walks the configured cross product of report parameters,
// fetching, parsing and recording every report the ledger has not seen yet.
//
// Execution is strictly sequential. Each report gets its own browser
// session, which is closed before the next one starts, and a failure in one
// report never stops the batch.
package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/perkins/config"
	"github.com/use-agent/perkins/ledger"
	"github.com/use-agent/perkins/models"
	"github.com/use-agent/perkins/report"
	"github.com/use-agent/perkins/simhash"
	"golang.org/x/time/rate"
)

// Session is one browser automation session.
type Session interface {
	// FetchReport renders the report for key and returns the page markup.
	FetchReport(ctx context.Context, key models.ReportKey) (string, error)

	// TopCodes lists the program codes offered for a college and year.
	TopCodes(ctx context.Context, formType, districtCollege, fiscalYear string) ([]string, error)

	Close() error
}

// Opener starts browser sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Session, error)

func (f OpenerFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// Options is what the driver needs from the configuration.
type Options struct {
	Forms     []string
	Colleges  []string
	Districts []string
	Years     []string
	Paths     config.PathsConfig

	// TableDivID is the element holding the rendered report.
	TableDivID string

	// Save selects the markdown and HTML copies written with each report.
	Save report.SaveOptions

	// RequestInterval is the minimum gap between browser sessions.
	RequestInterval time.Duration
}

// OptionsFromConfig extracts Options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Forms:           cfg.Forms,
		Colleges:        cfg.Colleges,
		Districts:       cfg.Districts,
		Years:           cfg.Years,
		Paths:           cfg.Paths,
		TableDivID:      cfg.TableDivID,
		Save:            report.SaveOptions{Markdown: cfg.Output.Markdown, HTML: cfg.Output.HTML},
		RequestInterval: cfg.Scraping.RequestInterval.Duration(),
	}
}

// Summary counts what a run did.
type Summary struct {
	Attempted         int           `json:"attempted"`
	Skipped           int           `json:"skipped"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	DiscoveryFailures int           `json:"discovery_failures"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("attempted", s.Attempted),
		slog.Int("skipped", s.Skipped),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("discoveryFailures", s.DiscoveryFailures),
		slog.Duration("duration", s.Duration),
	)
}

// Outcome is the result of one tuple.
type Outcome int

const (
	Skipped Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	default:
		return "failed"
	}
}

// Runner is the fetch-and-parse driver. It is not safe for concurrent use.
type Runner struct {
	opener    Opener
	ledger    *ledger.Ledger
	opts      Options
	parserFor func(formType string) report.Parser
	limiter   *rate.Limiter
	summary   Summary

	// rendered holds the table fingerprints saved this run, per form,
	// institution and year.
	rendered map[string][]renderedReport
}

type renderedReport struct {
	key         models.ReportKey
	fingerprint uint64
}

// New returns a Runner that records into l.
func New(opener Opener, l *ledger.Ledger, opts Options) *Runner {
	r := &Runner{
		opener: opener,
		ledger: l,
		opts:   opts,
	}
	r.parserFor = func(formType string) report.Parser {
		return report.ForForm(formType, opts.TableDivID)
	}
	if opts.RequestInterval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(opts.RequestInterval), 1)
	}
	return r
}

// Run processes every configured form type. It only returns an error when
// ctx is canceled; individual report failures are logged and counted.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.summary = Summary{StartedAt: time.Now()}
	r.rendered = nil

	if err := r.prepareDirs(); err != nil {
		return r.finish(), err
	}

	for _, form := range r.opts.Forms {
		if err := r.RunForm(ctx, form); err != nil {
			return r.finish(), err
		}
	}
	return r.finish(), nil
}

func (r *Runner) finish() Summary {
	r.summary.Duration = time.Since(r.summary.StartedAt)
	return r.summary
}

func (r *Runner) prepareDirs() error {
	for _, dir := range []string{r.opts.Paths.CollegeDir(), r.opts.Paths.DistrictDir(), r.opts.Paths.TopCodeDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.NewScrapeError(models.ErrCodeSaveFailed, "failed to create "+dir, err)
		}
	}
	return nil
}

// RunForm processes one form type over all colleges and years.
func (r *Runner) RunForm(ctx context.Context, form string) error {
	switch form {
	case models.FormDistrict:
		slog.Info("district reports are not scraped, download them manually",
			"form", form,
			"folder", r.opts.Paths.DistrictDir(),
			"districts", len(r.opts.Districts),
		)
		return nil

	case models.FormTopCode:
		return r.runTopCodes(ctx, form)

	case models.FormCollege:
		return r.runFlat(ctx, form, r.opts.Paths.CollegeDir())

	default:
		dir := filepath.Join(r.opts.Paths.DataFolder, models.SafeName(form))
		slog.Warn("unrecognised form type, scraping without top codes", "form", form, "folder", dir)
		return r.runFlat(ctx, form, dir)
	}
}

// runFlat scrapes one report per college and year with no top code.
func (r *Runner) runFlat(ctx context.Context, form, dir string) error {
	for _, college := range r.opts.Colleges {
		key := models.NewReportKey(form, college, "", models.NotApplicable)
		slog.Info("working on college", "form", form, "college", key.DistrictCollege)

		for i, year := range r.opts.Years {
			if err := ctx.Err(); err != nil {
				return err
			}
			key.FiscalYear = year
			r.ScrapeOne(ctx, key, dir)
			slog.Debug("progress", "college", key.DistrictCollege, "done", i+1, "total", len(r.opts.Years))
		}
	}
	return ctx.Err()
}

// runTopCodes discovers the codes for each college and year, then scrapes
// one report per code into a folder per college.
func (r *Runner) runTopCodes(ctx context.Context, form string) error {
	for _, college := range r.opts.Colleges {
		for _, year := range r.opts.Years {
			if err := ctx.Err(); err != nil {
				return err
			}

			base := models.NewReportKey(form, college, year, models.NotApplicable)
			codes, err := r.DiscoverTopCodes(ctx, form, base.DistrictCollege, year)
			if err != nil {
				r.summary.DiscoveryFailures++
				slog.Error("top code discovery failed",
					"form", form, "college", base.DistrictCollege, "year", year, "error", err)
				continue
			}

			slog.Info("working on college year", "form", form, "college", base.DistrictCollege, "year", year, "codes", len(codes))
			dir := filepath.Join(r.opts.Paths.TopCodeDir(), models.SafeName(base.DistrictCollege))
			for i, code := range codes {
				if err := ctx.Err(); err != nil {
					return err
				}
				key := base
				key.TopCode = code
				r.ScrapeOne(ctx, key.Normalize(), dir)
				slog.Debug("progress", "college", base.DistrictCollege, "year", year, "done", i+1, "total", len(codes))
			}
			slog.Info("finished all top codes", "college", base.DistrictCollege, "year", year)
		}
	}
	return ctx.Err()
}

// DiscoverTopCodes opens a short-lived session to list the codes for a
// college and year.
func (r *Runner) DiscoverTopCodes(ctx context.Context, form, college, year string) ([]string, error) {
	if err := r.pace(ctx); err != nil {
		return nil, err
	}

	sess, err := r.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	return sess.TopCodes(ctx, form, college, year)
}

// ScrapeOne handles a single tuple: skip if recorded, otherwise fetch, parse,
// save and record. Errors are logged, never returned, and leave no ledger
// entry behind.
func (r *Runner) ScrapeOne(ctx context.Context, key models.ReportKey, dir string) Outcome {
	key = key.Normalize()
	logger := slog.With("form", key.FormType, "college", key.DistrictCollege, "year", key.FiscalYear, "code", key.TopCode)

	if r.ledger.IsRecorded(key) {
		r.summary.Skipped++
		logger.Info("report is scraped already")
		return Skipped
	}

	r.summary.Attempted++
	if err := r.scrape(ctx, key, dir, logger); err != nil {
		r.summary.Failed++
		logger.Error("report abandoned", "error", err)
		return Failed
	}
	r.summary.Succeeded++
	return Succeeded
}

func (r *Runner) scrape(ctx context.Context, key models.ReportKey, dir string, logger *slog.Logger) error {
	raw, err := r.fetch(ctx, key)
	if err != nil {
		return err
	}

	tbl, err := r.parserFor(key.FormType).Parse(raw)
	if err != nil {
		return err
	}
	r.checkRepeated(key, tbl, logger)

	path, err := report.Save(tbl, dir, key.Slug(), r.opts.Save)
	if err != nil {
		return err
	}

	if _, err := r.ledger.Add(key, tbl.Headcount, tbl.Enrollment, path); err != nil {
		return err
	}
	logger.Info("report saved", "path", path, "headcount", tbl.Headcount.String(), "enrollment", tbl.Enrollment.String())
	return nil
}

// checkRepeated warns when a report has the same table content as another
// report of the same institution and year. That happens when the portal
// ignored the top code and rendered the same report twice.
func (r *Runner) checkRepeated(key models.ReportKey, tbl *report.Table, logger *slog.Logger) {
	if r.rendered == nil {
		r.rendered = make(map[string][]renderedReport)
	}
	group := key.FormType + "\x00" + key.DistrictCollege + "\x00" + key.FiscalYear
	fp := simhash.Table(tbl.Rows)

	for _, prev := range r.rendered[group] {
		if prev.key != key && simhash.Similar(fp, prev.fingerprint, 0) {
			logger.Warn("report content repeats an earlier report, the top code may not have been applied",
				"sameAs", prev.key.TopCode)
			break
		}
	}
	r.rendered[group] = append(r.rendered[group], renderedReport{key: key, fingerprint: fp})
}

// fetch holds a session only for as long as the page is needed.
func (r *Runner) fetch(ctx context.Context, key models.ReportKey) (string, error) {
	if err := r.pace(ctx); err != nil {
		return "", err
	}

	sess, err := r.opener.Open(ctx)
	if err != nil {
		return "", err
	}
	defer closeSession(sess)

	raw, err := sess.FetchReport(ctx, key)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", models.NewScrapeError(models.ErrCodeRenderFailed, "empty page content", nil)
	}
	return raw, nil
}

func (r *Runner) pace(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return models.NewScrapeError(models.ErrCodeTimeout, "pacing wait interrupted", err)
	}
	return nil
}

func closeSession(s Session) {
	if err := s.Close(); err != nil {
		slog.Warn("failed to close browser session", "error", err)
	}
}
