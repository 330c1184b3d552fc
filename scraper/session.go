package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/perkins/config"
	"github.com/use-agent/perkins/models"
)

// postbackPause lets the portal repopulate dependent drop-downs after a
// selection triggers a server round trip.
var postbackPause = time.Second

// Navigate loads the portal page.
func (s *Session) Navigate(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.cfg.Scraping.NavigationTimeout.Duration())
	if err := p.Navigate(s.cfg.URL); err != nil {
		return categorizeError(err, "navigation to report portal failed")
	}
	if err := p.WaitLoad(); err != nil {
		return categorizeError(err, "report portal did not finish loading")
	}
	return nil
}

// ViewReport clicks the button that renders the report.
func (s *Session) ViewReport(ctx context.Context) error {
	el, err := s.waitInteractable(ctx, s.cfg.ViewReport)
	if err != nil {
		return categorizeError(err, "view report button not clickable")
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return categorizeError(err, "failed to click view report")
	}
	return nil
}

// Content waits for the report container to become visible and returns the
// page markup.
func (s *Session) Content(ctx context.Context) (string, error) {
	p := s.page.Context(ctx).Timeout(s.cfg.Scraping.ExplicitWait.Duration())
	el, err := p.Element(idSelector(s.cfg.TableDivID))
	if err != nil {
		return "", renderError(err)
	}
	if err := el.WaitVisible(); err != nil {
		return "", renderError(err)
	}

	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

// FetchReport fills in the form for key, renders the report and returns the
// page markup. Fields that cannot be set are logged and left as they are;
// navigation and rendering failures abort the fetch.
func (s *Session) FetchReport(ctx context.Context, key models.ReportKey) (string, error) {
	key = key.Normalize()

	if err := s.Navigate(ctx); err != nil {
		return "", err
	}
	if err := s.fillForm(ctx, key.FormType, key.DistrictCollege, key.FiscalYear); err != nil {
		return "", err
	}

	if key.HasTopCode() {
		// The code list reloads after the first entry; the second pass is
		// the one that sticks.
		s.inputOrWarn(ctx, config.BoxTopCode, key.TopCode)
		s.inputOrWarn(ctx, config.BoxTopCode, key.TopCode)
		if err := sleep(ctx, postbackPause); err != nil {
			return "", err
		}
	}

	if err := s.ViewReport(ctx); err != nil {
		slog.Warn("could not trigger report rendering", "key", key.String(), "error", err)
	}
	return s.Content(ctx)
}

// TopCodes lists the program codes the portal offers for a college and year.
func (s *Session) TopCodes(ctx context.Context, formType, districtCollege, fiscalYear string) ([]string, error) {
	if err := s.Navigate(ctx); err != nil {
		return nil, err
	}
	if err := s.fillForm(ctx, formType, strings.TrimSpace(districtCollege), fiscalYear); err != nil {
		return nil, err
	}

	id, _ := s.cfg.ElementInfo.ID(config.BoxTopCode)
	dropdown, err := s.waitInteractable(ctx, id)
	if err != nil {
		return nil, categorizeError(err, "top code box not clickable")
	}
	// The first click loads the list, the second one shows it.
	if err := dropdown.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, categorizeError(err, "failed to open top code list")
	}
	if err := sleep(ctx, postbackPause); err != nil {
		return nil, err
	}
	if err := dropdown.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, categorizeError(err, "failed to open top code list")
	}

	p := s.page.Context(ctx).Timeout(s.cfg.Scraping.ExplicitWait.Duration())
	if err := p.WaitElementsMoreThan(s.cfg.TopCodeOptions, 0); err != nil {
		return nil, categorizeError(err, "top code list did not appear")
	}
	items, err := s.page.Context(ctx).Timeout(s.cfg.Scraping.ImplicitWait.Duration()).Elements(s.cfg.TopCodeOptions)
	if err != nil {
		return nil, categorizeError(err, "failed to read top code list")
	}

	seen := make(map[string]struct{}, len(items))
	codes := make([]string, 0, len(items))
	for _, item := range items {
		text, err := item.Text()
		if err != nil {
			slog.Debug("skipping unreadable top code item", "error", err)
			continue
		}
		code := strings.TrimSpace(text)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// fillForm sets form type, fiscal year and institution, in that order. The
// institution list depends on the year, hence the pause between them.
func (s *Session) fillForm(ctx context.Context, formType, districtCollege, fiscalYear string) error {
	s.inputOrWarn(ctx, config.BoxFormType, formType)
	s.inputOrWarn(ctx, config.BoxFiscalYear, fiscalYear)
	if err := sleep(ctx, postbackPause); err != nil {
		return err
	}
	s.inputOrWarn(ctx, config.BoxDistrictCollege, districtCollege)
	return nil
}

// inputOrWarn sets a field, logging instead of failing when it cannot.
func (s *Session) inputOrWarn(ctx context.Context, box, value string) {
	if err := s.InputValue(ctx, box, value); err != nil {
		slog.Warn("input box left unset", "box", box, "value", value, "error", err)
	}
}

func (s *Session) waitInteractable(ctx context.Context, id string) (*rod.Element, error) {
	p := s.page.Context(ctx).Timeout(s.cfg.Scraping.ExplicitWait.Duration())
	el, err := p.Element(idSelector(id))
	if err != nil {
		return nil, err
	}
	if _, err := el.WaitInteractable(); err != nil {
		return nil, err
	}
	return el, nil
}

// idSelector matches an element by ID even when the ID is not a valid CSS
// identifier.
func idSelector(id string) string {
	return fmt.Sprintf("[id=%q]", id)
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderError(err error) *models.ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeTimeout, "report did not render in time", err)
	}
	return models.NewScrapeError(models.ErrCodeRenderFailed, "report container not found", err)
}

// categorizeError wraps raw errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
