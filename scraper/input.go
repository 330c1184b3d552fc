package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/perkins/models"
)

// retryPause is the wait between two attempts at the same input box.
var retryPause = time.Second

// InputValue types value into the named input box and verifies the box
// accepted it, retrying up to the configured attempt count. The NA top code
// sentinel is never typed.
func (s *Session) InputValue(ctx context.Context, box, value string) error {
	if value == models.NotApplicable {
		return nil
	}

	id, ok := s.cfg.ElementInfo.ID(box)
	if !ok {
		return models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("no element id configured for input box %q", box), nil)
	}

	try := s.input
	if try == nil {
		try = s.tryInput
	}

	attempts := max(s.cfg.Scraping.InputAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = try(ctx, id, value)
		if lastErr == nil {
			return nil
		}
		slog.Debug("input attempt failed", "box", box, "attempt", attempt, "error", lastErr)

		if attempt < attempts {
			if err := sleep(ctx, retryPause); err != nil {
				return categorizeError(err, "input canceled")
			}
		}
	}

	return models.NewScrapeError(
		models.ErrCodeInputFailed,
		fmt.Sprintf("failed to input value into %q after %d attempts", box, attempts),
		lastErr,
	)
}

// tryInput makes one attempt: focus, select the current text, type over it,
// then read the value back.
func (s *Session) tryInput(ctx context.Context, id, value string) error {
	el, err := s.waitInteractable(ctx, id)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}

	settle := s.cfg.Scraping.SettleDelay.Duration()
	if err := sleep(ctx, settle); err != nil {
		return err
	}
	if err := el.Input(value); err != nil {
		return err
	}
	if err := sleep(ctx, settle); err != nil {
		return err
	}

	got, err := el.Property("value")
	if err != nil {
		return err
	}
	if got.Str() != value {
		return fmt.Errorf("box holds %q after typing %q", got.Str(), value)
	}
	return nil
}
