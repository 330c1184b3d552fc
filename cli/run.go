package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/perkins/config"
	"github.com/use-agent/perkins/ledger"
	"github.com/use-agent/perkins/runner"
	"github.com/use-agent/perkins/scraper"
	"github.com/use-agent/perkins/webhook"
)

// webhookGrace is added to the webhook's own retry budget before run stops
// waiting for delivery.
const webhookGrace = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var forms, colleges []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape every configured report not yet in the ledger.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}

			var err error
			opts := runner.OptionsFromConfig(cfg)
			if opts.Forms, err = restrict(opts.Forms, forms, "form"); err != nil {
				return err
			}
			if opts.Colleges, err = restrict(opts.Colleges, colleges, "college"); err != nil {
				return err
			}

			l, err := ledger.Load(cfg.Paths.LedgerPath())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("perkins run starting",
				"forms", len(opts.Forms),
				"colleges", len(opts.Colleges),
				"years", len(opts.Years),
				"ledger", l.Path(),
				"recorded", l.Len(),
			)

			r := runner.New(browserOpener(cfg), l, opts)
			summary, runErr := r.Run(ctx)
			slog.Info("perkins run finished", "summary", summary)

			notify(cfg.Webhook, summary)
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&forms, "form", nil, "only run these configured form types")
	cmd.Flags().StringSliceVar(&colleges, "college", nil, "only run these configured colleges")
	return cmd
}

// browserOpener starts one real browser per session.
func browserOpener(cfg *config.Config) runner.Opener {
	launcher := scraper.NewLauncher(cfg)
	return runner.OpenerFunc(func(ctx context.Context) (runner.Session, error) {
		s, err := launcher.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// restrict narrows configured to the values in only, comparing trimmed
// values the way report keys do. Every value in only must be configured;
// the configured spelling is kept.
func restrict(configured, only []string, what string) ([]string, error) {
	if len(only) == 0 {
		return configured, nil
	}
	out := make([]string, 0, len(only))
	for _, v := range only {
		i := slices.IndexFunc(configured, func(c string) bool {
			return strings.TrimSpace(c) == strings.TrimSpace(v)
		})
		if i < 0 {
			return nil, fmt.Errorf("%s %q is not in the config", what, v)
		}
		out = append(out, configured[i])
	}
	return out, nil
}

func notify(wc config.WebhookConfig, summary runner.Summary) {
	if wc.URL == "" {
		return
	}
	runID := fmt.Sprintf("run-%d", summary.StartedAt.Unix())
	done := webhook.DeliverAsync(wc.URL, wc.Secret, webhook.NewEvent(webhook.EventRunCompleted, runID, summary))
	select {
	case <-done:
	case <-time.After(webhook.MaxDeliveryTime() + webhookGrace):
		slog.Warn("gave up waiting for webhook delivery", "url", wc.URL)
	}
}
