// Package scraper drives the report portal through a real browser.
//
// Every Session owns its own Chrome process. The portal keeps report
// parameters in server-side view state, so a fresh browser per report is the
// only reliable way to start from a clean form.
package scraper

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/perkins/config"
	"github.com/use-agent/perkins/models"
	"github.com/ysmood/gson"
)

// Launcher starts browser sessions configured from Config.
type Launcher struct {
	cfg *config.Config
}

// NewLauncher returns a Launcher. No browser is started until Open.
func NewLauncher(cfg *config.Config) *Launcher {
	return &Launcher{cfg: cfg}
}

// Session is one browser process with a single tab pointed at the portal.
// Close must be called on every path to avoid leaking Chrome processes.
type Session struct {
	cfg      *config.Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter

	// input makes one attempt at setting a box; nil means tryInput.
	input func(ctx context.Context, id, value string) error
}

// Open launches a browser and prepares a tab.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	bc := l.cfg.Browser

	ln := launcher.New().
		Context(ctx).
		Headless(l.cfg.Scraping.Headless).
		NoSandbox(bc.NoSandbox)

	if bc.Bin != "" {
		ln = ln.Bin(bc.Bin)
	}
	if bc.Proxy != "" {
		ln = ln.Proxy(bc.Proxy)
	}

	ln.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	ln.Delete(flags.Flag("enable-automation"))
	ln.Set(flags.Flag("disable-popup-blocking"))
	ln.Set(flags.Flag("disable-component-update"))
	ln.Set(flags.Flag("disable-default-apps"))
	ln.Set(flags.Flag("disable-dev-shm-usage"))
	ln.Set(flags.Flag("disable-extensions"))
	ln.Set(flags.Flag("no-first-run"))

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	s := &Session{cfg: l.cfg, launcher: ln}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	if bc.Stealth {
		s.page, err = stealth.Page(s.browser)
	} else {
		s.page, err = s.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = s.Close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open tab", err)
	}

	if len(bc.Headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(bc.Headers)}).Call(s.page); err != nil {
			slog.Warn("failed to set extra headers, proceeding without them", "error", err)
		}
	}

	s.router = setupHijack(s.page, bc.BlockedResources)
	return s, nil
}

// Close stops request interception, closes the browser and kills its
// process. It is safe to call on a partially opened session.
func (s *Session) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
		s.router = nil
	}

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	s.kill()

	if err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to close browser", err)
	}
	return nil
}

func (s *Session) kill() {
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	s.launcher = nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
