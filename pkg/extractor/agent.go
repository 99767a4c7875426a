// Package extractor drives a headless browser through the back-office
// login → export → confirm → download flow and hands back the downloaded
// artifact. The flow is modeled as an explicit state machine so each
// transition carries its own timeout and failure mode.
package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
)

type State string

const (
	StateNotStarted      State = "not_started"
	StateLoggingIn       State = "logging_in"
	StateExportTriggered State = "export_triggered"
	StateDownloading     State = "downloading"
	StateComplete        State = "complete"
	StateFailed          State = "failed"
)

// Selectors for the fixed upstream UI. The back-office is a generated SPA
// without stable ids, so controls are located by their visible labels.
const (
	usernameSelector      = `//label[contains(., "Username")]/following::input[1]`
	passwordSelector      = `//label[contains(., "Password")]/following::input[1]`
	loginButtonSelector   = `//button[contains(., "Login")]`
	exportButtonSelector  = `//button[contains(., "Export")]`
	confirmButtonSelector = `//button[contains(., "Confirm")]`
)

type Timeouts struct {
	// Navigation covers full-page loads, ExportMarker the longer post-login
	// wait for the export control, Selector ordinary element visibility.
	Navigation   time.Duration
	Selector     time.Duration
	ExportMarker time.Duration
	Download     time.Duration
	Settle       time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation:   60 * time.Second,
		Selector:     10 * time.Second,
		ExportMarker: 15 * time.Second,
		Download:     60 * time.Second,
		Settle:       10 * time.Second,
	}
}

type Config struct {
	LoginURL      string
	Username      string
	Password      string
	ScreenshotDir string
	Debug         bool
	Timeouts      Timeouts
}

type Agent struct {
	cfg        Config
	newBrowser BrowserFactory
	state      State
}

func NewAgent(cfg Config, factory BrowserFactory) *Agent {
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	return &Agent{cfg: cfg, newBrowser: factory, state: StateNotStarted}
}

// State reports where the last extraction ended.
func (a *Agent) State() State {
	return a.state
}

// Extract runs the full export flow once and returns the path of the
// downloaded artifact. It never retries; each step has its own bounded
// timeout and the browser session is closed on every exit path.
func (a *Agent) Extract(ctx context.Context) (string, error) {
	a.state = StateNotStarted

	b, err := a.newBrowser(ctx)
	if err != nil {
		a.state = StateFailed
		return "", fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logger.Log.WithError(cerr).Warn("Failed to close browser session")
		}
	}()

	t := a.cfg.Timeouts

	a.state = StateLoggingIn
	logger.Log.WithField("url", a.cfg.LoginURL).Info("Navigating to login page")
	if err := b.Navigate(ctx, a.cfg.LoginURL, t.Navigation); err != nil {
		return "", a.fail(ctx, b, ErrNavigationTimeout, err)
	}

	if err := b.WaitVisible(ctx, usernameSelector, t.Selector); err != nil {
		return "", a.fail(ctx, b, ErrLoginFormNotFound, err)
	}

	if err := b.Fill(ctx, usernameSelector, a.cfg.Username); err != nil {
		return "", a.fail(ctx, b, ErrLoginFormNotFound, err)
	}
	if err := b.Fill(ctx, passwordSelector, a.cfg.Password); err != nil {
		return "", a.fail(ctx, b, ErrLoginFormNotFound, err)
	}

	logger.Log.Info("Submitting login form")
	err = b.ExpectNavigation(ctx, t.Navigation, func() error {
		return b.Click(ctx, loginButtonSelector)
	})
	if err != nil {
		return "", a.fail(ctx, b, ErrLoginFailed, err)
	}

	// The export control doubles as the post-login marker.
	if err := b.WaitVisible(ctx, exportButtonSelector, t.ExportMarker); err != nil {
		return "", a.fail(ctx, b, ErrLoginFailed, err)
	}
	logger.Log.Info("Login successful, export control present")

	// The customer table populates asynchronously after login; exporting
	// too early yields a truncated file.
	if err := sleepCtx(ctx, t.Settle); err != nil {
		return "", a.fail(ctx, b, ErrLoginFailed, err)
	}

	a.state = StateExportTriggered
	if err := b.Click(ctx, exportButtonSelector); err != nil {
		return "", a.fail(ctx, b, ErrDownloadTimeout, err)
	}
	if err := b.WaitVisible(ctx, confirmButtonSelector, t.Selector); err != nil {
		return "", a.fail(ctx, b, ErrDownloadTimeout, err)
	}

	a.state = StateDownloading
	path, err := b.ExpectDownload(ctx, t.Download, func() error {
		return b.Click(ctx, confirmButtonSelector)
	})
	if err != nil {
		return "", a.fail(ctx, b, ErrDownloadTimeout, err)
	}

	a.state = StateComplete
	logger.Log.WithField("path", path).Info("Export artifact downloaded")
	return path, nil
}

// fail captures a diagnostic screenshot of the current page state before
// propagating a wrapped sentinel error for the step that broke.
func (a *Agent) fail(ctx context.Context, b Browser, sentinel, cause error) error {
	failedAt := a.state
	a.state = StateFailed

	if a.cfg.Debug && a.cfg.ScreenshotDir != "" {
		name := fmt.Sprintf("error_%s_%s.png", failedAt, time.Now().Format("20060102_150405"))
		path := filepath.Join(a.cfg.ScreenshotDir, name)
		if err := b.Screenshot(ctx, path); err != nil {
			logger.Log.WithError(err).Warn("Failed to capture diagnostic screenshot")
		} else {
			logger.Log.WithField("path", path).Debug("Diagnostic screenshot saved")
		}
	}

	logger.Log.WithError(cause).WithField("state", failedAt).Error("Extraction failed")
	return fmt.Errorf("%w: %v", sentinel, cause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ensureDir creates the directory artifacts and screenshots land in.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
