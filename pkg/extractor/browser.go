package extractor

import (
	"context"
	"time"
)

// Browser is the page-automation capability the extraction agent drives.
// The chromedp adapter implements it against a real Chrome; tests substitute
// a scripted fake so every transition's failure mode can be exercised.
type Browser interface {
	// Navigate loads url and waits for the document to settle.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ExpectNavigation runs trigger and waits for the page navigation it
	// causes, mirroring the click-then-navigate shape of form submission.
	ExpectNavigation(ctx context.Context, timeout time.Duration, trigger func() error) error
	// ExpectDownload runs trigger and waits for the file download it causes,
	// returning the path of the persisted artifact named by the upstream.
	ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (string, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// BrowserFactory opens a fresh browser session. The agent opens one per
// extraction so a failed run never leaks state into the next.
type BrowserFactory func(ctx context.Context) (Browser, error)
