package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
)

// The upstream rejects obviously-headless user agents, so the session
// announces a plain desktop Chrome.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/58.0.3029.110 Safari/537.3"

type downloadEvent struct {
	guid string
	err  error
}

// chromeBrowser implements Browser over the Chrome DevTools Protocol.
type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	downloadDir string

	mu        sync.Mutex
	filenames map[string]string // download guid -> upstream-assigned name
	completed chan downloadEvent
}

// NewChromeBrowser launches a Chrome session with downloads routed into
// downloadDir. Returned sessions must be closed by the caller.
func NewChromeBrowser(ctx context.Context, headless bool, downloadDir string) (Browser, error) {
	if err := ensureDir(downloadDir); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	b := &chromeBrowser{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		downloadDir: downloadDir,
		filenames:   make(map[string]string),
		completed:   make(chan downloadEvent, 1),
	}

	// Start the browser process and route downloads before any page work.
	if err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	chromedp.ListenTarget(browserCtx, b.onEvent)
	return b, nil
}

func (b *chromeBrowser) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		b.mu.Lock()
		b.filenames[e.GUID] = e.SuggestedFilename
		b.mu.Unlock()
	case *browser.EventDownloadProgress:
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			select {
			case b.completed <- downloadEvent{guid: e.GUID}:
			default:
			}
		case browser.DownloadProgressStateCanceled:
			select {
			case b.completed <- downloadEvent{guid: e.GUID, err: errors.New("download canceled by browser")}:
			default:
			}
		}
	}
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel := b.step(ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (b *chromeBrowser) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := b.step(ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.WaitVisible(selector, chromedp.BySearch))
}

func (b *chromeBrowser) Fill(ctx context.Context, selector, value string) error {
	tctx, cancel := b.step(ctx, 0)
	defer cancel()
	return chromedp.Run(tctx,
		chromedp.Click(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, value, chromedp.BySearch),
	)
}

func (b *chromeBrowser) Click(ctx context.Context, selector string) error {
	tctx, cancel := b.step(ctx, 0)
	defer cancel()
	return chromedp.Run(tctx, chromedp.Click(selector, chromedp.BySearch))
}

func (b *chromeBrowser) ExpectNavigation(ctx context.Context, timeout time.Duration, trigger func() error) error {
	tctx, cancel := b.step(ctx, timeout)
	defer cancel()

	ch := make(chan error, 1)
	go func() {
		// WaitNewTarget-style wait: the load event of the navigation the
		// trigger causes. Registered before the trigger fires to avoid
		// missing a fast navigation.
		ch <- chromedp.Run(b.ctx, chromedp.WaitReady("body", chromedp.ByQuery))
	}()

	if err := trigger(); err != nil {
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-tctx.Done():
		return tctx.Err()
	}
}

func (b *chromeBrowser) ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (string, error) {
	// Drain a stale completion from a previous attempt in this session.
	select {
	case <-b.completed:
	default:
	}

	if err := trigger(); err != nil {
		return "", err
	}

	tctx, cancel := b.step(ctx, timeout)
	defer cancel()

	select {
	case ev := <-b.completed:
		if ev.err != nil {
			return "", ev.err
		}
		return b.persistDownload(ev.guid)
	case <-tctx.Done():
		return "", tctx.Err()
	}
}

// persistDownload renames the GUID-named download to the filename the
// upstream suggested, keeping the GUID name when none was announced.
func (b *chromeBrowser) persistDownload(guid string) (string, error) {
	b.mu.Lock()
	name := b.filenames[guid]
	delete(b.filenames, guid)
	b.mu.Unlock()

	src := filepath.Join(b.downloadDir, guid)
	if name == "" {
		return src, nil
	}

	dst := filepath.Join(b.downloadDir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("persist download %s: %w", name, err)
	}
	return dst, nil
}

func (b *chromeBrowser) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	tctx, cancel := b.step(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil {
		logger.Log.WithError(err).Debug("Browser did not shut down cleanly")
	}
	return err
}

// step scopes one protocol operation to the caller's context and an
// optional timeout while keeping the browser session context alive.
func (b *chromeBrowser) step(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	merged, cancel := mergeContext(b.ctx, ctx)
	if timeout <= 0 {
		return merged, cancel
	}
	tctx, tcancel := context.WithTimeout(merged, timeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

// mergeContext derives a child of session that is also cancelled when call
// is done. chromedp operations must run on the session context to reach the
// right target, but honour the per-call deadline.
func mergeContext(session, call context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(session)
	stop := context.AfterFunc(call, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
