// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autosubmit/internal/config"
)

// Manager owns the browser connection: it launches Chrome with a persistent
// profile, or connects to one already running, and attaches to the tab
// showing the target site.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu           sync.Mutex
	tab          *Tab
	allocCancel  context.CancelFunc
	browserClose context.CancelFunc
	tabClose     context.CancelFunc
}

// NewManager creates a manager. Nothing is started until Attach.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger.Named("browser_manager")}
}

// allocatorFlags are the command line switches for a launched browser,
// layered over chromedp's defaults. A false value removes the switch.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":               cfg.Headless,
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
	}
	if runtime.GOOS == "linux" && os.Geteuid() == 0 {
		// Chrome refuses to start as root with the sandbox on.
		flags["no-sandbox"] = true
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags[key] = value
		} else {
			flags[key] = true
		}
	}
	return flags
}

// AllocatorOptions returns the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for key, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(key, value))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// matchesTarget reports whether a page URL belongs to the target site.
func matchesTarget(pageURL, targetURL string) bool {
	if targetURL == "" {
		return false
	}
	trim := func(s string) string { return strings.TrimSuffix(strings.ToLower(s), "/") }
	return strings.HasPrefix(trim(pageURL), trim(targetURL))
}

// Attach starts or connects to the browser and attaches to the target tab,
// opening it when no tab shows it yet. Calling Attach again returns the
// same tab.
func (m *Manager) Attach(ctx context.Context) (*Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tab != nil {
		return m.tab, nil
	}

	var allocCtx context.Context
	if m.cfg.RemoteURL != "" {
		m.logger.Info("Connecting to running browser.", zap.String("url", m.cfg.RemoteURL))
		allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(context.Background(), m.cfg.RemoteURL)
	} else {
		m.logger.Info("Launching browser.",
			zap.Bool("headless", m.cfg.Headless),
			zap.String("user_data_dir", m.cfg.UserDataDir))
		allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), AllocatorOptions(m.cfg)...)
	}

	sugar := m.logger.Sugar()
	browserCtx, browserClose := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)
	m.browserClose = browserClose

	tab, err := m.attach(ctx, browserCtx)
	if err != nil {
		m.release()
		return nil, err
	}
	m.tab = tab
	return tab, nil
}

func (m *Manager) attach(ctx context.Context, browserCtx context.Context) (*Tab, error) {
	attachCtx := ctx
	if m.cfg.AttachTimeout > 0 {
		var cancel context.CancelFunc
		attachCtx, cancel = context.WithTimeout(ctx, m.cfg.AttachTimeout)
		defer cancel()
	}

	// The first Run starts the browser; it must use browserCtx itself, or
	// the browser would die with attachCtx.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			return nil, fmt.Errorf("browser: starting: %w", err)
		}
	case <-attachCtx.Done():
		m.browserClose()
		<-started
		return nil, fmt.Errorf("browser: starting: %w", attachCtx.Err())
	}

	bootstrap := &Tab{ctx: browserCtx, logger: m.logger}
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("browser: listing tabs: %w", err)
	}
	for _, t := range targets {
		if t.Type != "page" || !matchesTarget(t.URL, m.cfg.TargetURL) {
			continue
		}
		tabCtx, tabClose := chromedp.NewContext(browserCtx, chromedp.WithTargetID(t.TargetID))
		tab := &Tab{ctx: tabCtx, logger: m.logger}
		if err := tab.Run(attachCtx); err != nil {
			tabClose()
			return nil, fmt.Errorf("browser: attaching to %s: %w", t.URL, err)
		}
		m.tabClose = tabClose
		m.logger.Info("Attached to open tab.", zap.String("url", t.URL), zap.String("title", t.Title))
		return tab, nil
	}

	m.logger.Info("No tab shows the target; opening it.", zap.String("url", m.cfg.TargetURL))
	if err := bootstrap.Run(attachCtx, chromedp.Navigate(m.cfg.TargetURL)); err != nil {
		return nil, fmt.Errorf("browser: opening %s: %w", m.cfg.TargetURL, err)
	}
	return bootstrap, nil
}

func (m *Manager) release() {
	if m.tabClose != nil && m.cfg.RemoteURL == "" {
		m.tabClose()
	}
	if m.browserClose != nil {
		m.browserClose()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.tab, m.tabClose, m.browserClose, m.allocCancel = nil, nil, nil, nil
}

// Shutdown closes a launched browser, waiting for it to exit until ctx ends.
// A remote browser is only disconnected from; the user's tabs stay open.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browserClose == nil {
		return nil
	}
	m.logger.Info("Shutting down browser manager.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.release()
	}()
	select {
	case <-done:
		m.logger.Info("Browser manager shutdown complete.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for the browser to exit.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
