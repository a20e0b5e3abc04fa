package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/internal/config"
)

// Manager owns the browser process for one run. The user-data directory is
// shared across runs so the operator's login survives, but never across
// concurrent processes; running two instances against the same profile is
// unsupported.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// NewManager creates and initializes the browser manager.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}

	profileDir, err := filepath.Abs(cfg.Browser.UserDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user data dir: %w", err)
	}
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user data dir: %w", err)
	}

	opts := m.generateAllocatorOptions(profileDir)
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)

	m.logger.Info("Browser manager initialized",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.String("user_data_dir", profileDir),
	)
	return m, nil
}

// generateAllocatorOptions configures the flags for the browser executable.
func (m *Manager) generateAllocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	browserCfg := m.cfg.Browser

	if browserCfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		// DefaultExecAllocatorOptions force headless; strip it so the
		// operator can see the login window.
		opts = append(opts, chromedp.Flag("headless", false))
	}

	opts = append(opts,
		// Persistent profile keeps cookies and local storage between runs.
		chromedp.UserDataDir(profileDir),

		chromedp.WindowSize(browserCfg.Viewport.Width, browserCfg.Viewport.Height),

		// The target page refuses obviously automated browsers.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", browserCfg.Headless),
	)

	for _, arg := range browserCfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	return opts
}

// NewSession opens one tab bound to the run context. The caller owns the
// returned session and must Close it on every exit path.
func (m *Manager) NewSession(runCtx context.Context) (*Session, error) {
	ctx, cancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)

	// Tie the tab to the run lifecycle.
	go func() {
		select {
		case <-runCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	// Touching about:blank forces the browser process to start now, so a
	// broken install fails fast instead of at the first stage.
	if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize browser session: %w", err)
	}

	cur := newCursor(m.cfg.Browser.Viewport.Width, m.cfg.Browser.Viewport.Height)
	return newSession(ctx, cancel, m.logger, cur), nil
}

// Shutdown terminates the browser process.
func (m *Manager) Shutdown() {
	m.logger.Info("Shutting down browser manager...")
	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}
	m.logger.Info("Browser manager shutdown complete.")
}
