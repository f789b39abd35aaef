package seeder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/dmitrijs2005/tmssession/internal/logging"
)

// Credentials for the target platform.
type Credentials struct {
	Username string
	Password string
}

// Browser drives the login sequence against a profile directory. When Login
// returns, the browser has exited and the profile is flushed to disk.
type Browser interface {
	Login(ctx context.Context, profileDir string, creds Credentials) error
}

// ChromeBrowser runs a local Chrome through chromedp with a persistent
// user data directory.
type ChromeBrowser struct {
	loginURL         string
	usernameSelector string
	passwordSelector string
	submitSelector   string
	headless         bool
	execPath         string
	timeout          time.Duration
	detector         LoginDetector
	log              logging.Logger
}

func NewChromeBrowser(cfg Config, detector LoginDetector, log logging.Logger) *ChromeBrowser {
	return &ChromeBrowser{
		loginURL:         cfg.LoginURL,
		usernameSelector: cfg.UsernameSelector,
		passwordSelector: cfg.PasswordSelector,
		submitSelector:   cfg.SubmitSelector,
		headless:         cfg.Headless,
		execPath:         cfg.ChromePath,
		timeout:          cfg.LoginTimeout,
		detector:         detector,
		log:              log,
	}
}

func (b *ChromeBrowser) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserDataDir(profileDir),
		chromedp.WindowSize(1280, 720),
		chromedp.Flag("headless", b.headless),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	return opts
}

func (b *ChromeBrowser) Login(ctx context.Context, profileDir string, creds Credentials) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions(profileDir)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.log.Debug(ctx, fmt.Sprintf(format, args...))
	}))
	defer cancelBrowser()

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(b.loginURL),
		chromedp.WaitVisible(b.usernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(b.usernameSelector, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(b.passwordSelector, creds.Password, chromedp.ByQuery),
		chromedp.Click(b.submitSelector, chromedp.ByQuery),
		chromedp.ActionFunc(b.detector.Wait),
	)

	// Graceful close so Chrome writes cookies and storage into profileDir.
	if cerr := chromedp.Cancel(browserCtx); cerr != nil && err == nil && !errors.Is(cerr, context.Canceled) {
		b.log.Warn(ctx, "browser did not close cleanly", "error", cerr)
	}

	if err != nil {
		return fmt.Errorf("%w: login sequence (%s strategy): %v", ErrTransientAutomation, b.detector.Name(), err)
	}
	return nil
}
