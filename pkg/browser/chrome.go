package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
)

// Options configures a Chrome session.
type Options struct {
	Headless     bool
	NoSandbox    bool
	ExecPath     string
	DownloadDir  string
	ImplicitWait time.Duration
	WindowWidth  int
	WindowHeight int
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !o.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(o.WindowWidth, o.WindowHeight))
	}
	return opts
}

// ChromeSession implements Session with chromedp.
type ChromeSession struct {
	ctx          context.Context
	cancelTab    context.CancelFunc
	cancelAlloc  context.CancelFunc
	implicitWait time.Duration
	logger       *zap.Logger
}

var _ Session = (*ChromeSession)(nil)

// NewChromeSession launches Chrome with downloads landing in opts.DownloadDir.
func NewChromeSession(ctx context.Context, opts Options, logger *zap.Logger) (*ChromeSession, error) {
	downloadDir, err := filepath.Abs(opts.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download dir: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	s := &ChromeSession{
		ctx:          tabCtx,
		cancelTab:    cancelTab,
		cancelAlloc:  cancelAlloc,
		implicitWait: opts.ImplicitWait,
		logger:       logger.Named("browser"),
	}
	if s.implicitWait <= 0 {
		s.implicitWait = 10 * time.Second
	}

	// The first Run starts the browser.
	err = chromedp.Run(tabCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s.logger.Info("Browser started",
		zap.Bool("headless", opts.Headless),
		zap.String("download_dir", downloadDir))
	return s, nil
}

// run executes actions on the tab, bounded by timeout and cancelled with ctx.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	actx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(actx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// runQuery is run for actions that wait on sel; running out of time means the
// element never appeared.
func (s *ChromeSession) runQuery(ctx context.Context, sel string, actions ...chromedp.Action) error {
	err := s.run(ctx, s.implicitWait, actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", apperrors.ErrElementNotFound, sel)
	}
	return err
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, 2*s.implicitWait, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *ChromeSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.implicitWait, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (s *ChromeSession) Click(ctx context.Context, sel string) error {
	return s.runQuery(ctx, sel, chromedp.Click(sel, chromedp.ByQuery))
}

func (s *ChromeSession) SetValue(ctx context.Context, sel, value string) error {
	return s.runQuery(ctx, sel,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (s *ChromeSession) Text(ctx context.Context, sel string) (string, error) {
	var text string
	if err := s.runQuery(ctx, sel, chromedp.Text(sel, &text, chromedp.ByQuery, chromedp.NodeReady)); err != nil {
		return "", err
	}
	return text, nil
}

func (s *ChromeSession) Exists(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, s.implicitWait, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", sel, err)
	}
	return len(nodes) > 0, nil
}

func (s *ChromeSession) AttributeAll(ctx context.Context, sel, attr string) ([]string, error) {
	selJSON, _ := json.Marshal(sel)
	attrJSON, _ := json.Marshal(attr)
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(e => e.getAttribute(%s) || "")`,
		selJSON, attrJSON)

	var values []string
	if err := s.run(ctx, s.implicitWait, chromedp.Evaluate(script, &values)); err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", attr, sel, err)
	}
	return values, nil
}

func (s *ChromeSession) MoveTo(ctx context.Context, sel string) error {
	return s.runQuery(ctx, sel, chromedp.ScrollIntoView(sel, chromedp.ByQuery))
}

func (s *ChromeSession) Drag(ctx context.Context, from, to string) error {
	var fromBox, toBox *dom.BoxModel
	if err := s.runQuery(ctx, from, chromedp.Dimensions(from, &fromBox, chromedp.ByQuery)); err != nil {
		return err
	}
	if err := s.runQuery(ctx, to, chromedp.Dimensions(to, &toBox, chromedp.ByQuery)); err != nil {
		return err
	}

	fx, fy := center(fromBox.Content)
	tx, ty := center(toBox.Content)

	actions := []chromedp.Action{
		chromedp.MouseEvent(input.MousePressed, fx, fy, chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	}
	// Intermediate moves so the page's drag handlers see motion.
	const steps = 5
	for i := 1; i <= steps; i++ {
		x := fx + (tx-fx)*float64(i)/steps
		y := fy + (ty-fy)*float64(i)/steps
		actions = append(actions, chromedp.MouseEvent(input.MouseMoved, x, y, chromedp.ButtonType(input.Left)))
	}
	actions = append(actions,
		chromedp.MouseEvent(input.MouseReleased, tx, ty, chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	)

	if err := s.run(ctx, s.implicitWait, actions...); err != nil {
		return fmt.Errorf("failed to drag %s to %s: %w", from, to, err)
	}
	return nil
}

func (s *ChromeSession) Back(ctx context.Context) error {
	if err := s.run(ctx, 2*s.implicitWait, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

// Close shuts the browser down.
func (s *ChromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// center returns the midpoint of a DOM quad (four x,y corner pairs).
func center(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4
}
