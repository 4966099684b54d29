package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 1600
	DefaultTimeout = 30 * time.Second

	// readySelector is set on the scheduler root once the page has rendered.
	readySelector = `[data-ready="true"]`
)

var (
	ErrNoURL    = errors.New("capture: URL is required")
	ErrNoOutput = errors.New("capture: output path is required")
)

// Options defines a single page snapshot.
type Options struct {
	// URL of the scheduler page, e.g. "http://127.0.0.1:8080/".
	URL string

	// OutputPath receives the PNG.
	OutputPath string

	// Width and Height set the viewport. Zero means the defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture. Zero means DefaultTimeout.
	Timeout time.Duration

	// ExecAllocatorOptions overrides the Chromium flags, e.g. to pass
	// chromedp.ExecPath. Nil means chromedp.DefaultExecAllocatorOptions.
	ExecAllocatorOptions []chromedp.ExecAllocatorOption
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return ErrNoURL
	}
	if o.OutputPath == "" {
		return ErrNoOutput
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ExecAllocatorOptions == nil {
		o.ExecAllocatorOptions = chromedp.DefaultExecAllocatorOptions[:]
	}
	return nil
}

// CapturePNG opens the scheduler page in headless Chromium, waits for the
// ready marker and writes a full-page PNG to opts.OutputPath.
func CapturePNG(parent context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts.ExecAllocatorOptions...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	var png []byte
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	); err != nil {
		return fmt.Errorf("capture: chromedp run: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: write png: %w", err)
	}
	return nil
}
