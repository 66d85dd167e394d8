package automation

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/internal/browser"
	"github.com/xkilldash9x/wobdriver/internal/channel"
	"github.com/xkilldash9x/wobdriver/internal/config"
)

// Host is the page capability an Automation drives: a loaded document that can
// run injected scripts, plus the plumbing for relayed commands.
type Host interface {
	channel.Evaluator
	Navigate(ctx context.Context, url string) error
	InstallRelay(ctx context.Context, bindingName string, deliver func([]byte) bool) error
	FramePoster(frameSelector string) channel.Poster
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// HostFactory launches a Host.
type HostFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Host, error)

// ChromeHost launches a headless Chrome tab through chromedp.
func ChromeHost(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Host, error) {
	s, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
