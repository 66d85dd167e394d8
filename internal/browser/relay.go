// internal/browser/relay.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/channel"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
)

// InstallRelay prepares the tab for relayed commands. Responses forwarded by
// the top document through bindingName are handed to deliver. It must run
// before Navigate so the relay script reaches the first document.
func (s *Session) InstallRelay(ctx context.Context, bindingName string, deliver func([]byte) bool) error {
	script, err := gesture.RelayBootstrap(bindingName)
	if err != nil {
		return err
	}

	if err := s.runActions(ctx, runtime.AddBinding(bindingName)); err != nil {
		return fmt.Errorf("failed to add binding '%s': %w", bindingName, err)
	}

	chromedp.ListenTarget(s.ctx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != bindingName {
			return
		}
		if !deliver([]byte(called.Payload)) {
			s.logger.Debug("Ignored relay message.", zap.Int("bytes", len(called.Payload)))
		}
	})

	return s.InjectScriptPersistently(ctx, script)
}

// FramePoster returns a poster that hands command envelopes to the frame
// matched by frameSelector.
func (s *Session) FramePoster(frameSelector string) channel.Poster {
	return channel.PosterFunc(func(ctx context.Context, env schemas.CommandEnvelope) error {
		script, err := gesture.PostScript(frameSelector, env)
		if err != nil {
			return err
		}
		var posted bool
		if err := s.runActions(ctx, chromedp.Evaluate(script, &posted)); err != nil {
			return fmt.Errorf("failed to post command: %w", err)
		}
		if !posted {
			return fmt.Errorf("no frame matches %q", frameSelector)
		}
		return nil
	})
}
