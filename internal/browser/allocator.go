// internal/browser/allocator.go
package browser

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/wobdriver/internal/config"
)

// allocatorFlags returns the Chrome command line flags for cfg. User supplied
// args are applied last so they can override the defaults.
func allocatorFlags(cfg config.BrowserConfig) map[string]any {
	flags := map[string]any{
		"headless":                 cfg.Headless,
		"no-sandbox":               true,
		"disable-gpu":              true,
		"disable-dev-shm-usage":    true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"enable-automation":        false,
		"disable-blink-features":   "AutomationControlled",
		// Keep embedded frames in the page's renderer so injected scripts and
		// bindings reach them.
		"disable-features":              "IsolateOrigins,site-per-process,Translate",
		"disable-site-isolation-trials": true,
	}

	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}
	if cfg.Locale != "" {
		flags["lang"] = cfg.Locale
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for a browser
// hosting one environment.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	flags := allocatorFlags(cfg)
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return opts
}
