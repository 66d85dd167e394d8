package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/internal/config"
)

//go:embed evasions.js
var evasionsScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persona defines the device identity presented to the hosted page.
type Persona struct {
	UserAgent      string   `json:"userAgent"`
	Platform       string   `json:"platform"`
	Languages      []string `json:"languages"`
	Timezone       string   `json:"timezone"`
	Locale         string   `json:"locale"`
	MaxTouchPoints int      `json:"maxTouchPoints"`
}

// PersonaFromConfig derives the persona from the browser configuration.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := Persona{
		UserAgent: cfg.UserAgent,
		Platform:  cfg.Platform,
		Timezone:  cfg.Timezone,
		Locale:    cfg.Locale,
	}
	if cfg.Locale != "" {
		p.Languages = []string{cfg.Locale}
		if base, _, ok := strings.Cut(cfg.Locale, "-"); ok && base != "" {
			p.Languages = append(p.Languages, base)
		}
	}
	if cfg.Touch {
		p.MaxTouchPoints = 5
	}
	return p
}

// AcceptLanguage renders the persona's languages as an Accept-Language value.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, 1.0-0.1*float64(i)))
	}
	return strings.Join(parts, ",")
}

// Script returns the evasions script applied to persona.
func Script(p Persona) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode persona: %w", err)
	}
	return fmt.Sprintf("%s(%s);", strings.TrimSpace(evasionsScript), data), nil
}

// Apply returns the CDP actions that present p to every document loaded in
// the tab.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona.",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(p)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}

	if p.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage()))
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage()}),
		)
	}
	return tasks
}
