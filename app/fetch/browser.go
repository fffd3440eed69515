package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"webnotify/app/source"
)

const (
	navigationTimeout = 30 * time.Second
	selectorTimeout   = 10 * time.Second
	scrollPause       = 300 * time.Millisecond
)

// Renderer fetches pages through headless Chrome for sources whose
// interesting state only exists after client-side scripts run. Each
// render launches a fresh browser against the source's persistent
// profile directory, so logged-in sessions survive between checks.
type Renderer struct {
	headless    bool
	profileRoot string
	userAgent   string
}

func NewRenderer(headless bool, profileRoot, userAgent string) *Renderer {
	return &Renderer{
		headless:    headless,
		profileRoot: profileRoot,
		userAgent:   userAgent,
	}
}

// Render navigates to the source URL and captures two snapshots: an
// early one after a short quiet period, to catch unread badges that
// client scripts clear once the page settles, and a stable one after
// the full render wait.
func (r *Renderer) Render(ctx context.Context, src *source.Source) (shortHTML, html string, err error) {
	headless := r.headless
	if src.Config.Headless != nil {
		headless = *src.Config.Headless
	}

	l := launcher.New().
		Headless(headless).
		UserDataDir(r.profileDir(src)).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return "", "", fmt.Errorf("browser launch: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return "", "", fmt.Errorf("browser connect: %w", err)
	}
	defer func() {
		browser.Close()
		l.Kill()
	}()

	if len(src.Config.Cookies) > 0 {
		if err := browser.SetCookies(cookieParams(src)); err != nil {
			slog.Warn("Failed to set browser cookies", "source", src.Name, "error", err)
		}
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", "", fmt.Errorf("create page: %w", err)
	}

	budget := navigationTimeout + src.Config.ShortRenderWait() + src.Config.RenderWait() + selectorTimeout
	renderCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	page = page.Context(renderCtx)

	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			slog.Debug("Failed to override user agent", "source", src.Name, "error", err)
		}
	}

	if err := page.Timeout(navigationTimeout).Navigate(src.URL); err != nil {
		return "", "", fmt.Errorf("navigate %s: %w", src.URL, err)
	}
	if err := page.Timeout(navigationTimeout).WaitLoad(); err != nil {
		slog.Debug("Page load wait timed out", "source", src.Name, "error", err)
	}

	if sel := src.Config.WaitSelector; sel != "" {
		if _, err := page.Timeout(selectorTimeout).Element(sel); err != nil {
			slog.Debug("Wait selector never appeared", "source", src.Name, "selector", sel)
		}
	}

	if err := sleepCtx(renderCtx, src.Config.ShortRenderWait()); err != nil {
		return "", "", err
	}
	shortHTML, err = page.HTML()
	if err != nil {
		slog.Debug("Early snapshot failed", "source", src.Name, "error", err)
		shortHTML = ""
	}

	for i := 0; i < src.Config.ScrollCount; i++ {
		if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			break
		}
		if err := sleepCtx(renderCtx, scrollPause); err != nil {
			return "", "", err
		}
	}

	if sel := src.Config.ClickSelector; sel != "" {
		if el, err := page.Timeout(selectorTimeout).Element(sel); err == nil {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				slog.Debug("Click selector failed", "source", src.Name, "selector", sel, "error", err)
			}
		}
	}

	if err := sleepCtx(renderCtx, src.Config.RenderWait()); err != nil {
		return "", "", err
	}

	html, err = page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("capture page HTML: %w", err)
	}

	return shortHTML, html, nil
}

func (r *Renderer) profileDir(src *source.Source) string {
	if src.Config.ProfileDir != "" {
		return src.Config.ProfileDir
	}
	return filepath.Join(r.profileRoot, sanitizeProfileName(src.UserID+"_"+src.Name))
}

func sanitizeProfileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

func cookieParams(src *source.Source) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(src.Config.Cookies))
	for name, value := range src.Config.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  name,
			Value: value,
			URL:   src.URL,
		})
	}
	return params
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
