package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/resolver"
	"github.com/harrymomomedia/admachin-sub003/internal/wait"
)

// Selector inventory for the wizard. These track the current upstream layout
// and are the first thing to re-check when a run starts failing.
const (
	loginButtonSel    = `a[href*="auth"], button[data-testid="login-button"]`
	profileButtonSel  = `[data-testid="profile-menu-button"]`
	composerSel       = `[data-testid="composer"]`
	menuPanelSel      = `[role="menu"]`
	wizardDialogSel   = `[role="dialog"]`
	trimScrubberSel   = `[data-testid="trim-scrubber"]`
	nextButtonSel     = `button[data-testid="wizard-next"]`
	visibilityChecked = `[role="dialog"] [aria-checked="true"]`
	saveButtonSel     = `button[data-testid="save-character"]`

	resultPathMarker = "/characters/"
)

// stages builds the fixed wizard sequence for one task. The order is not
// configurable; only the number of accept-defaults screens varies.
func (p *Pipeline) stages(task schemas.Task) []stage {
	list := []stage{
		{name: "navigate", run: p.navigate(task.SourceVideoURL)},
		{name: "await_login", run: p.awaitLogin},
		{name: "open_menu", run: p.openMenu},
		{name: "start_creation", run: p.startCreation},
		{name: "trim_confirm", run: p.trimConfirm},
		{name: "await_processing", run: p.awaitProcessing},
	}
	for i := 1; i <= p.cfg.ConfirmScreens; i++ {
		list = append(list, stage{
			name: fmt.Sprintf("confirm_defaults_%d", i),
			run:  p.confirmDefaults,
		})
	}
	return append(list,
		stage{name: "set_visibility", run: p.setVisibility},
		stage{name: "save", run: p.save},
		stage{name: "await_result", run: p.awaitResult},
	)
}

// resolve runs one cascade under the per-stage resolve deadline, then lets
// the page settle.
func (p *Pipeline) resolve(ctx context.Context, page schemas.Page, target string, strategies []resolver.Strategy, post resolver.PostCondition, plog ProgressLog) (resolver.Resolution, error) {
	rctx := ctx
	if p.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, p.cfg.ResolveTimeout)
		defer cancel()
	}
	res, err := p.res.Resolve(rctx, page, target, strategies, post, plog)
	if err != nil {
		return res, err
	}
	return res, p.settle(ctx)
}

func (p *Pipeline) navigate(url string) func(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	return func(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
		if err := page.Navigate(ctx, url); err != nil {
			return resolver.Resolution{}, err
		}
		plog.Info(ctx, "opened source video %s", url)
		return resolver.Resolution{}, p.settle(ctx)
	}
}

// awaitLogin is the one stage allowed to block without a deadline: a human
// has to complete the sign-in in the visible browser window.
func (p *Pipeline) awaitLogin(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	if p.loggedIn(ctx, page) {
		plog.Info(ctx, "session already authenticated")
		return resolver.Resolution{}, nil
	}

	plog.Warn(ctx, "not signed in: complete the login in the browser window (polling every %s)", p.cfg.LoginPollInterval)
	err := wait.Until(ctx, wait.Unbounded(p.cfg.LoginPollInterval), p.sleep, func(ctx context.Context) bool {
		return p.loggedIn(ctx, page)
	})
	if err != nil {
		return resolver.Resolution{}, err
	}
	plog.Info(ctx, "login detected")
	return resolver.Resolution{}, p.settle(ctx)
}

func (p *Pipeline) loggedIn(ctx context.Context, page schemas.Page) bool {
	if page.IsVisible(ctx, loginButtonSel) {
		return false
	}
	return page.IsVisible(ctx, profileButtonSel) || page.IsVisible(ctx, composerSel)
}

func (p *Pipeline) openMenu(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	w, h := float64(p.viewport.Width), float64(p.viewport.Height)

	strategies := []resolver.Strategy{
		&resolver.SemanticQuery{
			Selectors: []string{
				`button[aria-label="More actions"]`,
				`button[aria-label="More options"]`,
				`[data-testid="video-actions-menu"]`,
			},
		},
		// A small square control in the top-right corner of the player.
		&resolver.GeometryScan{Spec: resolver.ScoreSpec{
			MinWidth: 24, MaxWidth: 64,
			MinHeight: 24, MaxHeight: 64,
			AspectMin: 0.8, AspectMax: 1.25,
			Region:    resolver.Region{XMin: 0.8, XMax: 1.0, YMin: 0.0, YMax: 0.25},
			ViewportW: w, ViewportH: h,
		}},
		&resolver.FixedCoordinates{Points: []resolver.Point{
			{X: w - 54, Y: 60},
			{X: w - 90, Y: 60},
		}},
	}

	return p.resolve(ctx, page, "overflow menu", strategies, func(ctx context.Context) bool {
		return page.IsVisible(ctx, menuPanelSel)
	}, plog)
}

func (p *Pipeline) startCreation(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	w, h := float64(p.viewport.Width), float64(p.viewport.Height)

	strategies := []resolver.Strategy{
		&resolver.SemanticQuery{
			Selectors: []string{`[data-testid="create-character"]`},
			Texts:     []string{"Create character", "Create cameo"},
		},
		&resolver.GeometryScan{Spec: resolver.ScoreSpec{
			MinWidth: 120, MaxWidth: 420,
			MinHeight: 28, MaxHeight: 64,
			Region:    resolver.Region{XMin: 0.5, XMax: 1.0, YMin: 0.0, YMax: 0.6},
			TextHints: []string{"character", "cameo", "create"},
			ViewportW: w, ViewportH: h,
		}},
		&resolver.FixedCoordinates{Points: []resolver.Point{
			{X: w - 160, Y: 160},
		}},
	}

	return p.resolve(ctx, page, "create action", strategies, func(ctx context.Context) bool {
		return page.IsVisible(ctx, wizardDialogSel)
	}, plog)
}

func (p *Pipeline) trimConfirm(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	w, h := float64(p.viewport.Width), float64(p.viewport.Height)

	strategies := []resolver.Strategy{
		&resolver.SemanticQuery{
			Selectors: []string{
				`button[aria-label="Confirm trim"]`,
				`[data-testid="trim-confirm"]`,
			},
			Texts: []string{"Confirm", "Continue"},
		},
		&resolver.GeometryScan{Spec: resolver.ScoreSpec{
			MinWidth: 80, MaxWidth: 320,
			MinHeight: 32, MaxHeight: 64,
			Region:    resolver.Region{XMin: 0.5, XMax: 1.0, YMin: 0.65, YMax: 1.0},
			TextHints: []string{"confirm", "continue"},
			ViewportW: w, ViewportH: h,
		}},
		&resolver.FixedCoordinates{Points: []resolver.Point{
			{X: w - 180, Y: h - 96},
			{X: w/2 + 160, Y: h - 120},
		}},
	}

	// Advancing past the trim screen removes the scrubber.
	return p.resolve(ctx, page, "trim confirm control", strategies, func(ctx context.Context) bool {
		return !page.IsVisible(ctx, trimScrubberSel)
	}, plog)
}

// awaitProcessing polls for the wizard's next button, which only appears once
// the upstream service has finished analyzing the clip.
func (p *Pipeline) awaitProcessing(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	plog.Info(ctx, "waiting for upstream processing (up to %s)", p.cfg.ProcessingTimeout)

	err := wait.Until(ctx, wait.Bounded(p.cfg.SettleDelay, p.cfg.ProcessingTimeout), p.sleep, func(ctx context.Context) bool {
		return page.IsVisible(ctx, nextButtonSel)
	})
	if err != nil {
		return resolver.Resolution{}, err
	}
	plog.Info(ctx, "upstream processing finished")
	return resolver.Resolution{}, nil
}

func (p *Pipeline) confirmDefaults(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	w, h := float64(p.viewport.Width), float64(p.viewport.Height)

	strategies := []resolver.Strategy{
		&resolver.SemanticQuery{
			Selectors: []string{nextButtonSel},
			Texts:     []string{"Next", "Continue"},
		},
		&resolver.GeometryScan{Spec: resolver.ScoreSpec{
			MinWidth: 80, MaxWidth: 320,
			MinHeight: 32, MaxHeight: 64,
			Region:    resolver.Region{XMin: 0.5, XMax: 1.0, YMin: 0.65, YMax: 1.0},
			TextHints: []string{"next", "continue"},
			ViewportW: w, ViewportH: h,
		}},
		&resolver.FixedCoordinates{Points: []resolver.Point{
			{X: w - 180, Y: h - 96},
		}},
	}

	// Accepting a defaults screen either shows the next one or reveals the
	// visibility/save controls on the last screen.
	return p.resolve(ctx, page, "accept defaults control", strategies, func(ctx context.Context) bool {
		return page.IsVisible(ctx, nextButtonSel) ||
			page.IsVisible(ctx, visibilityChecked) ||
			page.IsVisible(ctx, saveButtonSel)
	}, plog)
}

func (p *Pipeline) setVisibility(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	w, h := float64(p.viewport.Width), float64(p.viewport.Height)

	strategies := []resolver.Strategy{
		&resolver.SemanticQuery{
			Selectors: []string{
				`[data-testid="visibility-private"]`,
				`input[value="private"]`,
			},
			Texts: []string{"Only me"},
		},
		&resolver.GeometryScan{Spec: resolver.ScoreSpec{
			MinWidth: 120, MaxWidth: 520,
			MinHeight: 32, MaxHeight: 96,
			Region:    resolver.Region{XMin: 0.2, XMax: 0.8, YMin: 0.2, YMax: 0.9},
			TextHints: []string{"only me", "private"},
			ViewportW: w, ViewportH: h,
		}},
		&resolver.FixedCoordinates{Points: []resolver.Point{
			{X: w / 2, Y: h/2 + 60},
		}},
	}

	return p.resolve(ctx, page, "visibility option", strategies, func(ctx context.Context) bool {
		return page.IsVisible(ctx, visibilityChecked)
	}, plog)
}

func (p *Pipeline) save(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	w, h := float64(p.viewport.Width), float64(p.viewport.Height)

	strategies := []resolver.Strategy{
		&resolver.SemanticQuery{
			Selectors: []string{saveButtonSel, `[role="dialog"] button[type="submit"]`},
			Texts:     []string{"Save"},
		},
		&resolver.GeometryScan{Spec: resolver.ScoreSpec{
			MinWidth: 80, MaxWidth: 320,
			MinHeight: 32, MaxHeight: 64,
			Region:    resolver.Region{XMin: 0.5, XMax: 1.0, YMin: 0.65, YMax: 1.0},
			TextHints: []string{"save"},
			ViewportW: w, ViewportH: h,
		}},
		&resolver.FixedCoordinates{Points: []resolver.Point{
			{X: w - 180, Y: h - 96},
		}},
	}

	// Saving either closes the wizard or navigates straight to the profile.
	return p.resolve(ctx, page, "save control", strategies, func(ctx context.Context) bool {
		if !page.IsVisible(ctx, wizardDialogSel) {
			return true
		}
		return p.onResultPage(ctx, page)
	}, plog)
}

func (p *Pipeline) awaitResult(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error) {
	err := wait.Until(ctx, wait.Bounded(p.cfg.SettleDelay, p.cfg.ResolveTimeout), p.sleep, func(ctx context.Context) bool {
		return p.onResultPage(ctx, page)
	})
	if err != nil {
		return resolver.Resolution{}, err
	}

	url, _ := page.CurrentURL(ctx)
	plog.Info(ctx, "result page reached: %s", url)
	return resolver.Resolution{}, nil
}

func (p *Pipeline) onResultPage(ctx context.Context, page schemas.Page) bool {
	url, err := page.CurrentURL(ctx)
	return err == nil && strings.Contains(url, resultPathMarker)
}
