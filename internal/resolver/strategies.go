package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// SemanticQuery locates the target through attribute- and text-based DOM
// lookups. Most specific strategy; tried first.
type SemanticQuery struct {
	// Selectors are CSS selectors in priority order.
	Selectors []string
	// Texts are visible-text fragments to click on, tried after the selectors.
	Texts []string
}

func (s *SemanticQuery) Kind() schemas.StrategyKind { return schemas.StrategySemantic }

func (s *SemanticQuery) Candidates(_ context.Context, page schemas.Page) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(s.Selectors)+len(s.Texts))

	for _, sel := range s.Selectors {
		sel := sel
		candidates = append(candidates, Candidate{
			Description: fmt.Sprintf("selector %q", sel),
			Click: func(ctx context.Context) error {
				return page.ClickSelector(ctx, sel)
			},
		})
	}
	for _, text := range s.Texts {
		text := text
		candidates = append(candidates, Candidate{
			Description: fmt.Sprintf("text %q", text),
			Click: func(ctx context.Context) error {
				return page.ClickByText(ctx, text)
			},
		})
	}
	return candidates, nil
}

// Region is a viewport-fraction box, e.g. {0.7, 1.0, 0.0, 0.3} for the top
// right corner.
type Region struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Contains reports whether a viewport point normalized against w x h falls
// inside the region. A zero Region accepts everything.
func (r Region) Contains(x, y, w, h float64) bool {
	if r == (Region{}) {
		return true
	}
	fx, fy := x/w, y/h
	return fx >= r.XMin && fx <= r.XMax && fy >= r.YMin && fy <= r.YMax
}

// ScoreSpec describes what the target should look like: box size windows,
// shape, expected screen region and optional text hints. Elements failing a
// hard window score zero and are dropped.
type ScoreSpec struct {
	MinWidth, MaxWidth   float64
	MinHeight, MaxHeight float64
	// AspectMin/Max bound width/height; zero values disable the check.
	AspectMin, AspectMax float64
	Region               Region
	TextHints            []string
	ViewportW, ViewportH float64
}

// Score rates an element against the expected windows. Zero means rejected.
func (s ScoreSpec) Score(e schemas.PageElement) float64 {
	if s.MinWidth > 0 && e.Width < s.MinWidth {
		return 0
	}
	if s.MaxWidth > 0 && e.Width > s.MaxWidth {
		return 0
	}
	if s.MinHeight > 0 && e.Height < s.MinHeight {
		return 0
	}
	if s.MaxHeight > 0 && e.Height > s.MaxHeight {
		return 0
	}
	if e.Height > 0 && (s.AspectMin > 0 || s.AspectMax > 0) {
		aspect := e.Width / e.Height
		if s.AspectMin > 0 && aspect < s.AspectMin {
			return 0
		}
		if s.AspectMax > 0 && aspect > s.AspectMax {
			return 0
		}
	}
	if !s.Region.Contains(e.CenterX(), e.CenterY(), s.ViewportW, s.ViewportH) {
		return 0
	}

	score := 1.0
	lower := strings.ToLower(e.Text)
	for _, hint := range s.TextHints {
		if hint != "" && strings.Contains(lower, strings.ToLower(hint)) {
			score += 1.0
		}
	}
	return score
}

// GeometryScan harvests the page's visible interactive elements and scores
// them against the score windows, best match first. Used when the page offers nothing
// queryable for the target.
type GeometryScan struct {
	Spec ScoreSpec
}

func (g *GeometryScan) Kind() schemas.StrategyKind { return schemas.StrategyGeometry }

func (g *GeometryScan) Candidates(ctx context.Context, page schemas.Page) ([]Candidate, error) {
	elements, err := page.HarvestInteractive(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		el    schemas.PageElement
		score float64
	}
	matches := make([]scored, 0, len(elements))
	for _, el := range elements {
		if sc := g.Spec.Score(el); sc > 0 {
			matches = append(matches, scored{el: el, score: sc})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		el := m.el
		desc := fmt.Sprintf("<%s> %.0fx%.0f at (%.0f, %.0f)", el.TagName, el.Width, el.Height, el.CenterX(), el.CenterY())
		if el.Text != "" {
			desc = fmt.Sprintf("%s %q", desc, el.Text)
		}
		candidates = append(candidates, Candidate{
			Description: desc,
			Click: func(ctx context.Context) error {
				return page.ClickAt(ctx, el.CenterX(), el.CenterY())
			},
		})
	}
	return candidates, nil
}

// Point is one hard-coded viewport position.
type Point struct {
	X, Y float64
}

// FixedCoordinates clicks blind at configured positions, in order. Last
// resort; only valid for the configured viewport size.
type FixedCoordinates struct {
	Points []Point
}

func (f *FixedCoordinates) Kind() schemas.StrategyKind { return schemas.StrategyCoordinates }

func (f *FixedCoordinates) Candidates(_ context.Context, page schemas.Page) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(f.Points))
	for i, pt := range f.Points {
		pt := pt
		candidates = append(candidates, Candidate{
			Description: fmt.Sprintf("fixed point #%d (%.0f, %.0f)", i+1, pt.X, pt.Y),
			Click: func(ctx context.Context) error {
				return page.ClickAt(ctx, pt.X, pt.Y)
			},
		})
	}
	return candidates, nil
}
