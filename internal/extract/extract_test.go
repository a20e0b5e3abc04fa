package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/config"
)

// resultPage serves a canned URL and markup through the schemas.Page surface.
type resultPage struct {
	url     string
	html    string
	htmlErr error
}

func (p *resultPage) Navigate(ctx context.Context, url string) error      { return nil }
func (p *resultPage) CurrentURL(ctx context.Context) (string, error)      { return p.url, nil }
func (p *resultPage) IsVisible(ctx context.Context, selector string) bool { return false }
func (p *resultPage) ClickSelector(ctx context.Context, sel string) error { return nil }
func (p *resultPage) ClickByText(ctx context.Context, text string) error  { return nil }
func (p *resultPage) ClickAt(ctx context.Context, x, y float64) error     { return nil }
func (p *resultPage) Evaluate(ctx context.Context, js string, res interface{}) error {
	return nil
}
func (p *resultPage) HarvestInteractive(ctx context.Context) ([]schemas.PageElement, error) {
	return nil, nil
}
func (p *resultPage) CaptureScreenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (p *resultPage) CaptureHTML(ctx context.Context) (string, error)       { return p.html, p.htmlErr }

type memLog struct {
	lines []string
}

func (l *memLog) Info(_ context.Context, format string, args ...interface{}) {
	l.lines = append(l.lines, "info: "+fmt.Sprintf(format, args...))
}

func (l *memLog) Warn(_ context.Context, format string, args ...interface{}) {
	l.lines = append(l.lines, "warn: "+fmt.Sprintf(format, args...))
}

func (l *memLog) joined() string { return strings.Join(l.lines, "\n") }

func testSet() HeuristicSet {
	return NewHeuristicSet(config.ExtractorConfig{
		HeuristicsVersion: "sora-2025-08",
		NameMinLen:        2,
		NameMaxLen:        60,
		BoilerplatePhrase: "Character by",
		MinAvatarSize:     64,
	})
}

func TestExtractFullProfile(t *testing.T) {
	page := &resultPage{
		url: "https://sora.chatgpt.com/characters/ch_7f3a9b",
		html: `<html><body>
			<h1>Luna the Explorer</h1>
			<p>Character by alice</p>
			<img class="avatar-img" src="https://videos.openai.com/av/ch_7f3a9b.png" width="256" height="256">
		</body></html>`,
	}
	plog := &memLog{}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, plog)

	assert.Equal(t, "ch_7f3a9b", result.CharacterID)
	assert.Equal(t, page.url, result.ProfileURL)
	assert.Equal(t, "Luna the Explorer", result.DisplayName)
	assert.Equal(t, "https://videos.openai.com/av/ch_7f3a9b.png", result.AvatarURL)
}

func TestExtractIdentifierOnly(t *testing.T) {
	// A recognizable URL on an otherwise useless page still counts.
	page := &resultPage{
		url:  "https://sora.chatgpt.com/characters/ch_123abc",
		html: `<html><body><div class="app-shell"></div></body></html>`,
	}
	plog := &memLog{}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, plog)

	assert.Equal(t, "ch_123abc", result.CharacterID)
	assert.Empty(t, result.DisplayName)
	assert.Empty(t, result.AvatarURL)
	assert.False(t, result.Empty())
	assert.Contains(t, plog.joined(), "no display name")
	assert.Contains(t, plog.joined(), "no avatar")
}

func TestExtractUnrecognizedURL(t *testing.T) {
	page := &resultPage{
		url:  "https://sora.chatgpt.com/drafts",
		html: `<html><body></body></html>`,
	}
	plog := &memLog{}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, plog)

	assert.Empty(t, result.CharacterID)
	assert.Empty(t, result.ProfileURL)
	assert.Contains(t, plog.joined(), "no character ID")
}

func TestExtractCaptureFailureDegrades(t *testing.T) {
	page := &resultPage{
		url:     "https://sora.chatgpt.com/characters/ch_999",
		htmlErr: errors.New("tab crashed"),
	}
	plog := &memLog{}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, plog)

	assert.Equal(t, "ch_999", result.CharacterID, "identifier survives a markup capture failure")
	assert.Empty(t, result.DisplayName)
	assert.Contains(t, plog.joined(), "could not capture")
}

func TestDisplayNameFilters(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "boilerplate heading skipped for next candidate",
			html: `<h1>Character by alice</h1><h2>Nova</h2>`,
			want: "Nova",
		},
		{
			name: "too short rejected",
			html: `<h1>X</h1><h2>Orion Pax</h2>`,
			want: "Orion Pax",
		},
		{
			name: "too long rejected",
			html: `<h1>` + strings.Repeat("word ", 20) + `</h1><h2>Vega</h2>`,
			want: "Vega",
		},
		{
			name: "slug heading rejected",
			html: `<h1>ch_7f3a9b</h1><h2>Echo</h2>`,
			want: "Echo",
		},
		{
			name: "priority order prefers h1",
			html: `<h2>Second Choice</h2><h1>First Choice</h1>`,
			want: "First Choice",
		},
		{
			name: "nothing plausible",
			html: `<h1>Character by bob</h1>`,
			want: "",
		},
	}

	ex := New(zap.NewNop(), testSet())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := &resultPage{
				url:  "https://sora.chatgpt.com/characters/ch_7f3a9b",
				html: "<html><body>" + tc.html + "</body></html>",
			}
			result := ex.Extract(context.Background(), page, &memLog{})
			assert.Equal(t, tc.want, result.DisplayName)
		})
	}
}

func TestDisplayNameBoilerplateFallback(t *testing.T) {
	// Name and attribution share one text node; no heading carries the name.
	page := &resultPage{
		url:  "https://sora.chatgpt.com/characters/ch_1",
		html: `<html><body><div class="meta">Luna Character by alice</div></body></html>`,
	}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, &memLog{})
	assert.Equal(t, "Luna", result.DisplayName)
}

func TestAvatarMinSizeFilter(t *testing.T) {
	page := &resultPage{
		url: "https://sora.chatgpt.com/characters/ch_1",
		html: `<html><body>
			<img class="avatar-badge" src="https://videos.openai.com/small.png" width="16" height="16">
			<img class="avatar-img" src="https://videos.openai.com/big.png" width="128" height="128">
		</body></html>`,
	}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, &memLog{})
	assert.Equal(t, "https://videos.openai.com/big.png", result.AvatarURL,
		"icon-sized image is skipped even on a matching selector")
}

func TestAvatarFallbackSkipsChrome(t *testing.T) {
	// Nothing matches the prioritized selectors; the permissive scan must
	// still refuse UI chrome.
	page := &resultPage{
		url: "https://sora.chatgpt.com/characters/ch_1",
		html: `<html><body>
			<img src="https://static.example.com/logo.png" width="200" height="80">
			<img src="https://static.example.com/header-icon.svg" width="100" height="100">
			<img src="https://media.example.com/portrait.webp" width="300" height="300">
		</body></html>`,
	}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, &memLog{})
	assert.Equal(t, "https://media.example.com/portrait.webp", result.AvatarURL)
}

func TestAvatarMissingDimensionsAccepted(t *testing.T) {
	page := &resultPage{
		url:  "https://sora.chatgpt.com/characters/ch_1",
		html: `<html><body><img class="avatar" src="https://videos.openai.com/a.png"></body></html>`,
	}

	result := New(zap.NewNop(), testSet()).Extract(context.Background(), page, &memLog{})
	require.Equal(t, "https://videos.openai.com/a.png", result.AvatarURL)
}
