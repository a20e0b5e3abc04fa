package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/config"
)

// identifierPattern matches the character slug in a profile URL, e.g.
// https://sora.chatgpt.com/characters/ch_a1b2c3.
var identifierPattern = regexp.MustCompile(`/characters/([A-Za-z0-9._~-]+)`)

// HeuristicSet is one versioned bundle of result-page scraping rules. The
// upstream page ships layout changes without notice, so everything tunable
// lives here rather than inline, and the version is logged with every
// extraction for triage.
type HeuristicSet struct {
	Version string

	// NameSelectors are scanned in priority order for the display name.
	NameSelectors []string
	// NameMinLen/NameMaxLen reject implausible candidates (single glyphs,
	// whole paragraphs).
	NameMinLen int
	NameMaxLen int
	// BoilerplatePhrase is both a rejection filter ("Character by …" is not
	// a name) and the anchor for the fallback extraction.
	BoilerplatePhrase string

	// AvatarSelectors are scanned in priority order for the avatar image.
	AvatarSelectors []string
	// MinAvatarSize rejects icon-sized images, in CSS pixels per axis.
	MinAvatarSize int

	// iconWords disqualify an image in the permissive fallback scan.
	iconWords []string
}

// NewHeuristicSet builds the rule bundle from config, filling the selector
// lists the config file does not carry.
func NewHeuristicSet(cfg config.ExtractorConfig) HeuristicSet {
	return HeuristicSet{
		Version:           cfg.HeuristicsVersion,
		NameSelectors: []string{
			"h1",
			"h2",
			`[data-testid*="name"]`,
			`[class*="character-name"]`,
			`[class*="profile-name"]`,
			`[aria-label*="name"]`,
		},
		NameMinLen:        cfg.NameMinLen,
		NameMaxLen:        cfg.NameMaxLen,
		BoilerplatePhrase: cfg.BoilerplatePhrase,
		AvatarSelectors: []string{
			`img[src*="videos.openai.com"]`,
			`img[src*="oaiusercontent"]`,
			`img[class*="avatar"]`,
			`img[alt*="avatar"]`,
			`img[class*="profile"]`,
		},
		MinAvatarSize: cfg.MinAvatarSize,
		iconWords:     []string{"icon", "logo", "favicon", "emoji", "sprite"},
	}
}

// ProgressLog receives the per-field outcome lines. The task log satisfies
// this.
type ProgressLog interface {
	Info(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
}

// Extractor scrapes the finished character's profile page. Every field is
// independent and optional: a page that yields only an identifier is still a
// successful extraction.
type Extractor struct {
	logger *zap.Logger
	set    HeuristicSet
}

func New(logger *zap.Logger, set HeuristicSet) *Extractor {
	return &Extractor{
		logger: logger.Named("extract"),
		set:    set,
	}
}

// Extract reads the current URL and markup from the page and runs the
// heuristics. It never fails the task: capture or parse errors degrade to an
// emptier result with warnings in the progress log.
func (e *Extractor) Extract(ctx context.Context, page schemas.Page, plog ProgressLog) schemas.CharacterResult {
	var result schemas.CharacterResult

	url, err := page.CurrentURL(ctx)
	if err != nil {
		plog.Warn(ctx, "could not read result page URL: %v", err)
	}

	if id := e.identifierFromURL(url); id != "" {
		result.CharacterID = id
		result.ProfileURL = url
		plog.Info(ctx, "character ID: %s", id)
	} else {
		plog.Warn(ctx, "no character ID recognized in URL %q", url)
	}

	doc := e.loadDocument(ctx, page, plog)
	if doc != nil {
		if name := e.displayName(doc); name != "" {
			result.DisplayName = name
			plog.Info(ctx, "display name: %s", name)
		} else {
			plog.Warn(ctx, "no display name found on result page")
		}

		if avatar := e.avatarURL(doc); avatar != "" {
			result.AvatarURL = avatar
			plog.Info(ctx, "avatar URL: %s", avatar)
		} else {
			plog.Warn(ctx, "no avatar image found on result page")
		}
	}

	e.logger.Info("Extraction finished",
		zap.String("heuristics", e.set.Version),
		zap.Bool("id", result.CharacterID != ""),
		zap.Bool("name", result.DisplayName != ""),
		zap.Bool("avatar", result.AvatarURL != ""),
	)
	return result
}

func (e *Extractor) loadDocument(ctx context.Context, page schemas.Page, plog ProgressLog) *goquery.Document {
	html, err := page.CaptureHTML(ctx)
	if err != nil {
		plog.Warn(ctx, "could not capture result page markup: %v", err)
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		plog.Warn(ctx, "could not parse result page markup: %v", err)
		return nil
	}
	return doc
}

func (e *Extractor) identifierFromURL(url string) string {
	m := identifierPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// displayName scans the prioritized selectors, then falls back to text in
// front of the boilerplate phrase.
func (e *Extractor) displayName(doc *goquery.Document) string {
	for _, sel := range e.set.NameSelectors {
		var name string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			candidate := strings.TrimSpace(s.Text())
			if e.plausibleName(candidate) {
				name = candidate
				return false
			}
			return true
		})
		if name != "" {
			return name
		}
	}
	return e.nameBeforeBoilerplate(doc)
}

func (e *Extractor) plausibleName(s string) bool {
	if len(s) < e.set.NameMinLen || len(s) > e.set.NameMaxLen {
		return false
	}
	if e.set.BoilerplatePhrase != "" && strings.Contains(s, e.set.BoilerplatePhrase) {
		return false
	}
	// The slug itself sometimes shows up as a heading.
	if identifierPattern.MatchString("/characters/" + s) && strings.HasPrefix(s, "ch_") {
		return false
	}
	return true
}

// nameBeforeBoilerplate handles layouts where the name and the attribution
// line share one text node, e.g. "Luna Character by alice".
func (e *Extractor) nameBeforeBoilerplate(doc *goquery.Document) string {
	if e.set.BoilerplatePhrase == "" {
		return ""
	}
	re, err := regexp.Compile(`([^\n]+?)\s*` + regexp.QuoteMeta(e.set.BoilerplatePhrase))
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(doc.Text())
	if m == nil {
		return ""
	}
	candidate := strings.TrimSpace(m[1])
	if e.plausibleName(candidate) {
		return candidate
	}
	return ""
}

// avatarURL scans the prioritized image selectors, then permissively accepts
// any large-enough image not named like UI chrome.
func (e *Extractor) avatarURL(doc *goquery.Document) string {
	for _, sel := range e.set.AvatarSelectors {
		var url string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, ok := s.Attr("src")
			if ok && src != "" && e.sizeOK(s) {
				url = src
				return false
			}
			return true
		})
		if url != "" {
			return url
		}
	}

	var url string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || src == "" || !e.sizeOK(s) {
			return true
		}
		probe := strings.ToLower(src + " " + s.AttrOr("alt", "") + " " + s.AttrOr("class", ""))
		for _, word := range e.set.iconWords {
			if strings.Contains(probe, word) {
				return true
			}
		}
		url = src
		return false
	})
	return url
}

// sizeOK checks declared dimensions against the icon threshold. Images with
// no size attributes pass; serialized markup often omits them.
func (e *Extractor) sizeOK(s *goquery.Selection) bool {
	for _, attr := range []string{"width", "height"} {
		raw, ok := s.Attr(attr)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "px"))
		if err != nil {
			continue
		}
		if n < e.set.MinAvatarSize {
			return false
		}
	}
	return true
}
