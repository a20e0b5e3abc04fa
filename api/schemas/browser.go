package schemas

import "context"

// Page is the surface of one browser tab that the resolver, pipeline and
// extractor consume. The concrete implementation lives in internal/browser;
// tests substitute fakes.
type Page interface {
	// Navigate loads a URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the address of the page as it is now.
	CurrentURL(ctx context.Context) (string, error)

	// IsVisible reports whether at least one element matching the selector is
	// currently rendered with a non-empty box.
	IsVisible(ctx context.Context, selector string) bool

	// ClickSelector clicks the first visible element matching a CSS selector.
	ClickSelector(ctx context.Context, selector string) error

	// ClickByText clicks the first visible clickable element whose text
	// contains the given string.
	ClickByText(ctx context.Context, text string) error

	// ClickAt dispatches a raw mouse click at viewport coordinates, bypassing
	// element hit-testing. Last-resort path; resolution dependent.
	ClickAt(ctx context.Context, x, y float64) error

	// HarvestInteractive enumerates the visible interactive elements on the
	// page with their geometry, for heuristic scoring.
	HarvestInteractive(ctx context.Context) ([]PageElement, error)

	// Evaluate runs a JavaScript expression and unmarshals its result.
	Evaluate(ctx context.Context, js string, res interface{}) error

	// CaptureScreenshot takes a full-page screenshot.
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	// CaptureHTML serializes the current page markup.
	CaptureHTML(ctx context.Context) (string, error)
}

// PageElement is one visible interactive element harvested from the page,
// described by enough geometry to score it against a visual heuristic.
type PageElement struct {
	TagName  string  `json:"tag"`
	Selector string  `json:"selector"`
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// CenterX returns the horizontal midpoint of the element's box.
func (e PageElement) CenterX() float64 { return e.X + e.Width/2 }

// CenterY returns the vertical midpoint of the element's box.
func (e PageElement) CenterY() float64 { return e.Y + e.Height/2 }
