package browser

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Pointer movement tuning. Duration follows a Fitts's-law curve: longer
// travel takes disproportionately less extra time, like a real hand.
const (
	fittsA          = 80.0  // base movement cost, ms
	fittsB          = 140.0 // cost per bit of difficulty, ms
	fittsWidth      = 30.0  // assumed target width, px
	minTravelSteps  = 6
	maxTravelSteps  = 28
	pixelsPerStep   = 24.0
)

// cursor tracks the pointer position across coordinate clicks so successive
// clicks travel a continuous, eased path instead of teleporting. The upstream
// site watches pointer telemetry; instantaneous jumps get a session flagged.
type cursor struct {
	mu   sync.Mutex
	x, y float64
	rng  *rand.Rand
}

func newCursor(viewportW, viewportH int) *cursor {
	return &cursor{
		x:   float64(viewportW) / 2,
		y:   float64(viewportH) / 2,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// travelTime estimates how long the movement should take, jittered +/- 15%.
func (c *cursor) travelTime(distance float64) time.Duration {
	difficulty := math.Log2(1.0 + distance/fittsWidth)
	ms := fittsA + fittsB*difficulty
	ms += ms * (c.rng.Float64()*0.3 - 0.15)
	return time.Duration(ms) * time.Millisecond
}

// travel returns the mouse-move actions from the last known position to the
// target, following a lightly arced, eased path, and records the new
// position. A short hop produces no intermediate moves.
func (c *cursor) travel(x, y float64) []chromedp.Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	startX, startY := c.x, c.y
	c.x, c.y = x, y

	dx, dy := x-startX, y-startY
	distance := math.Hypot(dx, dy)
	if distance < 2.0 {
		return nil
	}

	steps := int(distance / pixelsPerStep)
	if steps < minTravelSteps {
		steps = minTravelSteps
	}
	if steps > maxTravelSteps {
		steps = maxTravelSteps
	}
	stepDelay := c.travelTime(distance) / time.Duration(steps)

	// Bow the path perpendicular to the direct line.
	arc := (c.rng.Float64() - 0.5) * distance * 0.2
	perpX, perpY := -dy/distance, dx/distance

	actions := make([]chromedp.Action, 0, steps*2)
	for i := 1; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		bow := arc * 4 * t * (1 - t)
		px := startX + dx*t + perpX*bow + (c.rng.Float64()-0.5)*1.5
		py := startY + dy*t + perpY*bow + (c.rng.Float64()-0.5)*1.5
		if i == steps {
			px, py = x, y
		}
		actions = append(actions,
			input.DispatchMouseEvent(input.MouseMoved, px, py),
			chromedp.Sleep(stepDelay),
		)
	}
	return actions
}
