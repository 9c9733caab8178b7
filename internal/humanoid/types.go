// internal/humanoid/types.go
package humanoid

import "math"

// MouseEventType defines the type of mouse event.
// These strings match the CDP Input.dispatchMouseEvent types.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton defines the mouse button.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData holds the data required to dispatch a mouse event.
type MouseEventData struct {
	Type       MouseEventType
	X          float64
	Y          float64
	Button     MouseButton
	ClickCount int
	// Buttons is the bitfield of currently held buttons (1: Left).
	Buttons int64
}

// ElementGeometry is the on-screen box of an element.
type ElementGeometry struct {
	// Vertices are the border box corners [x0, y0, x1, y1, x2, y2, x3, y3].
	Vertices []float64 `json:"vertices"`
	Width    int64     `json:"width"`
	Height   int64     `json:"height"`
}

// Center returns the centroid of the box.
func (g *ElementGeometry) Center() (Vector2D, bool) {
	if g == nil || len(g.Vertices) < 8 {
		return Vector2D{}, false
	}
	x := (g.Vertices[0] + g.Vertices[2] + g.Vertices[4] + g.Vertices[6]) / 4
	y := (g.Vertices[1] + g.Vertices[3] + g.Vertices[5] + g.Vertices[7]) / 4
	if math.IsNaN(x) || math.IsNaN(y) {
		return Vector2D{}, false
	}
	return Vector2D{X: x, Y: y}, true
}
