package overlay

import "math"

// Placement modes.
const (
	PositionBottomRight = "bottom-right"
	PositionNearCursor  = "near-cursor"
)

const (
	defaultSizePercent = 20
	minSizePercent     = 15
	maxSizePercent     = 45
	minWidth           = 320
	minHeight          = 280
	margin             = 16
)

// Rect is a screen rectangle in logical pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a screen position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// ComputeGeometry sizes the overlay as a percentage of the work area and
// places it either just below-right of the pointer or in the bottom-right
// corner. The result always lies inside the work area.
func ComputeGeometry(sizePercent float64, position string, area Rect, pointer Point) Rect {
	p := sizePercent
	if p == 0 {
		p = defaultSizePercent
	}
	p = min(max(p, minSizePercent), maxSizePercent)

	width := max(minWidth, int(math.Round(float64(area.Width)*p/100)))
	height := max(minHeight, int(math.Round(float64(area.Height)*p/100)))
	// Displays smaller than the minimum size get the whole work area.
	width = min(width, area.Width)
	height = min(height, area.Height)

	var x, y int
	if position == PositionNearCursor {
		x = max(area.X, min(pointer.X+margin, area.X+area.Width-width))
		y = max(area.Y, min(pointer.Y+margin, area.Y+area.Height-height))
	} else {
		x = max(area.X, area.X+area.Width-width-margin)
		y = max(area.Y, area.Y+area.Height-height-margin)
	}

	return Rect{X: x, Y: y, Width: width, Height: height}
}
