package overlay

import "testing"

func TestComputeGeometry(t *testing.T) {
	area := Rect{X: 0, Y: 0, Width: 1920, Height: 1080}

	tests := []struct {
		name    string
		percent float64
		pos     string
		area    Rect
		pointer Point
		want    Rect
	}{
		{
			name:    "default size bottom right",
			percent: 0,
			pos:     PositionBottomRight,
			area:    area,
			want:    Rect{X: 1920 - 384 - 16, Y: 1080 - 280 - 16, Width: 384, Height: 280},
		},
		{
			name:    "percent clamped up to 15",
			percent: 5,
			pos:     PositionBottomRight,
			area:    Rect{Width: 3000, Height: 2000},
			want:    Rect{X: 3000 - 450 - 16, Y: 2000 - 300 - 16, Width: 450, Height: 300},
		},
		{
			name:    "percent clamped down to 45",
			percent: 90,
			pos:     PositionBottomRight,
			area:    area,
			want:    Rect{X: 1920 - 864 - 16, Y: 1080 - 486 - 16, Width: 864, Height: 486},
		},
		{
			name:    "near cursor offset",
			percent: 20,
			pos:     PositionNearCursor,
			area:    area,
			pointer: Point{X: 100, Y: 200},
			want:    Rect{X: 116, Y: 216, Width: 384, Height: 280},
		},
		{
			name:    "near cursor at far corner clamps inside",
			percent: 20,
			pos:     PositionNearCursor,
			area:    area,
			pointer: Point{X: 1919, Y: 1079},
			want:    Rect{X: 1920 - 384, Y: 1080 - 280, Width: 384, Height: 280},
		},
		{
			name:    "offset work area",
			percent: 20,
			pos:     PositionNearCursor,
			area:    Rect{X: -1920, Y: 40, Width: 1920, Height: 1040},
			pointer: Point{X: -3000, Y: 0},
			want:    Rect{X: -1920, Y: 40, Width: 384, Height: 280},
		},
		{
			name:    "tiny display capped to area",
			percent: 20,
			pos:     PositionBottomRight,
			area:    Rect{X: 10, Y: 10, Width: 300, Height: 200},
			want:    Rect{X: 10, Y: 10, Width: 300, Height: 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeGeometry(tt.percent, tt.pos, tt.area, tt.pointer)
			if got != tt.want {
				t.Errorf("ComputeGeometry = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeGeometry_AlwaysInsideWorkArea(t *testing.T) {
	areas := []Rect{
		{Width: 1280, Height: 720},
		{X: 1920, Y: 0, Width: 2560, Height: 1440},
		{X: 0, Y: 25, Width: 1440, Height: 875},
		{Width: 320, Height: 280},
	}
	pointers := []Point{{0, 0}, {5000, 5000}, {-5000, -5000}, {700, 400}}
	percents := []float64{0, 1, 15, 20, 33.3, 45, 100}

	for _, area := range areas {
		for _, ptr := range pointers {
			for _, pct := range percents {
				for _, pos := range []string{PositionBottomRight, PositionNearCursor} {
					r := ComputeGeometry(pct, pos, area, ptr)
					if r.X < area.X || r.Y < area.Y ||
						r.X+r.Width > area.X+area.Width || r.Y+r.Height > area.Y+area.Height {
						t.Fatalf("%v %v %v %s: %+v escapes work area", area, ptr, pct, pos, r)
					}
					if r.Width < min(minWidth, area.Width) || r.Height < min(minHeight, area.Height) {
						t.Fatalf("%v %v %s: %+v below minimum size", area, pct, pos, r)
					}
				}
			}
		}
	}
}
