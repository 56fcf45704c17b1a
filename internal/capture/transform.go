package capture

import (
	"image"
	"math"

	"github.com/mossy-p/screen-relay/internal/models"
)

// DefaultScaleFactor is assumed when display metrics carry no usable scale.
const DefaultScaleFactor = 2.0

// Transformer maps a viewer canvas point to source-display logical coordinates.
type Transformer interface {
	Transform(p models.Point, canvas models.Size, cc models.CaptureContext) image.Point
}

// HeuristicTransformer decides whether the frame the viewer saw was captured
// at physical (Retina) resolution by comparing the canvas size with the
// physical display size:
//
//   - desktop mode: canvas equal to the physical display means physical
//     resolution, so divide by the scale factor.
//   - window mode: canvas strictly smaller than the physical display on both
//     axes is assumed to be a Retina window capture, so divide as well.
//
// The window rule is a guess; it can be replaced once the capture process
// reports a per-window scale factor.
type HeuristicTransformer struct {
	OffsetX int
	OffsetY int
}

func (t HeuristicTransformer) Transform(p models.Point, canvas models.Size, cc models.CaptureContext) image.Point {
	x, y := p.X, p.Y
	if physicalCapture(canvas, cc) {
		scale := scaleFactor(cc.Display)
		x /= scale
		y /= scale
	}
	return image.Point{
		X: round(x) + t.OffsetX,
		Y: round(y) + t.OffsetY,
	}
}

func physicalCapture(canvas models.Size, cc models.CaptureContext) bool {
	if canvas.Width <= 0 || canvas.Height <= 0 {
		return false
	}
	d := cc.Display
	if cc.Mode == models.CaptureWindow {
		return canvas.Width < d.PhysicalWidth && canvas.Height < d.PhysicalHeight
	}
	return canvas.Width == d.PhysicalWidth && canvas.Height == d.PhysicalHeight
}

func scaleFactor(d models.DisplayMetrics) float64 {
	s := d.ScaleFactor
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return DefaultScaleFactor
	}
	return s
}

// round halves toward positive infinity, matching browser-side rounding.
func round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Floor(v + 0.5))
}
