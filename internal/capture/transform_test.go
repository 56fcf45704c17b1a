package capture

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mossy-p/screen-relay/internal/models"
)

var retina = models.DisplayMetrics{
	LogicalWidth:   1920,
	LogicalHeight:  1080,
	PhysicalWidth:  3840,
	PhysicalHeight: 2160,
	ScaleFactor:    2,
}

func desktopCtx(d models.DisplayMetrics) models.CaptureContext {
	return models.CaptureContext{
		CaptureTarget: models.CaptureTarget{Mode: models.CaptureDesktop},
		Display:       d,
	}
}

func windowCtx(id int, d models.DisplayMetrics) models.CaptureContext {
	return models.CaptureContext{
		CaptureTarget: models.CaptureTarget{Mode: models.CaptureWindow, WindowID: id},
		Display:       d,
	}
}

func TestHeuristicTransform(t *testing.T) {
	tests := []struct {
		name   string
		t      HeuristicTransformer
		p      models.Point
		canvas models.Size
		cc     models.CaptureContext
		want   image.Point
	}{
		{
			name:   "desktop at physical resolution scales down",
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{Width: 3840, Height: 2160},
			cc:     desktopCtx(retina),
			want:   image.Point{X: 50, Y: 50},
		},
		{
			name:   "desktop at logical resolution passes through",
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{Width: 1920, Height: 1080},
			cc:     desktopCtx(retina),
			want:   image.Point{X: 100, Y: 100},
		},
		{
			name:   "desktop requires exact match on both axes",
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{Width: 3840, Height: 2000},
			cc:     desktopCtx(retina),
			want:   image.Point{X: 100, Y: 100},
		},
		{
			name:   "window smaller than physical display is treated as retina",
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{Width: 800, Height: 600},
			cc:     windowCtx(42, retina),
			want:   image.Point{X: 50, Y: 50},
		},
		{
			name:   "window as large as the display passes through",
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{Width: 3840, Height: 600},
			cc:     windowCtx(42, retina),
			want:   image.Point{X: 100, Y: 100},
		},
		{
			name:   "results are rounded, not truncated",
			p:      models.Point{X: 101, Y: 99},
			canvas: models.Size{Width: 3840, Height: 2160},
			cc:     desktopCtx(retina),
			want:   image.Point{X: 51, Y: 50},
		},
		{
			name:   "pass-through rounds fractional input",
			p:      models.Point{X: 10.4, Y: 10.5},
			canvas: models.Size{Width: 1, Height: 1},
			cc:     desktopCtx(retina),
			want:   image.Point{X: 10, Y: 11},
		},
		{
			name:   "offsets are added after scaling",
			t:      HeuristicTransformer{OffsetX: 3, OffsetY: -2},
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{Width: 3840, Height: 2160},
			cc:     desktopCtx(retina),
			want:   image.Point{X: 53, Y: 48},
		},
		{
			name:   "missing canvas size never scales",
			t:      HeuristicTransformer{OffsetX: 1, OffsetY: 1},
			p:      models.Point{X: 100, Y: 100},
			canvas: models.Size{},
			cc:     windowCtx(42, retina),
			want:   image.Point{X: 101, Y: 101},
		},
		{
			name:   "zero scale factor defaults to 2",
			p:      models.Point{X: 100, Y: 60},
			canvas: models.Size{Width: 800, Height: 600},
			cc: windowCtx(7, models.DisplayMetrics{
				PhysicalWidth: 2560, PhysicalHeight: 1600,
			}),
			want: image.Point{X: 50, Y: 30},
		},
		{
			name:   "non-integer scale factor",
			p:      models.Point{X: 300, Y: 150},
			canvas: models.Size{Width: 2880, Height: 1800},
			cc: desktopCtx(models.DisplayMetrics{
				PhysicalWidth: 2880, PhysicalHeight: 1800, ScaleFactor: 1.5,
			}),
			want: image.Point{X: 200, Y: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.Transform(tt.p, tt.canvas, tt.cc))
		})
	}
}

func TestHeuristicTransformScalesOnce(t *testing.T) {
	var tr HeuristicTransformer
	canvas := models.Size{Width: 3840, Height: 2160}
	cc := desktopCtx(retina)

	once := tr.Transform(models.Point{X: 400, Y: 200}, canvas, cc)
	assert.Equal(t, image.Point{X: 200, Y: 100}, once)

	twice := tr.Transform(models.Point{X: float64(once.X), Y: float64(once.Y)}, canvas, cc)
	assert.NotEqual(t, once, twice, "re-applying scales again; a single call divides exactly once")
	assert.Equal(t, image.Point{X: 100, Y: 50}, twice)
}
