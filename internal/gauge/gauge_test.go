package gauge

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFractionIsProportional(t *testing.T) {
	for v := 0.0; v <= 100; v += 0.5 {
		g := New(v, "PUB", Options{})
		assert.InDelta(t, v/100, g.Fraction, 1e-12, "value %v", v)
		assert.InDelta(t, math.Pi*v/100, g.SweepAngle(), 1e-12, "value %v", v)
	}
}

func TestColorKeyedToLabel(t *testing.T) {
	assert.Equal(t, ColorPub, New(50, "PUB", Options{}).Color)
	assert.Equal(t, ColorNoPub, New(50, "NO PUB", Options{}).Color)
	assert.Equal(t, ColorNoPub, New(50, "pub", Options{}).Color)
	assert.Equal(t, ColorNoPub, New(50, "", Options{}).Color)
}

func TestValueClamped(t *testing.T) {
	assert.Equal(t, 0.0, New(-5, "PUB", Options{}).Fraction)
	assert.Equal(t, 1.0, New(140, "PUB", Options{}).Fraction)
	assert.Equal(t, 0.0, New(math.NaN(), "PUB", Options{}).Fraction)
}

func TestGeometry(t *testing.T) {
	g := New(100, "PUB", Options{})
	assert.Equal(t, 100.0, g.CenterX)
	assert.Equal(t, 110.0, g.CenterY)
	assert.Equal(t, 90.0, g.Radius)

	x, y := g.point(g.EndAngle)
	assert.InDelta(t, 190, x, 1e-9)
	assert.InDelta(t, 110, y, 1e-9)

	top := New(50, "PUB", Options{})
	x, y = top.point(top.EndAngle)
	assert.InDelta(t, 100, x, 1e-9)
	assert.InDelta(t, 20, y, 1e-9)
}

func TestSVGScalesWithPixelRatio(t *testing.T) {
	svg := New(87, "PUB", Options{PixelRatio: 2}).SVG()
	assert.True(t, strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="240" viewBox="0 0 200 120"`))
	assert.Contains(t, svg, `stroke="`+ColorPub+`"`)
	assert.Contains(t, svg, ">87%</text>")
	assert.Contains(t, svg, ">PUB</text>")
}

func TestSVGOmitsIndicatorAtZero(t *testing.T) {
	svg := New(0, "NO PUB", Options{}).SVG()
	assert.Equal(t, 1, strings.Count(svg, "<path"))
	assert.Contains(t, svg, ">NO PUB</text>")
}

func TestSVGEscapesLabel(t *testing.T) {
	svg := New(10, `<script>`, Options{}).SVG()
	assert.NotContains(t, svg, "<script>")
	assert.Contains(t, svg, "&lt;script&gt;")
}
