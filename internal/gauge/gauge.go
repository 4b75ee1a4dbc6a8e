// Package gauge draws the semicircular confidence gauge shown next to a
// classification result.
package gauge

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
)

const (
	ColorPub   = "#ef4444"
	ColorNoPub = "#10b981"
	ColorTrack = "#e5e7eb"
	ColorText  = "#000000"

	DefaultWidth  = 200.0
	DefaultHeight = 120.0

	strokeWidth = 10.0
	margin      = 10.0
)

type Options struct {
	Width      float64
	Height     float64
	PixelRatio float64
}

// Gauge holds the geometry of one rendering. Angles follow the canvas
// convention: radians, y axis pointing down, π at the left end.
type Gauge struct {
	Value      float64
	Label      string
	Fraction   float64
	Color      string
	Width      float64
	Height     float64
	PixelRatio float64
	CenterX    float64
	CenterY    float64
	Radius     float64
	StartAngle float64
	EndAngle   float64
}

func New(value float64, label string, opts Options) Gauge {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.PixelRatio <= 0 || math.IsNaN(opts.PixelRatio) || math.IsInf(opts.PixelRatio, 0) {
		opts.PixelRatio = 1
	}

	v := clamp(value)
	fraction := v / 100

	color := ColorNoPub
	if label == "PUB" {
		color = ColorPub
	}

	return Gauge{
		Value:      v,
		Label:      label,
		Fraction:   fraction,
		Color:      color,
		Width:      opts.Width,
		Height:     opts.Height,
		PixelRatio: opts.PixelRatio,
		CenterX:    opts.Width / 2,
		CenterY:    opts.Height - margin,
		Radius:     opts.Width/2 - margin,
		StartAngle: math.Pi,
		EndAngle:   math.Pi + math.Pi*fraction,
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// SweepAngle is the arc length of the indicator in radians.
func (g Gauge) SweepAngle() float64 {
	return g.EndAngle - g.StartAngle
}

func (g Gauge) point(angle float64) (float64, float64) {
	return g.CenterX + g.Radius*math.Cos(angle), g.CenterY + g.Radius*math.Sin(angle)
}

func (g Gauge) arcPath(from, to float64) string {
	x0, y0 := g.point(from)
	x1, y1 := g.point(to)
	// sweep-flag 1 draws clockwise on screen, i.e. over the top.
	return fmt.Sprintf("M %s %s A %s %s 0 0 1 %s %s", num(x0), num(y0), num(g.Radius), num(g.Radius), num(x1), num(y1))
}

// SVG renders the gauge at Width×Height CSS pixels scaled by PixelRatio.
func (g Gauge) SVG() string {
	var b strings.Builder

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s" role="img" aria-label="%s %s%%">`,
		num(g.Width*g.PixelRatio), num(g.Height*g.PixelRatio), num(g.Width), num(g.Height),
		html.EscapeString(g.Label), num(g.Value))

	fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="%s"/>`,
		g.arcPath(g.StartAngle, 2*math.Pi), ColorTrack, num(strokeWidth))

	if g.Fraction > 0 {
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="%s" stroke-linecap="round"/>`,
			g.arcPath(g.StartAngle, g.EndAngle), g.Color, num(strokeWidth))
	}

	fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="middle" font-family="sans-serif" font-weight="bold" font-size="24" fill="%s">%s%%</text>`,
		num(g.CenterX), num(g.CenterY-20), ColorText, num(g.Value))
	fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="middle" font-family="sans-serif" font-weight="bold" font-size="16" fill="%s">%s</text>`,
		num(g.CenterX), num(g.CenterY-45), g.Color, html.EscapeString(g.Label))

	b.WriteString(`</svg>`)
	return b.String()
}

func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}
