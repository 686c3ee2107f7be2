// Package picker renders a magnified view around a screen point so a user
// can pick the exact pixel to watch.
package picker

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"colorbot/internal/pixel"
)

var (
	crosshair  = color.RGBA{R: 255, A: 255}
	background = color.RGBA{A: 255}
)

type Options struct {
	Radius  int
	Zoom    int
	DPI     float64
	Size    float64
	Hinting string
}

type Renderer struct {
	opts Options
	font *truetype.Font
}

func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Radius < 0 || opts.Zoom < 1 {
		return nil, fmt.Errorf("invalid picker geometry: radius %d zoom %d", opts.Radius, opts.Zoom)
	}
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Renderer{opts: opts, font: f}, nil
}

// Render crops the (2*Radius+1)² cells around center, scales them by Zoom,
// outlines the center cell and writes the sampled location and color
// underneath. Cells outside src stay black.
func (r *Renderer) Render(src image.Image, center image.Point) (*image.RGBA, pixel.Sample, error) {
	if !center.In(src.Bounds()) {
		return nil, pixel.Sample{}, errors.New("point is outside the screenshot")
	}
	sample := pixel.Sample{Point: center, Color: pixel.FromColor(src.At(center.X, center.Y))}

	radius, zoom := r.opts.Radius, r.opts.Zoom
	side := (2*radius + 1) * zoom
	labelHeight := int(r.opts.Size*r.opts.DPI/72*1.6) + 4

	dst := image.NewRGBA(image.Rect(0, 0, side, side+labelHeight))
	stddraw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, stddraw.Src)

	origin := center.Sub(image.Pt(radius, radius))
	crop := image.Rect(origin.X, origin.Y, origin.X+2*radius+1, origin.Y+2*radius+1).Intersect(src.Bounds())
	target := image.Rectangle{
		Min: crop.Min.Sub(origin).Mul(zoom),
		Max: crop.Max.Sub(origin).Mul(zoom),
	}
	draw.NearestNeighbor.Scale(dst, target, src, crop, draw.Src, nil)

	cell := image.Rect(radius*zoom, radius*zoom, (radius+1)*zoom, (radius+1)*zoom)
	outline(dst, cell.Inset(-1), crosshair)

	if err := r.label(dst, side, sample.String()); err != nil {
		return nil, pixel.Sample{}, err
	}
	return dst, sample, nil
}

func outline(dst *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Intersect(dst.Bounds())
	for x := rect.Min.X; x < rect.Max.X; x++ {
		dst.SetRGBA(x, rect.Min.Y, c)
		dst.SetRGBA(x, rect.Max.Y-1, c)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		dst.SetRGBA(rect.Min.X, y, c)
		dst.SetRGBA(rect.Max.X-1, y, c)
	}
}

func (r *Renderer) label(dst *image.RGBA, top int, text string) error {
	c := freetype.NewContext()
	c.SetDPI(r.opts.DPI)
	c.SetFont(r.font)
	c.SetFontSize(r.opts.Size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.White)
	switch r.opts.Hinting {
	case "full":
		c.SetHinting(font.HintingFull)
	default:
		c.SetHinting(font.HintingNone)
	}

	pt := freetype.Pt(2, top+2+int(c.PointToFixed(r.opts.Size)>>6))
	if _, err := c.DrawString(text, pt); err != nil {
		return fmt.Errorf("failed to draw label: %w", err)
	}
	return nil
}
