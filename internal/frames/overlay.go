package frames

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	LabelColor  = color.RGBA{0, 255, 0, 255}
	BannerColor = color.RGBA{255, 0, 0, 255}
)

// LabelOrigin is the baseline-left position of the FPS label.
var LabelOrigin = image.Pt(10, 30)

// DrawLabel writes text with its baseline starting at pt.
func DrawLabel(dst draw.Image, text string, pt image.Point, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(text)
}

// DrawBanner paints a dark strip across the top of dst and writes text on it.
func DrawBanner(dst *image.RGBA, text string, col color.Color) {
	b := dst.Bounds()
	strip := image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+20)
	draw.Draw(dst, strip.Intersect(b), image.NewUniform(color.RGBA{0, 0, 0, 200}), image.Point{}, draw.Over)
	DrawLabel(dst, text, image.Pt(b.Min.X+6, b.Min.Y+15), col)
}
