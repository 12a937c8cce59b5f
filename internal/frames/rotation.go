package frames

import (
	"fmt"
	"image"
	"image/draw"
)

// Rotation is the per-camera display orientation.
type Rotation string

const (
	RotateNone    Rotation = "none"
	Rotate180     Rotation = "180"
	Rotate90Left  Rotation = "90_left"  // counter-clockwise
	Rotate90Right Rotation = "90_right" // clockwise
)

// ParseRotation accepts the persisted names. Empty means none.
func ParseRotation(s string) (Rotation, error) {
	switch Rotation(s) {
	case "", RotateNone:
		return RotateNone, nil
	case Rotate180, Rotate90Left, Rotate90Right:
		return Rotation(s), nil
	}
	return RotateNone, fmt.Errorf("unknown rotation %q", s)
}

func (r Rotation) Valid() bool {
	_, err := ParseRotation(string(r))
	return err == nil
}

// ToRGBA returns img as a zero-origin *image.RGBA, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Rotate returns a new image for every rotation except none, which returns src as is.
func Rotate(src *image.RGBA, r Rotation) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()

	var dst *image.RGBA
	var mapXY func(x, y int) (int, int) // destination -> source

	switch r {
	case Rotate180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapXY = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case Rotate90Right:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapXY = func(x, y int) (int, int) { return y, h - 1 - x }
	case Rotate90Left:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapXY = func(x, y int) (int, int) { return w - 1 - y, x }
	default:
		return src
	}

	dw, dh := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < dh; y++ {
		row := y * dst.Stride
		for x := 0; x < dw; x++ {
			sx, sy := mapXY(x, y)
			si := src.PixOffset(src.Rect.Min.X+sx, src.Rect.Min.Y+sy)
			di := row + x*4
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
