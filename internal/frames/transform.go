package frames

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// ErrFrameCodec marks a frame that could not be decoded or encoded.
// Callers drop such frames and keep going.
var ErrFrameCodec = errors.New("frame codec failure")

const DefaultJPEGQuality = 85

// LabelFunc produces the overlay text for a successfully decoded frame.
// It is called at most once per frame and only after decoding succeeded.
type LabelFunc func() string

type Transformer struct {
	Quality int
}

func NewTransformer(quality int) *Transformer {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Transformer{Quality: quality}
}

// Transform decodes a JPEG, rotates it, draws the label at LabelOrigin and re-encodes.
func (t *Transformer) Transform(data []byte, rot Rotation, label LabelFunc) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	var text string
	if label != nil {
		text = label()
	}

	out := Rotate(ToRGBA(img), rot)
	if text != "" {
		DrawLabel(out, text, LabelOrigin, LabelColor)
	}
	return t.Encode(out)
}

// RotateJPEG applies only the rotation. RotateNone returns data untouched.
func (t *Transformer) RotateJPEG(data []byte, rot Rotation) ([]byte, error) {
	if rot == RotateNone || rot == "" {
		return data, nil
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return t.Encode(Rotate(ToRGBA(img), rot))
}

// Annotate draws a banner with text over the top of a JPEG.
func (t *Transformer) Annotate(data []byte, text string) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rgba := ToRGBA(img)
	DrawBanner(rgba, text, BannerColor)
	return t.Encode(rgba)
}

func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrFrameCodec)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFrameCodec, err)
	}
	return img, nil
}

func (t *Transformer) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrFrameCodec, err)
	}
	return buf.Bytes(), nil
}
