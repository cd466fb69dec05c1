// Package strip composites the three captured photos into a single
// vertical strip image, optionally captioned, encoded as JPEG.
package strip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fakeyudi/smilebooth/internal/frame"
	"github.com/fakeyudi/smilebooth/internal/session"
)

// ErrPhotoCount is returned when Compose is called without exactly
// three photos. Callers treat it as a no-op precondition failure.
var ErrPhotoCount = errors.New("composing a strip requires exactly 3 photos")

// Layout constants. The canvas grows by CaptionMargin only when a
// caption is present.
const (
	Border        = 12
	CellWidth     = frame.Width
	CellHeight    = frame.Height
	CaptionMargin = 48
	OutQuality    = 90
)

// Composer lays out three frames top-to-bottom in capture order, each
// in its own bordered cell.
type Composer struct {
	Quality int // JPEG quality; 0 means OutQuality
}

// Size returns the canvas dimensions for a strip, with or without a
// caption region.
func (c *Composer) Size(withCaption bool) (w, h int) {
	w = CellWidth + 2*Border
	h = session.MaxPhotos*(CellHeight+Border) + Border
	if withCaption {
		h += CaptionMargin
	}
	return w, h
}

// Compose decodes the three photos concurrently, joins on all of them,
// draws the strip, and returns the encoded JPEG artifact.
func (c *Composer) Compose(photos []frame.Frame, caption string) ([]byte, error) {
	if len(photos) != session.MaxPhotos {
		return nil, ErrPhotoCount
	}

	// Decode each photo in its own goroutine. Completion order is
	// irrelevant; the draw below starts only once all three are in.
	type decoded struct {
		idx int
		img image.Image
		err error
	}
	results := make(chan decoded, session.MaxPhotos)
	for i, p := range photos {
		go func(idx int, data []byte) {
			img, err := jpeg.Decode(bytes.NewReader(data))
			results <- decoded{idx: idx, img: img, err: err}
		}(i, p.Data)
	}

	var imgs [session.MaxPhotos]image.Image
	for range imgs {
		d := <-results
		if d.err != nil {
			return nil, fmt.Errorf("decoding photo %d: %w", d.idx+1, d.err)
		}
		imgs[d.idx] = d.img
	}

	caption = truncateCaption(caption)
	width, height := c.Size(caption != "")
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))

	// White background doubles as the border color between cells.
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	for i, img := range imgs {
		cell := image.Rect(
			Border,
			Border+i*(CellHeight+Border),
			Border+CellWidth,
			Border+i*(CellHeight+Border)+CellHeight,
		)
		xdraw.ApproxBiLinear.Scale(canvas, cell, img, img.Bounds(), xdraw.Src, nil)
	}

	if caption != "" {
		drawCaption(canvas, caption, width, height)
	}

	quality := c.Quality
	if quality <= 0 {
		quality = OutQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding strip: %w", err)
	}
	return buf.Bytes(), nil
}

// drawCaption renders text centered within the caption margin beneath
// the last cell.
func drawCaption(canvas *image.RGBA, text string, width, height int) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	textWidth := d.MeasureString(text).Ceil()
	x := (width - textWidth) / 2
	if x < Border {
		x = Border
	}
	y := height - CaptionMargin/2 + face.Metrics().Ascent.Ceil()/2
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}

func truncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) > session.MaxCaptionLen {
		runes = runes[:session.MaxCaptionLen]
	}
	return string(runes)
}
