package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// Filter identifies a cosmetic pixel transform applied at capture time.
// Filters apply only to stored photos, never to detection frames.
type Filter string

const (
	FilterNone      Filter = "none"
	FilterGrayscale Filter = "grayscale"
	FilterSepia     Filter = "sepia"
	FilterBlur      Filter = "blur"
	FilterVivid     Filter = "vivid"
)

// Filters lists every filter in cycle order.
var Filters = []Filter{FilterNone, FilterGrayscale, FilterSepia, FilterBlur, FilterVivid}

// Valid reports whether f names a known filter.
func (f Filter) Valid() bool {
	for _, known := range Filters {
		if f == known {
			return true
		}
	}
	return false
}

// Next returns the filter following f in cycle order.
func (f Filter) Next() Filter {
	for i, known := range Filters {
		if f == known {
			return Filters[(i+1)%len(Filters)]
		}
	}
	return FilterNone
}

// Apply transforms src through the filter. FilterNone returns src
// unchanged. The transform is pure: src is never modified.
func (f Filter) Apply(src image.Image) image.Image {
	switch f {
	case FilterGrayscale:
		return mapPixels(src, grayscalePixel)
	case FilterSepia:
		return mapPixels(src, sepiaPixel)
	case FilterVivid:
		return mapPixels(src, vividPixel)
	case FilterBlur:
		return boxBlur(src, 2)
	default:
		return src
	}
}

// ApplyJPEG decodes data, applies the filter, and re-encodes at the
// fixed frame quality. FilterNone returns data untouched.
func (f Filter) ApplyJPEG(data []byte) ([]byte, error) {
	if f == FilterNone || f == "" {
		return data, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame for filter %q: %w", f, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Apply(img), &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encoding filtered frame: %w", err)
	}
	return buf.Bytes(), nil
}

func mapPixels(src image.Image, fn func(r, g, b uint8) (uint8, uint8, uint8)) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			nr, ng, nb := fn(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			dst.SetRGBA(x, y, color.RGBA{nr, ng, nb, uint8(a >> 8)})
		}
	}
	return dst
}

func grayscalePixel(r, g, b uint8) (uint8, uint8, uint8) {
	// ITU-R BT.601 luma weights.
	y := uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
	return y, y, y
}

func sepiaPixel(r, g, b uint8) (uint8, uint8, uint8) {
	or := clamp8((393*int(r) + 769*int(g) + 189*int(b)) / 1000)
	og := clamp8((349*int(r) + 686*int(g) + 168*int(b)) / 1000)
	ob := clamp8((272*int(r) + 534*int(g) + 131*int(b)) / 1000)
	return or, og, ob
}

func vividPixel(r, g, b uint8) (uint8, uint8, uint8) {
	// Push each channel away from the midpoint to boost saturation
	// and contrast.
	boost := func(c uint8) uint8 {
		return clamp8(128 + (int(c)-128)*13/10)
	}
	return boost(r), boost(g), boost(b)
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// boxBlur averages each pixel over a (2*radius+1)² window.
func boxBlur(src image.Image, radius int) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sr, sg, sb, sa, n int
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
						continue
					}
					r, g, b, a := src.At(px, py).RGBA()
					sr += int(r >> 8)
					sg += int(g >> 8)
					sb += int(b >> 8)
					sa += int(a >> 8)
					n++
				}
			}
			dst.SetRGBA(x, y, color.RGBA{
				uint8(sr / n), uint8(sg / n), uint8(sb / n), uint8(sa / n),
			})
		}
	}
	return dst
}
