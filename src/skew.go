package retina

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// SkewImage shears img horizontally by angle radians. The canvas grows by
// floor(tan(|angle|) * height) pixels so the sheared rows fit; with incWidth
// false the result is cropped back to the original bounds. Angles outside
// roughly [-1, 1] still work but distort heavily.
//
// When the grown width would be negative the input is returned as is.
func SkewImage(img image.Image, angle float64, incWidth bool) image.Image {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	xshift := math.Tan(math.Abs(angle)) * float64(height)
	newWidth := width + int(math.Floor(xshift))
	if newWidth < 0 {
		return img
	}

	var sheared *image.RGBA
	if angle == 0 {
		// zero shear is a plain copy
		sheared = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(sheared, sheared.Bounds(), img, b.Min, draw.Src)
	} else {
		// output (x, y) samples input (x + angle*y - shift, y); s2d is its inverse
		shift := 0.0
		if angle > 0 {
			shift = xshift
		}
		sheared = affine(img, newWidth, height, f64.Aff3{
			1, -angle, shift,
			0, 1, 0,
		}, draw.CatmullRom)
	}

	if incWidth {
		return sheared
	}
	return cropTo(sheared, image.Rect(0, 0, width, height))
}

// affine renders src through the source-to-destination matrix s2d onto a
// black w x h canvas. s2d is expressed relative to the src origin.
func affine(src image.Image, w, h int, s2d f64.Aff3, kernel *draw.Kernel) *image.RGBA {
	dst := blackCanvas(w, h)
	if w == 0 || h == 0 {
		return dst
	}
	b := src.Bounds()
	mx, my := float64(b.Min.X), float64(b.Min.Y)
	abs := f64.Aff3{
		s2d[0], s2d[1], s2d[2] - s2d[0]*mx - s2d[1]*my,
		s2d[3], s2d[4], s2d[5] - s2d[3]*mx - s2d[4]*my,
	}
	kernel.Transform(dst, abs, src, b, draw.Src, nil)
	return dst
}

// cropTo copies region r of src (origin based) onto a black canvas of r's
// size. Areas outside src stay black.
func cropTo(src image.Image, r image.Rectangle) *image.RGBA {
	dst := blackCanvas(r.Dx(), r.Dy())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min.Add(r.Min), draw.Src)
	return dst
}

func blackCanvas(w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
