package similarity

import "math"

// maxYIQDelta is the largest possible squared YIQ distance between two colours.
const maxYIQDelta = 35215

// PixelDiffOptions tune PixelDiff.
type PixelDiffOptions struct {
	Threshold float64
	IncludeAA bool
}

// PixelDiff counts the pixels that differ between two equally sized RGBA
// buffers (4 bytes per pixel, row-major, non-premultiplied).
//
// Two pixels are equal when their perceptual YIQ distance is within
// Threshold² of the maximum distance, so the threshold is a per-pixel
// tolerance rather than a budget for the whole image. Pixels that look like
// anti-aliasing in either image are skipped unless IncludeAA is set.
//
// If out is non-nil it must be the same length as img1 and receives a diff
// visualisation: red for counted pixels, yellow for anti-aliasing, and a faded
// grey copy of img1 elsewhere.
func PixelDiff(img1, img2, out []uint8, width, height int, opts PixelDiffOptions) int {
	if len(img1) != len(img2) || len(img1) != width*height*4 {
		panic("similarity: image buffers do not match the given dimensions")
	}
	if out != nil && len(out) != len(img1) {
		panic("similarity: output buffer size mismatch")
	}

	threshold := opts.Threshold
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}
	maxDelta := maxYIQDelta * threshold * threshold

	if out == nil && equalPixels(img1, img2) {
		return 0
	}

	diff := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := (y*width + x) * 4
			delta := colorDelta(img1, img2, pos, pos, false)

			if math.Abs(delta) <= maxDelta {
				if out != nil {
					drawGray(img1, out, pos)
				}
				continue
			}

			if !opts.IncludeAA && (antialiased(img1, x, y, width, height, img2) || antialiased(img2, x, y, width, height, img1)) {
				if out != nil {
					drawPixel(out, pos, 255, 255, 0)
				}
				continue
			}

			if out != nil {
				drawPixel(out, pos, 255, 0, 0)
			}
			diff++
		}
	}
	return diff
}

func equalPixels(a, b []uint8) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// antialiased reports whether the pixel at (x1, y1) in img sits on an edge the
// way an anti-aliased pixel does: its neighbours include both a darker and a
// brighter pixel, and at least one of those extremes belongs to a flat region
// in both images.
func antialiased(img []uint8, x1, y1, width, height int, other []uint8) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, width-1)
	y2 := min(y1+1, height-1)
	pos := (y1*width + x1) * 4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}

			delta := colorDelta(img, img, pos, (y*width+x)*4, true)
			switch {
			case delta == 0:
				zeroes++
				// More than two identical siblings: not an edge pixel.
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta = delta
				minX, minY = x, y
			case delta > maxDelta:
				maxDelta = delta
				maxX, maxY = x, y
			}
		}
	}

	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY, width, height) && hasManySiblings(other, minX, minY, width, height)) ||
		(hasManySiblings(img, maxX, maxY, width, height) && hasManySiblings(other, maxX, maxY, width, height))
}

// hasManySiblings reports whether more than two neighbours of (x1, y1) share
// its exact RGBA value.
func hasManySiblings(img []uint8, x1, y1, width, height int) bool {
	x0 := max(x1-1, 0)
	y0 := max(y1-1, 0)
	x2 := min(x1+1, width-1)
	y2 := min(y1+1, height-1)
	pos := (y1*width + x1) * 4

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			pos2 := (y*width + x) * 4
			if img[pos] == img[pos2] && img[pos+1] == img[pos2+1] && img[pos+2] == img[pos2+2] && img[pos+3] == img[pos2+3] {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

// colorDelta returns the squared YIQ distance between two pixels, signed
// negative when the first is brighter. Translucent pixels are blended onto
// white first. With yOnly set, only the signed luma difference is returned.
func colorDelta(img1, img2 []uint8, k, m int, yOnly bool) float64 {
	r1, g1, b1, a1 := float64(img1[k]), float64(img1[k+1]), float64(img1[k+2]), float64(img1[k+3])
	r2, g2, b2, a2 := float64(img2[m]), float64(img2[m+1]), float64(img2[m+2]), float64(img2[m+3])

	if a1 == a2 && r1 == r2 && g1 == g2 && b1 == b2 {
		return 0
	}

	if a1 < 255 {
		a1 /= 255
		r1, g1, b1 = blend(r1, a1), blend(g1, a1), blend(b1, a1)
	}
	if a2 < 255 {
		a2 /= 255
		r2, g2, b2 = blend(r2, a2), blend(g2, a2), blend(b2, a2)
	}

	y1 := rgb2y(r1, g1, b1)
	y2 := rgb2y(r2, g2, b2)
	y := y1 - y2

	if yOnly {
		return y
	}

	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q
	if y1 > y2 {
		return -delta
	}
	return delta
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

// blend composites a channel value with the given alpha onto white.
func blend(c, a float64) float64 {
	return 255 + (c-255)*a
}

func drawPixel(out []uint8, pos int, r, g, b uint8) {
	out[pos] = r
	out[pos+1] = g
	out[pos+2] = b
	out[pos+3] = 255
}

func drawGray(img, out []uint8, pos int) {
	r, g, b := float64(img[pos]), float64(img[pos+1]), float64(img[pos+2])
	v := uint8(math.Round(blend(rgb2y(r, g, b), 0.1*float64(img[pos+3])/255)))
	drawPixel(out, pos, v, v, v)
}
