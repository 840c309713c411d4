package similarity

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"math"

	// Registered decoders. image.Decode sniffs the format from magic bytes.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultThreshold is the per-pixel colour tolerance used when none is given.
const DefaultThreshold = 0.1

// ImageResult carries the measurements of an image comparison. On a
// dimension mismatch DiffPixels is -1 and Similarity is 0.
type ImageResult struct {
	Width1, Height1 int
	Width2, Height2 int
	DiffPixels      int
	Similarity      float64
}

// ImageOptions tune CompareImages.
type ImageOptions struct {
	// Threshold in [0,1]; smaller is stricter.
	Threshold float64
	// IncludeAA counts anti-aliased pixels as differences.
	IncludeAA bool
	// Mask, when non-nil, receives a diff visualisation the size of the
	// inputs. It is only written when dimensions match.
	Mask *image.NRGBA
}

// CompareImages decodes both buffers and counts differing pixels.
//
// It returns a *DecodeError if either buffer cannot be decoded, and a
// *DimensionMismatchError alongside a populated result (DiffPixels -1,
// Similarity 0) when the sizes differ. Any other outcome is a measurement:
// a low similarity is not an error.
func CompareImages(b1, b2 []byte, threshold float64) (ImageResult, error) {
	return CompareImagesWith(b1, b2, ImageOptions{Threshold: threshold})
}

// CompareImagesWith is CompareImages with the full option set.
func CompareImagesWith(b1, b2 []byte, opts ImageOptions) (ImageResult, error) {
	img1, img2, err := decodePair(b1, b2)
	if err != nil {
		return ImageResult{}, err
	}
	return compareDecoded(img1, img2, opts)
}

func decodePair(b1, b2 []byte) (*image.NRGBA, *image.NRGBA, error) {
	img1, err := Decode(b1)
	if err != nil {
		return nil, nil, &DecodeError{Side: 1, Err: err}
	}
	img2, err := Decode(b2)
	if err != nil {
		return nil, nil, &DecodeError{Side: 2, Err: err}
	}
	return img1, img2, nil
}

func compareDecoded(img1, img2 *image.NRGBA, opts ImageOptions) (ImageResult, error) {
	res := ImageResult{
		Width1:  img1.Rect.Dx(),
		Height1: img1.Rect.Dy(),
		Width2:  img2.Rect.Dx(),
		Height2: img2.Rect.Dy(),
	}

	if res.Width1 != res.Width2 || res.Height1 != res.Height2 {
		res.DiffPixels = -1
		res.Similarity = 0
		return res, &DimensionMismatchError{
			Width1: res.Width1, Height1: res.Height1,
			Width2: res.Width2, Height2: res.Height2,
		}
	}

	var mask []uint8
	if opts.Mask != nil {
		if opts.Mask.Rect.Dx() != res.Width1 || opts.Mask.Rect.Dy() != res.Height1 {
			return res, errors.New("diff mask size does not match images")
		}
		mask = opts.Mask.Pix
	}

	res.DiffPixels = PixelDiff(img1.Pix, img2.Pix, mask, res.Width1, res.Height1, PixelDiffOptions{
		Threshold: opts.Threshold,
		IncludeAA: opts.IncludeAA,
	})
	res.Similarity = SimilarityPercent(res.DiffPixels, res.Width1*res.Height1)
	return res, nil
}

// Decode turns an encoded raster into tightly packed, non-premultiplied RGBA
// with an explicit alpha channel and a zero origin.
func Decode(b []byte) (*image.NRGBA, error) {
	if len(b) == 0 {
		return nil, errors.New("empty image buffer")
	}

	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Rect, src, bounds.Min, draw.Src)
	return dst, nil
}

// SimilarityPercent converts a diff count into a percentage rounded to two
// decimals and clamped to [0,100].
func SimilarityPercent(diffPixels, totalPixels int) float64 {
	if totalPixels <= 0 {
		return 100
	}
	pct := math.Round((1-float64(diffPixels)/float64(totalPixels))*10000) / 100
	return math.Max(0, math.Min(100, pct))
}

// DiffImage compares two buffers and returns the diff visualisation alongside
// the result. The image is nil unless the dimensions match. opts.Mask is
// ignored.
func DiffImage(b1, b2 []byte, opts ImageOptions) (*image.NRGBA, ImageResult, error) {
	img1, img2, err := decodePair(b1, b2)
	if err != nil {
		return nil, ImageResult{}, err
	}
	opts.Mask = image.NewNRGBA(img1.Rect)
	res, err := compareDecoded(img1, img2, opts)
	if err != nil {
		return nil, res, err
	}
	return opts.Mask, res, nil
}
