package similarity

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
)

func TestCompareText(t *testing.T) {
	tests := []struct {
		name  string
		a, b  []byte
		match bool
	}{
		{"identical", []byte("hello"), []byte("hello"), true},
		{"different", []byte("hello"), []byte("hello!"), false},
		{"both empty", nil, []byte{}, true},
		{"case sensitive", []byte("Hello"), []byte("hello"), false},
		{"invalid bytes kept distinct", []byte("\xff"), []byte("\xff\xfe"), false},
		{"invalid byte equals replacement char", []byte("a\xffb"), []byte("a�b"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CompareText(tt.a, tt.b)
			assert.Equal(t, tt.match, res.ExactMatch)
			if tt.match {
				assert.Equal(t, 100.0, res.Similarity)
			} else {
				assert.Equal(t, 0.0, res.Similarity)
			}
		})
	}
}

func TestCompareImages_Identical(t *testing.T) {
	b := encodePNG(t, solid(8, 6, white))

	res, err := CompareImages(b, b, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, ImageResult{Width1: 8, Height1: 6, Width2: 8, Height2: 6, DiffPixels: 0, Similarity: 100}, res)
}

func TestCompareImages_CountsIsolatedPixels(t *testing.T) {
	img1 := solid(10, 10, white)
	img2 := solid(10, 10, white)
	for _, p := range []image.Point{{2, 2}, {5, 2}, {7, 5}, {2, 7}, {5, 7}} {
		img2.SetNRGBA(p.X, p.Y, black)
	}

	res, err := CompareImages(encodePNG(t, img1), encodePNG(t, img2), DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, 5, res.DiffPixels)
	assert.Equal(t, 95.0, res.Similarity)
}

func TestCompareImages_Threshold(t *testing.T) {
	img1 := solid(5, 5, white)
	img2 := solid(5, 5, white)
	img2.SetNRGBA(2, 2, color.NRGBA{250, 250, 250, 255})
	b1, b2 := encodePNG(t, img1), encodePNG(t, img2)

	res, err := CompareImages(b1, b2, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DiffPixels, "a faint change is within the default tolerance")

	res, err = CompareImages(b1, b2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DiffPixels)
	assert.Equal(t, 96.0, res.Similarity)
}

func TestCompareImages_DimensionMismatch(t *testing.T) {
	res, err := CompareImages(encodePNG(t, solid(10, 10, white)), encodePNG(t, solid(10, 12, white)), DefaultThreshold)

	var dimErr *DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, "image dimensions mismatch: 10x10 vs 10x12", dimErr.Error())
	assert.Equal(t, -1, res.DiffPixels)
	assert.Equal(t, 0.0, res.Similarity)
	assert.Equal(t, 12, res.Height2)
}

func TestCompareImages_DecodeError(t *testing.T) {
	good := encodePNG(t, solid(2, 2, white))

	_, err := CompareImages([]byte("<html>not an image</html>"), good, DefaultThreshold)
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, 1, decErr.Side)

	_, err = CompareImages(good, nil, DefaultThreshold)
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, 2, decErr.Side)
}

func TestCompareImages_Formats(t *testing.T) {
	src := solid(4, 4, color.NRGBA{10, 120, 200, 255})

	var jpg, gf, bm bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, &jpeg.Options{Quality: 90}))
	require.NoError(t, gif.Encode(&gf, src, nil))
	require.NoError(t, bmp.Encode(&bm, src))

	for name, b := range map[string][]byte{"jpeg": jpg.Bytes(), "gif": gf.Bytes(), "bmp": bm.Bytes()} {
		t.Run(name, func(t *testing.T) {
			res, err := CompareImages(b, b, DefaultThreshold)
			require.NoError(t, err)
			assert.Equal(t, 4, res.Width1)
			assert.Equal(t, 0, res.DiffPixels)
		})
	}
}

func TestCompareImagesWith_Mask(t *testing.T) {
	img1 := solid(6, 6, white)
	img2 := solid(6, 6, white)
	img2.SetNRGBA(3, 3, black)
	mask := image.NewNRGBA(image.Rect(0, 0, 6, 6))

	res, err := CompareImagesWith(encodePNG(t, img1), encodePNG(t, img2), ImageOptions{Threshold: DefaultThreshold, Mask: mask})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DiffPixels)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, mask.NRGBAAt(3, 3))

	bg := mask.NRGBAAt(0, 0)
	assert.Equal(t, uint8(255), bg.A)
	assert.Equal(t, bg.R, bg.G)

	_, err = CompareImagesWith(encodePNG(t, img1), encodePNG(t, img2), ImageOptions{Mask: image.NewNRGBA(image.Rect(0, 0, 2, 2))})
	assert.Error(t, err)
}

func TestDiffImage(t *testing.T) {
	img2 := solid(6, 6, white)
	img2.SetNRGBA(1, 4, black)
	b1, b2 := encodePNG(t, solid(6, 6, white)), encodePNG(t, img2)

	mask, res, err := DiffImage(b1, b2, ImageOptions{Threshold: DefaultThreshold})
	require.NoError(t, err)
	require.NotNil(t, mask)
	assert.Equal(t, 1, res.DiffPixels)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, mask.NRGBAAt(1, 4))

	mask, res, err = DiffImage(b1, encodePNG(t, solid(6, 3, white)), ImageOptions{})
	var dimErr *DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Nil(t, mask)
	assert.Equal(t, -1, res.DiffPixels)

	_, _, err = DiffImage([]byte("nope"), b2, ImageOptions{})
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 1, decErr.Side)

	mask, _, err = DiffImage(b1, []byte("nope"), ImageOptions{})
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 2, decErr.Side)
	assert.Nil(t, mask)
}

func TestPixelDiff_AntiAliasedEdge(t *testing.T) {
	// A hard black/white edge in img1 rendered with a grey transition column
	// in img2: the grey pixels sit between two flat regions.
	const w, h = 8, 8
	img1 := solid(w, h, white)
	img2 := solid(w, h, white)
	for y := 0; y < h; y++ {
		for x := 0; x < 4; x++ {
			img1.SetNRGBA(x, y, black)
			img2.SetNRGBA(x, y, black)
		}
		img2.SetNRGBA(4, y, color.NRGBA{128, 128, 128, 255})
	}

	skipped := PixelDiff(img1.Pix, img2.Pix, nil, w, h, PixelDiffOptions{Threshold: DefaultThreshold})
	counted := PixelDiff(img1.Pix, img2.Pix, nil, w, h, PixelDiffOptions{Threshold: DefaultThreshold, IncludeAA: true})

	assert.Equal(t, h, counted)
	assert.Less(t, skipped, counted)
}

func TestSimilarityPercent(t *testing.T) {
	assert.Equal(t, 100.0, SimilarityPercent(0, 0))
	assert.Equal(t, 100.0, SimilarityPercent(0, 100))
	assert.Equal(t, 66.67, SimilarityPercent(1, 3))
	assert.Equal(t, 0.0, SimilarityPercent(10, 10))
}
