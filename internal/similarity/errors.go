package similarity

import "fmt"

// DecodeError reports a buffer that is not a decodable raster image.
type DecodeError struct {
	Side int // 1 or 2
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %d: %v", e.Side, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError reports two images that cannot be compared pixel by
// pixel. CompareImages returns it together with a populated ImageResult.
type DimensionMismatchError struct {
	Width1, Height1 int
	Width2, Height2 int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image dimensions mismatch: %dx%d vs %dx%d", e.Width1, e.Height1, e.Width2, e.Height2)
}
