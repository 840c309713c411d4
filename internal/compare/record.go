package compare

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind selects the evaluator applied to a pair.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// ParseKind accepts "image" or "text".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindImage, KindText:
		return k, nil
	}
	return "", fmt.Errorf("unknown comparison type %q", s)
}

// ErrorKind labels why a comparison did not succeed.
type ErrorKind string

const (
	ErrFetchFailed       ErrorKind = "FetchFailed"
	ErrDimensionMismatch ErrorKind = "DimensionMismatch"
	ErrDecodeError       ErrorKind = "DecodeError"
	ErrComparisonFailed  ErrorKind = "ComparisonFailed"
)

// Dimensions are the pixel sizes of both images of a pair.
type Dimensions struct {
	Width1  int `json:"width1"`
	Height1 int `json:"height1"`
	Width2  int `json:"width2"`
	Height2 int `json:"height2"`
}

// ImagePayload is the image-kind part of a Record. Dimensions is nil when the
// images were never decoded. DiffPixels is meaningful only when Similarity is
// set; -1 marks a dimension mismatch.
type ImagePayload struct {
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	DiffPixels int         `json:"diffPixels"`
	Similarity *float64    `json:"similarity,omitempty"`
}

// TextPayload is the text-kind part of a Record.
type TextPayload struct {
	ExactMatch bool     `json:"exactMatch"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// Record is the normalized outcome of comparing one pair. Exactly one of
// Image and Text is set, matching Kind.
type Record struct {
	Kind         Kind
	Success      bool
	ResponseTime time.Duration
	Status1      int
	Status2      int
	Size1        int
	Size2        int
	ErrorKind    ErrorKind
	ErrorDetail  string

	Image *ImagePayload
	Text  *TextPayload
}

// Similarity returns the similarity percentage if one was determined. It is
// present on success and on a dimension mismatch, where it is 0.
func (r Record) Similarity() (float64, bool) {
	var p *float64
	switch {
	case r.Image != nil:
		p = r.Image.Similarity
	case r.Text != nil:
		p = r.Text.Similarity
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// ResponseTimeMs is the pair wall-clock time in whole milliseconds.
func (r Record) ResponseTimeMs() int64 {
	return r.ResponseTime.Milliseconds()
}

func newRecord(kind Kind) Record {
	r := Record{Kind: kind}
	switch kind {
	case KindImage:
		r.Image = &ImagePayload{}
	case KindText:
		r.Text = &TextPayload{}
	}
	return r
}

func (r *Record) fail(kind ErrorKind, detail string) {
	r.Success = false
	r.ErrorKind = kind
	r.ErrorDetail = detail
}

func percent(v float64) *float64 {
	return &v
}

type recordJSON struct {
	Kind           Kind          `json:"kind"`
	Success        bool          `json:"success"`
	ResponseTimeMs int64         `json:"responseTimeMs"`
	Status1        int           `json:"status1"`
	Status2        int           `json:"status2"`
	Size1          int           `json:"size1"`
	Size2          int           `json:"size2"`
	ErrorKind      ErrorKind     `json:"errorKind,omitempty"`
	ErrorDetail    string        `json:"errorDetail,omitempty"`
	Image          *ImagePayload `json:"image,omitempty"`
	Text           *TextPayload  `json:"text,omitempty"`
}

// MarshalJSON encodes the record with a "kind" discriminator and the payload
// under the matching key.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Kind:           r.Kind,
		Success:        r.Success,
		ResponseTimeMs: r.ResponseTimeMs(),
		Status1:        r.Status1,
		Status2:        r.Status2,
		Size1:          r.Size1,
		Size2:          r.Size2,
		ErrorKind:      r.ErrorKind,
		ErrorDetail:    r.ErrorDetail,
		Image:          r.Image,
		Text:           r.Text,
	})
}

// UnmarshalJSON rejects records whose payload does not match their kind.
func (r *Record) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch v.Kind {
	case KindImage:
		if v.Image == nil || v.Text != nil {
			return fmt.Errorf("record of kind %q must carry only an image payload", v.Kind)
		}
	case KindText:
		if v.Text == nil || v.Image != nil {
			return fmt.Errorf("record of kind %q must carry only a text payload", v.Kind)
		}
	default:
		return fmt.Errorf("unknown record kind %q", v.Kind)
	}

	*r = Record{
		Kind:         v.Kind,
		Success:      v.Success,
		ResponseTime: time.Duration(v.ResponseTimeMs) * time.Millisecond,
		Status1:      v.Status1,
		Status2:      v.Status2,
		Size1:        v.Size1,
		Size2:        v.Size2,
		ErrorKind:    v.ErrorKind,
		ErrorDetail:  v.ErrorDetail,
		Image:        v.Image,
		Text:         v.Text,
	}
	return nil
}
