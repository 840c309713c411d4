package source

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Parameter types.
const (
	ParamInteger = "integer"
	ParamString  = "string"
	ParamArray   = "array"
	ParamStatic  = "static"
	ParamCSV     = "csv"
)

// Charsets for string parameters.
const (
	CharsetAlpha        = "alpha"
	CharsetNumeric      = "numeric"
	CharsetAlphanumeric = "alphanumeric"
	CharsetCustom       = "custom"
)

const (
	lower   = "abcdefghijklmnopqrstuvwxyz"
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
	alnum   = lower + upper + digits
	letters = lower + upper
)

// Param describes one generated URL parameter.
type Param struct {
	Name        string   `mapstructure:"name" json:"name" validate:"required"`
	Type        string   `mapstructure:"type" json:"type" validate:"required,oneof=integer string array static csv"`
	Min         int      `mapstructure:"min" json:"min,omitempty"`
	Max         int      `mapstructure:"max" json:"max,omitempty" validate:"omitempty,gtefield=Min"`
	Length      int      `mapstructure:"length" json:"length,omitempty" validate:"gte=0"`
	Charset     string   `mapstructure:"charset" json:"charset,omitempty" validate:"omitempty,oneof=alpha numeric alphanumeric custom"`
	CustomChars string   `mapstructure:"customChars" json:"customChars,omitempty"`
	Values      []string `mapstructure:"values" json:"values,omitempty" validate:"required_if=Type array"`
	Value       string   `mapstructure:"value" json:"value,omitempty"`
	File        string   `mapstructure:"file" json:"file,omitempty" validate:"required_if=Type csv"`
	Column      string   `mapstructure:"column" json:"column,omitempty" validate:"required_if=Type csv"`
}

// Generator produces parameter values. It is safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	cols map[string][]string
}

// NewGenerator seeds a generator; equal seeds give equal sequences.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		cols: make(map[string][]string),
	}
}

// Value generates one value for p.
func (g *Generator) Value(p Param) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch p.Type {
	case ParamInteger:
		lo, hi := p.Min, p.Max
		if hi == 0 {
			hi = 100
		}
		if hi < lo {
			return "", fmt.Errorf("param %s: max %d below min %d", p.Name, hi, lo)
		}
		return strconv.Itoa(lo + g.rng.IntN(hi-lo+1)), nil

	case ParamString:
		chars := charset(p.Charset, p.CustomChars)
		n := p.Length
		if n <= 0 {
			n = 10
		}
		var sb strings.Builder
		for range n {
			sb.WriteByte(chars[g.rng.IntN(len(chars))])
		}
		return sb.String(), nil

	case ParamArray:
		if len(p.Values) == 0 {
			return "", fmt.Errorf("param %s: no values", p.Name)
		}
		return p.Values[g.rng.IntN(len(p.Values))], nil

	case ParamStatic:
		return p.Value, nil

	case ParamCSV:
		values, err := g.column(p.File, p.Column)
		if err != nil {
			return "", fmt.Errorf("param %s: %w", p.Name, err)
		}
		return values[g.rng.IntN(len(values))], nil
	}
	return "", fmt.Errorf("param %s: unknown type %q", p.Name, p.Type)
}

// column loads and caches the non-empty values of a CSV column.
func (g *Generator) column(path, name string) ([]string, error) {
	key := path + "\x00" + name
	if values, ok := g.cols[key]; ok {
		return values, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := readColumns(f, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var values []string
	for _, row := range rows {
		if row[0] != "" {
			values = append(values, row[0])
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: column %q has no values", path, name)
	}

	g.cols[key] = values
	return values, nil
}

func charset(kind, custom string) string {
	switch kind {
	case CharsetAlpha:
		return letters
	case CharsetNumeric:
		return digits
	case CharsetCustom:
		if custom != "" {
			return custom
		}
	}
	return alnum
}

// ParamURLBuilder builds URLs from a base and generated parameters. A
// parameter named in a {name} placeholder of the base is substituted into the
// path; the rest are appended as query parameters in declaration order.
type ParamURLBuilder struct {
	BaseURL   string
	Params    []Param
	Generator *Generator
}

// ValidateParams checks every parameter definition.
func ValidateParams(params []Param) error {
	v := validator.New()
	for i, p := range params {
		if err := v.Struct(p); err != nil {
			return fmt.Errorf("parameter %d (%s): %w", i+1, p.Name, err)
		}
	}
	return nil
}

// Build generates one URL.
func (b *ParamURLBuilder) Build() (string, error) {
	gen := b.Generator
	if gen == nil {
		return "", errors.New("url builder: no generator")
	}

	u := b.BaseURL
	var query []string

	for _, p := range b.Params {
		v, err := gen.Value(p)
		if err != nil {
			return "", err
		}
		placeholder := "{" + p.Name + "}"
		if strings.Contains(u, placeholder) {
			u = strings.ReplaceAll(u, placeholder, url.PathEscape(v))
			continue
		}
		query = append(query, url.QueryEscape(p.Name)+"="+url.QueryEscape(v))
	}

	if len(query) == 0 {
		return u, nil
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + strings.Join(query, "&"), nil
}
