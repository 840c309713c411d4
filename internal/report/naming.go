package report

import (
	"fmt"
	"path/filepath"
	"time"
)

// Namer names report files after the instant they are written.
type Namer struct {
	// Now defaults to time.Now. Names use its UTC value.
	Now func() time.Time
}

// Name returns "<prefix>-YYYY-MM-DD_HH-MM-SS.<ext>".
func (n Namer) Name(prefix, ext string) string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return fmt.Sprintf("%s-%s.%s", prefix, now().UTC().Format("2006-01-02_15-04-05"), ext)
}

// Path joins dir and Name.
func (n Namer) Path(dir, prefix, ext string) string {
	return filepath.Join(dir, n.Name(prefix, ext))
}
