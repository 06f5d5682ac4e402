package snapshot

import (
	"fmt"
	"math"
	"time"
)

// Record is one catalog entry. Records are never updated in place.
type Record struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes"`
}

// SizeMB is the archive size in mebibytes rounded to two decimals.
func (r Record) SizeMB() float64 {
	return math.Round(float64(r.SizeBytes)/(1024*1024)*100) / 100
}

func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}
