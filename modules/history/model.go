package history

import (
	"context"
	"errors"
)

// TimestampLayout is the record timestamp format. It also ends up in
// download filenames.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultLimit - records kept per session
const DefaultLimit = 5

// ErrRecordNotFound is returned by Get for an unknown or evicted record.
var ErrRecordNotFound = errors.New("history record not found")

// GeneratedImage - PNG bytes plus the seed that produced them
type GeneratedImage struct {
	Data []byte `json:"data"`
	Seed uint32 `json:"seed"`
}

// Params - generation parameters of a batch. Seeds[i] belongs to Images[i].
type Params struct {
	GuidanceScale float64  `json:"guidance_scale"`
	Steps         int      `json:"steps"`
	Size          string   `json:"size"`
	Seeds         []uint32 `json:"seeds"`
}

// Record - one completed batch. Records are never mutated after Append.
type Record struct {
	ID             string           `json:"id"`
	Timestamp      string           `json:"timestamp"`
	BasePrompt     string           `json:"base_prompt"`
	Style          string           `json:"style"`
	FullPrompt     string           `json:"full_prompt"`
	NegativePrompt string           `json:"negative_prompt"`
	Images         []GeneratedImage `json:"images"`
	Params         Params           `json:"params"`
}

// Store is the bounded history of a single session.
type Store interface {
	// Append adds a record and drops the oldest ones beyond the limit,
	// reporting how many were dropped.
	Append(ctx context.Context, rec Record) (evicted int, err error)
	// List returns the records oldest first.
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Newest returns a reversed copy of records, newest first.
func Newest(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[len(records)-1-i] = rec
	}
	return out
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultLimit
	}
	return limit
}
