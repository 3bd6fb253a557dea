package inference

import (
	"context"
	"image"
	"math/rand/v2"
)

// Request - one text-to-image call. NegativePrompt empty means no
// exclusions and is never forwarded as an empty string.
type Request struct {
	Prompt         string
	NegativePrompt string
	GuidanceScale  float64
	Steps          int
	Width          int
	Height         int
}

// Output is what a backend hands back: either a decoded image or the
// encoded bytes as received. Exactly one of the fields is set.
type Output struct {
	Image image.Image
	Data  []byte
}

// Backend performs the remote call for a single image.
type Backend interface {
	Name() string
	TextToImage(ctx context.Context, req Request, seed uint32) (*Output, error)
}

// SeedNormalizer is implemented by backends that accept only part of the
// uint32 seed range.
type SeedNormalizer interface {
	NormalizeSeed(seed uint32) uint32
}

// SeedSource draws a seed for one variation.
type SeedSource func() uint32

// RandomSeed - uniform over the full uint32 range
func RandomSeed() uint32 {
	return rand.Uint32()
}

// GenerationError is the single error kind surfaced for a failed remote
// generation, whatever the cause.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
