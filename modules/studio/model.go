package studio

import (
	"errors"

	"art-studio-server/modules/history"
)

// Request defaults, applied to fields the client leaves out
const (
	DefaultGuidanceScale = 7.5
	DefaultSteps         = 50
	DefaultVariations    = 1
	DefaultCanvasSize    = 512
)

// User-facing messages
const (
	msgMissingPrompt = "Please enter an art description"
	msgComplete      = "Art generation complete!"
	msgFailedPrefix  = "Generation failed: "
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrBatchInProgress = errors.New("a batch is already running for this session")
)

// GenerationRequest - one "Create Artwork" action
type GenerationRequest struct {
	BasePrompt     string
	Style          string
	NegativePrompt string
	GuidanceScale  float64
	Steps          int
	NumVariations  int
	Width          int
	Height         int
}

// Progress is reported ahead of each remote call.
type Progress struct {
	Index    int
	Total    int
	Fraction float64
	Status   string
}

type ProgressFunc func(Progress)

// BatchOutcome - result of a successful batch
type BatchOutcome struct {
	Record  history.Record
	Evicted int
}

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
