package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"art-studio-server/modules/common/httputil"
	"art-studio-server/modules/history"
	"art-studio-server/modules/inference"
)

// Generator produces one PNG image per call.
type Generator interface {
	Generate(ctx context.Context, req inference.Request, seed uint32) ([]byte, error)
}

// Orchestrator runs batches: sequential variations, all-or-nothing history.
type Orchestrator struct {
	generator Generator
	seeds     inference.SeedSource
	metrics   *Metrics

	now   func() time.Time
	newID func() string
}

// NewOrchestrator - seeds nil means inference.RandomSeed
func NewOrchestrator(generator Generator, seeds inference.SeedSource, metrics *Metrics) *Orchestrator {
	if seeds == nil {
		seeds = inference.RandomSeed
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Orchestrator{
		generator: generator,
		seeds:     seeds,
		metrics:   metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run executes one batch for session. Numeric bounds are assumed to be
// checked by the caller. On any failure nothing is added to history and
// the error is a *ValidationError, a *inference.GenerationError or one of
// the session errors.
func (o *Orchestrator) Run(ctx context.Context, session *Session, req GenerationRequest, progress ProgressFunc) (*BatchOutcome, error) {
	if strings.TrimSpace(req.BasePrompt) == "" {
		return nil, &ValidationError{Message: msgMissingPrompt}
	}

	batchCtx, finish, err := session.begin(ctx)
	if err != nil {
		return nil, err
	}
	var committed *history.Record
	defer func() { finish(committed) }()

	total := req.NumVariations
	if total < 1 {
		total = 1
	}
	fullPrompt := Compose(req.BasePrompt, req.Style)
	callReq := inference.Request{
		Prompt:         fullPrompt,
		NegativePrompt: req.NegativePrompt,
		GuidanceScale:  req.GuidanceScale,
		Steps:          req.Steps,
		Width:          req.Width,
		Height:         req.Height,
	}

	log.Info().
		Str("session", session.ID).
		Str("style", req.Style).
		Str("prompt", httputil.TruncateString(req.BasePrompt, 50)).
		Int("variations", total).
		Msg("🎨 [Studio] Starting batch")

	images := make([]history.GeneratedImage, 0, total)
	for i := 0; i < total; i++ {
		if err := batchCtx.Err(); err != nil {
			return nil, o.fail(session, &inference.GenerationError{Message: "generation cancelled", Err: err})
		}

		if progress != nil {
			progress(Progress{
				Index:    i,
				Total:    total,
				Fraction: float64(i+1) / float64(total),
				Status:   fmt.Sprintf("Creating Variation %d/%d...", i+1, total),
			})
		}

		seed := o.seeds()
		data, err := o.generator.Generate(batchCtx, callReq, seed)
		if err != nil {
			return nil, o.fail(session, asGenerationError(err))
		}
		images = append(images, history.GeneratedImage{Data: data, Seed: seed})
	}

	seeds := make([]uint32, len(images))
	for i, img := range images {
		seeds[i] = img.Seed
	}
	rec := history.Record{
		ID:             o.newID(),
		Timestamp:      o.now().Format(history.TimestampLayout),
		BasePrompt:     req.BasePrompt,
		Style:          req.Style,
		FullPrompt:     fullPrompt,
		NegativePrompt: req.NegativePrompt,
		Images:         images,
		Params: history.Params{
			GuidanceScale: req.GuidanceScale,
			Steps:         req.Steps,
			Size:          fmt.Sprintf("%dx%d", req.Width, req.Height),
			Seeds:         seeds,
		},
	}

	evicted, err := session.commit(ctx, batchCtx, rec)
	if err != nil {
		if ctxErr := batchCtx.Err(); ctxErr != nil {
			return nil, o.fail(session, &inference.GenerationError{Message: "generation cancelled", Err: ctxErr})
		}
		return nil, o.fail(session, fmt.Errorf("save history: %w", err))
	}
	committed = &rec
	o.metrics.batchFinished(len(images), false)

	log.Info().
		Str("session", session.ID).
		Str("record", rec.ID).
		Int("images", len(images)).
		Int("evicted", evicted).
		Msg("✅ [Studio] Batch complete")
	return &BatchOutcome{Record: rec, Evicted: evicted}, nil
}

func (o *Orchestrator) fail(session *Session, err error) error {
	o.metrics.batchFinished(0, true)
	log.Warn().Err(err).Str("session", session.ID).Msg("❌ [Studio] Batch failed")
	return err
}

func asGenerationError(err error) error {
	var genErr *inference.GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return &inference.GenerationError{Message: err.Error(), Err: err}
}
