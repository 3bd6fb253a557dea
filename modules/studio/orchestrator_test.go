package studio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"art-studio-server/modules/history"
	"art-studio-server/modules/inference"
)

func newTestOrchestrator(gen Generator, seeds inference.SeedSource) *Orchestrator {
	o := NewOrchestrator(gen, seeds, nil)
	o.now = fixedClock()
	return o
}

func newTestSession() *Session {
	return newSession("s1", history.NewMemoryStore(history.DefaultLimit), time.Now())
}

func storedRecords(t *testing.T, s *Session) []history.Record {
	t.Helper()
	records, err := s.Store().List(context.Background())
	require.NoError(t, err)
	return records
}

func TestRun_Success(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen, sequenceSeeds(100))
	session := newTestSession()

	req := baseRequest()
	req.NumVariations = 3
	req.NegativePrompt = "blurry"
	req.Width = 768

	var progress []Progress
	outcome, err := o.Run(context.Background(), session, req, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	rec := outcome.Record
	assert.Zero(t, outcome.Evicted)
	assert.Len(t, rec.Images, 3)
	assert.Equal(t, []uint32{100, 101, 102}, rec.Params.Seeds)
	for i, img := range rec.Images {
		assert.Equal(t, rec.Params.Seeds[i], img.Seed)
	}
	assert.Equal(t, []byte("image-0"), rec.Images[0].Data)
	assert.Equal(t, "cat, Cyberpunk style, masterpiece, ultra-detailed", rec.FullPrompt)
	assert.Equal(t, "blurry", rec.NegativePrompt)
	assert.Equal(t, "2026-10-15 09:30:00", rec.Timestamp)
	assert.Equal(t, "768x512", rec.Params.Size)
	assert.Equal(t, 7.5, rec.Params.GuidanceScale)
	assert.Equal(t, 50, rec.Params.Steps)
	assert.NotEmpty(t, rec.ID)

	require.Len(t, gen.requests, 3)
	for _, r := range gen.requests {
		assert.Equal(t, rec.FullPrompt, r.Prompt)
		assert.Equal(t, "blurry", r.NegativePrompt)
		assert.Equal(t, 768, r.Width)
		assert.Equal(t, 512, r.Height)
	}

	require.Len(t, progress, 3)
	assert.InDelta(t, 1.0/3, progress[0].Fraction, 1e-9)
	assert.InDelta(t, 2.0/3, progress[1].Fraction, 1e-9)
	assert.Equal(t, 1.0, progress[2].Fraction)
	assert.Equal(t, "Creating Variation 1/3...", progress[0].Status)
	assert.Equal(t, "Creating Variation 3/3...", progress[2].Status)

	records := storedRecords(t, session)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.Equal(t, rec.ID, session.Latest().ID)
	assert.False(t, session.Running())
}

func TestRun_EmptyPromptMakesNoCall(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		gen := newFakeGenerator()
		o := newTestOrchestrator(gen, nil)
		session := newTestSession()

		req := baseRequest()
		req.BasePrompt = prompt
		_, err := o.Run(context.Background(), session, req, nil)

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Please enter an art description", validationErr.Message)
		assert.Zero(t, gen.callCount())
		assert.Empty(t, storedRecords(t, session))
		assert.Nil(t, session.Latest())
	}
}

func TestRun_FailureCommitsNothing(t *testing.T) {
	gen := newFakeGenerator()
	gen.failAt = 1
	gen.err = &inference.GenerationError{Message: "Hugging Face API error: status=503, loading"}
	o := newTestOrchestrator(gen, nil)
	session := newTestSession()

	req := baseRequest()
	req.NumVariations = 3
	outcome, err := o.Run(context.Background(), session, req, nil)
	assert.Nil(t, outcome)

	var genErr *inference.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, genErr.Message, "status=503")
	assert.Equal(t, 2, gen.callCount())
	assert.Empty(t, storedRecords(t, session))
	assert.Nil(t, session.Latest())
	assert.False(t, session.Running())

	snap := o.metrics.Snapshot()
	assert.Equal(t, 1, snap.FailedBatches)
	assert.Zero(t, snap.TotalImages)
}

func TestRun_WrapsPlainErrors(t *testing.T) {
	gen := newFakeGenerator()
	gen.failAt = 0
	o := newTestOrchestrator(gen, nil)

	_, err := o.Run(context.Background(), newTestSession(), baseRequest(), nil)
	var genErr *inference.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "backend unavailable", genErr.Message)
}

func TestRun_HistoryKeepsFiveNewest(t *testing.T) {
	o := newTestOrchestrator(newFakeGenerator(), nil)
	session := newTestSession()

	var ids []string
	for i := 0; i < 6; i++ {
		outcome, err := o.Run(context.Background(), session, baseRequest(), nil)
		require.NoError(t, err)
		ids = append(ids, outcome.Record.ID)
		if i == 5 {
			assert.Equal(t, 1, outcome.Evicted)
		}
	}

	records := storedRecords(t, session)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, ids[i+1], rec.ID)
	}
	_, err := session.Store().Get(context.Background(), ids[0])
	assert.ErrorIs(t, err, history.ErrRecordNotFound)
}

func TestRun_SeedsAreDrawnPerVariation(t *testing.T) {
	gen := newFakeGenerator()
	o := newTestOrchestrator(gen, nil)

	req := baseRequest()
	req.NumVariations = 4
	outcome, err := o.Run(context.Background(), newTestSession(), req, nil)
	require.NoError(t, err)

	seen := map[uint32]bool{}
	for _, s := range outcome.Record.Params.Seeds {
		seen[s] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, gen.seeds, outcome.Record.Params.Seeds)
}

func TestRun_RejectsConcurrentBatchAndCancels(t *testing.T) {
	gen := newFakeGenerator()
	gen.block = true
	o := newTestOrchestrator(gen, nil)
	session := newTestSession()

	type result struct {
		outcome *BatchOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := o.Run(context.Background(), session, baseRequest(), nil)
		done <- result{outcome, err}
	}()

	<-gen.started
	require.True(t, session.Running())

	_, err := o.Run(context.Background(), session, baseRequest(), nil)
	assert.ErrorIs(t, err, ErrBatchInProgress)

	require.True(t, session.Cancel())
	res := <-done
	assert.Nil(t, res.outcome)
	var genErr *inference.GenerationError
	require.ErrorAs(t, res.err, &genErr)
	assert.Equal(t, "generation cancelled", genErr.Message)

	assert.Empty(t, storedRecords(t, session))
	assert.False(t, session.Running())
	assert.False(t, session.Cancel())
}

func TestRun_CancelledContextStopsBeforeNextVariation(t *testing.T) {
	gen := newFakeGenerator()
	ctx, cancel := context.WithCancel(context.Background())
	o := newTestOrchestrator(gen, nil)
	session := newTestSession()

	req := baseRequest()
	req.NumVariations = 3
	_, err := o.Run(ctx, session, req, func(p Progress) {
		if p.Index == 1 {
			cancel()
		}
	})

	var genErr *inference.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "generation cancelled", genErr.Message)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, gen.callCount())
	assert.Empty(t, storedRecords(t, session))
}

func TestRun_SessionsAreIsolated(t *testing.T) {
	o := newTestOrchestrator(newFakeGenerator(), nil)
	a := newSession("a", history.NewMemoryStore(history.DefaultLimit), time.Now())
	b := newSession("b", history.NewMemoryStore(history.DefaultLimit), time.Now())

	_, err := o.Run(context.Background(), a, baseRequest(), nil)
	require.NoError(t, err)

	assert.Len(t, storedRecords(t, a), 1)
	assert.Empty(t, storedRecords(t, b))
	assert.Nil(t, b.Latest())
}

func TestRun_StoppedAfterLastVariationCommitsNothing(t *testing.T) {
	tests := []struct {
		name string
		stop func(sm *SessionManager, s *Session)
	}{
		{"cancelled", func(_ *SessionManager, s *Session) { s.Cancel() }},
		{"session ended", func(sm *SessionManager, s *Session) { sm.End(context.Background(), s.ID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewSessionManager(memoryFactory(), time.Hour, 24*time.Hour, nil)
			session := sm.Create()
			gen := newFakeGenerator()
			o := newTestOrchestrator(gen, nil)

			req := baseRequest()
			req.NumVariations = 2
			outcome, err := o.Run(context.Background(), session, req, func(p Progress) {
				if p.Index == p.Total-1 {
					tt.stop(sm, session)
				}
			})
			assert.Nil(t, outcome)

			var genErr *inference.GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, "generation cancelled", genErr.Message)
			assert.Equal(t, 2, gen.callCount())
			assert.Empty(t, storedRecords(t, session))
			assert.Nil(t, session.Latest())
		})
	}
}
