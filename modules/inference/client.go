package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Client wraps a Backend with the per-call timeout and the PNG contract.
type Client struct {
	backend Backend
	timeout time.Duration
}

// NewClient - timeout bounds each remote call; zero disables it.
func NewClient(backend Backend, timeout time.Duration) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &Client{backend: backend, timeout: timeout}, nil
}

// Backend returns the name of the wrapped backend.
func (c *Client) Backend() string {
	return c.backend.Name()
}

// SeedSource wraps base so that drawn seeds already fit the backend's
// accepted range. The recorded seed is then the one actually sent.
func (c *Client) SeedSource(base SeedSource) SeedSource {
	n, ok := c.backend.(SeedNormalizer)
	if !ok || base == nil {
		return base
	}
	return func() uint32 { return n.NormalizeSeed(base()) }
}

// Generate performs one remote call and returns PNG bytes. Every failure
// comes back as a *GenerationError.
func (c *Client) Generate(ctx context.Context, req Request, seed uint32) ([]byte, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.backend.TextToImage(callCtx, req, seed)
	if err != nil {
		return nil, c.wrap(ctx, callCtx, err)
	}

	data, err := ToPNG(out)
	if err != nil {
		return nil, &GenerationError{Message: fmt.Sprintf("%s returned an unusable image: %v", c.backend.Name(), err), Err: err}
	}

	log.Debug().
		Str("backend", c.backend.Name()).
		Uint32("seed", seed).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("🎨 [Inference] Image generated")
	return data, nil
}

func (c *Client) wrap(parent, callCtx context.Context, err error) error {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	switch {
	case parent.Err() != nil:
		return &GenerationError{Message: "generation cancelled", Err: err}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &GenerationError{Message: fmt.Sprintf("%s did not respond within %s", c.backend.Name(), c.timeout), Err: err}
	default:
		return &GenerationError{Message: err.Error(), Err: err}
	}
}
