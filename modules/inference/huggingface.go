package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"art-studio-server/modules/common/httputil"
)

// hfRequest - Hugging Face text-to-image request body
type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	NegativePrompt    *string `json:"negative_prompt,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Height            int     `json:"height"`
	Width             int     `json:"width"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Seed              uint32  `json:"seed"`
}

// maxResponseBytes caps a response body. A 768x768 RGBA PNG is under 2.5 MiB.
const maxResponseBytes = 16 << 20

// hfErrorResponse - error body of the inference API
type hfErrorResponse struct {
	Error string `json:"error"`
}

// HuggingFaceBackend calls the hosted inference API for a fixed model.
type HuggingFaceBackend struct {
	httpClient *http.Client
	baseURL    string
	model      string
	token      string
	maxBytes   int64
}

// NewHuggingFaceBackend - httpClient may be nil. The client timeout is
// left unset; the per-call deadline comes from Client.
func NewHuggingFaceBackend(baseURL, model, token string, httpClient *http.Client) (*HuggingFaceBackend, error) {
	if token == "" {
		return nil, fmt.Errorf("hugging face token is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		}}
	}

	log.Info().Str("model", model).Msg("✅ [HuggingFace] Backend initialized")
	return &HuggingFaceBackend{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		token:      token,
		maxBytes:   maxResponseBytes,
	}, nil
}

// Name implements Backend.
func (b *HuggingFaceBackend) Name() string {
	return "huggingface"
}

// TextToImage - POST {baseURL}/{model}; the body of a 200 is the image.
func (b *HuggingFaceBackend) TextToImage(ctx context.Context, req Request, seed uint32) (*Output, error) {
	payload := hfRequest{
		Inputs: req.Prompt,
		Parameters: hfParameters{
			GuidanceScale:     req.GuidanceScale,
			Height:            req.Height,
			Width:             req.Width,
			NumInferenceSteps: req.Steps,
			Seed:              seed,
		},
	}
	if req.NegativePrompt != "" {
		negative := req.NegativePrompt
		payload.Parameters.NegativePrompt = &negative
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := b.baseURL + "/" + b.model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png")
	httpReq.Header.Set("Authorization", "Bearer "+b.token)

	log.Debug().
		Str("model", b.model).
		Str("prompt", httputil.TruncateString(req.Prompt, 50)).
		Int("width", req.Width).
		Int("height", req.Height).
		Int("steps", req.Steps).
		Float64("cfg", req.GuidanceScale).
		Uint32("seed", seed).
		Msg("🎨 [HuggingFace] Generating image")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Hugging Face API error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > b.maxBytes {
		return nil, &GenerationError{
			Message: fmt.Sprintf("Hugging Face API response exceeds %d bytes", b.maxBytes),
		}
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("body", httputil.TruncateString(string(body), 200)).Msg("❌ [HuggingFace] API error")
		return nil, &GenerationError{
			Message: fmt.Sprintf("Hugging Face API error: status=%d, %s", resp.StatusCode, errorMessage(body)),
		}
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &GenerationError{Message: "Hugging Face API error: " + errorMessage(body)}
	}
	if len(body) == 0 {
		return nil, &GenerationError{Message: "Hugging Face API returned no image"}
	}

	return &Output{Data: body}, nil
}

func errorMessage(body []byte) string {
	var apiErr hfErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	return httputil.TruncateString(text, 200)
}
