package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// imageModels is the slice of genai.Models the backend needs.
type imageModels interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// ImagenBackend generates through the Imagen models of the genai SDK.
type ImagenBackend struct {
	models imageModels
	model  string
	// The Gemini API rejects seeds and negative prompts; Vertex accepts both.
	vertex bool
}

// ImagenConfig selects Vertex AI when Project is set, else the Gemini API.
type ImagenConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// NewImagenBackend - genai client initialisation
func NewImagenBackend(ctx context.Context, cfg ImagenConfig) (*ImagenBackend, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	vertex := cfg.Project != ""
	if vertex {
		clientCfg = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	log.Info().Str("model", cfg.Model).Bool("vertex", vertex).Msg("✅ [Imagen] Backend initialized")
	return newImagenBackend(client.Models, cfg.Model, vertex), nil
}

func newImagenBackend(models imageModels, model string, vertex bool) *ImagenBackend {
	return &ImagenBackend{models: models, model: model, vertex: vertex}
}

// Name implements Backend.
func (b *ImagenBackend) Name() string {
	return "imagen"
}

// TextToImage requests a single PNG image.
func (b *ImagenBackend) TextToImage(ctx context.Context, req Request, seed uint32) (*Output, error) {
	guidance := float32(req.GuidanceScale)
	genCfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio(req.Width, req.Height),
		GuidanceScale:  &guidance,
		OutputMIMEType: "image/png",
	}
	if b.vertex {
		s := int32(b.NormalizeSeed(seed))
		genCfg.Seed = &s
		genCfg.NegativePrompt = req.NegativePrompt
		// Vertex refuses a seed while watermarking is on.
		genCfg.AddWatermark = false
	}

	resp, err := b.models.GenerateImages(ctx, b.model, req.Prompt, genCfg)
	if err != nil {
		return nil, fmt.Errorf("Imagen API error: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, &GenerationError{Message: "Imagen returned no image"}
	}

	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		reason := generated.RAIFilteredReason
		if reason == "" {
			reason = "empty image"
		}
		return nil, &GenerationError{Message: "Imagen returned no image: " + reason}
	}

	return &Output{Data: generated.Image.ImageBytes}, nil
}

// NormalizeSeed folds seed into 1..math.MaxInt32, the range Vertex accepts.
// Seeds already in range are returned unchanged.
func (b *ImagenBackend) NormalizeSeed(seed uint32) uint32 {
	s := seed & math.MaxInt32
	if s == 0 {
		s = 1
	}
	return s
}

// aspectRatio maps canvas dimensions onto the ratios Imagen accepts.
func aspectRatio(width, height int) string {
	switch {
	case width > height:
		return "4:3"
	case width < height:
		return "3:4"
	default:
		return "1:1"
	}
}
