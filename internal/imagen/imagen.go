// Package imagen generates images with Vertex AI Imagen.
package imagen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tahcohcat/vocalize-web/config"
	"github.com/tahcohcat/vocalize-web/internal/logger"
	"github.com/tahcohcat/vocalize-web/internal/mediasession"
)

const (
	MinSampleCount     = 1
	MaxSampleCount     = 8
	DefaultAspectRatio = "1:1"
)

var aspectRatios = map[string]bool{
	"1:1":  true,
	"3:4":  true,
	"4:3":  true,
	"9:16": true,
	"16:9": true,
}

// Request describes one generation call.
type Request struct {
	Prompt         string `json:"prompt"`
	AspectRatio    string `json:"aspectRatio"`
	SampleCount    int    `json:"sampleCount"`
	NegativePrompt string `json:"negativePrompt"`
	EnhancePrompt  bool   `json:"enhancePrompt"`
}

// Prediction is one generated image.
type Prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
	EnhancedPrompt     string `json:"enhancedPrompt,omitempty"`
}

// Normalize applies defaults for omitted fields.
func (r Request) Normalize() Request {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	if r.SampleCount == 0 {
		r.SampleCount = MinSampleCount
	}
	return r
}

func (r Request) Validate() error {
	switch {
	case r.Prompt == "":
		return mediasession.ValidationError("prompt required")
	case r.SampleCount < MinSampleCount || r.SampleCount > MaxSampleCount:
		return mediasession.ValidationError(fmt.Sprintf("sample count must be between %d and %d", MinSampleCount, MaxSampleCount))
	case !aspectRatios[r.AspectRatio]:
		return mediasession.ValidationError(fmt.Sprintf("unsupported aspect ratio %q", r.AspectRatio))
	}
	return nil
}

type imageModels interface {
	GenerateImages(ctx context.Context, model string, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

type Generator struct {
	models   imageModels
	model    string
	mimeType string
	timeout  time.Duration
	logger   *logger.Log
}

func NewGenerator(ctx context.Context, cfg config.ImagenConfig) (*Generator, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("imagen.project is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	return newGenerator(client.Models, cfg), nil
}

func newGenerator(models imageModels, cfg config.ImagenConfig) *Generator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	mimeType := cfg.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &Generator{
		models:   models,
		model:    cfg.Model,
		mimeType: mimeType,
		timeout:  timeout,
		logger:   logger.New().Named("imagen"),
	}
}

// Generate validates req and returns the generated images. Images withheld
// by the provider's safety filters are skipped.
func (g *Generator) Generate(ctx context.Context, req Request) ([]Prediction, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.Debug("generating images",
		zap.String("model", g.model),
		zap.Int("samples", req.SampleCount),
		zap.String("aspect_ratio", req.AspectRatio))

	resp, err := g.models.GenerateImages(ctx, g.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   int32(req.SampleCount),
		AspectRatio:      req.AspectRatio,
		NegativePrompt:   req.NegativePrompt,
		EnhancePrompt:    req.EnhancePrompt,
		OutputMIMEType:   g.mimeType,
		IncludeRAIReason: true,
	})
	if err != nil {
		g.logger.WithError(err).Warn("image generation failed")
		return nil, mediasession.ServiceError("image generation failed", err)
	}

	predictions := make([]Prediction, 0, len(resp.GeneratedImages))
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			if img != nil && img.RAIFilteredReason != "" {
				g.logger.Info("image filtered", zap.String("reason", img.RAIFilteredReason))
			}
			continue
		}
		mimeType := img.Image.MIMEType
		if mimeType == "" {
			mimeType = g.mimeType
		}
		predictions = append(predictions, Prediction{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(img.Image.ImageBytes),
			MIMEType:           mimeType,
			EnhancedPrompt:     img.EnhancedPrompt,
		})
	}
	if len(predictions) == 0 {
		return nil, mediasession.ServiceError("no images were generated", nil)
	}
	return predictions, nil
}
