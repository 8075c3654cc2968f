package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini embeds through the Gemini API with a RETRIEVAL_DOCUMENT task type.
type Gemini struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.GeminiAPIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: gemini client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &Gemini{client: client, model: model, dim: cfg.Dimension}, nil
}

func (g *Gemini) Dimension() int    { return g.dim }
func (g *Gemini) ModelName() string { return g.model }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if g.dim > 0 {
		d := int32(g.dim)
		config.OutputDimensionality = &d
	}
	resp, err := g.client.Models.EmbedContent(
		ctx,
		g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini embeddings: no values returned")
	}
	return resp.Embeddings[0].Values, nil
}
