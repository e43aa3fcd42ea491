package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"askgive/internal/config"
)

var (
	ErrNotConfigured = errors.New("gemini api key is not configured")
	ErrModel         = errors.New("ai model request failed")
)

type Request struct {
	Prompt string
	Schema *genai.Schema
	// Grounded enables Google Search. The Gemini API does not accept a
	// response schema together with tools, so Schema is ignored then.
	Grounded bool
}

type Response struct {
	Text    string
	Sources []string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiGenerator(ctx context.Context, cfg config.Config) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	timeout := time.Duration(cfg.AITimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiGenerator{client: client, model: cfg.GeminiModel, timeout: timeout}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{}
	if req.Grounded {
		genCfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if req.Schema != nil {
		genCfg.ResponseMIMEType = "application/json"
		genCfg.ResponseSchema = req.Schema
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	out := Response{Text: resp.Text()}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk != nil && chunk.Web != nil && chunk.Web.URI != "" {
				out.Sources = append(out.Sources, chunk.Web.URI)
			}
		}
	}
	return out, nil
}

// extractJSON pulls the JSON array out of a model reply that may wrap it in a
// markdown fence or surrounding prose.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
