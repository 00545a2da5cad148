// Package narrative produces the free-text part of analyses with Gemini.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	applogger "FinFolio/pkg/logger"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// ErrUnavailable is returned when no generator is configured or the model
// produced no text.
var ErrUnavailable = errors.New("narrative generator unavailable")

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini implements service.NarrativeGenerator.
type Gemini struct {
	model    string
	generate generateFunc
	l        *applogger.Logger
}

type Option func(*Gemini)

func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(g *Gemini) {
		if l != nil {
			g.l = l
		}
	}
}

// NewGemini creates a Gemini API backed generator.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w: api key is empty", ErrUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g := newGemini(nil, opts...)
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		}
		resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		return extractText(resp)
	}
	return g, nil
}

func newGemini(fn generateFunc, opts ...Option) *Gemini {
	g := &Gemini{model: DefaultModel, generate: fn, l: applogger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrUnavailable
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrUnavailable
	}
	return sb.String(), nil
}

func (g *Gemini) Model() string { return g.model }

func (g *Gemini) AssetAnalysis(ctx context.Context, symbol string, ind *models.IndicatorSet, bars []models.PriceBar) (string, error) {
	return g.run(ctx, "asset", AssetPrompt(symbol, ind, bars))
}

func (g *Gemini) PortfolioAnalysis(ctx context.Context, state *models.PortfolioState, positions []models.PositionMetrics) (string, error) {
	return g.run(ctx, "portfolio", PortfolioPrompt(state, positions))
}

func (g *Gemini) run(ctx context.Context, kind, prompt string) (string, error) {
	if g.generate == nil {
		return "", ErrUnavailable
	}
	start := time.Now()
	text, err := g.generate(ctx, prompt)
	if err != nil {
		g.l.Error("narrative generation failed",
			applogger.String("kind", kind),
			applogger.String("model", g.model),
			applogger.Error(err),
		)
		return "", err
	}
	g.l.Debug("narrative generated",
		applogger.String("kind", kind),
		applogger.Int("chars", len(text)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return strings.TrimSpace(text), nil
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) Model() string { return "" }

func (Disabled) AssetAnalysis(context.Context, string, *models.IndicatorSet, []models.PriceBar) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) PortfolioAnalysis(context.Context, *models.PortfolioState, []models.PositionMetrics) (string, error) {
	return "", ErrUnavailable
}
