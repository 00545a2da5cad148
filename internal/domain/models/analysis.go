package models

import (
	"fmt"
	"strings"
	"time"

	xutil "FinFolio/pkg/util"

	"github.com/shopspring/decimal"
)

// ScopeKind discriminates what an analysis is about.
type ScopeKind string

const (
	ScopeAsset     ScopeKind = "ASSET"
	ScopePortfolio ScopeKind = "PORTFOLIO"
)

// ParseScopeKind accepts "asset", "assets", "portfolio" or "portfolios" in any case.
func ParseScopeKind(s string) (ScopeKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASSET", "ASSETS":
		return ScopeAsset, nil
	case "PORTFOLIO", "PORTFOLIOS":
		return ScopePortfolio, nil
	default:
		return "", fmt.Errorf("unknown analysis kind %q", s)
	}
}

// ScopeKey identifies one analysis subject. Both fields are part of the identity.
type ScopeKey struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// AssetKey builds the key of an asset analysis; symbols are upper-cased.
func AssetKey(symbol string) ScopeKey {
	return ScopeKey{Kind: ScopeAsset, ID: xutil.NormalizeSymbol(symbol)}
}

// PortfolioKey builds the key of a portfolio analysis.
func PortfolioKey(id string) ScopeKey {
	return ScopeKey{Kind: ScopePortfolio, ID: strings.TrimSpace(id)}
}

// NewScopeKey normalises a kind/id pair coming from the outside.
func NewScopeKey(kind ScopeKind, id string) ScopeKey {
	if kind == ScopeAsset {
		return AssetKey(id)
	}
	return ScopeKey{Kind: kind, ID: strings.TrimSpace(id)}
}

func (k ScopeKey) String() string {
	return "analysis:" + string(k.Kind) + ":" + k.ID
}

// Valid reports whether the key has a known kind and a non-empty id.
func (k ScopeKey) Valid() bool {
	return (k.Kind == ScopeAsset || k.Kind == ScopePortfolio) && k.ID != ""
}

// PortfolioAnalysisMeta is the metadata stored with a portfolio analysis.
type PortfolioAnalysisMeta struct {
	TotalPositions int             `json:"total_positions"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Performance    decimal.Decimal `json:"performance"`
}

// AnalysisPayload is what the analysis cache stores.
type AnalysisPayload struct {
	Narrative  string                 `json:"analysis_text"`
	HTML       string                 `json:"analysis_html,omitempty"`
	Indicators *IndicatorSet          `json:"technical_indicators,omitempty"`
	Portfolio  *PortfolioAnalysisMeta `json:"portfolio,omitempty"`
	Model      string                 `json:"model,omitempty"`
	Disclaimer string                 `json:"disclaimer"`
}

// CacheEntry is a generated analysis with its validity window.
type CacheEntry struct {
	Scope       ScopeKey        `json:"scope"`
	Payload     AnalysisPayload `json:"payload"`
	GeneratedAt time.Time       `json:"generated_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// ValidAt reports whether the entry may be served at now.
func (e *CacheEntry) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// IsExpired reports whether now is past the expiry instant.
func IsExpired(e *CacheEntry, now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type AnalysisStatus string

const (
	AnalysisProcessing AnalysisStatus = "PROCESSING"
	AnalysisCompleted  AnalysisStatus = "COMPLETED"
	AnalysisFailed     AnalysisStatus = "FAILED"
)

// AnalysisRequest tracks one generation attempt.
type AnalysisRequest struct {
	ID           string         `json:"id"`
	Scope        ScopeKey       `json:"scope"`
	Status       AnalysisStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	AnalysisID   string         `json:"analysis_id,omitempty"`
	RequestedAt  time.Time      `json:"requested_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// AnalysisRecord is an entry of the analysis history.
type AnalysisRecord struct {
	ID          string          `json:"id"`
	Scope       ScopeKey        `json:"scope"`
	Payload     AnalysisPayload `json:"payload"`
	GeneratedAt time.Time       `json:"generated_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// AnalysisResult is returned to API callers.
type AnalysisResult struct {
	ID     string      `json:"id,omitempty"`
	Entry  *CacheEntry `json:"analysis"`
	Cached bool        `json:"cached"`
}
