package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maastricht-university/transcript-pipeline/response"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com"

type GeminiConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// Gemini calls the generateContent endpoint.
type Gemini struct {
	h   *HTTP
	cfg GeminiConfig
}

func NewGemini(h *HTTP, cfg GeminiConfig) *Gemini {
	base := normalizeBaseURL(cfg.BaseURL)
	if base == "" {
		base = defaultGeminiBase
	}
	if !strings.HasSuffix(base, "/v1beta") && !strings.HasSuffix(base, "/v1") {
		base += "/v1beta"
	}
	cfg.BaseURL = base
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &Gemini{h: h, cfg: cfg}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiReq struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig"`
}

type geminiResp struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
}

func (g *Gemini) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", errors.New("gemini: api key is empty")
	}
	if g.cfg.Model == "" {
		return "", errors.New("gemini: model is empty")
	}
	gen := map[string]any{"temperature": g.cfg.Temperature}
	if maxOutputTokens > 0 {
		gen["maxOutputTokens"] = maxOutputTokens
	}
	b, err := json.Marshal(geminiReq{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: gen,
	})
	if err != nil {
		return "", err
	}

	u := g.Endpoint() + "?key=" + url.QueryEscape(strings.TrimSpace(g.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.h.c.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("gemini", resp)
	}

	var out geminiResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini decode: %w", err)
	}
	var sb strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("gemini response missing content: %w", response.ErrEmptyContent)
	}
	return sb.String(), nil
}
