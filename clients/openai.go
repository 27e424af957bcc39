package clients

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/maastricht-university/transcript-pipeline/response"
)

const defaultIdleTimeout = 60 * time.Second

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	System      string
	Temperature float64
	// IdleTimeout bounds the gap between two reads of the response body.
	IdleTimeout time.Duration
}

// OpenAI calls an OpenAI-compatible /chat/completions endpoint. Some gateways
// stream text/event-stream whatever the request says, so both shapes are read.
type OpenAI struct {
	h   *HTTP
	cfg OpenAIConfig
}

func NewOpenAI(h *HTTP, cfg OpenAIConfig) *OpenAI {
	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &OpenAI{h: h, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// tokenParams are tried in order; strict gateways reject one or the other.
var tokenParams = []string{"max_tokens", "max_completion_tokens", ""}

func (o *OpenAI) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	if o.cfg.BaseURL == "" {
		return "", errors.New("openai: base url is empty")
	}
	if o.cfg.Model == "" {
		return "", errors.New("openai: model is empty")
	}
	var msgs []chatMessage
	if o.cfg.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: o.cfg.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	params := tokenParams
	if maxOutputTokens <= 0 {
		params = []string{""}
	}
	var lastErr error
	for _, p := range params {
		body := map[string]any{
			"model":       o.cfg.Model,
			"messages":    msgs,
			"temperature": o.cfg.Temperature,
			"stream":      false,
		}
		if p != "" {
			body[p] = maxOutputTokens
		}
		out, err := o.complete(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !unknownTokenParam(err) {
			break
		}
	}
	return "", lastErr
}

func unknownTokenParam(err error) bool {
	s := strings.ToLower(err.Error())
	return (strings.Contains(s, "unknown") || strings.Contains(s, "unrecognized") ||
		strings.Contains(s, "unexpected") || strings.Contains(s, "unsupported")) &&
		(strings.Contains(s, "max_tokens") || strings.Contains(s, "max_completion_tokens"))
}

func (o *OpenAI) complete(ctx context.Context, body map[string]any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stalled atomic.Bool
	idle := time.AfterFunc(o.cfg.IdleTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer idle.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if k := strings.TrimSpace(o.cfg.APIKey); k != "" {
		req.Header.Set("Authorization", "Bearer "+k)
	}

	resp, err := o.h.c.Do(req)
	if err != nil {
		if stalled.Load() {
			return "", fmt.Errorf("openai stream stalled: no response for %s", o.cfg.IdleTimeout)
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()
	idle.Reset(o.cfg.IdleTimeout)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("openai", resp)
	}

	r := &idleReader{r: resp.Body, timer: idle, d: o.cfg.IdleTimeout}
	wrap := func(err error) error {
		if stalled.Load() {
			return fmt.Errorf("openai stream stalled: no data for %s", o.cfg.IdleTimeout)
		}
		return fmt.Errorf("read openai response: %w", err)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") {
		out, err := readEventStream(r)
		if err != nil && !errors.Is(err, response.ErrEmptyContent) {
			return "", wrap(err)
		}
		return out, err
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", wrap(err)
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "<") {
		return "", fmt.Errorf("openai response is not JSON (looks like HTML), check the base url (should end with /v1)\ncontent-type: %s\nbody (first 200 chars):\n%s", ct, preview(text, 200))
	}
	if strings.HasPrefix(text, "data:") {
		return readEventStream(strings.NewReader(text))
	}

	var cr chatResponse
	if err := json.Unmarshal([]byte(text), &cr); err != nil {
		return "", fmt.Errorf("parse openai json failed: %w\ncontent-type: %s\nbody (first 400 chars):\n%s", err, ct, preview(text, 400))
	}
	if len(cr.Choices) > 0 {
		if s := contentText(cr.Choices[0].Message.Content); strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("openai response missing content: %w", response.ErrEmptyContent)
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          json.RawMessage `json:"content"`
			Text             string          `json:"text"`
			ReasoningContent string          `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

// contentText accepts content as a plain string or as an array of parts.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var parts []json.RawMessage
	if json.Unmarshal(raw, &parts) != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		var ps string
		if json.Unmarshal(p, &ps) == nil {
			b.WriteString(ps)
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(p, &obj) == nil {
			b.WriteString(obj.Text)
		}
	}
	return b.String()
}

// readEventStream accumulates delta content from data: lines until [DONE].
// Reasoning text is returned only when the stream carried no content at all.
func readEventStream(r io.Reader) (string, error) {
	var content, reasoning strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}
		if !strings.HasPrefix(data, "{") {
			continue
		}
		var ch chatChunk
		if json.Unmarshal([]byte(data), &ch) != nil || len(ch.Choices) == 0 {
			continue
		}
		d := ch.Choices[0].Delta
		switch c := contentText(d.Content); {
		case c != "":
			content.WriteString(c)
		case d.Text != "":
			content.WriteString(d.Text)
		default:
			reasoning.WriteString(d.ReasoningContent)
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(content.String()) != "" {
		return content.String(), nil
	}
	if strings.TrimSpace(reasoning.String()) != "" {
		return reasoning.String(), nil
	}
	return "", fmt.Errorf("openai event-stream returned no content: %w", response.ErrEmptyContent)
}

// idleReader pushes the idle deadline back on every read that returns data.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.d)
	}
	return n, err
}
