package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/response"
	"github.com/maastricht-university/transcript-pipeline/transcribe"
	"github.com/maastricht-university/transcript-pipeline/translate"
)

func TestASRRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recognize" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		audio, _ := io.ReadAll(f)
		if string(audio) != "RIFF" || r.FormValue("start_ms") != "37000" || r.FormValue("provider") != "cuda" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.RecognitionResult{
			Language: r.FormValue("language"), Text: "hi", Tokens: []string{"hi"}, Timestamps: []float64{0.2},
		})
	}))
	defer srv.Close()

	src := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(src, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	asr := NewASR(NewHTTP(), srv.URL+"/")
	res, err := asr.Recognize(context.Background(), src, models.TimeWindow{Index: 1, StartMs: 37_000, DurationMs: 45_000},
		transcribe.RecognizeOptions{Language: "en", Provider: "cuda"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Language != "en" || len(res.Tokens) != 1 || res.Timestamps[0] != 0.2 {
		t.Errorf("result = %+v", res)
	}
}

func TestASRStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cudnn64_9.dll missing", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := filepath.Join(t.TempDir(), "a.wav")
	_ = os.WriteFile(src, []byte("RIFF"), 0o644)
	_, err := NewASR(NewHTTP(), srv.URL).Recognize(context.Background(), src, models.TimeWindow{}, transcribe.RecognizeOptions{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("err = %v", err)
	}
	if !transcribe.IsMissingAccelerator(err) {
		t.Error("accelerator failure not recognized through the status error")
	}
}

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (c *capture) add(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()
	return body
}

func TestOpenAIJSON(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		c.add(r)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"[[\"u1\",\"bonjour\"]]"}}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(NewHTTP(), OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "m", System: "sys"})
	out, err := o.Generate(context.Background(), "translate", 512)
	if err != nil {
		t.Fatal(err)
	}
	if out != `[["u1","bonjour"]]` {
		t.Errorf("out = %q", out)
	}
	body := c.bodies[0]
	if body["max_tokens"] != float64(512) || body["model"] != "m" {
		t.Errorf("body = %v", body)
	}
	if msgs := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v", msgs)
	}
}

func TestOpenAITokenParamFallback(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := c.add(r)
		if _, ok := body["max_tokens"]; ok {
			http.Error(w, `{"error":"Unrecognized request argument supplied: max_tokens"}`, http.StatusBadRequest)
			return
		}
		if _, ok := body["max_completion_tokens"]; ok {
			http.Error(w, `{"error":"unknown parameter max_completion_tokens"}`, http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	out, err := NewOpenAI(NewHTTP(), OpenAIConfig{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "p", 100)
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" || len(c.bodies) != 3 {
		t.Errorf("out = %q after %d requests", out, len(c.bodies))
	}
}

func TestOpenAIHardErrorStops(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.add(r)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenAI(NewHTTP(), OpenAIConfig{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "p", 100)
	var se *StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != 503 {
		t.Fatalf("err = %v", err)
	}
	if !translate.IsTransient(err) {
		t.Error("503 not transient")
	}
	if len(c.bodies) != 1 {
		t.Errorf("requests = %d", len(c.bodies))
	}
}

func TestOpenAIEventStream(t *testing.T) {
	cases := []struct {
		name string
		ct   string
		body string
		want string
	}{
		{
			"content deltas", "text/event-stream",
			"data: {\"choices\":[{\"delta\":{\"content\":\"[[\\\"u1\\\",\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"\\\"hi\\\"]]\"}}]}\n\n" +
				"data: [DONE]\n\n",
			`[["u1","hi"]]`,
		},
		{
			"reasoning only", "text/event-stream",
			"data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"thinking\"}}]}\ndata: [DONE]\n",
			"thinking",
		},
		{
			"sse without header", "application/json",
			"data: {\"choices\":[{\"delta\":{\"content\":[{\"type\":\"text\",\"text\":\"part\"}]}}]}\n",
			"part",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ct)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()
			out, err := NewOpenAI(NewStreamingHTTP(), OpenAIConfig{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "p", 0)
			if err != nil {
				t.Fatal(err)
			}
			if out != tc.want {
				t.Errorf("out = %q, want %q", out, tc.want)
			}
		})
	}
}

func TestOpenAIRejectsBadBodies(t *testing.T) {
	cases := []struct {
		name  string
		ct    string
		body  string
		check func(error) bool
	}{
		{"html", "text/html", "<!doctype html><html>login</html>", func(err error) bool {
			return strings.Contains(err.Error(), "looks like HTML")
		}},
		{"empty content", "application/json", `{"choices":[{"message":{"content":"  "}}]}`, func(err error) bool {
			return errors.Is(err, response.ErrEmptyContent)
		}},
		{"empty stream", "text/event-stream", "data: [DONE]\n", func(err error) bool {
			return errors.Is(err, response.ErrEmptyContent)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ct)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()
			_, err := NewOpenAI(NewHTTP(), OpenAIConfig{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "p", 0)
			if err == nil || !tc.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestOpenAIStalledStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o := NewOpenAI(NewStreamingHTTP(), OpenAIConfig{BaseURL: srv.URL, Model: "m", IdleTimeout: 100 * time.Millisecond})
	_, err := o.Generate(context.Background(), "p", 0)
	if err == nil || !strings.Contains(err.Error(), "stalled") {
		t.Fatalf("err = %v", err)
	}
	if !translate.IsTransient(err) {
		t.Error("stall not transient")
	}
}

func TestGemini(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-pro:generateContent" || r.URL.Query().Get("key") != "k" {
			http.Error(w, r.URL.String(), http.StatusNotFound)
			return
		}
		c.add(r)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"}]}}]}`)
	}))
	defer srv.Close()

	g := NewGemini(NewHTTP(), GeminiConfig{BaseURL: srv.URL + "/", APIKey: "k", Model: "gemini-pro"})
	out, err := g.Generate(context.Background(), "p", 2048)
	if err != nil {
		t.Fatal(err)
	}
	if out != "ab" {
		t.Errorf("out = %q", out)
	}
	gc := c.bodies[0]["generationConfig"].(map[string]any)
	if gc["maxOutputTokens"] != float64(2048) {
		t.Errorf("generationConfig = %v", gc)
	}

	if NewGemini(NewHTTP(), GeminiConfig{BaseURL: "https://x/v1", Model: "m"}).Endpoint() != "https://x/v1/models/m:generateContent" {
		t.Error("explicit version rewritten")
	}
	if _, err := NewGemini(NewHTTP(), GeminiConfig{Model: "m"}).Generate(context.Background(), "p", 0); err == nil {
		t.Error("missing key accepted")
	}
}
