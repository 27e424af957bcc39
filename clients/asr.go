package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/transcribe"
)

// ASR is the window recognizer service. It receives the whole source file plus
// the window bounds and decodes only that slice.
type ASR struct {
	h   *HTTP
	url string
}

func NewASR(h *HTTP, url string) *ASR {
	return &ASR{h: h, url: normalizeBaseURL(url)}
}

func (a *ASR) Recognize(ctx context.Context, source string, win models.TimeWindow, opts transcribe.RecognizeOptions) (models.RecognitionResult, error) {
	var out models.RecognitionResult
	if a.url == "" {
		return out, fmt.Errorf("asr: service url is empty")
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(source))
	if err != nil {
		return out, err
	}
	fd, err := os.Open(source)
	if err != nil {
		return out, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return out, err
	}
	fields := map[string]string{
		"start_ms":    strconv.FormatInt(win.StartMs, 10),
		"duration_ms": strconv.FormatInt(win.DurationMs, 10),
		"language":    opts.Language,
		"provider":    opts.Provider,
	}
	for k, v := range fields {
		if err = w.WriteField(k, v); err != nil {
			return out, err
		}
	}
	if err = w.Close(); err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+"/recognize", &b)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.h.c.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, statusError("asr", resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("asr decode: %w", err)
	}
	return out, nil
}
