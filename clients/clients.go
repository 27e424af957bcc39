package clients

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type HTTP struct{ c *http.Client }

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

// NewStreamingHTTP has no overall deadline; callers bound streamed bodies
// with an idle timer instead.
func NewStreamingHTTP() *HTTP {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = 2 * time.Minute
	return &HTTP{c: &http.Client{Transport: t}}
}

const maxErrorBody = 4 << 10

// StatusError is a non-2xx answer from a collaborator service.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Service, e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

func statusError(service string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Service: service, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func normalizeBaseURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
