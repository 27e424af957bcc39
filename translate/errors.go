package translate

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/maastricht-university/transcript-pipeline/response"
)

// ErrNoTranslation is returned when not a single unit was translated.
var ErrNoTranslation = errors.New("translation produced no segments")

// errMissingItems marks an attempt that parsed but returned none of the requested ids.
var errMissingItems = errors.New("translate output too few items")

// lastErrorPreviewLen bounds the last error carried in a total failure.
const lastErrorPreviewLen = 380

type statusCoder interface {
	HTTPStatus() int
}

var transientMarkers = []string{
	"http 429", "http 502", "http 503", "http 504",
	"rate limit", "timeout", "timed out", "temporarily", "try again", "stalled",
	"connection reset",
}

// IsTransient reports whether err is worth retrying with the same request.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatus() {
		case 429, 502, 503, 504:
			return true
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	low := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// IsTruncationLike reports whether err suggests the model stopped mid-document
// or answered in the wrong shape; such ranges are split instead of retried.
func IsTruncationLike(err error) bool {
	if err == nil {
		return false
	}
	var pe *response.ParseError
	var ve *response.ValidationError
	return errors.As(err, &pe) ||
		errors.As(err, &ve) ||
		errors.Is(err, response.ErrEmptyContent) ||
		errors.Is(err, errMissingItems)
}
