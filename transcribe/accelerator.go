package transcribe

import (
	"strings"
	"sync/atomic"
)

type AccelState int32

const (
	AccelUntested AccelState = iota
	AccelAvailable
	AccelUnavailable
)

func (s AccelState) String() string {
	switch s {
	case AccelAvailable:
		return "available"
	case AccelUnavailable:
		return "unavailable"
	}
	return "untested"
}

const CPUProvider = "cpu"

// Accelerator is a one-way circuit breaker for the preferred inference
// provider. Once it is found unusable every later window runs on the CPU.
type Accelerator struct {
	preferred string
	state     atomic.Int32
}

// NewAccelerator returns a breaker for provider. An empty provider or "cpu"
// never needs one and always resolves to the CPU.
func NewAccelerator(provider string) *Accelerator {
	p := strings.ToLower(strings.TrimSpace(provider))
	a := &Accelerator{preferred: p}
	if p == "" || p == CPUProvider {
		a.preferred = CPUProvider
		a.state.Store(int32(AccelUnavailable))
	}
	return a
}

func (a *Accelerator) Preferred() string {
	if a == nil {
		return CPUProvider
	}
	return a.preferred
}

func (a *Accelerator) State() AccelState {
	if a == nil {
		return AccelUnavailable
	}
	return AccelState(a.state.Load())
}

// Provider is the provider the next window should use.
func (a *Accelerator) Provider() string {
	if a.State() == AccelUnavailable {
		return CPUProvider
	}
	return a.preferred
}

// MarkAvailable records a successful run on the preferred provider.
func (a *Accelerator) MarkAvailable() {
	if a != nil {
		a.state.CompareAndSwap(int32(AccelUntested), int32(AccelAvailable))
	}
}

// MarkUnavailable latches the breaker. It reports whether this call tripped it.
func (a *Accelerator) MarkUnavailable() bool {
	if a == nil {
		return false
	}
	for {
		cur := a.state.Load()
		if AccelState(cur) == AccelUnavailable {
			return false
		}
		if a.state.CompareAndSwap(cur, int32(AccelUnavailable)) {
			return true
		}
	}
}

var missingAccelMarkers = []string{
	"cudnn", "onnxruntime_providers_cuda", "libcublas", "cuda driver", "nvcuda", "cuda runtime",
}

// IsMissingAccelerator reports whether a recognition error says the
// accelerator's native dependencies could not be loaded.
func IsMissingAccelerator(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	if !strings.Contains(s, "missing") && !strings.Contains(s, "not found") &&
		!strings.Contains(s, "error 126") && !strings.Contains(s, "error loading") &&
		!strings.Contains(s, "fail") && !strings.Contains(s, "unavailable") {
		return false
	}
	for _, m := range missingAccelMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
