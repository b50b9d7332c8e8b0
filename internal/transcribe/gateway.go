package transcribe

import (
	"context"
	"fmt"
	"log"
	"time"

	"tableside/internal/monitoring"
)

const (
	// DefaultTimeout bounds each individual provider call.
	DefaultTimeout = 8 * time.Second
	// DefaultThreshold is the minimum confidence accepted without falling
	// back to the next provider.
	DefaultThreshold = 0.75
)

// UnavailableError reports that no provider produced a confident
// transcription. The best partial result, if any, is carried along so the
// caller can offer manual correction instead of a blind retry.
type UnavailableError struct {
	BestText       string
	BestConfidence float64
	BestProvider   string
}

func (e *UnavailableError) Error() string {
	if e.BestText == "" {
		return "no provider produced a transcription"
	}
	return fmt.Sprintf("no confident transcription: best was %q (%.2f from %s)",
		e.BestText, e.BestConfidence, e.BestProvider)
}

// Gateway calls providers in order until one returns a confident result.
// Each provider gets exactly one attempt under its own timeout, so a call
// never outlives len(providers) x timeout.
type Gateway struct {
	providers []Provider
	timeout   time.Duration
	threshold float64
}

// NewGateway builds a gateway over an ordered provider list. The first entry
// is the primary; the rest are fallbacks tried in order.
func NewGateway(providers []Provider, timeout time.Duration, threshold float64) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gateway{providers: providers, timeout: timeout, threshold: threshold}
}

// Transcribe runs the request through the provider chain. A result at or
// above the confidence threshold returns immediately, tagged with the
// provider that produced it. If every provider fails or stays below
// threshold, the best result obtained is surfaced inside an
// *UnavailableError.
func (g *Gateway) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(g.providers) == 0 {
		return Result{}, &UnavailableError{}
	}

	var best Result
	for _, p := range g.providers {
		if err := ctx.Err(); err != nil {
			// Caller is gone; release the chain instead of burning a
			// fallback attempt nobody will read.
			return Result{}, err
		}

		res, err := g.recognizeOnce(ctx, p, req)
		if err != nil {
			log.Printf("transcribe: provider %s failed: %v", p.Name(), err)
			monitoring.TranscriptionsTotal.WithLabelValues(p.Name(), "error").Inc()
			continue
		}

		res.Provider = p.Name()
		if res.Confidence >= g.threshold {
			monitoring.TranscriptionsTotal.WithLabelValues(p.Name(), "ok").Inc()
			return res, nil
		}

		monitoring.TranscriptionsTotal.WithLabelValues(p.Name(), "low_confidence").Inc()
		if res.Text != "" && res.Confidence >= best.Confidence {
			best = res
		}
	}

	return Result{}, &UnavailableError{
		BestText:       best.Text,
		BestConfidence: best.Confidence,
		BestProvider:   best.Provider,
	}
}

func (g *Gateway) recognizeOnce(ctx context.Context, p Provider, req Request) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.Recognize(callCtx, req)
	monitoring.TranscriptionSeconds.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	return res, err
}
