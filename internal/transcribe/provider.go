// Package transcribe converts captured audio into text using an ordered list
// of speech providers with confidence and timeout policy.
package transcribe

import "context"

// Request carries one audio sample to be transcribed. It is owned by the
// caller and never retained past the call.
type Request struct {
	Audio    []byte
	MimeType string
}

// Result is a provider's transcription of one audio sample.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
}

// Provider interface for speech-to-text providers
type Provider interface {
	Name() string
	Recognize(ctx context.Context, req Request) (Result, error)
}
