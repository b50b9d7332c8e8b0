package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

const (
	defaultDeepgramBaseURL = "https://api.deepgram.com"
	defaultDeepgramModel   = "nova-2"
)

// DeepgramProvider implements the Provider interface against a
// Deepgram-compatible listen endpoint.
type DeepgramProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewDeepgramProvider creates a new Deepgram-compatible speech provider. The
// API key falls back to the DEEPGRAM_API_KEY environment variable.
func NewDeepgramProvider(baseURL, apiKey, model string) (*DeepgramProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY environment variable is required for the Deepgram speech provider")
	}
	if baseURL == "" {
		baseURL = defaultDeepgramBaseURL
	}
	if model == "" {
		model = defaultDeepgramModel
	}
	return &DeepgramProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
	}, nil
}

// Name returns the provider name
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Recognize posts the raw audio body and reads the top alternative's
// transcript and self-reported confidence.
func (p *DeepgramProvider) Recognize(ctx context.Context, req Request) (Result, error) {
	url := fmt.Sprintf("%s/v1/listen?model=%s&smart_format=true", p.baseURL, p.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Audio))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build transcription request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	if req.MimeType != "" {
		httpReq.Header.Set("Content-Type", req.MimeType)
	} else {
		httpReq.Header.Set("Content-Type", "audio/wav")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram transcription call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("deepgram transcription returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode deepgram transcription response: %w", err)
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return Result{}, fmt.Errorf("empty response from deepgram")
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	return Result{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
