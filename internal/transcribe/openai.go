package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "whisper-1"
)

// OpenAIProvider implements the Provider interface against any
// OpenAI-compatible audio transcription endpoint.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible speech provider. The API
// key falls back to the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for the OpenAI speech provider")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openAISegment struct {
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

type openAIResponse struct {
	Text     string          `json:"text"`
	Segments []openAISegment `json:"segments"`
}

// Recognize posts the audio sample as a multipart form and derives a
// confidence score from the segment log-probabilities the verbose response
// carries.
func (p *OpenAIProvider) Recognize(ctx context.Context, req Request) (Result, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("failed to build transcription request: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return Result{}, fmt.Errorf("failed to build transcription request: %w", err)
	}
	form.WriteField("model", p.model)
	form.WriteField("response_format", "verbose_json")
	if err := form.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to build transcription request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build transcription request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("openai transcription call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("openai transcription returned status %d: %s", resp.StatusCode, payload)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode openai transcription response: %w", err)
	}

	return Result{
		Text:       parsed.Text,
		Confidence: confidenceFromSegments(parsed.Segments, parsed.Text),
	}, nil
}

// confidenceFromSegments converts per-segment average log-probabilities into
// a 0..1 score. Servers that omit segment scores are trusted at full
// confidence when they returned text at all.
func confidenceFromSegments(segments []openAISegment, text string) float64 {
	if len(segments) == 0 {
		if text == "" {
			return 0
		}
		return 1
	}

	var sum float64
	for _, s := range segments {
		sum += s.AvgLogprob
	}
	confidence := math.Exp(sum / float64(len(segments)))
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
