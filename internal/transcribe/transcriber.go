// Package transcribe hands finished audio segments to the OpenAI
// transcription API and stores the resulting text next to them, named so
// the downstream reassembly stage can order the pieces.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lorekeeper/segmenter/internal/apierr"
)

// ModelTranscribe is the cost-effective transcription model. Not yet a
// constant in go-openai, so we define it locally.
const ModelTranscribe = "gpt-4o-mini-transcribe"

// Default retry configuration.
const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	// Transcribe converts the audio file at audioPath to text.
	// Supported formats: mp3, mp4, mpeg, mpga, m4a, wav, webm, ogg.
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// audioTranscriber is the OpenAI API boundary. *openai.Client implements
// it implicitly; tests inject a mock.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Transcriber      = (*OpenAITranscriber)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAITranscriber transcribes audio using OpenAI's transcription API,
// retrying transient failures with exponential backoff.
type OpenAITranscriber struct {
	client     audioTranscriber
	prompt     string
	language   string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// TranscriberOption configures an OpenAITranscriber.
type TranscriberOption func(*OpenAITranscriber)

// WithPrompt provides context to improve transcription accuracy. Useful
// for domain-specific vocabulary, such as campaign and character names.
func WithPrompt(prompt string) TranscriberOption {
	return func(t *OpenAITranscriber) { t.prompt = prompt }
}

// WithLanguage fixes the audio language as an ISO 639-1 base code.
// Empty means auto-detect.
func WithLanguage(code string) TranscriberOption {
	return func(t *OpenAITranscriber) { t.language = code }
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if base > 0 {
			t.baseDelay = base
		}
		if max > 0 {
			t.maxDelay = max
		}
	}
}

// NewOpenAITranscriber creates an OpenAITranscriber. The client is
// injected to enable testing with mocks.
func NewOpenAITranscriber(client audioTranscriber, opts ...TranscriberOption) (*OpenAITranscriber, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	t := &OpenAITranscriber{
		client:     client,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Transcribe transcribes an audio file, retrying rate limits, timeouts,
// and server errors with exponential backoff.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	req := openai.AudioRequest{
		Model:    ModelTranscribe,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
		Prompt:   t.prompt,
		Language: t.language,
	}
	cfg := apierr.RetryConfig{
		MaxRetries: t.maxRetries,
		BaseDelay:  t.baseDelay,
		MaxDelay:   t.maxDelay,
	}

	return apierr.RetryWithBackoff(ctx, cfg, func() (string, error) {
		resp, err := t.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return resp.Text, nil
	}, apierr.Retryable)
}

// classifyError maps OpenAI API errors onto the shared sentinels. Errors
// without an HTTP status (transport failures) pass through unchanged.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		if classified := apierr.FromStatusCode(apiErr.HTTPStatusCode, apiErr.Message); classified != nil {
			return classified
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}
