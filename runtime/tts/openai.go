package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openAITTSEndpoint = "/audio/speech"
	providerOpenAI    = "openai"

	// ModelTTS1 is the OpenAI TTS model optimized for speed.
	ModelTTS1 = "tts-1"
	// ModelTTS1HD is the OpenAI TTS model optimized for quality.
	ModelTTS1HD = "tts-1-hd"

	// Default timeout for TTS requests. It bounds the response headers only;
	// the body is streamed by the player for as long as playback lasts.
	defaultOpenAIHeaderTimeout = 30 * time.Second

	// HTTP status code threshold for server errors.
	openAIServerErrorThreshold = 500
)

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

var openAIFormats = map[string]bool{"mp3": true, "opus": true, "aac": true, "flac": true, "wav": true, "pcm": true}

// OpenAIService implements TTS using OpenAI's text-to-speech API.
type OpenAIService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// OpenAIOption configures the OpenAI TTS service.
type OpenAIOption func(*OpenAIService)

// WithOpenAIBaseURL sets a custom base URL (for testing or proxies).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *OpenAIService) {
		s.baseURL = url
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(s *OpenAIService) {
		s.client = client
	}
}

// WithOpenAIModel sets the default TTS model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *OpenAIService) {
		s.model = model
	}
}

// NewOpenAI creates an OpenAI TTS service.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = defaultOpenAIHeaderTimeout

	s := &OpenAIService{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		client:  &http.Client{Transport: otelhttp.NewTransport(transport)},
		model:   ModelTTS1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string {
	return providerOpenAI
}

type openAIRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to audio using OpenAI's TTS API. The returned
// body streams as the provider generates it.
//
//nolint:gocritic // hugeParam: SynthesisConfig passed by value to satisfy Service interface
func (s *OpenAIService) Synthesize(ctx context.Context, text string, config SynthesisConfig) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	reqBody := openAIRequest{
		Model:          firstNonEmpty(config.Model, s.model),
		Input:          text,
		Voice:          firstNonEmpty(config.Voice, VoiceEcho),
		ResponseFormat: "mp3",
		Speed:          config.Speed,
	}
	if openAIFormats[config.Format.Name] {
		reqBody.ResponseFormat = config.Format.Name
	}
	if reqBody.Speed == 0 {
		reqBody.Speed = 1.0
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+openAITTSEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	logger.APIRequest(providerOpenAI, req.Method, req.URL.String(), nil, reqBody)

	resp, err := s.client.Do(req)
	if err != nil {
		err = NewSynthesisError(providerOpenAI, "", "request failed", err, true)
		logger.SpeechCall(ctx, providerOpenAI, "tts", len(text), err)
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err = s.handleError(resp)
		logger.SpeechCall(ctx, providerOpenAI, "tts", len(text), err)
		return nil, err
	}

	logger.SpeechCall(ctx, providerOpenAI, "tts", len(text), nil)
	return resp.Body, nil
}

// handleError processes an error response from OpenAI.
func (s *OpenAIService) handleError(resp *http.Response) error {
	transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= openAIServerErrorThreshold

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return NewSynthesisError(providerOpenAI, strconv.Itoa(resp.StatusCode), "unknown error", err, transient)
	}

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = ErrUnauthorized
	case http.StatusBadRequest:
		if errResp.Error.Code == "invalid_voice" {
			cause = ErrInvalidVoice
		}
	}

	return NewSynthesisError(providerOpenAI, errResp.Error.Code, errResp.Error.Message, cause, transient)
}

// SupportedVoices returns available OpenAI voices.
func (s *OpenAIService) SupportedVoices() []Voice {
	return []Voice{
		{ID: VoiceAlloy, Name: "Alloy", Language: "en", Gender: "neutral", Description: "Balanced, versatile voice"},
		{ID: VoiceEcho, Name: "Echo", Language: "en", Gender: "male", Description: "Clear male voice"},
		{ID: VoiceFable, Name: "Fable", Language: "en", Gender: "female", Description: "Expressive, British accent"},
		{ID: VoiceOnyx, Name: "Onyx", Language: "en", Gender: "male", Description: "Deep, authoritative voice"},
		{ID: VoiceNova, Name: "Nova", Language: "en", Gender: "female", Description: "Warm, friendly voice"},
		{ID: VoiceShimmer, Name: "Shimmer", Language: "en", Gender: "female", Description: "Soft, calm voice"},
	}
}

// SupportedFormats returns audio formats supported by OpenAI TTS.
func (s *OpenAIService) SupportedFormats() []AudioFormat {
	return []AudioFormat{FormatMP3, FormatOpus, FormatAAC, FormatFLAC, FormatWAV, FormatPCM16}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
