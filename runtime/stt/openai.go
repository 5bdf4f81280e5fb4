package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

const (
	openAIBaseURL            = "https://api.openai.com/v1"
	openAITranscribeEndpoint = "/audio/transcriptions"
	providerOpenAI           = "openai"

	// ModelWhisper1 is the OpenAI Whisper model for transcription.
	ModelWhisper1 = "whisper-1"

	// Default timeout for STT requests.
	defaultOpenAITimeout = 60 * time.Second

	// HTTP status code threshold for server errors.
	openAIServerErrorThreshold = 500
)

// OpenAIService implements STT using OpenAI's Whisper API.
type OpenAIService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// OpenAIOption configures the OpenAI STT service.
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

// WithOpenAIModel sets the STT model to use.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *OpenAIService) {
		s.model = model
	}
}

// NewOpenAI creates an OpenAI STT service using Whisper. Requests are traced
// through the global OpenTelemetry provider.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	s := &OpenAIService{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		client: &http.Client{
			Timeout:   defaultOpenAITimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		model: ModelWhisper1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string {
	return "openai-whisper"
}

// Transcribe converts audio to text using OpenAI's Whisper API.
//
//nolint:gocritic // hugeParam: TranscriptionConfig passed by value to satisfy Service interface
func (s *OpenAIService) Transcribe(ctx context.Context, audio []byte, config TranscriptionConfig) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	config = config.withDefaults()
	if config.Model == "" {
		config.Model = s.model
	}

	body, contentType, err := buildTranscriptionForm(audio, &config)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+openAITranscribeEndpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", contentType)
	logger.APIRequest(providerOpenAI, req.Method, req.URL.String(),
		map[string]string{"Authorization": req.Header.Get("Authorization")}, nil)

	resp, err := s.client.Do(req)
	if err != nil {
		err = NewTranscriptionError(providerOpenAI, "", "request failed", err, true)
		logger.SpeechCall(ctx, providerOpenAI, "stt", len(audio), err)
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err = s.handleError(resp.StatusCode, respBody)
		logger.SpeechCall(ctx, providerOpenAI, "stt", len(audio), err)
		return "", err
	}
	logger.APIResponse(providerOpenAI, resp.StatusCode, string(respBody), nil)

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	logger.SpeechCall(ctx, providerOpenAI, "stt", len(audio), nil)
	return result.Text, nil
}

// buildTranscriptionForm encodes the multipart upload. PCM is wrapped as WAV.
func buildTranscriptionForm(audio []byte, config *TranscriptionConfig) (io.Reader, string, error) {
	audioData := audio
	filename := "audio." + config.Format
	if config.Format == FormatPCM {
		audioData = WrapPCMAsWAV(audio, config.SampleRate, config.Channels, config.BitDepth)
		filename = "audio.wav"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := [][2]string{
		{"model", config.Model},
		{"language", config.Language},
		{"prompt", config.Prompt},
		{"temperature", strconv.FormatFloat(config.Temperature, 'f', -1, 64)},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// handleError processes an error response from OpenAI.
func (s *OpenAIService) handleError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	transient := statusCode == http.StatusTooManyRequests || statusCode >= openAIServerErrorThreshold
	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewTranscriptionError(providerOpenAI, strconv.Itoa(statusCode), string(body), nil, transient)
	}

	var cause error
	switch statusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = ErrUnauthorized
	case http.StatusBadRequest:
		if errResp.Error.Code == "audio_too_short" {
			cause = ErrAudioTooShort
		}
	}

	return NewTranscriptionError(providerOpenAI, errResp.Error.Code, errResp.Error.Message, cause, transient)
}

// SupportedFormats returns audio formats supported by OpenAI Whisper.
func (s *OpenAIService) SupportedFormats() []string {
	return []string{"flac", "m4a", "mp3", "mp4", "mpeg", "mpga", "oga", "ogg", "wav", "webm", FormatPCM}
}
