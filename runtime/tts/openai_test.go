package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAI_WithOptions(t *testing.T) {
	customClient := &http.Client{}
	service := NewOpenAI("test-key",
		WithOpenAIBaseURL("https://custom.api.com"),
		WithOpenAIClient(customClient),
		WithOpenAIModel(ModelTTS1HD),
	)

	if service.baseURL != "https://custom.api.com" {
		t.Errorf("baseURL = %v", service.baseURL)
	}
	if service.client != customClient {
		t.Error("client was not set correctly")
	}
	if service.model != ModelTTS1HD {
		t.Errorf("model = %v, want %v", service.model, ModelTTS1HD)
	}
	if service.Name() != "openai" {
		t.Errorf("Name() = %v", service.Name())
	}
}

func TestOpenAIService_Synthesize_EmptyText(t *testing.T) {
	_, err := NewOpenAI("k").Synthesize(context.Background(), "", DefaultSynthesisConfig())
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestOpenAIService_Synthesize_Request(t *testing.T) {
	tests := []struct {
		name       string
		config     SynthesisConfig
		wantModel  string
		wantVoice  string
		wantFormat string
		wantSpeed  float64
	}{
		{
			name:       "defaults",
			config:     DefaultSynthesisConfig(),
			wantModel:  ModelTTS1,
			wantVoice:  VoiceEcho,
			wantFormat: "pcm",
			wantSpeed:  1.0,
		},
		{
			name:       "zero config",
			config:     SynthesisConfig{},
			wantModel:  ModelTTS1,
			wantVoice:  VoiceEcho,
			wantFormat: "mp3",
			wantSpeed:  1.0,
		},
		{
			name:       "overrides",
			config:     SynthesisConfig{Voice: VoiceNova, Format: FormatOpus, Speed: 1.25, Model: ModelTTS1HD},
			wantModel:  ModelTTS1HD,
			wantVoice:  VoiceNova,
			wantFormat: "opus",
			wantSpeed:  1.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/audio/speech" {
					t.Errorf("path = %s", r.URL.Path)
				}
				var req openAIRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if req.Model != tt.wantModel || req.Voice != tt.wantVoice ||
					req.ResponseFormat != tt.wantFormat || req.Speed != tt.wantSpeed {
					t.Errorf("unexpected request: %+v", req)
				}
				if req.Input != "One moment please." {
					t.Errorf("input = %q", req.Input)
				}
				_, _ = w.Write([]byte{1, 2, 3, 4})
			}))
			defer server.Close()

			service := NewOpenAI("k", WithOpenAIBaseURL(server.URL))
			rc, err := service.Synthesize(context.Background(), "One moment please.", tt.config)
			if err != nil {
				t.Fatalf("Synthesize failed: %v", err)
			}
			defer rc.Close()

			data, _ := io.ReadAll(rc)
			if len(data) != 4 {
				t.Errorf("expected 4 bytes of audio, got %d", len(data))
			}
		})
	}
}

func TestOpenAIService_Synthesize_Error(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCause error
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","code":"rate_limit"}}`, ErrRateLimited, true},
		{"invalid voice", http.StatusBadRequest, `{"error":{"message":"no such voice","code":"invalid_voice"}}`, ErrInvalidVoice, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrUnauthorized, false},
		{"garbage", http.StatusServiceUnavailable, `<html>`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewOpenAI("k", WithOpenAIBaseURL(server.URL)).
				Synthesize(context.Background(), "hi", DefaultSynthesisConfig())

			var synthErr *SynthesisError
			if !errors.As(err, &synthErr) {
				t.Fatalf("expected SynthesisError, got %T: %v", err, err)
			}
			if synthErr.Transient != tt.transient {
				t.Errorf("Transient = %v, want %v", synthErr.Transient, tt.transient)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("expected cause %v, got %v", tt.wantCause, err)
			}
		})
	}
}

func TestOpenAIService_Capabilities(t *testing.T) {
	service := NewOpenAI("k")
	if got := len(service.SupportedVoices()); got != 6 {
		t.Errorf("expected 6 voices, got %d", got)
	}

	var hasPCM bool
	for _, f := range service.SupportedFormats() {
		if f.IsRawPCM() {
			hasPCM = true
			if f.SampleRate != 24000 || f.BitDepth != 16 || f.Channels != 1 {
				t.Errorf("unexpected pcm format: %+v", f)
			}
		}
	}
	if !hasPCM {
		t.Error("expected pcm among supported formats")
	}
	if FormatMP3.IsRawPCM() || FormatMP3.String() != "mp3" {
		t.Error("mp3 should not be raw pcm")
	}
}
