package fim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"numa/internal/logging"
)

// Transcriber converts an audio payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (Transcript, error)
}

// Transcript is the recognized utterance.
type Transcript struct {
	Text       string
	Confidence float64
}

// STTConfig configures the speech client.
type STTConfig struct {
	APIKey       string
	BaseURL      string
	LanguageCode string
	Model        string
	Timeout      time.Duration
}

// DefaultSTTConfig returns the Mexican Spanish long-form defaults.
func DefaultSTTConfig(apiKey string) STTConfig {
	return STTConfig{
		APIKey:       apiKey,
		BaseURL:      "https://speech.googleapis.com/v1",
		LanguageCode: "es-MX",
		Model:        "latest_long",
		Timeout:      15 * time.Second,
	}
}

// GoogleTranscriber talks to the Google Speech-to-Text recognize API over
// plain HTTP.
type GoogleTranscriber struct {
	apiKey       string
	baseURL      string
	languageCode string
	model        string
	httpClient   *http.Client
	log          *zap.Logger
}

// NewGoogleTranscriber creates a transcriber from config. Zero fields fall
// back to the defaults.
func NewGoogleTranscriber(config STTConfig, log *zap.Logger) *GoogleTranscriber {
	defaults := DefaultSTTConfig(config.APIKey)
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.LanguageCode == "" {
		config.LanguageCode = defaults.LanguageCode
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &GoogleTranscriber{
		apiKey:       config.APIKey,
		baseURL:      config.BaseURL,
		languageCode: config.LanguageCode,
		model:        config.Model,
		httpClient:   &http.Client{Timeout: config.Timeout},
		log:          logging.For(log, logging.CategorySTT),
	}
}

type sttRequest struct {
	Config sttRecognitionConfig `json:"config"`
	Audio  sttAudio             `json:"audio"`
}

type sttRecognitionConfig struct {
	Encoding                   string `json:"encoding,omitempty"`
	LanguageCode               string `json:"languageCode"`
	Model                      string `json:"model"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type sttAudio struct {
	Content string `json:"content"` // base64
}

type sttResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// encodingFor maps an upload MIME type to the recognizer encoding. Unknown
// types are left empty so the service sniffs the header.
func encodingFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return "OGG_OPUS"
	case strings.Contains(mimeType, "webm"):
		return "WEBM_OPUS"
	case strings.Contains(mimeType, "flac"):
		return "FLAC"
	case strings.Contains(mimeType, "wav"), strings.Contains(mimeType, "x-wav"):
		return "LINEAR16"
	}
	return ""
}

// Transcribe recognizes a single utterance. An empty or silent recording
// surfaces as ErrUnintelligibleAudio.
func (t *GoogleTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, ErrUnintelligibleAudio
	}
	if t.apiKey == "" {
		return Transcript{}, fmt.Errorf("API key not configured")
	}

	start := time.Now()
	reqBody := sttRequest{
		Config: sttRecognitionConfig{
			Encoding:                   encodingFor(mimeType),
			LanguageCode:               t.languageCode,
			Model:                      t.model,
			EnableAutomaticPunctuation: true,
		},
		Audio: sttAudio{Content: encodeBase64(audio)},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/speech:recognize?key=%s", t.baseURL, t.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("recognize request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("recognize failed with status %d: %s", resp.StatusCode, string(body))
	}

	var sr sttResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Transcript{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if sr.Error != nil {
		return Transcript{}, fmt.Errorf("recognize error: %s", sr.Error.Message)
	}

	var sb strings.Builder
	var confidence float64
	var segments int
	for _, result := range sr.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(alt.Transcript))
		confidence += alt.Confidence
		segments++
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Transcript{}, ErrUnintelligibleAudio
	}
	if segments > 0 {
		confidence /= float64(segments)
	}

	t.log.Debug("transcription finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("audio_bytes", len(audio)),
		zap.Float64("confidence", confidence))
	return Transcript{Text: text, Confidence: confidence}, nil
}
