package gemini

import (
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/tts"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
)

// По умолчанию используем Cloud TTS v1beta1 text:synthesize, совместимый с Generative AI TTS.
const defaultEndpoint = "https://texttospeech.googleapis.com/v1beta1/text:synthesize"

// Client реализует синтез речи через Cloud Text-to-Speech: Gemini-TTS.
type Client struct {
	cfg    config.GeminiTTSConfig
	logger *zap.SugaredLogger
	// httpClient создаёт OAuth2-клиент; в тестах подменяется.
	httpClient func(ctx context.Context) (*http.Client, error)
}

func New(cfg config.GeminiTTSConfig, logger *zap.SugaredLogger) *Client {
	return &Client{cfg: cfg, logger: logger, httpClient: adcClient}
}

// adcClient: OAuth2 HTTP-клиент только через ADC/metadata. API Key не используется.
func adcClient(ctx context.Context) (*http.Client, error) {
	c, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, errors.New("gemini tts: ADC credentials not found. Set GOOGLE_APPLICATION_CREDENTIALS to a service account JSON or run in GCE/GKE with default credentials")
	}
	return c, nil
}

type requestPayload struct {
	Input struct {
		Prompt string `json:"prompt,omitempty"`
		Text   string `json:"text,omitempty"`
	} `json:"input"`
	Voice struct {
		ModelName    string `json:"modelName,omitempty"`
		LanguageCode string `json:"languageCode,omitempty"`
		VoiceName    string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding,omitempty"`
	} `json:"audioConfig"`
}

type jsonAudioResponse struct {
	AudioContent string `json:"audioContent"`
}

func (c *Client) payload(text, voice string) requestPayload {
	var rp requestPayload
	rp.Input.Text = text
	// Промпт задаёт манеру подачи ведущего. Пустым не отправляем.
	if p := strings.TrimSpace(c.cfg.Prompt); p != "" {
		rp.Input.Prompt = p
	}
	rp.Voice.ModelName = strings.TrimSpace(c.cfg.ModelName)
	rp.Voice.LanguageCode = strings.TrimSpace(c.cfg.Language)
	rp.Voice.VoiceName = strings.TrimSpace(voice)
	if rp.Voice.VoiceName == "" {
		rp.Voice.VoiceName = strings.TrimSpace(c.cfg.VoiceName)
	}
	rp.AudioConfig.AudioEncoding = "MP3"
	return rp
}

// Synthesize выполняет запрос к Gemini-TTS и сохраняет mp3.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (*tts.Audio, error) {
	// Cloud TTS ожидает непустой text, иначе 400.
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("gemini tts: empty input text")
	}
	body, err := json.Marshal(c.payload(text, voice))
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSpace(c.cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	httpClient, err := c.httpClient(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.logger.Infow("Gemini TTS request completed", "status", resp.StatusCode, "took", time.Since(started).String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return nil, fmt.Errorf("gemini tts error: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	// JSON с base64 полем audioContent
	var jr jsonAudioResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)) // до 5 МБ JSON
	if err := dec.Decode(&jr); err != nil {
		return nil, fmt.Errorf("gemini tts: decode json response: %w", err)
	}
	if strings.TrimSpace(jr.AudioContent) == "" {
		return nil, errors.New("gemini tts: empty audioContent in response")
	}
	data, err := base64.StdEncoding.DecodeString(jr.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: base64 decode: %w", err)
	}
	return tts.Save(data, "mp3")
}
