package elevenlabs

import (
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/tts"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Client реализует синтез речи через ElevenLabs text-to-speech.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     config.ElevenLabsConfig
	logger  *zap.SugaredLogger
}

func New(cfg config.ElevenLabsConfig, logger *zap.SugaredLogger) *Client {
	return &Client{http: http.DefaultClient, baseURL: defaultBaseURL, cfg: cfg, logger: logger}
}

// WithBaseURL подменяет адрес API (тесты, прокси).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

type requestPayload struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize отправляет текст в ElevenLabs и сохраняет mp3 во временный файл.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (*tts.Audio, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("elevenlabs: empty API key (set ELEVEN_API_KEY in .env/ENV or pass via flag)")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: empty input text")
	}
	voiceID := strings.TrimSpace(voice)
	if voiceID == "" {
		voiceID = c.cfg.VoiceID
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voice id is not configured")
	}

	body, err := json.Marshal(requestPayload{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.logger.Infow("ElevenLabs TTS request completed", "status", resp.StatusCode, "took", time.Since(started).String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return nil, fmt.Errorf("elevenlabs tts error: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts: read audio: %w", err)
	}
	return tts.Save(data, "mp3")
}
