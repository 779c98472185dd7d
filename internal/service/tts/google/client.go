package google

import (
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/tts"
	"context"
	"fmt"
	"strings"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
)

// Client реализует синтез речи через Google Cloud Text-to-Speech.
type Client struct {
	cfg    config.GoogleTTSConfig
	logger *zap.SugaredLogger
}

func New(cfg config.GoogleTTSConfig, logger *zap.SugaredLogger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// request собирает запрос; voice перекрывает голос из конфигурации.
func (c *Client) request(text, voice string) *ttspb.SynthesizeSpeechRequest {
	name := strings.TrimSpace(voice)
	if name == "" {
		name = c.cfg.Voice
	}
	audio := &ttspb.AudioConfig{
		AudioEncoding: ttspb.AudioEncoding_MP3,
		SpeakingRate:  c.cfg.SpeakingRate,
		Pitch:         c.cfg.Pitch,
		VolumeGainDb:  c.cfg.VolumeGainDb,
	}
	return &ttspb.SynthesizeSpeechRequest{
		Input:       &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}},
		Voice:       &ttspb.VoiceSelectionParams{LanguageCode: c.cfg.Language, Name: name},
		AudioConfig: audio,
	}
}

// Synthesize выполняет запрос к Google TTS и сохраняет mp3.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (*tts.Audio, error) {
	ttsClient, err := gctts.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google tts: client: %w", err)
	}
	defer ttsClient.Close()

	started := time.Now()
	resp, err := ttsClient.SynthesizeSpeech(ctx, c.request(text, voice))
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	c.logger.Infow("Google TTS synthesize completed", "took", time.Since(started).String())

	return tts.Save(resp.GetAudioContent(), "mp3")
}
