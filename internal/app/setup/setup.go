package setup

import (
	"PersonalDJ/internal/adapter/catalog/localdir"
	"PersonalDJ/internal/adapter/catalog/navidrome"
	"PersonalDJ/internal/ai"
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/commentary"
	"PersonalDJ/internal/service/tts"
	"PersonalDJ/internal/service/tts/elevenlabs"
	"PersonalDJ/internal/service/tts/gemini"
	"PersonalDJ/internal/service/tts/google"
	"PersonalDJ/internal/service/tts/local"
	"strings"

	"go.uber.org/zap"
)

// NewVoice собирает синтезатор: выбранный вендор, затем локальный движок как запасной.
func NewVoice(cfg *config.Config, logger *zap.SugaredLogger) *tts.Fallback {
	engines := voiceEngines(cfg, logger)
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.Name)
	}
	logger.Infow("TTS selected", "service", cfg.TTSService, "chain", names)
	return tts.NewFallback(logger, engines...)
}

func voiceEngines(cfg *config.Config, logger *zap.SugaredLogger) []tts.Engine {
	offline := tts.Engine{Name: "local", Synth: local.New(cfg.LocalTTS, logger)}

	service := strings.ToLower(strings.TrimSpace(cfg.TTSService))
	switch service {
	case "local":
		return []tts.Engine{offline}
	case "google":
		return []tts.Engine{{Name: "google", Synth: google.New(cfg.GoogleTTS, logger)}, offline}
	case "gemini":
		return []tts.Engine{{Name: "gemini", Synth: gemini.New(cfg.GeminiTTS, logger)}, offline}
	default: // elevenlabs
		if strings.TrimSpace(cfg.ElevenLabs.APIKey) == "" {
			logger.Warnw("ElevenLabs API key not set, using local TTS only")
			return []tts.Engine{offline}
		}
		return []tts.Engine{{Name: "elevenlabs", Synth: elevenlabs.New(cfg.ElevenLabs, logger)}, offline}
	}
}

// NewCatalog выбирает источник треков: Navidrome или локальная папка.
func NewCatalog(cfg *config.Config, logger *zap.SugaredLogger) (commentary.Catalog, error) {
	if cfg.UseNavidrome() {
		c, err := navidrome.New(cfg.Navidrome, logger)
		if err != nil {
			return nil, err
		}
		logger.Infow("Catalog selected", "catalog", "navidrome", "url", cfg.Navidrome.URL)
		return c, nil
	}
	logger.Infow("Catalog selected", "catalog", "local", "dir", cfg.MusicDir)
	return localdir.New(cfg.MusicDir, logger), nil
}

// NewWriter: LLM-ведущий или заглушка, если LLM не настроен.
func NewWriter(cfg *config.Config, logger *zap.SugaredLogger) ai.Client {
	if !ai.Configured(cfg.LLM) {
		logger.Warnw("LLM not configured, using fallback commentary")
		return ai.NewStubClient()
	}
	logger.Infow("LLM selected", "model", cfg.LLM.Model, "base_url", cfg.LLM.BaseURL)
	return ai.NewCommentaryClient(cfg.LLM)
}

// NewPipeline собирает генерацию реплики и трека.
func NewPipeline(cfg *config.Config, logger *zap.SugaredLogger) (*commentary.Pipeline, error) {
	catalog, err := NewCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	return commentary.NewPipeline(catalog, NewWriter(cfg, logger), logger), nil
}
