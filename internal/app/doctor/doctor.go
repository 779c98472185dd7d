package doctor

import (
	"PersonalDJ/internal/adapter/catalog/localdir"
	"PersonalDJ/internal/adapter/catalog/navidrome"
	"PersonalDJ/internal/ai"
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/player"
	"PersonalDJ/internal/service/tts/local"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarn:
		return "WARN"
	default:
		return "FAIL"
	}
}

// Check: результат одной проверки окружения.
type Check struct {
	Name   string
	Status Status
	Detail string
}

// Doctor проверяет окружение диджея. WARN не мешает запуску, FAIL: мешает.
type Doctor struct {
	cfg     *config.Config
	envPath string
	logger  *zap.SugaredLogger
}

func New(cfg *config.Config, envPath string, logger *zap.SugaredLogger) *Doctor {
	return &Doctor{cfg: cfg, envPath: envPath, logger: logger}
}

// Run выполняет все проверки по порядку.
func (d *Doctor) Run(ctx context.Context) []Check {
	return []Check{
		d.checkPlayer(),
		d.checkEnvFile(),
		d.checkLLM(ctx),
		d.checkElevenLabs(),
		d.checkLocalTTS(),
		d.checkCatalog(ctx),
	}
}

func (d *Doctor) checkPlayer() Check {
	p, err := player.Discover(d.cfg.Players, d.cfg.DefaultVolume, d.logger)
	if err != nil {
		return Check{Name: "Music Player", Status: StatusFail, Detail: err.Error()}
	}
	defer func() { _ = p.Close() }()
	return Check{Name: "Music Player", Status: StatusOK, Detail: "found " + p.Name()}
}

func (d *Doctor) checkEnvFile() Check {
	if _, err := os.Stat(d.envPath); err != nil {
		return Check{Name: ".env File", Status: StatusWarn, Detail: d.envPath + " not found; settings come from the environment and flags only"}
	}
	return Check{Name: ".env File", Status: StatusOK, Detail: d.envPath + " found"}
}

func (d *Doctor) checkLLM(ctx context.Context) Check {
	if !ai.Configured(d.cfg.LLM) {
		return Check{Name: "LLM", Status: StatusWarn, Detail: "OPENAI_API_KEY and LLM_BASE_URL not set; commentary uses the fallback line"}
	}
	target := "OpenAI"
	if b := strings.TrimSpace(d.cfg.LLM.BaseURL); b != "" {
		target = b
	}
	if err := ai.NewCommentaryClient(d.cfg.LLM).Ping(ctx); err != nil {
		return Check{Name: "LLM", Status: StatusFail, Detail: fmt.Sprintf("%s unreachable: %v", target, err)}
	}
	return Check{Name: "LLM", Status: StatusOK, Detail: target + " reachable, model " + d.cfg.LLM.Model}
}

func (d *Doctor) checkElevenLabs() Check {
	if strings.TrimSpace(d.cfg.ElevenLabs.APIKey) == "" {
		return Check{Name: "ElevenLabs API Key", Status: StatusWarn, Detail: "ELEVEN_API_KEY is not set; local TTS fallback will be used"}
	}
	return Check{Name: "ElevenLabs API Key", Status: StatusOK, Detail: "ELEVEN_API_KEY is set"}
}

func (d *Doctor) checkLocalTTS() Check {
	if err := local.New(d.cfg.LocalTTS, d.logger).Available(); err != nil {
		return Check{Name: "Local TTS Engine", Status: StatusFail, Detail: err.Error()}
	}
	return Check{Name: "Local TTS Engine", Status: StatusOK, Detail: "found " + d.cfg.LocalTTS.Binary}
}

func (d *Doctor) checkCatalog(ctx context.Context) Check {
	if d.cfg.UseNavidrome() {
		c, err := navidrome.New(d.cfg.Navidrome, d.logger)
		if err != nil {
			return Check{Name: "Navidrome", Status: StatusFail, Detail: err.Error()}
		}
		if err := c.Ping(ctx); err != nil {
			return Check{Name: "Navidrome", Status: StatusFail, Detail: err.Error()}
		}
		return Check{Name: "Navidrome", Status: StatusOK, Detail: "connected to " + d.cfg.Navidrome.URL}
	}

	fi, err := os.Stat(d.cfg.MusicDir)
	if err != nil || !fi.IsDir() {
		return Check{Name: "Music Directory", Status: StatusFail, Detail: "not found at " + d.cfg.MusicDir + "; set MUSIC_DIR"}
	}
	files, err := localdir.New(d.cfg.MusicDir, d.logger).Scan(ctx)
	if err != nil {
		return Check{Name: "Music Directory", Status: StatusFail, Detail: err.Error()}
	}
	if len(files) == 0 {
		return Check{Name: "Music Directory", Status: StatusWarn, Detail: "no audio files in " + d.cfg.MusicDir}
	}
	return Check{Name: "Music Directory", Status: StatusOK, Detail: fmt.Sprintf("%d tracks in %s", len(files), d.cfg.MusicDir)}
}

// Report печатает результаты и возвращает ошибку, если есть хоть один FAIL.
func Report(w io.Writer, checks []Check) error {
	failed := 0
	for _, c := range checks {
		fmt.Fprintf(w, "[%s] %s: %s\n", c.Status, c.Name, c.Detail)
		if c.Status == StatusFail {
			failed++
		}
	}
	fmt.Fprintln(w, "\n--- Summary ---")
	if failed > 0 {
		fmt.Fprintln(w, "[FAILURE] Some checks failed. Please review the messages above.")
		return errors.New("environment check failed")
	}
	fmt.Fprintln(w, "[SUCCESS] Your environment is configured correctly. You're ready to go!")
	return nil
}
