package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool   `env:"DEBUG_MODE"` //Режим дебага
	LogPath   string `env:"LOG_PATH"`   // Дополнительный файл логов; если пусто, только stderr
	LockPath  string `env:"LOCK_PATH"`  // Lock-файл единственного экземпляра DJ

	// Источник треков
	Catalog   string          `env:"CATALOG"`   // navidrome|local|auto
	MusicDir  string          `env:"MUSIC_DIR"` // Локальная папка с музыкой
	Navidrome NavidromeConfig // Подключение к Navidrome (Subsonic API)

	// Комментарий ведущего
	LLM LLMConfig

	// Синтез речи
	TTSService string `env:"TTS_SERVICE"` // elevenlabs|google|gemini|local
	ElevenLabs ElevenLabsConfig
	GoogleTTS  GoogleTTSConfig
	GeminiTTS  GeminiTTSConfig
	LocalTTS   LocalTTSConfig

	// Воспроизведение
	Players           []string      `env:"PLAYERS" envSeparator:";"` // Порядок предпочтения плееров
	DefaultVolume     int           `env:"DEFAULT_VOLUME"`           // Громкость при старте, 0-100
	GenerateTimeout   time.Duration `env:"GENERATE_TIMEOUT"`         // Предел ожидания LLM + каталога
	SynthesizeTimeout time.Duration `env:"SYNTHESIZE_TIMEOUT"`       // Предел ожидания TTS
	PositionInterval  time.Duration `env:"POSITION_INTERVAL"`        // Как часто опрашивать позицию у плеера

	// Внешние источники команд
	Twitch      TwitchConfig
	EventServer EventServerConfig
}

// NavidromeConfig параметры подключения к серверу Navidrome.
type NavidromeConfig struct {
	URL      string `env:"NAVIDROME_URL"`
	User     string `env:"NAVIDROME_USER"`
	Password string `env:"NAVIDROME_PASS"`
	Client   string `env:"NAVIDROME_CLIENT"` // Имя клиента в запросах (параметр c)
}

// LLMConfig параметры генерации комментария. BaseURL позволяет работать с любым
// OpenAI-совместимым сервером, например Ollama (http://localhost:11434/v1).
type LLMConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"LLM_BASE_URL"`
	Model   string `env:"LLM_MODEL"`
	DJName  string `env:"DJ_NAME"`
}

// ElevenLabsConfig конфигурация синтеза через ElevenLabs.
type ElevenLabsConfig struct {
	APIKey  string `env:"ELEVEN_API_KEY"` // Пусто: используем только локальный движок
	VoiceID string `env:"ELEVEN_VOICE_ID"`
	ModelID string `env:"ELEVEN_MODEL_ID"`
}

// GoogleTTSConfig конфигурация для синтеза речи через Google Cloud Text-to-Speech.
type GoogleTTSConfig struct {
	// Путь к файлу ключа сервисного аккаунта. Фактически читается из ENV GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsPath string  `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Language        string  `env:"GOOGLE_TTS_LANGUAGE"`
	Voice           string  `env:"GOOGLE_TTS_VOICE"`
	SpeakingRate    float64 `env:"GOOGLE_TTS_SPEAKING_RATE"`
	Pitch           float64 `env:"GOOGLE_TTS_PITCH"`
	VolumeGainDb    float64 `env:"GOOGLE_TTS_VOLUME_DB"`
}

// GeminiTTSConfig конфигурация Gemini-TTS (Cloud TTS v1beta1).
type GeminiTTSConfig struct {
	Endpoint  string `env:"GEMINI_TTS_ENDPOINT"`
	ModelName string `env:"GEMINI_TTS_MODEL"`
	Language  string `env:"GEMINI_TTS_LANGUAGE"`
	VoiceName string `env:"GEMINI_TTS_VOICE"`
	Prompt    string `env:"GEMINI_TTS_PROMPT"` // Стиль подачи, например "говори как ночной радиоведущий"
}

// LocalTTSConfig офлайн-движок (espeak-ng).
type LocalTTSConfig struct {
	Binary string `env:"LOCAL_TTS_BINARY"`
	Voice  string `env:"LOCAL_TTS_VOICE"`
	Speed  int    `env:"LOCAL_TTS_SPEED"` // слов в минуту
}

// TwitchConfig чат Twitch как дополнительный источник вайбов.
type TwitchConfig struct {
	Username  string `env:"TWITCH_USERNAME"`
	OAuth     string `env:"TWITCH_OAUTH_TOKEN"`
	Channel   string `env:"TWITCH_CHANNEL"`
	AllowSkip bool   `env:"TWITCH_ALLOW_SKIP"` // Разрешить зрителям !skip
}

// EventServerConfig сервер событий для GUI (websocket + статус).
type EventServerConfig struct {
	Enabled  bool   `env:"EVENT_SERVER_ENABLED"`
	BindAddr string `env:"EVENT_SERVER_BIND_ADDR"`

	// Дополнительные Origin для браузерного GUI, например "null" для страницы с file:// в Firefox
	AllowedOrigins []string `env:"EVENT_SERVER_ALLOWED_ORIGINS" envSeparator:","`
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	musicDir := "Music"
	if home, err := os.UserHomeDir(); err == nil {
		musicDir = filepath.Join(home, "Music")
	}
	return &Config{
		DebugMode: false,
		LockPath:  filepath.Join(os.TempDir(), "personal-dj.lock"),
		Catalog:   "auto",
		MusicDir:  musicDir,
		Navidrome: NavidromeConfig{
			Client: "PersonalDJ",
		},
		LLM: LLMConfig{
			Model:  "gpt-4o",
			DJName: "DJ Echo",
		},
		TTSService: "elevenlabs",
		ElevenLabs: ElevenLabsConfig{
			VoiceID: "21m00Tcm4TlvDq8ikWAM", // Rachel
			ModelID: "eleven_multilingual_v2",
		},
		GoogleTTS: GoogleTTSConfig{
			CredentialsPath: "service-account.json",
			Language:        "en-US",
			Voice:           "en-US-Standard-C",
			SpeakingRate:    1.0,
		},
		GeminiTTS: GeminiTTSConfig{
			ModelName: "gemini-2.5-flash-tts",
			Language:  "en-US",
			VoiceName: "Charon",
		},
		LocalTTS: LocalTTSConfig{
			Binary: "espeak-ng",
			Voice:  "en-us",
			Speed:  165,
		},
		Players:           []string{"mpv", "ffplay", "vlc"},
		DefaultVolume:     70,
		GenerateTimeout:   45 * time.Second,
		SynthesizeTimeout: 30 * time.Second,
		PositionInterval:  time.Second,
		EventServer: EventServerConfig{
			Enabled:  false,
			BindAddr: "127.0.0.1:8765",
		},
	}
}

// NewConfig загружает конфигурацию приложения из .env, окружения и os.Args.
func NewConfig() *Config {
	cfg, err := Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load собирает конфигурацию: дефолты → .env/ENV → флаги fs.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	_ = godotenv.Load()

	// Стартуем с дефолтов, затем перекрываем .env/окружением и флагами
	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.StringVar(&cfg.LogPath, "log-path", cfg.LogPath, "дополнительный файл для логов")
	fs.StringVar(&cfg.LockPath, "lock-path", cfg.LockPath, "lock-файл единственного экземпляра")
	fs.StringVar(&cfg.Catalog, "catalog", cfg.Catalog, "источник треков: navidrome|local|auto")
	fs.StringVar(&cfg.MusicDir, "music-dir", cfg.MusicDir, "папка с локальной музыкой")
	fs.StringVar(&cfg.Navidrome.URL, "navidrome-url", cfg.Navidrome.URL, "адрес сервера Navidrome")
	fs.StringVar(&cfg.Navidrome.User, "navidrome-user", cfg.Navidrome.User, "пользователь Navidrome")
	fs.StringVar(&cfg.Navidrome.Password, "navidrome-pass", cfg.Navidrome.Password, "пароль Navidrome")
	// LLM
	fs.StringVar(&cfg.LLM.BaseURL, "llm-base-url", cfg.LLM.BaseURL, "OpenAI-совместимый endpoint (пусто: api.openai.com)")
	fs.StringVar(&cfg.LLM.Model, "llm-model", cfg.LLM.Model, "модель для комментария")
	fs.StringVar(&cfg.LLM.DJName, "dj-name", cfg.LLM.DJName, "имя ведущего")
	// TTS
	fs.StringVar(&cfg.TTSService, "tts-service", cfg.TTSService, "сервис TTS: elevenlabs|google|gemini|local")
	fs.StringVar(&cfg.ElevenLabs.APIKey, "eleven-api-key", cfg.ElevenLabs.APIKey, "API ключ ElevenLabs (перекрывает ENV)")
	fs.StringVar(&cfg.ElevenLabs.VoiceID, "eleven-voice-id", cfg.ElevenLabs.VoiceID, "голос ElevenLabs")
	fs.StringVar(&cfg.GoogleTTS.CredentialsPath, "google-tts-credentials", cfg.GoogleTTS.CredentialsPath, "путь к service-account.json")
	fs.StringVar(&cfg.GoogleTTS.Language, "google-tts-language", cfg.GoogleTTS.Language, "язык синтеза, напр. en-US")
	fs.StringVar(&cfg.GoogleTTS.Voice, "google-tts-voice", cfg.GoogleTTS.Voice, "имя голоса Google TTS")
	fs.Float64Var(&cfg.GoogleTTS.SpeakingRate, "google-tts-speaking-rate", cfg.GoogleTTS.SpeakingRate, "скорость речи (1.0 по умолчанию)")
	fs.StringVar(&cfg.GeminiTTS.VoiceName, "gemini-tts-voice", cfg.GeminiTTS.VoiceName, "голос Gemini-TTS")
	fs.StringVar(&cfg.GeminiTTS.Prompt, "gemini-tts-prompt", cfg.GeminiTTS.Prompt, "стиль подачи для Gemini-TTS")
	fs.StringVar(&cfg.LocalTTS.Binary, "local-tts-binary", cfg.LocalTTS.Binary, "бинарь локального TTS")
	fs.StringVar(&cfg.LocalTTS.Voice, "local-tts-voice", cfg.LocalTTS.Voice, "голос локального TTS")
	// Воспроизведение
	playersFlag := strings.Join(cfg.Players, ";")
	fs.StringVar(&playersFlag, "players", playersFlag, "плееры в порядке предпочтения, через ';' (mpv;ffplay;vlc;builtin)")
	fs.IntVar(&cfg.DefaultVolume, "volume", cfg.DefaultVolume, "громкость при старте 0-100")
	fs.DurationVar(&cfg.GenerateTimeout, "generate-timeout", cfg.GenerateTimeout, "предел ожидания генерации комментария")
	fs.DurationVar(&cfg.SynthesizeTimeout, "synthesize-timeout", cfg.SynthesizeTimeout, "предел ожидания синтеза речи")
	// Twitch
	fs.StringVar(&cfg.Twitch.Username, "twitch-username", cfg.Twitch.Username, "логин Twitch для подключения к чату")
	fs.StringVar(&cfg.Twitch.OAuth, "twitch-oauth-token", cfg.Twitch.OAuth, "OAuth токен Twitch (может быть без префикса oauth:)")
	fs.StringVar(&cfg.Twitch.Channel, "twitch-channel", cfg.Twitch.Channel, "канал Twitch (без #)")
	fs.BoolVar(&cfg.Twitch.AllowSkip, "twitch-allow-skip", cfg.Twitch.AllowSkip, "разрешить !skip из чата")
	// EventServer
	fs.BoolVar(&cfg.EventServer.Enabled, "event-server-enabled", cfg.EventServer.Enabled, "включить сервер событий для GUI")
	fs.StringVar(&cfg.EventServer.BindAddr, "event-server-bind-addr", cfg.EventServer.BindAddr, "адрес сервера событий")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Players = parseListFlag(playersFlag, []string{"mpv", "ffplay", "vlc"})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Если ENV пуст, но в конфиге указан путь к ключу: выставляем ENV для SDK.
	if strings.EqualFold(cfg.TTSService, "google") || strings.EqualFold(cfg.TTSService, "gemini") {
		cred := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		if cred == "" {
			if cp := strings.TrimSpace(cfg.GoogleTTS.CredentialsPath); cp != "" {
				_ = os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cp)
				cred = cp
			}
		}
		if _, err := os.Stat(cred); err != nil {
			return nil, fmt.Errorf("google tts: файл ключа не найден: %q; укажите GOOGLE_APPLICATION_CREDENTIALS или -google-tts-credentials", cred)
		}
	}

	return cfg, nil
}

// Validate проверяет значения, которые ядро принимает как уже проверенные.
func (c *Config) Validate() error {
	var errs []error
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		errs = append(errs, fmt.Errorf("default volume %d out of range 0-100", c.DefaultVolume))
	}
	if c.GenerateTimeout <= 0 {
		errs = append(errs, errors.New("generate timeout must be positive"))
	}
	if c.SynthesizeTimeout <= 0 {
		errs = append(errs, errors.New("synthesize timeout must be positive"))
	}
	if c.PositionInterval <= 0 {
		errs = append(errs, errors.New("position interval must be positive"))
	}
	if len(c.Players) == 0 {
		errs = append(errs, errors.New("player list is empty"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Catalog)) {
	case "navidrome", "local", "auto":
	default:
		errs = append(errs, fmt.Errorf("unknown catalog %q (navidrome|local|auto)", c.Catalog))
	}
	switch strings.ToLower(strings.TrimSpace(c.TTSService)) {
	case "elevenlabs", "google", "gemini", "local":
	default:
		errs = append(errs, fmt.Errorf("unknown tts service %q (elevenlabs|google|gemini|local)", c.TTSService))
	}
	return errors.Join(errs...)
}

// UseNavidrome сообщает, брать ли треки с Navidrome вместо локальной папки.
func (c *Config) UseNavidrome() bool {
	switch strings.ToLower(strings.TrimSpace(c.Catalog)) {
	case "navidrome":
		return true
	case "local":
		return false
	default: // auto
		return strings.TrimSpace(c.Navidrome.URL) != ""
	}
}

// parseListFlag разбирает значение флага со списком, разделённым ';'
func parseListFlag(v string, def []string) []string {
	// Пустая строка → дефолт
	if v == "" {
		return def
	}
	parts := strings.Split(v, ";")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return def
	}
	return cleaned
}
