package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Synthesizer абстракция TTS. Возвращает готовый к воспроизведению файл.
// voice: идентификатор голоса вендора; пустой означает голос из конфигурации.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string) (*Audio, error)
}

// Audio: синтезированная речь во временном файле. Владелец обязан вызвать Cleanup.
type Audio struct {
	Path   string
	Format string // mp3|wav
}

// Cleanup удаляет файл. Повторный вызов и nil-получатель безопасны.
func (a *Audio) Cleanup() error {
	if a == nil || a.Path == "" {
		return nil
	}
	err := os.Remove(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// TempPath возвращает уникальный путь во временной папке для аудио заданного формата.
func TempPath(format string) string {
	return filepath.Join(os.TempDir(), tempPrefix+uuid.NewString()+"."+format)
}

// Save записывает аудио во временный файл.
func Save(data []byte, format string) (*Audio, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio content")
	}
	path := TempPath(format)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	return &Audio{Path: path, Format: format}, nil
}

// TTSError: синтез не удался ни одним движком.
type TTSError struct {
	Engine string
	Err    error
}

func (e *TTSError) Error() string {
	return fmt.Sprintf("tts (%s): %v", e.Engine, e.Err)
}

func (e *TTSError) Unwrap() error { return e.Err }

// Engine: именованный синтезатор для цепочки Fallback.
type Engine struct {
	Name  string
	Synth Synthesizer
}

// Fallback пробует движки по порядку и возвращает первый успешный результат.
// Голос передаётся только первому движку: у запасных свои голоса.
type Fallback struct {
	engines []Engine
	logger  *zap.SugaredLogger
}

func NewFallback(logger *zap.SugaredLogger, engines ...Engine) *Fallback {
	return &Fallback{engines: engines, logger: logger}
}

func (f *Fallback) Synthesize(ctx context.Context, text string, voice string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &TTSError{Engine: "none", Err: errors.New("empty text")}
	}
	if len(f.engines) == 0 {
		return nil, &TTSError{Engine: "none", Err: errors.New("no tts engine configured")}
	}
	var errs []error
	for i, e := range f.engines {
		v := voice
		if i > 0 {
			v = ""
		}
		audio, err := e.Synth.Synthesize(ctx, text, v)
		if err == nil {
			return audio, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		// Отменённый контекст не лечится следующим движком
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(f.engines) {
			f.logger.Warnw("TTS engine failed, trying next", "engine", e.Name, "next", f.engines[i+1].Name, "error", err)
		}
	}
	names := make([]string, 0, len(f.engines))
	for _, e := range f.engines {
		names = append(names, e.Name)
	}
	return nil, &TTSError{Engine: strings.Join(names, "→"), Err: errors.Join(errs...)}
}
