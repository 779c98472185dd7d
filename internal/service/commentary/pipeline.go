package commentary

import (
	"PersonalDJ/internal/service/music"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Catalog выбирает трек под вайб.
type Catalog interface {
	PickTrack(ctx context.Context, vibe string) (music.Track, error)
}

// Writer пишет реплику ведущего.
type Writer interface {
	Commentary(ctx context.Context, vibe string) (string, error)
}

// Result: реплика и выбранный трек. Track пустой, если каталог ничего не дал.
type Result struct {
	Text  string
	Track music.Track
}

// HasTrack сообщает, выбран ли трек.
func (r Result) HasTrack() bool { return strings.TrimSpace(r.Track.Locator) != "" }

// CommentaryGenerationError: не удалось написать реплику. Трек при этом может быть уже выбран.
type CommentaryGenerationError struct {
	Err error
}

func (e *CommentaryGenerationError) Error() string {
	return "commentary generation failed: " + e.Err.Error()
}

func (e *CommentaryGenerationError) Unwrap() error { return e.Err }

// Pipeline связывает каталог и LLM: сначала трек, потом реплика.
type Pipeline struct {
	catalog Catalog
	writer  Writer
	logger  *zap.SugaredLogger
}

// NewPipeline создаёт сервис генерации.
func NewPipeline(catalog Catalog, writer Writer, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{catalog: catalog, writer: writer, logger: logger}
}

// Generate возвращает реплику и трек для вайба.
// Ошибка каталога: пустой Result и ошибка, совместимая с music.ErrTrackNotFound.
// Ошибка LLM: Result с треком и *CommentaryGenerationError.
func (p *Pipeline) Generate(ctx context.Context, vibe string) (Result, error) {
	track, err := p.catalog.PickTrack(ctx, vibe)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !errors.Is(err, music.ErrTrackNotFound) {
			err = &music.TrackNotFoundError{Err: err}
		}
		return Result{}, err
	}
	if strings.TrimSpace(track.Locator) == "" {
		return Result{}, &music.TrackNotFoundError{Reason: "catalog returned a track without locator"}
	}

	text, err := p.writer.Commentary(ctx, vibe)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Track: track}, ctx.Err()
		}
		p.logger.Warnw("Commentary generation failed", "vibe", vibe, "error", err)
		return Result{Track: track}, &CommentaryGenerationError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Track: track}, &CommentaryGenerationError{Err: errors.New("empty commentary")}
	}
	p.logger.Infow("Commentary generated", "vibe", vibe, "track", track.Display(), "length", len(text))
	return Result{Text: text, Track: track}, nil
}

// String для логов.
func (r Result) String() string {
	return fmt.Sprintf("%q → %s", r.Text, r.Track.Display())
}
