package localdir

import (
	"PersonalDJ/internal/service/music"
	"context"
	"errors"
	"io/fs"
	mrand "math/rand/v2"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var audioExt = map[string]bool{
	".mp3": true, ".flac": true, ".wav": true, ".ogg": true,
	".m4a": true, ".aac": true, ".opus": true,
}

// Library выбирает трек из локальной папки с музыкой.
type Library struct {
	root   string
	logger *zap.SugaredLogger
}

func New(root string, logger *zap.SugaredLogger) *Library {
	return &Library{root: root, logger: logger}
}

// Scan возвращает все аудиофайлы под root.
func (l *Library) Scan(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Нечитаемая подпапка не должна ломать весь обход
			if path != l.root {
				l.logger.Debugw("Skipping unreadable path", "path", path, "error", err)
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != l.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if audioExt[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// PickTrack предпочитает файлы, в пути которых есть слова вайба, иначе берёт случайный.
func (l *Library) PickTrack(ctx context.Context, vibe string) (music.Track, error) {
	files, err := l.Scan(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return music.Track{}, err
		}
		return music.Track{}, &music.TrackNotFoundError{Reason: "music directory unreadable", Err: err}
	}
	if len(files) == 0 {
		return music.Track{}, &music.TrackNotFoundError{Reason: "no audio files in " + l.root}
	}

	words := music.Keywords(vibe)
	top, bestScore := []string{}, -1
	for _, f := range files {
		rel, _ := filepath.Rel(l.root, f)
		score := music.Score(rel, words)
		switch {
		case score > bestScore:
			top, bestScore = []string{f}, score
		case score == bestScore:
			top = append(top, f)
		}
	}
	path := top[mrand.IntN(len(top))]
	track := trackFromPath(path)
	l.logger.Infow("Selected track", "track", track.Display(), "path", path, "matched", bestScore)
	return track, nil
}

// trackFromPath разбирает имя вида "Artist - Title.ext"; иначе имя файла: это title.
func trackFromPath(path string) music.Track {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := music.Track{ID: path, Title: name, Locator: path}
	if artist, title, ok := strings.Cut(name, " - "); ok {
		t.Artist = strings.TrimSpace(artist)
		t.Title = strings.TrimSpace(title)
	}
	if album := filepath.Base(filepath.Dir(path)); album != "." && album != string(filepath.Separator) {
		t.Album = album
	}
	return t
}
