package music

import (
	"errors"
	"strings"
)

// ErrTrackNotFound: нет ни одного трека, пригодного для воспроизведения.
var ErrTrackNotFound = errors.New("no playable tracks available")

// TrackNotFoundError уточняет, почему каталог не смог выбрать трек.
type TrackNotFoundError struct {
	Reason string
	Err    error
}

func (e *TrackNotFoundError) Error() string {
	msg := ErrTrackNotFound.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrackNotFoundError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTrackNotFound, e.Err}
	}
	return []error{ErrTrackNotFound}
}

// Track: выбранный трек. Locator непрозрачен: путь, URL потока или id каталога.
type Track struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	Locator string `json:"-"` // может содержать токен Navidrome
}

// Display возвращает строку для вывода пользователю.
func (t Track) Display() string {
	title := strings.TrimSpace(t.Title)
	artist := strings.TrimSpace(t.Artist)
	switch {
	case artist != "" && title != "":
		return artist + " - " + title
	case title != "":
		return title
	case t.Locator != "":
		return t.Locator
	default:
		return "Unknown Track"
	}
}
