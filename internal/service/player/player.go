package player

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Player: единая поверхность управления установленным медиаплеером.
// Вызывать методы должен один владелец (воркер воспроизведения).
type Player interface {
	Name() string
	// Play запускает воспроизведение и возвращает канал, в который придёт ровно одно
	// значение, когда воспроизведение закончится (естественно или после Stop).
	Play(locator string) (<-chan error, error)
	Pause() error
	Resume() error
	Stop() error
	// SetVolume 0-100; значение сохраняется и применяется к следующим трекам.
	SetVolume(level int) error
	Position() (float64, error)
	Close() error
}

// PlayerNotFoundError: ни один плеер из списка не установлен. Фатально при старте.
type PlayerNotFoundError struct {
	Tried []string
}

func (e *PlayerNotFoundError) Error() string {
	return fmt.Sprintf("no supported music player found (tried: %s); install mpv, ffplay or vlc", strings.Join(e.Tried, ", "))
}

// lookPath подменяется в тестах.
var lookPath = exec.LookPath

// Discover перебирает плееры в порядке предпочтения и возвращает первый доступный.
func Discover(preference []string, volume int, logger *zap.SugaredLogger) (Player, error) {
	for _, name := range preference {
		name = strings.ToLower(strings.TrimSpace(name))
		var p Player
		switch name {
		case "builtin", "beep":
			p = NewBuiltin(logger)
		case "mpv":
			if bin, err := lookPath("mpv"); err == nil {
				p = newProcPlayer("mpv", bin, &mpvControl{}, logger)
			}
		case "ffplay":
			if bin, err := lookPath("ffplay"); err == nil {
				p = newProcPlayer("ffplay", bin, ffplayControl{}, logger)
			}
		case "vlc", "cvlc":
			for _, exe := range []string{"cvlc", "vlc"} {
				if bin, err := lookPath(exe); err == nil {
					p = newProcPlayer("vlc", bin, vlcControl{}, logger)
					break
				}
			}
		default:
			logger.Warnw("Unknown player in preference list", "name", name)
			continue
		}
		if p == nil {
			logger.Debugw("Player not installed", "name", name)
			continue
		}
		if err := p.SetVolume(volume); err != nil {
			logger.Warnw("Failed to set initial volume", "player", p.Name(), "error", err)
		}
		logger.Infow("Player selected", "name", p.Name())
		return p, nil
	}
	return nil, &PlayerNotFoundError{Tried: preference}
}

func clampVolume(level int) int { return max(0, min(100, level)) }

// redact убирает query из URL: в потоках Navidrome там логин и токен.
func redact(locator string) string {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return locator
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
