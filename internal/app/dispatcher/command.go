package dispatcher

import (
	"strconv"
	"strings"
)

// Kind: вид команды пользователя.
type Kind int

const (
	KindVibe Kind = iota
	KindPause
	KindResume
	KindStop
	KindSkip
	KindVolume
	KindStatus
	KindQuit
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindVibe:
		return "vibe"
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	case KindStop:
		return "stop"
	case KindSkip:
		return "skip"
	case KindVolume:
		return "volume"
	case KindStatus:
		return "status"
	case KindQuit:
		return "quit"
	case KindHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Command: неизменяемая команда от UI. Text заполнен для Vibe, Level для Volume.
type Command struct {
	Kind  Kind
	Text  string
	Level int
}

func Vibe(text string) Command { return Command{Kind: KindVibe, Text: text} }

func SetVolume(level int) Command { return Command{Kind: KindVolume, Level: level} }

func Simple(kind Kind) Command { return Command{Kind: kind} }

// VolumeUsage: подсказка для неверной команды громкости.
const VolumeUsage = "Usage: volume <0-100>"

// InvalidCommandError: команда отклонена до передачи движку; состояние не меняется.
type InvalidCommandError struct {
	Message string
}

func (e *InvalidCommandError) Error() string { return e.Message }

var keywords = map[string]Kind{
	"pause":  KindPause,
	"resume": KindResume,
	"stop":   KindStop,
	"skip":   KindSkip,
	"status": KindStatus,
	"quit":   KindQuit,
	"exit":   KindQuit,
	"help":   KindHelp,
}

// Parse разбирает строку CLI. Ключевые слова без учёта регистра, всё остальное: вайб.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, &InvalidCommandError{Message: "Please enter a vibe or a command."}
	}
	fields := strings.Fields(line)
	head := strings.ToLower(fields[0])

	if head == "volume" {
		if len(fields) != 2 {
			return Command{}, &InvalidCommandError{Message: VolumeUsage}
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, &InvalidCommandError{Message: VolumeUsage}
		}
		return SetVolume(level), nil
	}
	if kind, ok := keywords[head]; ok && len(fields) == 1 {
		return Simple(kind), nil
	}
	return Vibe(line), nil
}

// Menu: список команд для CLI.
const Menu = `Personal DJ ready. Available commands:
  - Enter a vibe to start music
  - 'pause' - pause current track
  - 'resume' - resume paused track
  - 'stop' - stop current track
  - 'skip' - skip current track
  - 'volume <0-100>' - set volume
  - 'status' - show current status
  - 'quit' - exit`
