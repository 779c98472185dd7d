package dispatcher

import (
	"PersonalDJ/internal/service/playback"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// Engine: то, что Dispatcher требует от движка воспроизведения.
type Engine interface {
	Vibe(ctx context.Context, text string) (uint64, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Skip(ctx context.Context) error
	SetVolume(ctx context.Context, level int) error
	Shutdown(ctx context.Context) error
	Snapshot() playback.Session
}

// Result: ответ на команду. Status заполнен для KindStatus, Quit для KindQuit.
type Result struct {
	Message string
	JobID   uint64
	Status  *StatusReport
	Quit    bool
}

// Dispatcher: единая точка входа команд из CLI, websocket и чата.
type Dispatcher struct {
	engine Engine
	logger *zap.SugaredLogger
}

func New(engine Engine, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{engine: engine, logger: logger}
}

// Submit проверяет команду и передаёт её движку. Vibe возвращается сразу, не дожидаясь генерации.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Kind {
	case KindVibe:
		text := strings.TrimSpace(cmd.Text)
		if text == "" {
			return Result{}, &InvalidCommandError{Message: "Vibe must not be empty."}
		}
		id, err := d.engine.Vibe(ctx, text)
		if err != nil {
			return Result{}, err
		}
		d.logger.Infow("Vibe received", "vibe", text, "job", id)
		return Result{JobID: id, Message: fmt.Sprintf("Vibe received: %q. Spinning something up...", text)}, nil

	case KindPause:
		if err := d.engine.Pause(ctx); err != nil {
			return Result{}, err
		}
		if d.engine.Snapshot().State != playback.StatePaused {
			return Result{Message: "No music to pause or already paused."}, nil
		}
		return Result{Message: "Music paused."}, nil

	case KindResume:
		before := d.engine.Snapshot().State
		if err := d.engine.Resume(ctx); err != nil {
			return Result{}, err
		}
		if before != playback.StatePaused {
			return Result{Message: "No music to resume or not paused."}, nil
		}
		return Result{Message: "Music resumed."}, nil

	case KindStop:
		if err := d.engine.Stop(ctx); err != nil {
			return Result{}, err
		}
		return Result{Message: "Playback stopped."}, nil

	case KindSkip:
		if err := d.engine.Skip(ctx); err != nil {
			return Result{}, err
		}
		return Result{Message: "Track skipped. Ready for a new vibe."}, nil

	case KindVolume:
		if cmd.Level < 0 || cmd.Level > 100 {
			return Result{}, &InvalidCommandError{Message: VolumeUsage}
		}
		if err := d.engine.SetVolume(ctx, cmd.Level); err != nil {
			if errors.Is(err, playback.ErrInvalidVolume) {
				return Result{}, &InvalidCommandError{Message: VolumeUsage}
			}
			return Result{}, err
		}
		return Result{Message: fmt.Sprintf("Volume set to %d%%", cmd.Level)}, nil

	case KindStatus:
		report := d.Status()
		return Result{Status: &report, Message: report.String()}, nil

	case KindQuit:
		if err := d.engine.Shutdown(ctx); err != nil {
			return Result{}, err
		}
		return Result{Quit: true, Message: "Goodbye."}, nil

	case KindHelp:
		return Result{Message: Menu}, nil

	default:
		return Result{}, &InvalidCommandError{Message: fmt.Sprintf("unknown command %q", cmd.Kind)}
	}
}

// SubmitLine: Parse + Submit для текстовых источников.
func (d *Dispatcher) SubmitLine(ctx context.Context, line string) (Result, error) {
	cmd, err := Parse(line)
	if err != nil {
		return Result{}, err
	}
	return d.Submit(ctx, cmd)
}

// StatusReport: снимок сессии в виде, пригодном для вывода и JSON.
type StatusReport struct {
	State     string  `json:"status"`
	Track     string  `json:"track,omitempty"`
	Volume    int     `json:"volume"`
	Position  float64 `json:"position"`
	Source    string  `json:"source,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	Player    string  `json:"player,omitempty"`
	LastError string  `json:"last_error,omitempty"`
}

// Status читает снимок движка, не дожидаясь генерации.
func (d *Dispatcher) Status() StatusReport {
	s := d.engine.Snapshot()
	r := StatusReport{
		State:     s.State.String(),
		Volume:    s.Volume,
		Position:  s.Position,
		LastError: s.LastError,
	}
	if s.Track != nil {
		r.Track = s.Track.Display()
	}
	if s.Source != nil {
		r.Source = s.Source.Label
		r.Kind = s.Source.Kind.String()
		r.Player = s.Source.PlayerName
	}
	return r
}

func (r StatusReport) String() string {
	orNone := func(v string) string {
		if v == "" {
			return "None"
		}
		return v
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", r.State)
	fmt.Fprintf(&b, "Track: %s\n", orNone(r.Track))
	fmt.Fprintf(&b, "Volume: %d%%\n", r.Volume)
	fmt.Fprintf(&b, "Position: %ds\n", int(math.Floor(r.Position)))
	fmt.Fprintf(&b, "Source: %s", orNone(r.Source))
	if r.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", r.LastError)
	}
	return b.String()
}
