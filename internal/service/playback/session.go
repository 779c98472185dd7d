package playback

import (
	"PersonalDJ/internal/service/music"
	"PersonalDJ/internal/service/source"
)

// State: состояние конечного автомата воспроизведения.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateSpeaking
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "Generating"
	case StateSpeaking:
		return "Speaking"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	default:
		return "Idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Session: снимок единственного изменяемого состояния движка.
// Track и Source nil, когда трек не выбран.
type Session struct {
	State     State              `json:"state"`
	Track     *music.Track       `json:"track,omitempty"`
	Source    *source.Descriptor `json:"source,omitempty"`
	Volume    int                `json:"volume"`
	Position  float64            `json:"position"`
	JobID     uint64             `json:"job_id"`
	LastError string             `json:"last_error,omitempty"`
}
