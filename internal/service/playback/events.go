package playback

import (
	"PersonalDJ/internal/service/music"
	"PersonalDJ/internal/service/source"
	"sync"
	"time"
)

type EventType string

const (
	EventState      EventType = "state"
	EventCommentary EventType = "commentary"
	EventTrack      EventType = "track"
	EventWarning    EventType = "warning"
	EventError      EventType = "error"
	EventDiscarded  EventType = "discarded"
)

// Event: уведомление для UI (CLI, websocket).
type Event struct {
	Type   EventType          `json:"type"`
	JobID  uint64             `json:"job_id,omitempty"`
	State  State              `json:"state"`
	Text   string             `json:"text,omitempty"`
	Track  *music.Track       `json:"track,omitempty"`
	Source *source.Descriptor `json:"source,omitempty"`
	Time   time.Time          `json:"time"`
}

// broker раздаёт события подписчикам. Медленный подписчик теряет события, воркер не ждёт.
type broker struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe(buf int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buf)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeAll закрывает все подписки при остановке движка.
func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
