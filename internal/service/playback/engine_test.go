package playback

import (
	"PersonalDJ/internal/service/commentary"
	"PersonalDJ/internal/service/music"
	"PersonalDJ/internal/service/player"
	"PersonalDJ/internal/service/source"
	"PersonalDJ/internal/service/tts"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakePlayer запоминает вызовы; воспроизведение длится, пока тест не вызовет finish.
type fakePlayer struct {
	mu       sync.Mutex
	played   []string
	done     chan error
	paused   int
	resumed  int
	volumes  []int
	closed   bool
	playErr  map[string]error
	position float64
}

func newFakePlayer() *fakePlayer { return &fakePlayer{playErr: map[string]error{}} }

func (p *fakePlayer) Name() string { return "fake" }

func (p *fakePlayer) Play(locator string) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.playErr[locator]; err != nil {
		return nil, err
	}
	p.stopLocked()
	p.played = append(p.played, locator)
	p.done = make(chan error, 1)
	return p.done, nil
}

func (p *fakePlayer) stopLocked() {
	if p.done != nil {
		p.done <- errors.New("signal: killed")
		close(p.done)
		p.done = nil
	}
}

// finish завершает текущее воспроизведение естественным образом.
func (p *fakePlayer) finish() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	p.done <- nil
	close(p.done)
	p.done = nil
	return true
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused++
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumed++
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *fakePlayer) SetVolume(level int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volumes = append(p.volumes, level)
	return nil
}

func (p *fakePlayer) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.closed = true
	return nil
}

func (p *fakePlayer) playedList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.played)
}

type genFunc func(ctx context.Context, vibe string) (commentary.Result, error)

func (f genFunc) Generate(ctx context.Context, vibe string) (commentary.Result, error) {
	return f(ctx, vibe)
}

type voiceFunc func(ctx context.Context, text string) (*tts.Audio, error)

func (f voiceFunc) Synthesize(ctx context.Context, text, _ string) (*tts.Audio, error) {
	return f(ctx, text)
}

// saveVoice синтезирует «речь» во временный файл.
func saveVoice(context.Context, string) (*tts.Audio, error) { return tts.Save([]byte("ID3"), "mp3") }

type harness struct {
	engine *Engine
	player *fakePlayer
	events <-chan Event
	track  music.Track
}

func trackIn(t *testing.T, name string) music.Track {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return music.Track{Title: name, Artist: "Tester", Locator: path}
}

// start поднимает движок с воркером; gen и voice nil: мгновенный успех.
func start(t *testing.T, gen genFunc, voice voiceFunc, mods ...func(*Options)) *harness {
	t.Helper()
	h := &harness{player: newFakePlayer(), track: trackIn(t, "Lofi Rain")}
	if gen == nil {
		gen = func(context.Context, string) (commentary.Result, error) {
			return commentary.Result{Text: "Easy does it.", Track: h.track}, nil
		}
	}
	if voice == nil {
		voice = saveVoice
	}
	opts := Options{Volume: 70, GenerateTimeout: 5 * time.Second, SynthesizeTimeout: 5 * time.Second, PositionInterval: 10 * time.Millisecond}
	for _, m := range mods {
		m(&opts)
	}
	h.engine = New(gen, voice, h.player, source.New("", "fake"), opts, zaptest.NewLogger(t).Sugar())
	events, cancelSub := h.engine.Subscribe()
	h.events = events

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancelSub()
		cancel()
		<-h.engine.Done()
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitState(t *testing.T, want State) Session {
	t.Helper()
	var s Session
	waitFor(t, "state "+want.String(), func() bool {
		s = h.engine.Snapshot()
		return s.State == want
	})
	return s
}

func (h *harness) waitPlayed(t *testing.T, n int) []string {
	t.Helper()
	var played []string
	waitFor(t, "player start", func() bool {
		played = h.player.playedList()
		return len(played) >= n
	})
	return played
}

// waitEvent вычитывает события, пока не встретится нужный тип.
func (h *harness) waitEvent(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestVibeSpeaksThenPlays(t *testing.T) {
	h := start(t, nil, nil)
	ctx := context.Background()

	if _, err := h.engine.Vibe(ctx, "chill lofi"); err != nil {
		t.Fatalf("Vibe: %v", err)
	}
	if ev := h.waitEvent(t, EventCommentary); ev.Text != "Easy does it." {
		t.Errorf("commentary = %q", ev.Text)
	}
	speech := h.waitPlayed(t, 1)[0]
	if !strings.HasSuffix(speech, ".mp3") || speech == h.track.Locator {
		t.Fatalf("first media must be the commentary, got %s", speech)
	}
	h.waitState(t, StateSpeaking)

	h.player.finish()
	if got := h.waitPlayed(t, 2)[1]; got != h.track.Locator {
		t.Fatalf("second media = %s, want track", got)
	}
	s := h.waitState(t, StatePlaying)
	if s.Track == nil || s.Track.Title != "Lofi Rain" {
		t.Fatalf("track = %+v", s.Track)
	}
	if s.Source == nil || s.Source.Kind != source.KindLocalLibrary || !strings.Contains(s.Source.Label, "Local Library via fake") {
		t.Errorf("source = %+v", s.Source)
	}
	if _, err := os.Stat(speech); !errors.Is(err, os.ErrNotExist) {
		t.Error("commentary audio must be removed after speaking")
	}

	h.player.mu.Lock()
	h.player.position = 12.5
	h.player.mu.Unlock()
	waitFor(t, "position sample", func() bool { return h.engine.Snapshot().Position == 12.5 })

	h.player.finish()
	s = h.waitState(t, StateIdle)
	if s.Track != nil || s.Source != nil {
		t.Errorf("finished track must be cleared: %+v", s)
	}
}

func TestStateEventsOrder(t *testing.T) {
	h := start(t, nil, nil)
	if _, err := h.engine.Vibe(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	h.waitPlayed(t, 1)
	h.player.finish()
	h.waitState(t, StatePlaying)
	h.player.finish()
	h.waitState(t, StateIdle)

	var states []State
	for len(states) == 0 || states[len(states)-1] != StateIdle {
		select {
		case ev := <-h.events:
			if ev.Type == EventState {
				states = append(states, ev.State)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("states so far: %v", states)
		}
	}
	want := []State{StateGenerating, StateSpeaking, StatePlaying, StateIdle}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestSetVolume(t *testing.T) {
	h := start(t, nil, nil)
	ctx := context.Background()
	tests := []struct {
		level int
		ok    bool
	}{
		{50, true}, {-1, false}, {0, true}, {101, false}, {100, true}, {150, false},
	}
	want := 70
	for _, tt := range tests {
		err := h.engine.SetVolume(ctx, tt.level)
		if tt.ok {
			if err != nil {
				t.Fatalf("SetVolume(%d): %v", tt.level, err)
			}
			want = tt.level
		} else if !errors.Is(err, ErrInvalidVolume) {
			t.Fatalf("SetVolume(%d) = %v, want ErrInvalidVolume", tt.level, err)
		}
		if got := h.engine.Snapshot().Volume; got != want {
			t.Errorf("after SetVolume(%d) volume = %d, want %d", tt.level, got, want)
		}
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	h := start(t, nil, voiceFunc(func(context.Context, string) (*tts.Audio, error) {
		return nil, errors.New("tts down")
	}))
	ctx := context.Background()

	// Пауза без воспроизведения: успешный no-op
	if err := h.engine.Pause(ctx); err != nil {
		t.Fatalf("Pause in Idle: %v", err)
	}
	if err := h.engine.Resume(ctx); err != nil {
		t.Fatalf("Resume in Idle: %v", err)
	}

	if _, err := h.engine.Vibe(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	h.waitState(t, StatePlaying)

	for range 2 {
		if err := h.engine.Pause(ctx); err != nil {
			t.Fatalf("Pause: %v", err)
		}
		if s := h.engine.Snapshot(); s.State != StatePaused {
			t.Fatalf("state = %s", s.State)
		}
	}
	for range 2 {
		if err := h.engine.Resume(ctx); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if s := h.engine.Snapshot(); s.State != StatePlaying {
			t.Fatalf("state = %s", s.State)
		}
	}
	h.player.mu.Lock()
	defer h.player.mu.Unlock()
	if h.player.paused != 1 || h.player.resumed != 1 {
		t.Errorf("player pause/resume = %d/%d, want 1/1", h.player.paused, h.player.resumed)
	}
}

func TestStopFromAnyState(t *testing.T) {
	blockGen := genFunc(func(ctx context.Context, _ string) (commentary.Result, error) {
		<-ctx.Done()
		return commentary.Result{}, ctx.Err()
	})
	setups := map[string]func(t *testing.T) *harness{
		"generating": func(t *testing.T) *harness {
			h := start(t, blockGen, nil)
			_, _ = h.engine.Vibe(context.Background(), "x")
			h.waitState(t, StateGenerating)
			return h
		},
		"speaking": func(t *testing.T) *harness {
			h := start(t, nil, nil)
			_, _ = h.engine.Vibe(context.Background(), "x")
			h.waitPlayed(t, 1)
			h.waitState(t, StateSpeaking)
			return h
		},
		"playing": func(t *testing.T) *harness {
			h := start(t, nil, nil)
			_, _ = h.engine.Vibe(context.Background(), "x")
			h.waitPlayed(t, 1)
			h.player.finish()
			h.waitState(t, StatePlaying)
			return h
		},
		"paused": func(t *testing.T) *harness {
			h := start(t, nil, nil)
			_, _ = h.engine.Vibe(context.Background(), "x")
			h.waitPlayed(t, 1)
			h.player.finish()
			h.waitState(t, StatePlaying)
			_ = h.engine.Pause(context.Background())
			return h
		},
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			h := setup(t)
			if err := h.engine.Stop(context.Background()); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			s := h.engine.Snapshot()
			if s.State != StateIdle || s.Track != nil {
				t.Fatalf("after Stop: %+v", s)
			}
			if h.player.finish() {
				t.Error("player must be stopped")
			}
		})
	}
}

// lateGen не реагирует на отмену: результат приходит, только когда тест отпустит release.
func lateGen(track music.Track, release <-chan struct{}) genFunc {
	return func(context.Context, string) (commentary.Result, error) {
		<-release
		return commentary.Result{Text: "Too late.", Track: track}, nil
	}
}

func TestNewVibePreemptsGenerating(t *testing.T) {
	release := make(chan struct{})
	stale := music.Track{Title: "Stale", Locator: "/nowhere/stale.mp3"}
	var h *harness
	h = start(t, func(ctx context.Context, vibe string) (commentary.Result, error) {
		if vibe == "first" {
			return lateGen(stale, release)(ctx, vibe)
		}
		return commentary.Result{Track: h.track}, &commentary.CommentaryGenerationError{Err: errors.New("llm down")}
	}, nil)
	ctx := context.Background()

	first, _ := h.engine.Vibe(ctx, "first")
	h.waitState(t, StateGenerating)
	second, err := h.engine.Vibe(ctx, "second")
	if err != nil || second <= first {
		t.Fatalf("second job = %d, %v", second, err)
	}
	h.waitState(t, StatePlaying)

	close(release)
	if ev := h.waitEvent(t, EventDiscarded); ev.JobID != first {
		t.Errorf("discarded job = %d, want %d", ev.JobID, first)
	}
	if played := h.player.playedList(); slices.Contains(played, stale.Locator) || len(played) != 1 {
		t.Errorf("played = %v", played)
	}
	if s := h.engine.Snapshot(); s.JobID != second || s.Track.Title != "Lofi Rain" {
		t.Errorf("session = %+v", s)
	}
}

func TestStopBeforeGenerationCompletes(t *testing.T) {
	release := make(chan struct{})
	h := start(t, lateGen(music.Track{Title: "Late", Locator: "/x/late.mp3"}, release), nil)
	ctx := context.Background()

	if _, err := h.engine.Vibe(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	h.waitState(t, StateGenerating)
	if err := h.engine.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	h.waitState(t, StateIdle)

	close(release)
	h.waitEvent(t, EventDiscarded)
	if played := h.player.playedList(); len(played) != 0 {
		t.Errorf("nothing may play after stop, got %v", played)
	}
	if s := h.engine.Snapshot(); s.State != StateIdle || s.Track != nil {
		t.Errorf("session = %+v", s)
	}
}

func TestSkipDuringSynthesisDiscardsAudio(t *testing.T) {
	release := make(chan struct{})
	var produced string
	var mu sync.Mutex
	h := start(t, nil, voiceFunc(func(context.Context, string) (*tts.Audio, error) {
		<-release
		a, err := tts.Save([]byte("ID3"), "mp3")
		mu.Lock()
		produced = a.Path
		mu.Unlock()
		return a, err
	}))
	ctx := context.Background()
	_, _ = h.engine.Vibe(ctx, "x")
	h.waitState(t, StateSpeaking)
	if err := h.engine.Skip(ctx); err != nil {
		t.Fatal(err)
	}
	close(release)
	h.waitEvent(t, EventDiscarded)

	mu.Lock()
	defer mu.Unlock()
	if _, err := os.Stat(produced); !errors.Is(err, os.ErrNotExist) {
		t.Error("late audio must be cleaned up")
	}
	if len(h.player.playedList()) != 0 {
		t.Error("late audio must not play")
	}
}

func TestCommentaryFailurePlaysTrackOnly(t *testing.T) {
	var h *harness
	h = start(t, func(context.Context, string) (commentary.Result, error) {
		return commentary.Result{Track: h.track}, &commentary.CommentaryGenerationError{Err: errors.New("llm unreachable")}
	}, nil)
	_, _ = h.engine.Vibe(context.Background(), "x")

	h.waitEvent(t, EventWarning)
	s := h.waitState(t, StatePlaying)
	if played := h.player.playedList(); len(played) != 1 || played[0] != h.track.Locator {
		t.Errorf("played = %v", played)
	}
	if s.LastError != "" {
		t.Errorf("degraded playback is not an error: %q", s.LastError)
	}
}

func TestTrackNotFoundGoesIdle(t *testing.T) {
	h := start(t, func(context.Context, string) (commentary.Result, error) {
		return commentary.Result{}, &music.TrackNotFoundError{Reason: "music directory is empty"}
	}, nil)
	_, _ = h.engine.Vibe(context.Background(), "x")

	ev := h.waitEvent(t, EventError)
	if !strings.Contains(ev.Text, "No playable tracks available") {
		t.Errorf("error text = %q", ev.Text)
	}
	s := h.waitState(t, StateIdle)
	if s.LastError != ev.Text {
		t.Errorf("last error = %q", s.LastError)
	}
}

func TestTTSFailurePlaysTrack(t *testing.T) {
	h := start(t, nil, voiceFunc(func(context.Context, string) (*tts.Audio, error) {
		return nil, &tts.TTSError{Engine: "elevenlabs→local", Err: errors.New("espeak-ng not found")}
	}))
	_, _ = h.engine.Vibe(context.Background(), "x")
	h.waitState(t, StatePlaying)
	if played := h.player.playedList(); len(played) != 1 || played[0] != h.track.Locator {
		t.Errorf("played = %v", played)
	}
}

func TestPlayFailureSurfaced(t *testing.T) {
	h := start(t, nil, nil)
	h.player.playErr[h.track.Locator] = errors.New("exec: mpv: not found")
	_, _ = h.engine.Vibe(context.Background(), "x")
	h.waitPlayed(t, 1)
	h.player.finish()

	ev := h.waitEvent(t, EventError)
	if !strings.Contains(ev.Text, "mpv: not found") {
		t.Errorf("error = %q", ev.Text)
	}
	h.waitState(t, StateIdle)
}

func TestPauseDuringSynthesisDefersSpeech(t *testing.T) {
	release := make(chan struct{})
	h := start(t, nil, voiceFunc(func(ctx context.Context, text string) (*tts.Audio, error) {
		<-release
		return saveVoice(ctx, text)
	}))
	ctx := context.Background()
	_, _ = h.engine.Vibe(ctx, "x")
	h.waitState(t, StateSpeaking)

	if err := h.engine.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)
	if n := len(h.player.playedList()); n != 0 {
		t.Fatalf("speech started while paused (%d plays)", n)
	}
	if s := h.engine.Snapshot(); s.State != StatePaused {
		t.Fatalf("state = %s", s.State)
	}

	if err := h.engine.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	h.waitPlayed(t, 1)
	h.waitState(t, StateSpeaking)
}

func TestGenerateTimeoutSurfaced(t *testing.T) {
	h := start(t, func(ctx context.Context, _ string) (commentary.Result, error) {
		<-ctx.Done()
		return commentary.Result{}, ctx.Err()
	}, nil, func(o *Options) { o.GenerateTimeout = 20 * time.Millisecond })
	_, _ = h.engine.Vibe(context.Background(), "x")
	ev := h.waitEvent(t, EventError)
	if !strings.Contains(ev.Text, "timed out") {
		t.Errorf("error = %q", ev.Text)
	}
}

func TestShutdown(t *testing.T) {
	h := start(t, nil, nil)
	ctx := context.Background()
	_, _ = h.engine.Vibe(ctx, "x")
	h.waitPlayed(t, 1)

	if err := h.engine.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	<-h.engine.Done()
	h.player.mu.Lock()
	closed := h.player.closed
	h.player.mu.Unlock()
	if !closed {
		t.Error("player must be released")
	}
	if _, err := h.engine.Vibe(ctx, "again"); !errors.Is(err, ErrClosed) {
		t.Errorf("Vibe after shutdown = %v", err)
	}
	if err := h.engine.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestVibeRejectsEmpty(t *testing.T) {
	h := start(t, nil, nil)
	if _, err := h.engine.Vibe(context.Background(), "   "); !errors.Is(err, ErrEmptyVibe) {
		t.Fatalf("err = %v", err)
	}
	if s := h.engine.Snapshot(); s.State != StateIdle {
		t.Errorf("state = %s", s.State)
	}
}

func TestStopWhileStreamStalls(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	logger := zaptest.NewLogger(t).Sugar()
	gen := genFunc(func(context.Context, string) (commentary.Result, error) {
		return commentary.Result{Track: music.Track{Title: "Stalled", Locator: srv.URL + "/rest/stream?id=1"}}, nil
	})
	e := New(gen, voiceFunc(saveVoice), player.NewBuiltin(logger), source.New("", "builtin"),
		Options{Volume: 70, PositionInterval: 10 * time.Millisecond}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-e.Done()
	})

	if _, err := e.Vibe(context.Background(), "chill"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "Playing", func() bool { return e.Snapshot().State == StatePlaying })

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if s := e.Snapshot(); s.State != StateIdle {
		t.Errorf("state after Stop = %s", s.State)
	}
}
