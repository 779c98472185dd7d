package playback

import (
	"PersonalDJ/internal/service/commentary"
	"PersonalDJ/internal/service/music"
	"PersonalDJ/internal/service/player"
	"PersonalDJ/internal/service/source"
	"PersonalDJ/internal/service/tts"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidVolume: громкость вне 0-100; состояние не меняется.
	ErrInvalidVolume = errors.New("volume must be between 0 and 100")
	// ErrClosed: движок остановлен.
	ErrClosed        = errors.New("playback engine is closed")
	// ErrEmptyVibe: пустой вайб.
	ErrEmptyVibe     = errors.New("vibe must not be empty")
)

// Generator: источник реплики и трека под вайб.
type Generator interface {
	Generate(ctx context.Context, vibe string) (commentary.Result, error)
}

// Options: уже проверенные параметры движка.
type Options struct {
	Voice             string // голос TTS; пусто: из конфигурации вендора
	Volume            int
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
	PositionInterval  time.Duration
}

type requestKind int

const (
	reqVibe requestKind = iota
	reqPause
	reqResume
	reqStop
	reqSkip
	reqVolume
	reqShutdown
)

type request struct {
	kind  requestKind
	vibe  string
	level int
	reply chan reply
}

type reply struct {
	jobID uint64
	err   error
}

type stageKind int

const (
	stageGenerated stageKind = iota
	stageSynthesized
)

type stageResult struct {
	jobID  uint64
	kind   stageKind
	result commentary.Result
	audio  *tts.Audio
	err    error
}

// media: что сейчас (или следующим) звучит в плеере.
type media int

const (
	mediaNone media = iota
	mediaSpeech
	mediaTrack
)

// job: одна единица «сказать, затем сыграть». Принадлежит воркеру.
type job struct {
	id       uint64
	vibe     string
	ctx      context.Context
	cancel   context.CancelCauseFunc
	track    music.Track
	audio    *tts.Audio
	playing  media        // что запущено в плеере
	playDone <-chan error // завершение текущего media
	pending  media        // что запустить на Resume
}

// Engine владеет автоматом воспроизведения. Все обращения к плееру идут из одного воркера (Run).
type Engine struct {
	gen      Generator
	voice    tts.Synthesizer
	player   player.Player
	resolver *source.Resolver
	opts     Options
	logger   *zap.SugaredLogger

	requests chan request
	stages   chan stageResult
	done     chan struct{}
	runOnce  sync.Once

	mu      sync.RWMutex
	session Session

	events *broker

	// Поля ниже трогает только воркер
	job      *job
	nextID   uint64
	resumeTo State
}

func New(gen Generator, voice tts.Synthesizer, p player.Player, resolver *source.Resolver, opts Options, logger *zap.SugaredLogger) *Engine {
	if opts.PositionInterval <= 0 {
		opts.PositionInterval = time.Second
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 45 * time.Second
	}
	if opts.SynthesizeTimeout <= 0 {
		opts.SynthesizeTimeout = 30 * time.Second
	}
	opts.Volume = max(0, min(100, opts.Volume))
	if err := p.SetVolume(opts.Volume); err != nil {
		logger.Warnw("Failed to apply initial volume", "volume", opts.Volume, "error", err)
	}
	return &Engine{
		gen:      gen,
		voice:    voice,
		player:   p,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		requests: make(chan request, 16),
		stages:   make(chan stageResult),
		done:     make(chan struct{}),
		session:  Session{State: StateIdle, Volume: opts.Volume},
		events:   newBroker(),
	}
}

// Snapshot возвращает согласованную копию сессии, не проходя через очередь команд.
func (e *Engine) Snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// Subscribe подписывает на события. cancel освобождает подписку.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe(64)
}

// PlayerName: имя используемого плеера.
func (e *Engine) PlayerName() string { return e.player.Name() }

// Done закрывается, когда воркер завершился.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Vibe ставит новую задачу, вытесняя текущую. Возвращает id задачи, не дожидаясь генерации.
func (e *Engine) Vibe(ctx context.Context, text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyVibe
	}
	r := e.submit(ctx, request{kind: reqVibe, vibe: text})
	return r.jobID, r.err
}

func (e *Engine) Pause(ctx context.Context) error  { return e.submit(ctx, request{kind: reqPause}).err }
func (e *Engine) Resume(ctx context.Context) error { return e.submit(ctx, request{kind: reqResume}).err }
func (e *Engine) Stop(ctx context.Context) error   { return e.submit(ctx, request{kind: reqStop}).err }
func (e *Engine) Skip(ctx context.Context) error   { return e.submit(ctx, request{kind: reqSkip}).err }

// SetVolume меняет громкость; уровень сохраняется для следующих треков.
func (e *Engine) SetVolume(ctx context.Context, level int) error {
	if level < 0 || level > 100 {
		return ErrInvalidVolume
	}
	return e.submit(ctx, request{kind: reqVolume, level: level}).err
}

// Shutdown отменяет задачу, освобождает плеер и останавливает воркер.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.submit(ctx, request{kind: reqShutdown}).err
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (e *Engine) submit(ctx context.Context, req request) reply {
	req.reply = make(chan reply, 1)
	select {
	case e.requests <- req:
	case <-e.done:
		return reply{err: ErrClosed}
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
	select {
	case r := <-req.reply:
		return r
	case <-e.done:
		// Воркер мог ответить прямо перед выходом
		select {
		case r := <-req.reply:
			return r
		default:
			return reply{err: ErrClosed}
		}
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

// Run: воркер воспроизведения. Возвращается после Shutdown или отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	first := false
	e.runOnce.Do(func() { first = true })
	if !first {
		return errors.New("playback engine is already running")
	}
	defer func() {
		close(e.done)
		e.events.closeAll()
	}()

	ticker := time.NewTicker(e.opts.PositionInterval)
	defer ticker.Stop()
	e.logger.Infow("Playback engine started", "player", e.player.Name(), "volume", e.opts.Volume)

	for {
		var playDone <-chan error
		if e.job != nil {
			playDone = e.job.playDone
		}
		select {
		case <-ctx.Done():
			e.shutdown()
			return context.Cause(ctx)
		case req := <-e.requests:
			r, exit := e.handle(ctx, req)
			req.reply <- r
			if exit {
				return nil
			}
		case res := <-e.stages:
			e.onStage(res)
		case err := <-playDone:
			e.onMediaDone(err)
		case <-ticker.C:
			e.samplePosition()
		}
	}
}

func (e *Engine) handle(ctx context.Context, req request) (reply, bool) {
	switch req.kind {
	case reqVibe:
		return reply{jobID: e.startJob(ctx, req.vibe)}, false
	case reqPause:
		return reply{err: e.pause()}, false
	case reqResume:
		return reply{err: e.resume()}, false
	case reqStop:
		e.stop("Playback stopped.")
		return reply{}, false
	case reqSkip:
		e.stop("Track skipped. Ready for a new vibe.")
		return reply{}, false
	case reqVolume:
		if err := e.player.SetVolume(req.level); err != nil {
			return reply{err: fmt.Errorf("set volume: %w", err)}, false
		}
		e.update(func(s *Session) { s.Volume = req.level })
		e.logger.Infow("Volume changed", "volume", req.level)
		return reply{}, false
	case reqShutdown:
		e.shutdown()
		return reply{}, true
	default:
		return reply{err: fmt.Errorf("unknown request %d", req.kind)}, false
	}
}

func (e *Engine) startJob(ctx context.Context, vibe string) uint64 {
	if e.job != nil {
		e.logger.Infow("Preempting previous job", "job", e.job.id)
		e.abortJob(errors.New("preempted by a new vibe"))
	}
	e.nextID++
	jctx, cancel := context.WithCancelCause(ctx)
	j := &job{id: e.nextID, vibe: vibe, ctx: jctx, cancel: cancel}
	e.job = j
	e.update(func(s *Session) {
		s.State = StateGenerating
		s.Track = nil
		s.Source = nil
		s.Position = 0
		s.JobID = j.id
		s.LastError = ""
	})
	e.logger.Infow("Job started", "job", j.id, "vibe", vibe)

	go func() {
		gctx, gcancel := context.WithTimeoutCause(jctx, e.opts.GenerateTimeout, errors.New("commentary generation timed out"))
		defer gcancel()
		res, err := e.gen.Generate(gctx, vibe)
		if err != nil && gctx.Err() != nil {
			err = context.Cause(gctx)
		}
		e.deliver(stageResult{jobID: j.id, kind: stageGenerated, result: res, err: err})
	}()
	return j.id
}

// deliver передаёт результат этапа воркеру; если воркер уже остановлен: освобождает аудио.
func (e *Engine) deliver(r stageResult) {
	select {
	case e.stages <- r:
	case <-e.done:
		_ = r.audio.Cleanup()
	}
}

func (e *Engine) onStage(r stageResult) {
	j := e.job
	// Токен задачи сверяется перед каждой фиксацией результата
	if j == nil || j.id != r.jobID {
		_ = r.audio.Cleanup()
		e.logger.Infow("Discarded late result", "job", r.jobID)
		e.emit(Event{Type: EventDiscarded, JobID: r.jobID})
		return
	}
	switch r.kind {
	case stageGenerated:
		e.onGenerated(j, r)
	case stageSynthesized:
		e.onSynthesized(j, r)
	}
}

func (e *Engine) onGenerated(j *job, r stageResult) {
	if r.err != nil {
		if !r.result.HasTrack() {
			e.fail(j, r.err)
			return
		}
		e.logger.Warnw("Commentary failed, playing track only", "job", j.id, "error", r.err)
		e.emit(Event{Type: EventWarning, JobID: j.id, Text: "Commentary unavailable, playing the track."})
		e.setTrack(j, r.result.Track)
		e.startTrack(j)
		return
	}

	e.setTrack(j, r.result.Track)
	if r.result.Text == "" {
		e.startTrack(j)
		return
	}
	e.update(func(s *Session) { s.State = StateSpeaking })
	e.emit(Event{Type: EventCommentary, JobID: j.id, Text: r.result.Text})

	go func() {
		sctx, scancel := context.WithTimeoutCause(j.ctx, e.opts.SynthesizeTimeout, errors.New("speech synthesis timed out"))
		defer scancel()
		audio, err := e.voice.Synthesize(sctx, r.result.Text, e.opts.Voice)
		if err != nil && sctx.Err() != nil {
			err = context.Cause(sctx)
		}
		e.deliver(stageResult{jobID: j.id, kind: stageSynthesized, audio: audio, err: err})
	}()
}

func (e *Engine) onSynthesized(j *job, r stageResult) {
	if r.err != nil {
		e.logger.Warnw("Speech synthesis failed, skipping intro", "job", j.id, "error", r.err)
		e.emit(Event{Type: EventWarning, JobID: j.id, Text: "Voice unavailable, playing the track."})
		e.startTrack(j)
		return
	}
	j.audio = r.audio
	if e.Snapshot().State == StatePaused {
		j.pending = mediaSpeech
		return
	}
	e.startSpeech(j)
}

func (e *Engine) startSpeech(j *job) {
	done, err := e.player.Play(j.audio.Path)
	if err != nil {
		e.logger.Warnw("Failed to play commentary, skipping intro", "job", j.id, "error", err)
		e.releaseAudio(j)
		e.startTrack(j)
		return
	}
	j.playing, j.playDone = mediaSpeech, done
	e.update(func(s *Session) { s.State = StateSpeaking })
}

// startTrack запускает трек; на паузе откладывает запуск до Resume.
func (e *Engine) startTrack(j *job) {
	if e.Snapshot().State == StatePaused {
		j.pending = mediaTrack
		e.resumeTo = StatePlaying
		return
	}
	done, err := e.player.Play(j.track.Locator)
	if err != nil {
		e.fail(j, fmt.Errorf("could not play %s: %w", j.track.Display(), err))
		return
	}
	j.playing, j.playDone = mediaTrack, done
	e.update(func(s *Session) {
		s.State = StatePlaying
		s.Position = 0
	})
	snap := e.Snapshot()
	e.emit(Event{Type: EventTrack, JobID: j.id, Track: snap.Track, Source: snap.Source})
	e.logger.Infow("Now playing", "job", j.id, "track", j.track.Display())
}

func (e *Engine) onMediaDone(err error) {
	j := e.job
	finished := j.playing
	j.playing, j.playDone = mediaNone, nil
	switch finished {
	case mediaSpeech:
		e.releaseAudio(j)
		e.startTrack(j)
	case mediaTrack:
		if err != nil {
			e.logger.Warnw("Player exited with error", "job", j.id, "error", err)
		}
		e.logger.Infow("Track finished", "job", j.id, "track", j.track.Display())
		e.finishJob()
		e.update(func(s *Session) {
			s.State = StateIdle
			s.Track = nil
			s.Source = nil
			s.Position = 0
		})
	}
}

func (e *Engine) pause() error {
	snap := e.Snapshot()
	if snap.State != StateSpeaking && snap.State != StatePlaying {
		return nil
	}
	if e.job != nil && e.job.playing != mediaNone {
		if err := e.player.Pause(); err != nil {
			return fmt.Errorf("pause: %w", err)
		}
	}
	e.resumeTo = snap.State
	e.update(func(s *Session) { s.State = StatePaused })
	return nil
}

func (e *Engine) resume() error {
	snap := e.Snapshot()
	if snap.State != StatePaused {
		return nil
	}
	j := e.job
	to := e.resumeTo

	if j == nil {
		e.update(func(s *Session) { s.State = StateIdle })
		return nil
	}
	if j.playing != mediaNone {
		if err := e.player.Resume(); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		e.update(func(s *Session) { s.State = to })
		return nil
	}
	pending := j.pending
	j.pending = mediaNone
	e.update(func(s *Session) { s.State = to })
	switch pending {
	case mediaSpeech:
		e.startSpeech(j)
	case mediaTrack:
		e.startTrack(j)
	}
	return nil
}

// stop: переход Stopped → Idle из любого не-Idle состояния.
func (e *Engine) stop(message string) {
	if e.Snapshot().State == StateIdle && e.job == nil {
		return
	}
	e.abortJob(errors.New("stopped by user"))
	e.update(func(s *Session) { s.State = StateStopped })
	e.update(func(s *Session) {
		s.State = StateIdle
		s.Track = nil
		s.Source = nil
		s.Position = 0
	})
	e.logger.Infow(message)
}

// abortJob отменяет сетевые вызовы задачи, глушит плеер и освобождает аудио.
func (e *Engine) abortJob(cause error) {
	j := e.job
	if j == nil {
		return
	}
	j.cancel(cause)
	if j.playing != mediaNone {
		if err := e.player.Stop(); err != nil {
			e.logger.Warnw("Failed to stop player", "error", err)
		}
	}
	e.releaseAudio(j)
	e.job = nil
}

func (e *Engine) finishJob() {
	if j := e.job; j != nil {
		j.cancel(nil)
		e.releaseAudio(j)
		e.job = nil
	}
}

func (e *Engine) releaseAudio(j *job) {
	if j.audio == nil {
		return
	}
	if err := j.audio.Cleanup(); err != nil {
		e.logger.Warnw("Failed to remove commentary audio", "path", j.audio.Path, "error", err)
	}
	j.audio = nil
}

// fail завершает задачу и переводит сессию в Idle с сообщением для пользователя.
func (e *Engine) fail(j *job, err error) {
	e.logger.Errorw("Job failed", "job", j.id, "error", err)
	msg := err.Error()
	if errors.Is(err, music.ErrTrackNotFound) {
		msg = "No playable tracks available. " + msg
	}
	e.abortJob(err)
	e.update(func(s *Session) {
		s.State = StateIdle
		s.Track = nil
		s.Source = nil
		s.Position = 0
		s.LastError = msg
	})
	e.emit(Event{Type: EventError, JobID: j.id, Text: msg})
}

func (e *Engine) setTrack(j *job, t music.Track) {
	j.track = t
	desc := e.resolver.Classify(t.Locator)
	e.update(func(s *Session) {
		s.Track = &t
		s.Source = &desc
	})
}

func (e *Engine) samplePosition() {
	j := e.job
	if j == nil || j.playing != mediaTrack {
		return
	}
	pos, err := e.player.Position()
	if err != nil {
		e.logger.Debugw("Position unavailable", "error", err)
		return
	}
	e.update(func(s *Session) { s.Position = pos })
}

func (e *Engine) shutdown() {
	e.abortJob(errors.New("shutdown"))
	if err := e.player.Close(); err != nil {
		e.logger.Warnw("Failed to close player", "error", err)
	}
	e.update(func(s *Session) {
		s.State = StateIdle
		s.Track = nil
		s.Source = nil
		s.Position = 0
	})
	e.logger.Infow("Playback engine stopped")
}

// update меняет сессию под блокировкой записи и сообщает о смене состояния.
func (e *Engine) update(fn func(s *Session)) {
	e.mu.Lock()
	prev := e.session.State
	fn(&e.session)
	snap := e.session
	e.mu.Unlock()
	if snap.State != prev {
		e.logger.Debugw("State changed", "from", prev.String(), "to", snap.State.String(), "job", snap.JobID)
		e.emit(Event{Type: EventState, JobID: snap.JobID, State: snap.State, Track: snap.Track, Source: snap.Source})
	}
}

func (e *Engine) emit(ev Event) {
	if ev.Type != EventState {
		ev.State = e.Snapshot().State
	}
	ev.Time = time.Now()
	e.events.publish(ev)
}
