package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"go.uber.org/zap"
)

// errSuperseded: загрузка потока завершилась после Stop или нового Play.
var errSuperseded = errors.New("builtin: playback superseded")

// Builtin воспроизводит mp3/wav внутри процесса через beep: локальные файлы и http(s)-потоки.
type Builtin struct {
	logger *zap.SugaredLogger
	http   *http.Client

	mu      sync.Mutex
	rate    beep.SampleRate // частота, с которой инициализирован speaker; 0: ещё не инициализирован
	volume  int
	current *playback
}

type playback struct {
	cancel context.CancelFunc
	paused bool

	// Заполняются при старте звука; до этого поток ещё загружается
	stream beep.StreamSeekCloser
	format beep.Format
	ctrl   *beep.Ctrl
	vol    *effects.Volume

	once sync.Once
	done chan error
}

// finish отменяет загрузку, закрывает поток и сообщает о завершении ровно один раз.
func (pb *playback) finish(err error) {
	pb.once.Do(func() {
		pb.cancel()
		if pb.stream != nil {
			_ = pb.stream.Close()
		}
		pb.done <- err
		close(pb.done)
	})
}

func NewBuiltin(logger *zap.SugaredLogger) *Builtin {
	return &Builtin{logger: logger, http: newStreamClient(), volume: 100}
}

// newStreamClient ограничивает соединение и ожидание заголовков; тело потока читается сколько угодно долго.
func newStreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
		},
	}
}

func (b *Builtin) Name() string { return "builtin" }

// Play для сетевого локатора возвращается сразу: поток открывается в отдельной горутине,
// ошибка загрузки приходит в канал завершения. Stop отменяет незавершённую загрузку.
func (b *Builtin) Play(locator string) (<-chan error, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{cancel: cancel, done: make(chan error, 1)}

	b.mu.Lock()
	b.stopLocked()
	b.current = pb
	b.mu.Unlock()

	if !isRemote(locator) {
		if err := b.start(ctx, pb, locator); err != nil {
			b.drop(pb)
			cancel()
			return nil, err
		}
		return pb.done, nil
	}

	go func() {
		err := b.start(ctx, pb, locator)
		if err == nil {
			return
		}
		b.drop(pb)
		if ctx.Err() == nil && !errors.Is(err, errSuperseded) {
			b.logger.Warnw("Stream failed to open", "player", b.Name(), "locator", redact(locator), "error", err)
		}
		pb.finish(err)
	}()
	return pb.done, nil
}

// start открывает и декодирует поток, затем запускает звук, если pb всё ещё текущий.
func (b *Builtin) start(ctx context.Context, pb *playback, locator string) error {
	rc, format, err := b.open(ctx, locator)
	if err != nil {
		return err
	}
	stream, sf, err := decode(format, rc)
	if err != nil {
		_ = rc.Close()
		return fmt.Errorf("builtin: decode: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != pb {
		_ = stream.Close()
		return errSuperseded
	}

	if b.rate == 0 {
		if err := speaker.Init(sf.SampleRate, sf.SampleRate.N(time.Second/10)); err != nil {
			_ = stream.Close()
			return fmt.Errorf("builtin: speaker init: %w", err)
		}
		b.rate = sf.SampleRate
	}

	var src beep.Streamer = stream
	if sf.SampleRate != b.rate {
		src = beep.Resample(4, sf.SampleRate, b.rate, stream)
	}
	pb.stream, pb.format = stream, sf
	pb.ctrl = &beep.Ctrl{Streamer: src, Paused: pb.paused}
	pb.vol = &effects.Volume{Streamer: pb.ctrl, Base: 2}
	applyVolume(pb.vol, b.volume)

	// Колбэк вызывается из горутины speaker под его блокировкой: закрываем поток вне её
	speaker.Play(beep.Seq(pb.vol, beep.Callback(func() { go pb.finish(nil) })))
	b.logger.Infow("Playback started", "player", b.Name(), "locator", redact(locator))
	return nil
}

// drop снимает pb, если он всё ещё текущий.
func (b *Builtin) drop(pb *playback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == pb {
		b.current = nil
	}
}

func (b *Builtin) Pause() error  { return b.setPaused(true) }
func (b *Builtin) Resume() error { return b.setPaused(false) }

func (b *Builtin) setPaused(paused bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	b.current.paused = paused
	if b.current.ctrl != nil {
		speaker.Lock()
		b.current.ctrl.Paused = paused
		speaker.Unlock()
	}
	return nil
}

func (b *Builtin) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	return nil
}

func (b *Builtin) stopLocked() {
	pb := b.current
	b.current = nil
	if pb == nil {
		return
	}
	if pb.ctrl != nil {
		speaker.Clear()
	}
	pb.finish(nil)
}

func (b *Builtin) SetVolume(level int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = clampVolume(level)
	if b.current != nil && b.current.vol != nil {
		speaker.Lock()
		applyVolume(b.current.vol, b.volume)
		speaker.Unlock()
	}
	return nil
}

func (b *Builtin) Position() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.current.stream == nil {
		return 0, nil
	}
	speaker.Lock()
	pos := b.current.stream.Position()
	speaker.Unlock()
	return b.current.format.SampleRate.D(pos).Seconds(), nil
}

func (b *Builtin) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	if b.rate != 0 {
		speaker.Close()
		b.rate = 0
	}
	return nil
}

// open возвращает поток и формат ("mp3"|"wav") по расширению или Content-Type.
func (b *Builtin) open(ctx context.Context, locator string) (io.ReadCloser, string, error) {
	if isRemote(locator) {
		u, _ := url.Parse(locator)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, "", fmt.Errorf("builtin: %w", err)
		}
		resp, err := b.http.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("builtin: fetch stream: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, "", fmt.Errorf("builtin: fetch stream: status=%d", resp.StatusCode)
		}
		format := formatOf(u.Path)
		if strings.Contains(resp.Header.Get("Content-Type"), "wav") {
			format = "wav"
		}
		return resp.Body, format, nil
	}
	f, err := os.Open(locator)
	if err != nil {
		return nil, "", fmt.Errorf("builtin: %w", err)
	}
	return f, formatOf(locator), nil
}

func isRemote(locator string) bool {
	u, err := url.Parse(locator)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return "wav"
	}
	return "mp3"
}

func decode(format string, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch format {
	case "wav":
		return wav.Decode(r)
	case "mp3":
		return mp3.Decode(r)
	default:
		return nil, beep.Format{}, errors.New("unsupported format for direct playback; use mp3 or wav")
	}
}

// applyVolume: 100 оставляет звук как есть, каждые 10 пунктов вниз делают его вдвое тише, 0 означает тишину.
func applyVolume(v *effects.Volume, level int) {
	v.Silent = level == 0
	v.Volume = float64(level-100) / 10.0
}
