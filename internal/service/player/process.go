package player

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// controller: специфика конкретного внешнего плеера поверх общего жизненного цикла процесса.
type controller interface {
	args(r *run, locator string, volume int) []string
	usesStdin() bool
	afterStart(r *run, volume int) error
	pause(r *run) error
	resume(r *run) error
	setVolume(r *run, level int) error
	// position возвращает false, если плеер не умеет отдавать позицию: тогда считаем по часам.
	position(r *run) (float64, bool)
	cleanup(r *run)
}

// run: один запущенный процесс плеера.
type run struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	ipcPath string
	ipc     *mpvIPC

	started   time.Time
	pausedAt  time.Time
	pausedFor time.Duration
	paused    bool

	exited atomic.Bool
	done   chan error
}

func (r *run) elapsed() float64 {
	end := time.Now()
	if r.paused {
		end = r.pausedAt
	}
	return max(0, end.Sub(r.started)-r.pausedFor).Seconds()
}

func (r *run) send(cmd string) error {
	if r.stdin == nil {
		return errors.New("player stdin is not attached")
	}
	_, err := io.WriteString(r.stdin, cmd+"\n")
	return err
}

// procPlayer управляет внешним плеером как дочерним процессом.
type procPlayer struct {
	name   string
	bin    string
	ctl    controller
	env    []string
	logger *zap.SugaredLogger

	mu     sync.Mutex
	cur    *run
	volume int
}

func newProcPlayer(name, bin string, ctl controller, logger *zap.SugaredLogger) *procPlayer {
	return &procPlayer{name: name, bin: bin, ctl: ctl, logger: logger, volume: 100}
}

func (p *procPlayer) Name() string { return p.name }

func (p *procPlayer) Play(locator string) (<-chan error, error) {
	if strings.TrimSpace(locator) == "" {
		return nil, errors.New("empty locator")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// Один процесс за раз: новый трек вытесняет предыдущий
	p.stopLocked()

	r := &run{done: make(chan error, 1)}
	cmd := exec.Command(p.bin, p.ctl.args(r, locator, p.volume)...)
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	if p.ctl.usesStdin() {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("%s: stdin: %w", p.name, err)
		}
		r.stdin = stdin
	}
	if err := cmd.Start(); err != nil {
		p.ctl.cleanup(r)
		return nil, fmt.Errorf("%s: start: %w", p.name, err)
	}
	r.cmd = cmd
	r.started = time.Now()

	go func() {
		err := cmd.Wait()
		r.exited.Store(true)
		p.ctl.cleanup(r)
		r.done <- err
		close(r.done)
	}()

	if err := p.ctl.afterStart(r, p.volume); err != nil {
		p.logger.Warnw("Player post-start setup failed", "player", p.name, "error", err)
	}
	p.cur = r
	p.logger.Infow("Playback started", "player", p.name, "locator", redact(locator))
	return r.done, nil
}

func (p *procPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.active()
	if r == nil || r.paused {
		return nil
	}
	if err := p.ctl.pause(r); err != nil {
		return fmt.Errorf("%s: pause: %w", p.name, err)
	}
	r.paused = true
	r.pausedAt = time.Now()
	return nil
}

func (p *procPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.active()
	if r == nil || !r.paused {
		return nil
	}
	if err := p.ctl.resume(r); err != nil {
		return fmt.Errorf("%s: resume: %w", p.name, err)
	}
	r.paused = false
	r.pausedFor += time.Since(r.pausedAt)
	return nil
}

func (p *procPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *procPlayer) SetVolume(level int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clampVolume(level)
	if r := p.active(); r != nil {
		if err := p.ctl.setVolume(r, p.volume); err != nil {
			return fmt.Errorf("%s: volume: %w", p.name, err)
		}
	}
	return nil
}

func (p *procPlayer) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.active()
	if r == nil {
		return 0, nil
	}
	if pos, ok := p.ctl.position(r); ok {
		return pos, nil
	}
	return r.elapsed(), nil
}

func (p *procPlayer) Close() error { return p.Stop() }

func (p *procPlayer) active() *run {
	if p.cur == nil || p.cur.exited.Load() {
		return nil
	}
	return p.cur
}

func (p *procPlayer) stopLocked() {
	r := p.cur
	p.cur = nil
	if r == nil || r.exited.Load() {
		return
	}
	if r.stdin != nil {
		_ = r.stdin.Close()
	}
	// SIGKILL срабатывает и для приостановленного (SIGSTOP) процесса
	if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warnw("Failed to kill player process", "player", p.name, "error", err)
		return
	}
	p.logger.Infow("Playback stopped", "player", p.name)
}
