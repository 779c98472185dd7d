package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning: другой экземпляр уже держит блокировку.
var ErrAlreadyRunning = errors.New("another Personal DJ is already running")

// Lock: файловая блокировка единственного экземпляра (один плеер, одна сессия на машину).
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire берёт блокировку без ожидания.
func Acquire(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
	}
	l := &Lock{path: path, lock: flock.New(path)}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
	}
	return l, nil
}

func (l *Lock) Path() string { return l.path }

// Release снимает блокировку. Повторный вызов безопасен.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.lock.Unlock()
}
