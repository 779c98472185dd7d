package player

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// mpvControl управляет mpv через JSON IPC (unix-сокет --input-ipc-server).
type mpvControl struct {
	seq atomic.Int64
}

type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type mpvResponse struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
}

// Сколько ждём появления сокета после старта mpv; дальше IPC считается недоступным
// (старый mpv, именованные каналы Windows) и позиция считается по часам.
const (
	ipcStartup     = 3 * time.Second
	ipcControlWait = time.Second
)

var errIPCUnavailable = errors.New("mpv ipc unavailable")

// mpvReplyError: mpv ответил ошибкой; соединение при этом исправно.
type mpvReplyError struct {
	msg string
}

func (e *mpvReplyError) Error() string { return "mpv ipc: " + e.msg }

// mpvIPC: одно соединение с mpv на весь запуск процесса.
type mpvIPC struct {
	mu     sync.Mutex
	conn   net.Conn
	rd     *bufio.Reader
	failed bool // сокет так и не появился: больше не пытаемся
	closed bool
}

func (m *mpvControl) args(r *run, locator string, volume int) []string {
	r.ipcPath = filepath.Join(os.TempDir(), "personal-dj-mpv-"+uuid.NewString()+".sock")
	r.ipc = &mpvIPC{}
	return []string{
		"--no-video",
		"--no-terminal",
		"--input-ipc-server=" + r.ipcPath,
		"--volume=" + strconv.Itoa(volume),
		"--",
		locator,
	}
}

func (m *mpvControl) usesStdin() bool { return false }

func (m *mpvControl) afterStart(*run, int) error { return nil }

func (m *mpvControl) pause(r *run) error {
	_, err := m.command(r, ipcControlWait, "set_property", "pause", true)
	return err
}

func (m *mpvControl) resume(r *run) error {
	_, err := m.command(r, ipcControlWait, "set_property", "pause", false)
	return err
}

func (m *mpvControl) setVolume(r *run, level int) error {
	_, err := m.command(r, ipcControlWait, "set_property", "volume", level)
	return err
}

// position опрашивается воркером на каждом тике, поэтому сокет не ждёт.
func (m *mpvControl) position(r *run) (float64, bool) {
	data, err := m.command(r, 0, "get_property", "time-pos")
	if err != nil {
		return 0, false
	}
	var pos float64
	if err := json.Unmarshal(data, &pos); err != nil {
		return 0, false
	}
	return pos, true
}

func (m *mpvControl) cleanup(r *run) {
	if r.ipc != nil {
		r.ipc.close()
	}
	if r.ipcPath != "" {
		_ = os.Remove(r.ipcPath)
	}
}

// command отправляет одну команду и ждёт ответ с тем же request_id; события mpv пропускаются.
// wait: сколько ждать появления сокета, если соединения ещё нет.
func (m *mpvControl) command(r *run, wait time.Duration, args ...any) (json.RawMessage, error) {
	c := r.ipc
	if c == nil {
		return nil, errIPCUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if err := c.dial(r, wait); err != nil {
			return nil, err
		}
	}
	data, err := c.roundTrip(m.seq.Add(1), args)
	var reply *mpvReplyError
	if err != nil && !errors.As(err, &reply) {
		c.reset()
	}
	return data, err
}

func (c *mpvIPC) dial(r *run, wait time.Duration) error {
	if c.failed || c.closed {
		return errIPCUnavailable
	}
	deadline := time.Now().Add(wait)
	for {
		conn, err := net.DialTimeout("unix", r.ipcPath, 200*time.Millisecond)
		if err == nil {
			c.conn, c.rd = conn, bufio.NewReader(conn)
			return nil
		}
		if time.Since(r.started) > ipcStartup {
			c.failed = true
			return fmt.Errorf("mpv ipc dial: %w", err)
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("mpv ipc dial: %w", err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func (c *mpvIPC) roundTrip(id int64, args []any) (json.RawMessage, error) {
	_ = c.conn.SetDeadline(time.Now().Add(2 * time.Second))
	req, err := json.Marshal(mpvRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("mpv ipc write: %w", err)
	}
	for {
		line, err := c.rd.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("mpv ipc read: %w", err)
		}
		var resp mpvResponse
		if json.Unmarshal(line, &resp) != nil || resp.Event != "" || resp.RequestID != id {
			continue
		}
		if resp.Error != "success" {
			return nil, &mpvReplyError{msg: resp.Error}
		}
		return resp.Data, nil
	}
}

func (c *mpvIPC) reset() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.rd = nil, nil
}

func (c *mpvIPC) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reset()
}
