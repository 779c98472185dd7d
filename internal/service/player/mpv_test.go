package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// fakeMPV отвечает на get_property time-pos, предваряя ответ событием, как настоящий mpv.
type fakeMPV struct {
	ln      net.Listener
	accepts atomic.Int32
}

func listenMPV(t *testing.T, path string) *fakeMPV {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeMPV{ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.accepts.Add(1)
			go f.serve(conn)
		}
	}()
	return f
}

func (f *fakeMPV) serve(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var req mpvRequest
		if json.Unmarshal(sc.Bytes(), &req) != nil {
			return
		}
		fmt.Fprintf(conn, "{\"event\":\"audio-reconfig\"}\n")
		if len(req.Command) > 1 && req.Command[1] == "time-pos" {
			fmt.Fprintf(conn, "{\"data\":12.5,\"error\":\"success\",\"request_id\":%d}\n", req.RequestID)
			continue
		}
		fmt.Fprintf(conn, "{\"error\":\"property unavailable\",\"request_id\":%d}\n", req.RequestID)
	}
}

func ipcDir(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mpv ipc uses named pipes on windows")
	}
	// Короткий путь: у unix-сокета ограничена длина имени
	dir, err := os.MkdirTemp("", "djmpv")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestMPVReusesConnection(t *testing.T) {
	dir := ipcDir(t)
	r := &run{ipcPath: filepath.Join(dir, "mpv.sock"), ipc: &mpvIPC{}, started: time.Now()}
	srv := listenMPV(t, r.ipcPath)
	m := &mpvControl{}

	for range 3 {
		pos, ok := m.position(r)
		if !ok || pos != 12.5 {
			t.Fatalf("position = %v, %v", pos, ok)
		}
	}
	// Ошибка mpv не рвёт соединение
	if err := m.setVolume(r, 40); err == nil {
		t.Error("volume reply error not reported")
	}
	if _, ok := m.position(r); !ok {
		t.Error("position after reply error failed")
	}
	if n := srv.accepts.Load(); n != 1 {
		t.Errorf("dialled %d times, want 1", n)
	}

	m.cleanup(r)
	if _, ok := m.position(r); ok {
		t.Error("position after cleanup must fail")
	}
}

func TestMPVMissingSocketGivesUpOnce(t *testing.T) {
	dir := ipcDir(t)
	r := &run{ipcPath: filepath.Join(dir, "mpv.sock"), ipc: &mpvIPC{}, started: time.Now().Add(-time.Minute)}
	m := &mpvControl{}

	started := time.Now()
	if _, ok := m.position(r); ok {
		t.Fatal("position without socket must fail")
	}
	if err := m.pause(r); err == nil {
		t.Fatal("pause without socket must fail")
	}
	if d := time.Since(started); d > 500*time.Millisecond {
		t.Errorf("missing socket stalled the caller for %v", d)
	}

	srv := listenMPV(t, r.ipcPath)
	if _, ok := m.position(r); ok {
		t.Error("gave-up ipc must stay off for the run")
	}
	if n := srv.accepts.Load(); n != 0 {
		t.Errorf("dialled %d times after giving up", n)
	}
}

func TestMPVPositionDoesNotWaitForSocket(t *testing.T) {
	dir := ipcDir(t)
	r := &run{ipcPath: filepath.Join(dir, "mpv.sock"), ipc: &mpvIPC{}, started: time.Now()}
	m := &mpvControl{}

	started := time.Now()
	if _, ok := m.position(r); ok {
		t.Fatal("position before socket appears must fail")
	}
	if d := time.Since(started); d > 200*time.Millisecond {
		t.Errorf("position waited %v for the socket", d)
	}

	// Сокет появился в пределах старта: соединяемся
	listenMPV(t, r.ipcPath)
	if pos, ok := m.position(r); !ok || pos != 12.5 {
		t.Errorf("position = %v, %v", pos, ok)
	}
}
