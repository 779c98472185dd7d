package navidrome

import (
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/music"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const (
	xmlHead     = `<?xml version="1.0" encoding="UTF-8"?>`
	okReply     = xmlHead + `<subsonic-response xmlns="http://subsonic.org/restapi" status="ok" version="1.16.1"></subsonic-response>`
	failedReply = xmlHead + `<subsonic-response xmlns="http://subsonic.org/restapi" status="failed" version="1.16.1"><error code="40" message="Wrong username or password"></error></subsonic-response>`
	songsReply  = xmlHead + `<subsonic-response xmlns="http://subsonic.org/restapi" status="ok" version="1.16.1"><randomSongs>
	<song id="1" title="Thunderstruck" artist="AC/DC" album="The Razors Edge" genre="Rock"></song>
	<song id="2" title="Rainy Window" artist="Kupla" album="Lofi Nights" genre="Lo-Fi"></song>
</randomSongs></subsonic-response>`
	emptyReply = xmlHead + `<subsonic-response xmlns="http://subsonic.org/restapi" status="ok" version="1.16.1"><randomSongs></randomSongs></subsonic-response>`
)

// fakeServer проверяет токен-аутентификацию и отвечает заготовленным XML на каждый метод.
func fakeServer(t *testing.T, replies map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sum := md5.Sum([]byte("secret" + q.Get("s")))
		if q.Get("u") != "dj" || q.Get("t") != hex.EncodeToString(sum[:]) || q.Get("s") == "" {
			fmt.Fprint(w, failedReply)
			return
		}
		if q.Get("c") != "PersonalDJ" {
			t.Errorf("unexpected client name: %v", q)
		}
		method := strings.TrimPrefix(r.URL.Path, "/rest/")
		if method == "ping" {
			pings.Add(1)
			fmt.Fprint(w, okReply)
			return
		}
		body, ok := replies[method]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &pings
}

func newClient(t *testing.T, srvURL, pass string) *Client {
	t.Helper()
	c, err := New(config.NavidromeConfig{URL: srvURL, User: "dj", Password: pass}, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestPing(t *testing.T) {
	srv, _ := fakeServer(t, nil)
	if err := newClient(t, srv.URL, "secret").Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	err := newClient(t, srv.URL, "wrong").Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Wrong username or password") {
		t.Errorf("bad credentials err = %v", err)
	}
}

func TestPickTrackPrefersVibe(t *testing.T) {
	srv, pings := fakeServer(t, map[string]string{"getRandomSongs": songsReply})
	c := newClient(t, srv.URL, "secret")

	track, err := c.PickTrack(context.Background(), "rainy lofi evening")
	if err != nil {
		t.Fatalf("PickTrack: %v", err)
	}
	if track.ID != "2" || track.Display() != "Kupla - Rainy Window" {
		t.Errorf("track = %+v", track)
	}
	u, err := url.Parse(track.Locator)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	sum := md5.Sum([]byte("secret" + q.Get("s")))
	if u.Path != "/rest/stream" || q.Get("id") != "2" || q.Get("t") != hex.EncodeToString(sum[:]) || q.Get("v") != apiVersion {
		t.Errorf("stream locator = %s", track.Locator)
	}

	if _, err := c.PickTrack(context.Background(), "rock"); err != nil {
		t.Fatal(err)
	}
	if n := pings.Load(); n != 1 {
		t.Errorf("authenticated %d times, want once per session", n)
	}
}

func TestPickTrackFailures(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{"getRandomSongs": emptyReply})
	_, err := newClient(t, srv.URL, "secret").PickTrack(context.Background(), "x")
	if !errors.Is(err, music.ErrTrackNotFound) {
		t.Errorf("empty library err = %v", err)
	}

	_, err = newClient(t, srv.URL, "wrong").PickTrack(context.Background(), "x")
	var nf *music.TrackNotFoundError
	if !errors.As(err, &nf) || nf.Reason != "navidrome unavailable" {
		t.Errorf("auth failure err = %v", err)
	}
}

func TestPickTrackHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, err := newClient(t, srv.URL, "secret").PickTrack(ctx, "x")
	if err == nil {
		t.Fatal("stalled server must fail")
	}
	if d := time.Since(started); d > 5*time.Second {
		t.Errorf("PickTrack ignored cancellation for %v", d)
	}
}

func TestNewValidates(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	if _, err := New(config.NavidromeConfig{URL: "http://h:4533"}, logger); err == nil {
		t.Error("missing credentials must fail")
	}
	if _, err := New(config.NavidromeConfig{URL: "not a url", User: "u", Password: "p"}, logger); err == nil {
		t.Error("url without host must fail")
	}
}
