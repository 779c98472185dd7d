package doctor

import (
	"PersonalDJ/internal/config"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func newDoctor(t *testing.T, mod func(c *config.Config)) *Doctor {
	t.Helper()
	cfg := config.Defaults()
	cfg.MusicDir = t.TempDir()
	if mod != nil {
		mod(cfg)
	}
	return New(cfg, filepath.Join(t.TempDir(), ".env"), zaptest.NewLogger(t).Sugar())
}

func TestCheckCatalogLocal(t *testing.T) {
	ctx := context.Background()

	d := newDoctor(t, nil)
	if c := d.checkCatalog(ctx); c.Status != StatusWarn {
		t.Errorf("empty dir: %+v", c)
	}

	if err := os.WriteFile(filepath.Join(d.cfg.MusicDir, "Nujabes - Aruarian Dance.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if c := d.checkCatalog(ctx); c.Status != StatusOK || !strings.Contains(c.Detail, "1 tracks") {
		t.Errorf("one track: %+v", c)
	}

	missing := newDoctor(t, func(c *config.Config) { c.MusicDir = filepath.Join(c.MusicDir, "nope") })
	if c := missing.checkCatalog(ctx); c.Status != StatusFail {
		t.Errorf("missing dir: %+v", c)
	}
}

func TestCheckCatalogNavidromeWithoutCredentials(t *testing.T) {
	d := newDoctor(t, func(c *config.Config) {
		c.Catalog = "navidrome"
	})
	if c := d.checkCatalog(context.Background()); c.Status != StatusFail || c.Name != "Navidrome" {
		t.Errorf("check = %+v", c)
	}
}

func TestCheckEnvFileAndKeys(t *testing.T) {
	d := newDoctor(t, nil)
	if c := d.checkEnvFile(); c.Status != StatusWarn {
		t.Errorf("no .env: %+v", c)
	}
	if err := os.WriteFile(d.envPath, []byte("DEBUG_MODE=false\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if c := d.checkEnvFile(); c.Status != StatusOK {
		t.Errorf(".env present: %+v", c)
	}

	if c := d.checkElevenLabs(); c.Status != StatusWarn {
		t.Errorf("no key: %+v", c)
	}
	d.cfg.ElevenLabs.APIKey = "xi-test"
	if c := d.checkElevenLabs(); c.Status != StatusOK {
		t.Errorf("key set: %+v", c)
	}
}

func TestCheckLLM(t *testing.T) {
	ctx := context.Background()
	if c := newDoctor(t, nil).checkLLM(ctx); c.Status != StatusWarn {
		t.Errorf("not configured: %+v", c)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()
	d := newDoctor(t, func(c *config.Config) { c.LLM.BaseURL = srv.URL + "/v1" })
	if c := d.checkLLM(ctx); c.Status != StatusOK {
		t.Errorf("reachable: %+v", c)
	}
}

func TestCheckPlayerMissing(t *testing.T) {
	d := newDoctor(t, func(c *config.Config) { c.Players = []string{"winamp"} })
	if c := d.checkPlayer(); c.Status != StatusFail {
		t.Errorf("check = %+v", c)
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	err := Report(&buf, []Check{
		{Name: "Music Player", Status: StatusOK, Detail: "found mpv"},
		{Name: "ElevenLabs API Key", Status: StatusWarn, Detail: "not set"},
	})
	if err != nil || !strings.Contains(buf.String(), "[OK] Music Player: found mpv") || !strings.Contains(buf.String(), "[SUCCESS]") {
		t.Errorf("err = %v output:\n%s", err, buf.String())
	}

	buf.Reset()
	if err := Report(&buf, []Check{{Name: "LLM", Status: StatusFail, Detail: "down"}}); err == nil {
		t.Error("FAIL must produce an error")
	}
	if !strings.Contains(buf.String(), "[FAILURE]") {
		t.Errorf("output:\n%s", buf.String())
	}
}
