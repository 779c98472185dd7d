package local

import (
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/tts"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client: офлайн-синтез через espeak-ng (или совместимый бинарь с ключами -v -s -w).
type Client struct {
	cfg    config.LocalTTSConfig
	logger *zap.SugaredLogger
}

func New(cfg config.LocalTTSConfig, logger *zap.SugaredLogger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Available сообщает, установлен ли движок.
func (c *Client) Available() error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("local tts requires %q; install it (e.g. 'sudo apt install espeak-ng'): %w", c.binary(), err)
	}
	return nil
}

func (c *Client) binary() string {
	if b := strings.TrimSpace(c.cfg.Binary); b != "" {
		return b
	}
	return "espeak-ng"
}

func (c *Client) args(text, voice, out string) []string {
	if voice == "" {
		voice = c.cfg.Voice
	}
	args := []string{"-w", out}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	if c.cfg.Speed > 0 {
		args = append(args, "-s", strconv.Itoa(c.cfg.Speed))
	}
	// "--": текст может начинаться с дефиса
	return append(args, "--", text)
}

// Synthesize пишет речь в wav во временной папке.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("local tts: empty input text")
	}
	out := tts.TempPath("wav")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary(), c.args(text, strings.TrimSpace(voice), out)...)
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("local tts: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		_ = os.Remove(out)
		return nil, errors.New("local tts: engine produced no audio")
	}
	c.logger.Infow("Local TTS completed", "engine", c.binary(), "took", time.Since(started).String())
	return &tts.Audio{Path: out, Format: "wav"}, nil
}
