package main

import (
	"PersonalDJ/internal/adapter/chat/twitch"
	"PersonalDJ/internal/app/console"
	"PersonalDJ/internal/app/dispatcher"
	"PersonalDJ/internal/app/instance"
	"PersonalDJ/internal/app/setup"
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/events/ws"
	"PersonalDJ/internal/service/playback"
	"PersonalDJ/internal/service/player"
	"PersonalDJ/internal/service/source"
	"PersonalDJ/internal/service/tts"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.NewConfig()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() { _ = logger.Sync() }()

	sugar.Infow("Starting Personal DJ", "DebugMode", cfg.DebugMode, "catalog", cfg.Catalog, "tts", cfg.TTSService)

	lock, err := instance.Acquire(cfg.LockPath)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	defer func() { _ = lock.Release() }()
	tts.Sweep(os.TempDir(), time.Hour, sugar)

	// Без плеера работать нечем: это единственная фатальная ошибка запуска
	p, err := player.Discover(cfg.Players, cfg.DefaultVolume, sugar)
	if err != nil {
		var notFound *player.PlayerNotFoundError
		if errors.As(err, &notFound) {
			fmt.Println("Error:", notFound.Error())
		} else {
			fmt.Println("Error:", err)
		}
		return 1
	}

	pipeline, err := setup.NewPipeline(cfg, sugar)
	if err != nil {
		fmt.Println("Error:", err)
		_ = p.Close()
		return 1
	}

	eng := playback.New(pipeline, setup.NewVoice(cfg, sugar), p, source.New(cfg.Navidrome.URL, p.Name()), playback.Options{
		Volume:            cfg.DefaultVolume,
		GenerateTimeout:   cfg.GenerateTimeout,
		SynthesizeTimeout: cfg.SynthesizeTimeout,
		PositionInterval:  cfg.PositionInterval,
	}, sugar)
	d := dispatcher.New(eng, sugar)

	// Ctrl+C = quit: консоль сама завершит движок
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()
	go func() {
		if err := eng.Run(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
			sugar.Errorw("Playback engine stopped", "error", err)
		}
	}()

	if cfg.EventServer.Enabled {
		srv := ws.NewServer(cfg.EventServer, d, eng, sugar)
		if err := srv.Start(ctx); err != nil {
			sugar.Errorw("Event server failed to start", "addr", cfg.EventServer.BindAddr, "error", err)
		} else {
			defer func() { _ = srv.Stop(context.Background()) }()
		}
	}

	go func() {
		err := twitch.Run(ctx, sugar, twitch.Config{
			Username:  cfg.Twitch.Username,
			OAuth:     cfg.Twitch.OAuth,
			Channel:   cfg.Twitch.Channel,
			AllowSkip: cfg.Twitch.AllowSkip,
		}, d)
		if err != nil && !errors.Is(err, context.Canceled) {
			sugar.Warnw("Twitch chat stopped", "error", err)
		}
	}()

	fd := os.Stdin.Fd()
	interactive := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	c := console.New(d, eng, cfg.LLM.DJName, os.Stdout, interactive, sugar)
	if err := c.Run(ctx, os.Stdin); err != nil {
		sugar.Errorw("Shutdown failed", "error", err)
		return 1
	}
	<-eng.Done()
	return 0
}

// newLogger: development-конфиг zap; DEBUG_MODE включает debug, LOG_PATH добавляет файл.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.DebugMode {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if cfg.LogPath != "" {
		zc.OutputPaths = append(zc.OutputPaths, cfg.LogPath)
	}
	return zc.Build()
}
