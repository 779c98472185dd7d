package main

import (
	"PersonalDJ/internal/app/doctor"
	"PersonalDJ/internal/config"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Проверка окружения перед запуском диджея: плеер, .env, LLM, TTS, музыка.
func main() {
	cfg := config.NewConfig()

	zl, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	logger := zl.Sugar()
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithTimeoutCause(context.Background(), 30*time.Second, errors.New("environment check timeout"))
	defer cancel()

	fmt.Println("--- Running Personal DJ Environment Check ---")
	checks := doctor.New(cfg, ".env", logger).Run(ctx)
	if err := doctor.Report(os.Stdout, checks); err != nil {
		os.Exit(1)
	}
}
