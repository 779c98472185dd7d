package main

import (
	"PersonalDJ/internal/config"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"golang.org/x/oauth2/google"
)

type voice struct {
	Name                   string   `json:"name"`
	LanguageCodes          []string `json:"languageCodes"`
	SsmlGender             string   `json:"ssmlGender"`
	NaturalSampleRateHertz int      `json:"naturalSampleRateHertz"`
}

// Печатает голоса Google TTS для языка из конфигурации: имя пригодится для GOOGLE_TTS_VOICE.
func main() {
	asJSON := flag.Bool("json", false, "печатать ответ как JSON")
	cfg := config.NewConfig()

	// Установим GOOGLE_APPLICATION_CREDENTIALS из конфига, если не задано в окружении.
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" && cfg.GoogleTTS.CredentialsPath != "" {
		_ = os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.GoogleTTS.CredentialsPath)
	}

	ctx, cancel := context.WithTimeoutCause(context.Background(), 15*time.Second, errors.New("google tts voices request timeout"))
	defer cancel()

	// HTTP-клиент с токеном из ADC
	hc, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		fmt.Println("Google credentials not found (ADC):", err)
		os.Exit(1)
	}
	hc.Timeout = 20 * time.Second

	lang := cfg.GoogleTTS.Language
	if lang == "" {
		lang = "en-US"
	}
	endpoint := "https://texttospeech.googleapis.com/v1/voices?languageCode=" + url.QueryEscape(lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		fmt.Println("failed to build request:", err)
		os.Exit(1)
	}
	resp, err := hc.Do(req)
	if err != nil {
		fmt.Println("voices request failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var raw any
		_ = json.NewDecoder(resp.Body).Decode(&raw)
		b, _ := json.MarshalIndent(raw, "", "  ")
		fmt.Printf("Google TTS Voices: status=%d %s\n", resp.StatusCode, b)
		os.Exit(1)
	}

	var payload struct {
		Voices []voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Println("failed to parse Google TTS Voices response:", err)
		os.Exit(1)
	}
	sort.Slice(payload.Voices, func(i, j int) bool { return payload.Voices[i].Name < payload.Voices[j].Name })

	if *asJSON {
		out, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Printf("%d voices for %s (current: %s)\n", len(payload.Voices), lang, cfg.GoogleTTS.Voice)
	for _, v := range payload.Voices {
		fmt.Printf("  %-32s %-8s %d Hz\n", v.Name, v.SsmlGender, v.NaturalSampleRateHertz)
	}
}
