package source

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Kind: классификация происхождения трека.
type Kind int

const (
	KindUnknown Kind = iota
	KindNavidromeServer
	KindLocalLibrary
	KindStream
	KindYouTube
	KindSpotify
	KindRadioStream
)

func (k Kind) String() string {
	switch k {
	case KindNavidromeServer:
		return "Navidrome Server"
	case KindLocalLibrary:
		return "Local Library"
	case KindStream:
		return "Stream"
	case KindYouTube:
		return "YouTube"
	case KindSpotify:
		return "Spotify"
	case KindRadioStream:
		return "Radio Stream"
	default:
		return "Unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Descriptor описывает источник трека для вывода в статусе.
type Descriptor struct {
	Kind       Kind   `json:"kind"`
	Label      string `json:"label"`
	PlayerName string `json:"player"`
}

// Порт Navidrome по умолчанию и пути стриминга Subsonic/нативного API.
const navidromeDefaultPort = "4533"

var navidromeStreamPaths = []string{"/rest/stream", "/api/stream"}

// Схемы потокового радио (shoutcast/icecast и родственные).
var radioSchemes = map[string]bool{
	"icy":   true,
	"icyx":  true,
	"shout": true,
	"mms":   true,
	"mmsh":  true,
	"rtsp":  true,
	"rtmp":  true,
}

var playlistExts = map[string]bool{".m3u": true, ".m3u8": true, ".pls": true, ".xspf": true}

var audioExts = map[string]bool{
	".mp3": true, ".flac": true, ".wav": true, ".ogg": true,
	".m4a": true, ".aac": true, ".wma": true, ".opus": true,
}

// Resolver классифицирует локаторы. Без побочных эффектов, кроме чтения метаданных файла.
type Resolver struct {
	serverHost string // host[:port] каталога Navidrome, если настроен
	playerName string
	stat       func(string) (os.FileInfo, error)
}

// New создаёт классификатор. serverURL: адрес Navidrome (может быть пустым).
func New(serverURL, playerName string) *Resolver {
	r := &Resolver{playerName: playerName, stat: os.Stat}
	if u, err := url.Parse(strings.TrimSpace(serverURL)); err == nil && u.Host != "" {
		r.serverHost = strings.ToLower(u.Host)
	}
	if r.playerName == "" {
		r.playerName = "unknown player"
	}
	return r
}

// PlayerName возвращает имя плеера, подставляемое в подписи.
func (r *Resolver) PlayerName() string { return r.playerName }

// Classify возвращает описание источника. Первое совпадение выигрывает:
// сервер каталога → локальный файл → YouTube/Spotify → радио-протокол → любой URL → Unknown.
func (r *Resolver) Classify(locator string) Descriptor {
	loc := strings.TrimSpace(locator)
	if loc == "" {
		return r.describe(KindUnknown, "")
	}

	u, err := url.Parse(loc)
	isURL := err == nil && u.Scheme != "" && u.Host != ""
	scheme := ""
	host := ""
	if err == nil {
		scheme = strings.ToLower(u.Scheme)
		host = strings.ToLower(u.Hostname())
	}

	if isURL && (scheme == "http" || scheme == "https") && r.isNavidrome(u) {
		details := []string{"Server: " + host}
		if api := navidromeAPI(u.Path); api != "" {
			details = append(details, "API: "+api)
		}
		return r.describe(KindNavidromeServer, strings.Join(details, ", "))
	}

	if fi, statErr := r.stat(loc); statErr == nil {
		return r.describe(KindLocalLibrary, localDetails(loc, fi))
	}

	switch {
	case strings.Contains(host, "youtube") || host == "youtu.be":
		return r.describe(KindYouTube, "")
	case strings.Contains(host, "spotify") || scheme == "spotify":
		return r.describe(KindSpotify, "")
	}

	if radioSchemes[scheme] && host != "" {
		return r.describe(KindRadioStream, "Host: "+host)
	}
	if isURL && playlistExts[strings.ToLower(filepath.Ext(u.Path))] {
		return r.describe(KindRadioStream, "Host: "+host)
	}

	if isURL {
		return r.describe(KindStream, "Host: "+host)
	}
	return r.describe(KindUnknown, "")
}

func (r *Resolver) isNavidrome(u *url.URL) bool {
	host := strings.ToLower(u.Host)
	if r.serverHost != "" {
		return host == r.serverHost
	}
	// Сервер не настроен: узнаём Navidrome по имени, порту и путям стриминга
	if strings.Contains(host, "navidrome") || u.Port() == navidromeDefaultPort {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, sp := range navidromeStreamPaths {
		if strings.Contains(p, sp) {
			return true
		}
	}
	return false
}

func (r *Resolver) describe(kind Kind, details string) Descriptor {
	label := kind.String() + " via " + r.playerName
	if details != "" {
		label += " (" + details + ")"
	}
	return Descriptor{Kind: kind, Label: label, PlayerName: r.playerName}
}

func navidromeAPI(path string) string {
	switch {
	case strings.Contains(path, "/rest/"):
		return "Subsonic API"
	case strings.Contains(path, "/api/"):
		return "Native API"
	default:
		return ""
	}
}

func localDetails(path string, fi os.FileInfo) string {
	if fi.IsDir() {
		return "Location: " + filepath.Base(filepath.Clean(path))
	}
	details := "Location: " + filepath.Base(filepath.Dir(path))
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case audioExts[ext]:
		details += ", Type: Audio"
	case playlistExts[ext]:
		details += ", Type: Playlist"
	}
	return details
}
