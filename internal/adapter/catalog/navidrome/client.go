package navidrome

import (
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/music"
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/delucks/go-subsonic"
	"go.uber.org/zap"
)

// Версия Subsonic API для адреса потока, который уходит во внешний плеер.
const apiVersion = "1.16.1"

// Сколько случайных треков берём, чтобы выбрать подходящий под вайб.
const candidates = 20

// Client: клиент Navidrome поверх go-subsonic. Библиотека держит токен сессии у себя
// и не выдаёт URL, поэтому адрес потока для плеера подписывается отдельно (t=md5(pass+salt)).
type Client struct {
	http    *http.Client
	baseURL *url.URL
	user    string
	pass    string
	client  string
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	sub    subsonic.Client
	authed bool
}

func New(cfg config.NavidromeConfig, logger *zap.SugaredLogger) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" || strings.TrimSpace(cfg.User) == "" || cfg.Password == "" {
		return nil, errors.New("navidrome: credentials not found; set NAVIDROME_URL, NAVIDROME_USER and NAVIDROME_PASS")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("navidrome: invalid url %q", raw)
	}
	name := strings.TrimSpace(cfg.Client)
	if name == "" {
		name = "PersonalDJ"
	}
	hc := &http.Client{Timeout: 15 * time.Second}
	return &Client{
		http:    hc,
		baseURL: u,
		user:    cfg.User,
		pass:    cfg.Password,
		client:  name,
		logger:  logger,
		sub: subsonic.Client{
			Client:     hc,
			BaseUrl:    u.String(),
			User:       cfg.User,
			ClientName: name,
		},
	}, nil
}

// ctxTransport привязывает запросы библиотеки к ctx: её методы контекст не принимают.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(r.WithContext(t.ctx))
}

// bound возвращает копию сессии, чьи запросы отменяются вместе с ctx.
func (c *Client) bound(ctx context.Context) subsonic.Client {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	sc := c.sub
	sc.Client = &http.Client{Timeout: c.http.Timeout, Transport: ctxTransport{ctx: ctx, base: base}}
	return sc
}

// authenticate получает токен сессии (запрос ping) и сохраняет его для следующих вызовов.
// Вызывается под c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	sc := c.bound(ctx)
	if err := sc.Authenticate(c.pass); err != nil {
		c.authed = false
		return fmt.Errorf("navidrome ping: %s", strings.TrimSpace(err.Error()))
	}
	sc.Client = c.http
	c.sub, c.authed = sc, true
	return nil
}

// session возвращает аутентифицированную сессию, привязанную к ctx.
func (c *Client) session(ctx context.Context) (*subsonic.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authed {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}
	sc := c.bound(ctx)
	return &sc, nil
}

// Ping проверяет доступность сервера и учётные данные.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticate(ctx)
}

// authParams: параметры подписи для адреса потока. Соль новая на каждый вызов.
func (c *Client) authParams() url.Values {
	salt := newSalt()
	sum := md5.Sum([]byte(c.pass + salt))
	v := url.Values{}
	v.Set("u", c.user)
	v.Set("t", hex.EncodeToString(sum[:]))
	v.Set("s", salt)
	v.Set("v", apiVersion)
	v.Set("c", c.client)
	return v
}

func newSalt() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// StreamURL: адрес потока трека; он же locator для плеера.
func (c *Client) StreamURL(id string) string {
	q := c.authParams()
	q.Set("id", id)
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/rest/stream"
	u.RawQuery = q.Encode()
	return u.String()
}

// PickTrack берёт случайные треки и выбирает лучший по совпадению с вайбом.
func (c *Client) PickTrack(ctx context.Context, vibe string) (music.Track, error) {
	sc, err := c.session(ctx)
	if err != nil {
		return music.Track{}, &music.TrackNotFoundError{Reason: "navidrome unavailable", Err: err}
	}
	resp, err := sc.Get("getRandomSongs", map[string]string{"size": strconv.Itoa(candidates)})
	if err != nil {
		// Следующий вызов начнёт с новой аутентификации
		c.mu.Lock()
		c.authed = false
		c.mu.Unlock()
		return music.Track{}, &music.TrackNotFoundError{Reason: "navidrome unavailable", Err: fmt.Errorf("navidrome getRandomSongs: %s", strings.TrimSpace(err.Error()))}
	}
	var songs []*subsonic.Child
	if resp.RandomSongs != nil {
		songs = resp.RandomSongs.Song
	}
	if len(songs) == 0 {
		c.logger.Warnw("Navidrome returned no random songs")
		return music.Track{}, &music.TrackNotFoundError{Reason: "navidrome returned no songs"}
	}

	s := best(songs, music.Keywords(vibe))
	track := music.Track{
		ID:      s.ID,
		Title:   s.Title,
		Artist:  s.Artist,
		Album:   s.Album,
		Locator: c.StreamURL(s.ID),
	}
	c.logger.Infow("Selected track", "track", track.Display(), "id", s.ID)
	return track, nil
}

// best возвращает трек с наибольшим числом совпавших слов; при равенстве: случайный из лучших.
func best(songs []*subsonic.Child, words []string) *subsonic.Child {
	top, bestScore := []*subsonic.Child{}, -1
	for _, s := range songs {
		score := music.Score(strings.Join([]string{s.Title, s.Artist, s.Album, s.Genre}, " "), words)
		switch {
		case score > bestScore:
			top, bestScore = []*subsonic.Child{s}, score
		case score == bestScore:
			top = append(top, s)
		}
	}
	return top[mrand.IntN(len(top))]
}
