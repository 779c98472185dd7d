package ws

import (
	"PersonalDJ/internal/app/dispatcher"
	"PersonalDJ/internal/config"
	"PersonalDJ/internal/service/events"
	"PersonalDJ/internal/service/playback"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var _ events.EventServer = (*Server)(nil)

const (
	writeWait      = 5 * time.Second
	pingPeriod     = 30 * time.Second
	maxCommandSize = 4 << 10

	// ClientHeader обязателен для POST /command: браузер не отправит его кросс-сайтовой формой
	ClientHeader = "X-DJ-Client"
)

// Commands: приём команд и статус (Dispatcher).
type Commands interface {
	SubmitLine(ctx context.Context, line string) (dispatcher.Result, error)
	Status() dispatcher.StatusReport
}

// Feed: источник событий движка.
type Feed interface {
	Subscribe() (<-chan playback.Event, func())
}

// Reply: ответ на команду, пришедшую по HTTP или websocket.
type Reply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	JobID   uint64 `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Quit    bool   `json:"quit,omitempty"`
}

type statusMessage struct {
	Type   string                  `json:"type"`
	Status dispatcher.StatusReport `json:"status"`
}

// Server отдаёт события по websocket и принимает команды.
//
//	GET  /events : websocket, статус при подключении, затем события; входящие текстовые кадры считаются командами
//	GET  /status : JSON-снимок
//	POST /command: тело запроса содержит одну строку команды CLI, нужен заголовок X-DJ-Client
//
// Браузерные клиенты принимаются только с loopback, file:// или из AllowedOrigins.
type Server struct {
	cfg      config.EventServerConfig
	cmds     Commands
	feed     Feed
	srv      *http.Server
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	origins  map[string]bool
	running  atomic.Bool

	mu   sync.Mutex
	addr string
	// Открытые соединения закрываются при Stop, иначе Shutdown ждёт их
	conns map[*websocket.Conn]struct{}
}

func NewServer(cfg config.EventServerConfig, cmds Commands, feed Feed, logger *zap.SugaredLogger) *Server {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:8765"
	}
	s := &Server{
		cfg:     cfg,
		cmds:    cmds,
		feed:    feed,
		logger:  logger,
		addr:    cfg.BindAddr,
		conns:   make(map[*websocket.Conn]struct{}),
		origins: make(map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.upgrader.CheckOrigin = s.originAllowed
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			s.origins[strings.ToLower(o)] = true
		}
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler: маршруты сервера; отдельно от Start для тестов.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/command", s.handleCommand)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		s.logger.Infow("Event server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) && err != nil {
			s.logger.Errorw("Event server stopped with error", "error", err)
		} else {
			s.logger.Infow("Event server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.WithoutCancel(ctx))
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("event server shutdown timeout"))
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("graceful shutdown error", "error", err)
		return s.srv.Close()
	}
	return nil
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed; use GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.cmds.Status())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed; use POST", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	if !s.originAllowed(r) {
		s.logger.Warnw("Command rejected: foreign origin", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if r.Header.Get(ClientHeader) == "" {
		http.Error(w, "missing "+ClientHeader+" header", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandSize+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	if len(body) > maxCommandSize {
		http.Error(w, "command too long", http.StatusRequestEntityTooLarge)
		return
	}
	reply, code := s.submit(r.Context(), string(body))
	s.logger.Infow("Command received", "remote", r.RemoteAddr, "line", strings.TrimSpace(string(body)), "status", code)
	writeJSON(w, code, reply)
}

// submit выполняет строку команды и переводит ошибку в HTTP-код.
func (s *Server) submit(ctx context.Context, line string) (Reply, int) {
	res, err := s.cmds.SubmitLine(ctx, line)
	if err == nil {
		return Reply{Type: "reply", Message: res.Message, JobID: res.JobID, Quit: res.Quit}, http.StatusOK
	}
	var invalid *dispatcher.InvalidCommandError
	switch {
	case errors.As(err, &invalid):
		return Reply{Type: "reply", Error: invalid.Message}, http.StatusBadRequest
	case errors.Is(err, playback.ErrClosed):
		return Reply{Type: "reply", Error: err.Error()}, http.StatusServiceUnavailable
	default:
		return Reply{Type: "reply", Error: err.Error()}, http.StatusInternalServerError
	}
}

// originAllowed пропускает клиентов без Origin (CLI, скрипты), страницы с loopback и file://,
// а также явно разрешённые. "null" (песочница, file:// в Firefox) разрешается только списком.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || s.origins[strings.ToLower(origin)] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	feed, unsubscribe := s.feed.Subscribe()
	defer unsubscribe()
	s.logger.Infow("Event client connected", "remote", r.RemoteAddr)

	// Запись только из этой горутины; читатель передаёт ответы через replies
	replies := make(chan Reply, 4)
	readDone := make(chan struct{})
	go s.readLoop(r.Context(), conn, replies, readDone)

	if err := s.write(conn, statusMessage{Type: "status", Status: s.cmds.Status()}); err != nil {
		return
	}
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-feed:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "engine stopped"),
					time.Now().Add(writeWait))
				return
			}
			if err := s.write(conn, ev); err != nil {
				s.logger.Debugw("event write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case rep := <-replies:
			if err := s.write(conn, rep); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readDone:
			s.logger.Infow("Event client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, replies chan<- Reply, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxCommandSize)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		rep, _ := s.submit(ctx, string(data))
		select {
		case replies <- rep:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
