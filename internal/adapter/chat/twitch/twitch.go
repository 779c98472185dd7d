package twitch

import (
	"PersonalDJ/internal/app/dispatcher"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"
)

// Config хранит параметры подключения к Twitch IRC.
type Config struct {
	Username  string
	OAuth     string // может быть с/без префикса oauth:
	Channel   string // без #, регистр не важен
	AllowSkip bool
}

// Submitter: куда уходят команды из чата (Dispatcher).
type Submitter interface {
	Submit(ctx context.Context, cmd dispatcher.Command) (dispatcher.Result, error)
}

const spamWindow = 5 * time.Second

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// filter превращает сообщения чата в команды: вырезает URL и гасит повторы пользователя в окне spamWindow.
type filter struct {
	allowSkip bool
	now       func() time.Time

	mu         sync.Mutex
	lastByUser map[string]lastMsg
}

type lastMsg struct {
	text string
	at   time.Time
}

func newFilter(allowSkip bool) *filter {
	return &filter{allowSkip: allowSkip, now: time.Now, lastByUser: map[string]lastMsg{}}
}

// command возвращает команду для сообщения или false, если сообщение надо пропустить.
func (f *filter) command(user, text string) (dispatcher.Command, bool) {
	user = strings.ToLower(strings.TrimSpace(user))
	text = strings.TrimSpace(urlRe.ReplaceAllString(text, ""))
	if user == "" || text == "" {
		return dispatcher.Command{}, false
	}

	var cmd dispatcher.Command
	head, rest, _ := strings.Cut(text, " ")
	switch strings.ToLower(head) {
	case "!vibe":
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return dispatcher.Command{}, false
		}
		cmd = dispatcher.Vibe(rest)
	case "!skip":
		if !f.allowSkip {
			return dispatcher.Command{}, false
		}
		cmd = dispatcher.Simple(dispatcher.KindSkip)
	default:
		return dispatcher.Command{}, false
	}

	// Антиспам: одинаковый текст от того же пользователя в течение окна дропаем
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	if lm, ok := f.lastByUser[user]; ok && lm.text == text && now.Sub(lm.at) <= spamWindow {
		return dispatcher.Command{}, false
	}
	f.lastByUser[user] = lastMsg{text: text, at: now}
	return cmd, true
}

// Run подключается к чату и передаёт !vibe/!skip в Dispatcher.
// Реконнекты обеспечиваются клиентом; функция завершается по отмене ctx.
func Run(ctx context.Context, logger *zap.SugaredLogger, cfg Config, sub Submitter) error {
	if sub == nil {
		return nil
	}
	username := strings.ToLower(strings.TrimSpace(cfg.Username))
	token := strings.TrimSpace(cfg.OAuth)
	channel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Channel), "#"))
	if username == "" || token == "" || channel == "" {
		logger.Warnw("Twitch chat not configured: missing env", "username", username != "", "token", token != "", "channel", channel != "")
		return nil
	}
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}

	client := twitchirc.NewClient(username, token)
	f := newFilter(cfg.AllowSkip)

	client.OnConnect(func() {
		logger.Infow("Twitch connected", "as", username, "join", channel)
		client.Join(channel)
	})

	client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		cmd, ok := f.command(msg.User.Name, msg.Message)
		if !ok {
			return
		}
		res, err := sub.Submit(ctx, cmd)
		if err != nil {
			var invalid *dispatcher.InvalidCommandError
			if errors.As(err, &invalid) {
				return
			}
			logger.Warnw("Chat command failed", "user", msg.User.Name, "command", cmd.Kind.String(), "error", err)
			return
		}
		logger.Infow("Chat command accepted", "user", msg.User.Name, "command", cmd.Kind.String(), "text", cmd.Text, "job", res.JobID)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case <-ctx.Done():
		_ = client.Disconnect()
		// Подождём чуть-чуть корректного завершения
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
		}
		return context.Canceled
	case err := <-errCh:
		if err != nil {
			logger.Errorw("twitch connect error", "error", err)
		}
		return err
	}
}
