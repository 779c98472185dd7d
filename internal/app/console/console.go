package console

import (
	"PersonalDJ/internal/app/dispatcher"
	"PersonalDJ/internal/service/playback"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Commands: то, что консоль требует от Dispatcher.
type Commands interface {
	SubmitLine(ctx context.Context, line string) (dispatcher.Result, error)
	Submit(ctx context.Context, cmd dispatcher.Command) (dispatcher.Result, error)
}

// Feed: события движка для вывода в консоль.
type Feed interface {
	Subscribe() (<-chan playback.Event, func())
}

// Console: интерактивный цикл CLI. Читает команды, печатает ответы и события движка.
type Console struct {
	cmds   Commands
	feed   Feed
	djName string
	prompt bool
	logger *zap.SugaredLogger

	mu  sync.Mutex
	out io.Writer
}

// New создаёт консоль. prompt включает приглашение "You > " (когда stdin является терминалом).
func New(cmds Commands, feed Feed, djName string, out io.Writer, prompt bool, logger *zap.SugaredLogger) *Console {
	if strings.TrimSpace(djName) == "" {
		djName = "DJ Echo"
	}
	return &Console{cmds: cmds, feed: feed, djName: djName, out: out, prompt: prompt, logger: logger}
}

// Run крутит цикл до quit, конца ввода или отмены ctx. Конец ввода и отмена означают quit.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	events, unsubscribe := c.feed.Subscribe()
	defer unsubscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			c.printEvent(ev)
		}
	}()

	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.logger.Warnw("stdin read error", "error", err)
		}
	}()

	c.println(dispatcher.Menu)
	for {
		c.showPrompt()
		select {
		case <-ctx.Done():
			c.println("")
			return c.quit()
		case <-printed:
			// Движок остановлен извне (например, quit через сервер событий)
			return nil
		case line, ok := <-lines:
			if !ok {
				return c.quit()
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			res, err := c.cmds.SubmitLine(ctx, line)
			if err != nil {
				c.printError(err)
				continue
			}
			if res.Message != "" {
				c.println(res.Message)
			}
			if res.Quit {
				return nil
			}
		}
	}
}

func (c *Console) quit() error {
	res, err := c.cmds.Submit(context.Background(), dispatcher.Simple(dispatcher.KindQuit))
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	c.println(res.Message)
	return nil
}

func (c *Console) printEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventCommentary:
		c.println(fmt.Sprintf("\n%s: %s", c.djName, ev.Text))
	case playback.EventTrack:
		if ev.Track != nil {
			c.println("Now Playing: " + ev.Track.Display())
		}
	case playback.EventWarning:
		c.println("Warning: " + ev.Text)
	case playback.EventError:
		c.println("Error: " + ev.Text)
	}
}

func (c *Console) printError(err error) {
	var invalid *dispatcher.InvalidCommandError
	if errors.As(err, &invalid) {
		c.println(invalid.Message)
		return
	}
	c.println("Error: " + err.Error())
}

func (c *Console) showPrompt() {
	if !c.prompt {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, "You > ")
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}
