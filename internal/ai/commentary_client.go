package ai

import (
	"PersonalDJ/internal/config"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// CommentaryClient генерирует реплику через OpenAI Responses API. Для OpenAI-совместимых
// серверов (Ollama и т.п.) используется Chat Completions: Responses там поддерживается не везде.
type CommentaryClient struct {
	client *openai.Client
	model  string
	djName string
	compat bool
	recent *history
}

// recentLines: сколько последних реплик показывать модели.
const recentLines = 5

func NewCommentaryClient(cfg config.LLMConfig, opts ...option.RequestOption) *CommentaryClient {
	base := strings.TrimSpace(cfg.BaseURL)
	o := []option.RequestOption{option.WithMaxRetries(1)}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		o = append(o, option.WithAPIKey(key))
	} else if base != "" {
		// Заглушка ключа для локальных серверов
		o = append(o, option.WithAPIKey("local"))
	}
	if base != "" {
		o = append(o, option.WithBaseURL(base))
	}
	client := openai.NewClient(append(o, opts...)...)

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	name := strings.TrimSpace(cfg.DJName)
	if name == "" {
		name = "DJ Echo"
	}
	return &CommentaryClient{client: &client, model: model, djName: name, compat: base != "", recent: newHistory(recentLines)}
}

// Configured сообщает, есть ли чем генерировать: ключ OpenAI или свой endpoint.
func Configured(cfg config.LLMConfig) bool {
	return strings.TrimSpace(cfg.APIKey) != "" || strings.TrimSpace(cfg.BaseURL) != ""
}

func (c *CommentaryClient) instructions() string {
	return fmt.Sprintf("You are %s, a cool late-night radio host. "+
		"Reply with one-sentence commentary introducing the next song for the listener's mood. "+
		"Do NOT mention the track path or title.", c.djName)
}

func (c *CommentaryClient) Commentary(ctx context.Context, vibe string) (string, error) {
	user := "User said: " + strings.TrimSpace(vibe)
	if h := c.recent.prompt(); h != "" {
		user += "\n\n" + h
	}
	var (
		out string
		err error
	)
	if c.compat {
		out, err = c.chat(ctx, user)
	} else {
		out, err = c.respond(ctx, user)
	}
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("llm returned empty commentary")
	}
	c.recent.add(out)
	return out, nil
}

func (c *CommentaryClient) respond(ctx context.Context, user string) (string, error) {
	sys := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: c.instructions()}},
	}
	msg := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: user}},
	}
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: openai.ChatModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(sys, responses.EasyInputMessageRoleSystem),
				responses.ResponseInputItemParamOfMessage(msg, responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

func (c *CommentaryClient) chat(ctx context.Context, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.instructions()),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping проверяет доступность endpoint и ключа списком моделей.
func (c *CommentaryClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
