package ai

import "context"

// FallbackLine: реплика, когда LLM не настроен.
const FallbackLine = "Let's get right to the music."

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) Commentary(_ context.Context, _ string) (string, error) {
	return FallbackLine, nil
}
