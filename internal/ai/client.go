package ai

import "context"

// Client пишет короткую реплику ведущего под вайб слушателя. Все реализации взаимозаменяемы.
type Client interface {
	Commentary(ctx context.Context, vibe string) (string, error)
}

var (
	_ Client = (*CommentaryClient)(nil)
	_ Client = (*StubClient)(nil)
)
