package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.StoryRef, error) { return nil, nil }

func (s stubScanner) Detail(context.Context, domain.StoryRef) (*domain.Story, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "hackernews"})
	reg.Register(stubScanner{name: "arxiv"})

	got, err := reg.Resolve("arxiv")
	require.NoError(t, err)
	assert.Equal(t, "arxiv", got.Name())

	_, err = reg.Resolve("lobsters")
	assert.ErrorIs(t, err, ErrUnknownScanner)

	assert.Equal(t, []string{"arxiv", "hackernews"}, reg.Names())
}

func TestRequestOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"list": "beststories", "empty": ""}}
	assert.Equal(t, "beststories", req.Option("list", "topstories"))
	assert.Equal(t, "x", req.Option("empty", "x"))
	assert.Equal(t, "y", Request{}.Option("missing", "y"))
}
