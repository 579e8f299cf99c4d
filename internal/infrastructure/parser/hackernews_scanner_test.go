package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/scanner"
)

func newHackerNewsServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	responses := map[string]string{
		"/topstories.json": `[101, 102, 103, 104]`,
		"/item/101.json": `{"id":101,"type":"story","by":"pg","time":1709280000,"title":"Show HN: A thing",
			"url":"https://example.com/thing","score":120,"descendants":3,"kids":[201,202,203]}`,
		"/item/102.json": `{"id":102,"type":"story","dead":true,"title":"gone"}`,
		"/item/103.json": `null`,
		"/item/104.json": `{"id":104,"type":"story","by":"dang","time":1709280000,"title":"Ask HN: Why?",
			"text":"First line<p>Second &amp; last","score":5}`,
		"/item/201.json": `{"id":201,"type":"comment","text":"Great <i>work</i>"}`,
		"/item/202.json": `{"id":202,"type":"comment","deleted":true}`,
		"/item/203.json": `{"id":203,"type":"comment","text":"I&#x27;d use it"}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		body, ok := responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHackerNewsScan(t *testing.T) {
	t.Parallel()

	server := newHackerNewsServer(t, nil)
	sc := NewHackerNewsScanner(HackerNewsOptions{BaseURL: server.URL}, nil)

	refs, err := sc.Scan(context.Background(), scanner.Request{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []domain.StoryRef{
		{Source: "hackernews", ID: "101"},
		{Source: "hackernews", ID: "102"},
		{Source: "hackernews", ID: "103"},
	}, refs)

	_, err = sc.Scan(context.Background(), scanner.Request{Options: map[string]string{"list": "askstories"}})
	assert.ErrorContains(t, err, "unknown hacker news list")
}

func TestHackerNewsDetail(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := newHackerNewsServer(t, &hits)
	sc := NewHackerNewsScanner(HackerNewsOptions{BaseURL: server.URL, Comments: 2}, nil)
	ctx := context.Background()

	story, err := sc.Detail(ctx, domain.StoryRef{Source: "hackernews", ID: "101"})
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.Equal(t, "Show HN: A thing", story.Title)
	assert.Equal(t, "https://example.com/thing", story.URL)
	assert.Equal(t, 120, story.Score)
	assert.Equal(t, 3, story.CommentCount)
	assert.Equal(t, []string{"Great work", "I'd use it"}, story.Comments)

	before := hits.Load()
	_, err = sc.Detail(ctx, domain.StoryRef{Source: "hackernews", ID: "101"})
	require.NoError(t, err)
	assert.Equal(t, before, hits.Load(), "second lookup is served from cache")

	for _, id := range []string{"102", "103"} {
		story, err := sc.Detail(ctx, domain.StoryRef{Source: "hackernews", ID: id})
		require.NoError(t, err)
		assert.Nil(t, story, "item %s", id)
	}

	story, err = sc.Detail(ctx, domain.StoryRef{Source: "hackernews", ID: "104"})
	require.NoError(t, err)
	require.NotNil(t, story)
	assert.Equal(t, "First line\n\nSecond & last", story.Text)

	_, err = sc.Detail(ctx, domain.StoryRef{Source: "hackernews", ID: "999"})
	assert.Error(t, err)
}
