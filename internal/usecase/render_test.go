package usecase

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"NewsDigest/internal/domain"
)

func TestRenderMarkdownGolden(t *testing.T) {
	t.Parallel()

	digest := domain.Digest{
		Date: "2024-03-01",
		Entries: []domain.DigestEntry{
			{
				Rank:            0,
				Title:           "Show HN: A tiny database",
				TranslatedTitle: "展示 HN：一个微型数据库",
				URL:             "https://example.com/db",
				DiscussionURL:   "https://news.ycombinator.com/item?id=1",
				Author:          "alice",
				Score:           120,
				CommentCount:    45,
				Summary:         "一个用 Go 编写的嵌入式数据库。",
				CommentDigest:   "读者称赞其简洁。\n也有人担心性能。",
			},
			{
				Rank:          1,
				Title:         "Ask HN: Who is hiring?",
				DiscussionURL: "https://news.ycombinator.com/item?id=2",
				Author:        "whoishiring",
				Failed:        true,
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "digest", []byte(RenderMarkdown(digest)))
}

func TestRenderMarkdownEmpty(t *testing.T) {
	t.Parallel()

	doc := RenderMarkdown(domain.Digest{Date: "2024-03-01"})
	assert.Equal(t, "# Daily Digest 2024-03-01\n\nNo stories today.\n", doc)
}
