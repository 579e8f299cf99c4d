package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/scanner"
)

type fakeScanner struct {
	name    string
	refs    []domain.StoryRef
	err     error
	lastReq scanner.Request
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(_ context.Context, req scanner.Request) ([]domain.StoryRef, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	refs := f.refs
	if req.Limit > 0 && len(refs) > req.Limit {
		refs = refs[:req.Limit]
	}
	return refs, nil
}

func (f *fakeScanner) Detail(_ context.Context, ref domain.StoryRef) (*domain.Story, error) {
	return &domain.Story{Ref: ref, Title: f.name + " " + ref.ID}, nil
}

func TestStrategySourceMergesSites(t *testing.T) {
	t.Parallel()

	hn := &fakeScanner{name: "hackernews", refs: []domain.StoryRef{
		{Source: "hackernews", ID: "1"}, {Source: "hackernews", ID: "2"}, {Source: "hackernews", ID: "1"},
	}}
	ax := &fakeScanner{name: "arxiv", refs: []domain.StoryRef{
		{Source: "arxiv", ID: "2401.1"}, {Source: "arxiv", ID: "2401.2"}, {Source: "arxiv", ID: "2401.3"},
	}}
	reg := scanner.NewRegistry()
	reg.Register(hn)
	reg.Register(ax)

	src := NewStrategySource(reg, []config.SiteConfig{
		{Name: "hn", Scanner: "hackernews", Options: map[string]string{"list": "beststories"}},
		{Name: "arxiv-ai", Scanner: "arxiv", Categories: []config.CategoryConfig{{Name: "cs.AI", URL: "https://example.org"}}},
	}, 4, nil)

	refs, err := src.FetchCandidateList(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []domain.StoryRef{
		{Source: "hackernews", ID: "1"},
		{Source: "hackernews", ID: "2"},
		{Source: "arxiv", ID: "2401.1"},
		{Source: "arxiv", ID: "2401.2"},
	}, refs)
	assert.Equal(t, "beststories", hn.lastReq.Option("list", ""))
	require.Len(t, ax.lastReq.Categories, 1)

	story, err := src.FetchItemDetail(context.Background(), domain.StoryRef{Source: "arxiv", ID: "2401.2"})
	require.NoError(t, err)
	assert.Equal(t, "arxiv 2401.2", story.Title)

	_, err = src.FetchItemDetail(context.Background(), domain.StoryRef{Source: "lobsters", ID: "x"})
	assert.Error(t, err)
}

func TestStrategySourceFailures(t *testing.T) {
	t.Parallel()

	broken := &fakeScanner{name: "hackernews", err: errors.New("timeout")}
	ok := &fakeScanner{name: "arxiv", refs: []domain.StoryRef{{Source: "arxiv", ID: "1"}}}
	reg := scanner.NewRegistry()
	reg.Register(broken)
	reg.Register(ok)

	src := NewStrategySource(reg, []config.SiteConfig{{Name: "hn", Scanner: "hackernews"}, {Name: "ax", Scanner: "arxiv"}}, 0, nil)
	refs, err := src.FetchCandidateList(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	only := NewStrategySource(reg, []config.SiteConfig{{Name: "hn", Scanner: "hackernews"}}, 0, nil)
	_, err = only.FetchCandidateList(context.Background(), time.Now())
	assert.ErrorContains(t, err, "timeout")

	missing := NewStrategySource(reg, []config.SiteConfig{{Name: "ax", Scanner: "arxiv"}, {Name: "x", Scanner: "lobsters"}}, 0, nil)
	_, err = missing.FetchCandidateList(context.Background(), time.Now())
	assert.ErrorIs(t, err, scanner.ErrUnknownScanner)
}
