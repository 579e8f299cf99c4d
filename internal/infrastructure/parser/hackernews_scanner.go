package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"resty.dev/v3"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/scanner"
)

const (
	hackerNewsName    = "hackernews"
	hackerNewsBaseURL = "https://hacker-news.firebaseio.com/v0"
	hackerNewsList    = "topstories"
)

var hackerNewsLists = map[string]bool{
	"topstories":  true,
	"beststories": true,
	"newstories":  true,
}

// HackerNewsOptions configures the Firebase API client.
type HackerNewsOptions struct {
	BaseURL  string
	Timeout  time.Duration
	Comments int
}

// HackerNewsScanner reads the front page lists and item details from the Firebase API.
type HackerNewsScanner struct {
	client   *resty.Client
	cache    *cache.Cache
	comments int
	logger   *slog.Logger
}

var _ scanner.Scanner = (*HackerNewsScanner)(nil)

type hnItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Time        int64   `json:"time"`
	Text        string  `json:"text"`
	Dead        bool    `json:"dead"`
	Deleted     bool    `json:"deleted"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Kids        []int64 `json:"kids"`
}

// NewHackerNewsScanner builds a scanner; zero options fall back to the public API.
func NewHackerNewsScanner(opts HackerNewsOptions, logger *slog.Logger) *HackerNewsScanner {
	if opts.BaseURL == "" {
		opts.BaseURL = hackerNewsBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "NewsDigest/1.0")

	return &HackerNewsScanner{
		client:   client,
		cache:    cache.New(time.Hour, 10*time.Minute),
		comments: opts.Comments,
		logger:   logger,
	}
}

// Name identifies the strategy inside the registry.
func (h *HackerNewsScanner) Name() string {
	return hackerNewsName
}

// Close releases idle connections.
func (h *HackerNewsScanner) Close() error {
	return h.client.Close()
}

// Scan returns the current story list. Hacker News lists are live, so req.Day is ignored.
func (h *HackerNewsScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.StoryRef, error) {
	list := req.Option("list", hackerNewsList)
	if !hackerNewsLists[list] {
		return nil, fmt.Errorf("unknown hacker news list %q", list)
	}

	var ids []int64
	if err := h.getJSON(ctx, "/"+list+".json", &ids); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", list, err)
	}

	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	refs := make([]domain.StoryRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, domain.StoryRef{Source: hackerNewsName, ID: strconv.FormatInt(id, 10)})
	}
	return refs, nil
}

// Detail loads the story and its top comments. Dead, deleted or missing items yield nil.
func (h *HackerNewsScanner) Detail(ctx context.Context, ref domain.StoryRef) (*domain.Story, error) {
	item, err := h.item(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Dead || item.Deleted || item.Title == "" {
		return nil, nil
	}

	story := &domain.Story{
		Ref:          ref,
		Title:        strings.TrimSpace(item.Title),
		URL:          item.URL,
		Text:         htmlToText(item.Text),
		Author:       item.By,
		Score:        item.Score,
		CommentCount: item.Descendants,
		PublishedAt:  time.Unix(item.Time, 0).UTC(),
	}
	story.Comments = h.topComments(ctx, item.Kids)
	return story, nil
}

func (h *HackerNewsScanner) topComments(ctx context.Context, kids []int64) []string {
	var comments []string
	for _, kid := range kids {
		if len(comments) >= h.comments {
			break
		}
		id := strconv.FormatInt(kid, 10)
		comment, err := h.item(ctx, id)
		if err != nil {
			h.logger.Debug("skip comment", "id", id, "error", err)
			continue
		}
		if comment == nil || comment.Dead || comment.Deleted {
			continue
		}
		if text := htmlToText(comment.Text); text != "" {
			comments = append(comments, text)
		}
	}
	return comments
}

func (h *HackerNewsScanner) item(ctx context.Context, id string) (*hnItem, error) {
	key := "item:" + id
	if cached, ok := h.cache.Get(key); ok {
		return cached.(*hnItem), nil
	}

	var item *hnItem
	if err := h.getJSON(ctx, "/item/"+id+".json", &item); err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", id, err)
	}
	h.cache.Set(key, item, cache.DefaultExpiration)
	return item, nil
}

func (h *HackerNewsScanner) getJSON(ctx context.Context, path string, v any) error {
	resp, err := h.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("hacker news returned %d", resp.StatusCode())
	}
	if err := json.Unmarshal([]byte(resp.String()), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// htmlToText flattens the HTML fragments the API uses for story and comment text.
func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.ReplaceAll(fragment, "<p>", "\n\n<p>")))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
