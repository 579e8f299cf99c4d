package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
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
	arxivName    = "arxiv"
	arxivBaseURL = "https://arxiv.org"
)

var (
	dateExpr    = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
	arxivIDExpr = regexp.MustCompile(`\d{4}\.\d{4,5}(v\d+)?`)
)

// ArxivScanner crawls category listing pages and returns entries of the requested day.
type ArxivScanner struct {
	client   *resty.Client
	baseURL  string
	cache    *cache.Cache
	pageSize int
	logger   *slog.Logger
}

var _ scanner.Scanner = (*ArxivScanner)(nil)

// NewArxivScanner wires an HTTP client; baseURL serves /abs pages, pageSize defaults to 200.
func NewArxivScanner(baseURL string, timeout time.Duration, logger *slog.Logger) *ArxivScanner {
	if baseURL == "" {
		baseURL = arxivBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "NewsDigest/1.0")

	return &ArxivScanner{
		client:   client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		cache:    cache.New(24*time.Hour, time.Hour),
		pageSize: 200,
		logger:   logger,
	}
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return arxivName
}

// Close releases idle connections.
func (a *ArxivScanner) Close() error {
	return a.client.Close()
}

// Scan collects the entries published on req.Day across all categories, deduplicated by id.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.StoryRef, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	day := req.Day.UTC().Truncate(24 * time.Hour)
	seen := make(map[string]struct{})
	var refs []domain.StoryRef

	for _, cat := range req.Categories {
		found, err := a.scanCategory(ctx, cat.URL, day, func(story domain.Story) bool {
			if _, dup := seen[story.Ref.ID]; dup {
				return true
			}
			seen[story.Ref.ID] = struct{}{}
			a.cache.Set(story.Ref.ID, story, cache.DefaultExpiration)
			refs = append(refs, story.Ref)
			return req.Limit <= 0 || len(refs) < req.Limit
		})
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}
		a.logger.Debug("category scanned", "category", cat.Name, "found", found, "total", len(refs))
		if req.Limit > 0 && len(refs) >= req.Limit {
			break
		}
	}
	return refs, nil
}

// scanCategory pages through one listing and hands each entry of day to keep until keep
// returns false or the listing runs past day. It returns the number of matching entries.
func (a *ArxivScanner) scanCategory(ctx context.Context, listing string, day time.Time, keep func(domain.Story) bool) (int, error) {
	found := 0
	for offset := 0; ; offset += a.pageSize {
		pageURL, err := buildPageURL(listing, offset, a.pageSize)
		if err != nil {
			return found, err
		}
		doc, err := a.fetchDocument(ctx, pageURL)
		if err != nil {
			return found, err
		}

		stories, more := a.extractStories(doc, day)
		for _, story := range stories {
			found++
			if !keep(story) {
				return found, nil
			}
		}
		if !more {
			return found, nil
		}
	}
}

// Detail returns the listing entry seen by Scan, else parses the abstract page.
func (a *ArxivScanner) Detail(ctx context.Context, ref domain.StoryRef) (*domain.Story, error) {
	if cached, ok := a.cache.Get(ref.ID); ok {
		story := cached.(domain.Story)
		return &story, nil
	}

	doc, err := a.fetchDocument(ctx, a.baseURL+"/abs/"+ref.ID)
	if err != nil {
		return nil, fmt.Errorf("abstract %s: %w", ref.ID, err)
	}

	title := labeledText(doc.Selection, "h1.title", "Title:")
	if title == "" {
		return nil, nil
	}

	story := domain.Story{
		Ref:    ref,
		Title:  title,
		URL:    a.baseURL + "/abs/" + ref.ID,
		Text:   labeledText(doc.Selection, "blockquote.abstract", "Abstract:"),
		Author: joinedText(doc.Selection, ".authors a"),
	}
	a.cache.Set(ref.ID, story, cache.DefaultExpiration)
	return &story, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := a.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %d for %s", resp.StatusCode(), pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// extractStories returns the entries of targetDay on one listing page and whether older
// pages may still hold more. Listings are sorted newest first.
func (a *ArxivScanner) extractStories(doc *goquery.Document, targetDay time.Time) ([]domain.Story, bool) {
	entries := doc.Find("dl > dt")
	var stories []domain.Story
	reachedOlder := false

	entries.EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		story, err := parseEntry(dt, dt.Next())
		if err != nil {
			return true
		}

		day := story.PublishedAt.UTC().Truncate(24 * time.Hour)
		switch {
		case day.Equal(targetDay):
			stories = append(stories, story)
		case day.Before(targetDay):
			reachedOlder = true
			return false
		}
		return true
	})

	return stories, !reachedOlder && entries.Length() >= a.pageSize
}

func parseEntry(dt, dd *goquery.Selection) (domain.Story, error) {
	link := dt.Find(`a[href*="/abs/"]`).First()
	href, _ := link.Attr("href")

	id := arxivIDExpr.FindString(strings.TrimSpace(link.Text()))
	if id == "" {
		id = arxivIDExpr.FindString(href)
	}
	if id == "" {
		return domain.Story{}, fmt.Errorf("entry without arxiv id")
	}
	if !strings.HasPrefix(href, "http") {
		href = arxivBaseURL + href
	}

	return domain.Story{
		Ref:         domain.StoryRef{Source: arxivName, ID: id},
		Title:       labeledText(dd, ".list-title", "Title:"),
		URL:         href,
		Text:        labeledText(dd, "p.mathjax", "Abstract:"),
		Author:      joinedText(dd, ".list-authors a"),
		PublishedAt: entryDate(dd),
	}, nil
}

// entryDate reads "12 Mar 2024" style dates; undated entries count as today.
func entryDate(dd *goquery.Selection) time.Time {
	text := labeledText(dd, ".list-date", "")
	if text == "" {
		text = labeledText(dd, ".list-dateline", "")
	}
	if match := dateExpr.FindString(text); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			return parsed
		}
	}
	return time.Now().UTC()
}

// labeledText returns the text of the first selector match without its leading label.
func labeledText(sel *goquery.Selection, selector, label string) string {
	text := strings.TrimSpace(sel.Find(selector).First().Text())
	return strings.TrimSpace(strings.TrimPrefix(text, label))
}

func joinedText(sel *goquery.Selection, selector string) string {
	var parts []string
	sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, ", ")
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
