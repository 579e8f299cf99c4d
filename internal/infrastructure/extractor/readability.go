package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"resty.dev/v3"
)

const noiseSelector = "script, style, noscript, iframe, svg, form, nav, header, footer, aside"

// Readability fetches a page and keeps the paragraphs of its main content block.
type Readability struct {
	http *resty.Client
}

// NewReadability builds the local extractor.
func NewReadability(userAgent string, timeout time.Duration) *Readability {
	client := resty.New().SetTimeout(timeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &Readability{http: client}
}

// Close releases idle connections.
func (r *Readability) Close() error {
	return r.http.Close()
}

// Read downloads pageURL and returns its main text.
func (r *Readability) Read(ctx context.Context, pageURL string) (string, error) {
	resp, err := r.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("unsupported content type %s", ct)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	return MainText(doc), nil
}

// MainText picks article, then main, then the block holding the most paragraph text.
func MainText(doc *goquery.Document) string {
	doc.Find(noiseSelector).Remove()

	for _, selector := range []string{"article", "main", "[role=main]"} {
		if block := doc.Find(selector).First(); block.Length() > 0 {
			if text := paragraphs(block); text != "" {
				return text
			}
		}
	}

	var (
		best      *goquery.Selection
		bestScore int
	)
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		parent := p.Parent()
		score := len(strings.TrimSpace(parent.Find("p").Text()))
		if score > bestScore {
			best, bestScore = parent, score
		}
	})
	if best != nil {
		return paragraphs(best)
	}
	return collapse(doc.Find("body").Text())
}

func paragraphs(block *goquery.Selection) string {
	var parts []string
	block.Find("p, h1, h2, h3, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
