package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// GitHub commits the digest into a repository through the contents API.
type GitHub struct {
	client       *resty.Client
	repo         string
	branch       string
	pathTemplate string
}

var _ ports.Publisher = (*GitHub)(nil)

// NewGitHub builds the publisher; timeout bounds each API call.
func NewGitHub(cfg config.GitHubConfig, timeout time.Duration) *GitHub {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(apiURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetHeader("Authorization", "Bearer "+cfg.Token)

	return &GitHub{
		client:       client,
		repo:         cfg.Repo,
		branch:       cfg.Branch,
		pathTemplate: cfg.PathTemplate,
	}
}

func (g *GitHub) Name() string { return "github" }

// Path renders the file location for dateKey.
func (g *GitHub) Path(dateKey string) string {
	tpl := g.pathTemplate
	if tpl == "" {
		tpl = "digests/{{date}}.md"
	}
	year, month, _ := strings.Cut(dateKey, "-")
	month, _, _ = strings.Cut(month, "-")
	r := strings.NewReplacer("{{date}}", dateKey, "{{year}}", year, "{{month}}", month)
	return strings.TrimPrefix(r.Replace(tpl), "/")
}

// Publish creates or updates the digest file.
func (g *GitHub) Publish(ctx context.Context, document, dateKey string) error {
	if g.repo == "" {
		return fmt.Errorf("github publisher misconfigured")
	}
	path := g.Path(dateKey)
	endpoint := "/repos/" + g.repo + "/contents/" + path

	sha, err := g.currentSHA(ctx, endpoint)
	if err != nil {
		return err
	}

	body := map[string]string{
		"message": "digest: " + dateKey,
		"content": base64.StdEncoding.EncodeToString([]byte(document)),
	}
	if g.branch != "" {
		body["branch"] = g.branch
	}
	if sha != "" {
		body["sha"] = sha
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(endpoint)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("put %s: github returned %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}

func (g *GitHub) currentSHA(ctx context.Context, endpoint string) (string, error) {
	req := g.client.R().SetContext(ctx)
	if g.branch != "" {
		req.SetQueryParam("ref", g.branch)
	}
	resp, err := req.Get(endpoint)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", endpoint, err)
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return "", nil
	case http.StatusOK:
		var existing struct {
			SHA string `json:"sha"`
		}
		if err := json.Unmarshal([]byte(resp.String()), &existing); err != nil {
			return "", fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return existing.SHA, nil
	default:
		return "", fmt.Errorf("get %s: github returned %d", endpoint, resp.StatusCode())
	}
}
