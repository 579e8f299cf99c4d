package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
)

// StrategySource implements StorySource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	limit    int
	logger   *slog.Logger
}

var _ ports.StorySource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites. limit caps the
// merged candidate list (0 = no cap).
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, limit int, log *slog.Logger) *StrategySource {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &StrategySource{
		registry: reg,
		sites:    sites,
		limit:    limit,
		logger:   log,
	}
}

// FetchCandidateList merges the lists of configured sites in order, dropping duplicates.
// A failing site is skipped unless every site fails.
func (s *StrategySource) FetchCandidateList(ctx context.Context, day time.Time) ([]domain.StoryRef, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	merged := make([]domain.StoryRef, 0, max(s.limit, 0))
	seen := make(map[domain.StoryRef]struct{})
	var scanErr error

	for _, site := range s.sites {
		budget := 0
		if s.limit > 0 {
			if budget = s.limit - len(merged); budget <= 0 {
				break
			}
		}

		refs, err := s.scanSite(ctx, site, day, budget)
		if errors.Is(err, scanner.ErrUnknownScanner) {
			return nil, err
		}
		if err != nil {
			s.logger.Warn("site scan failed", "site", site.Name, "error", err)
			scanErr = multierr.Append(scanErr, err)
			continue
		}

		added := 0
		for _, ref := range refs {
			if _, dup := seen[ref]; dup || (s.limit > 0 && len(merged) >= s.limit) {
				continue
			}
			seen[ref] = struct{}{}
			merged = append(merged, ref)
			added++
		}
		s.logger.Debug("site scanned", "site", site.Name, "returned", len(refs), "added", added)
	}

	if len(merged) == 0 && scanErr != nil {
		return nil, scanErr
	}
	s.logger.Debug("candidate list ready", "day", day.Format(domain.DateLayout), "total", len(merged))
	return merged, nil
}

func (s *StrategySource) scanSite(ctx context.Context, site config.SiteConfig, day time.Time, budget int) ([]domain.StoryRef, error) {
	strategy, err := s.registry.Resolve(site.Scanner)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Name, err)
	}

	categories := make([]scanner.Category, len(site.Categories))
	for i, cat := range site.Categories {
		categories[i] = scanner.Category{Name: cat.Name, URL: cat.URL}
	}

	refs, err := strategy.Scan(ctx, scanner.Request{
		Day:        day,
		SiteName:   site.Name,
		Options:    site.Options,
		Categories: categories,
		Limit:      budget,
	})
	if err != nil {
		return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
	}
	return refs, nil
}

// FetchItemDetail dispatches to the scanner named by ref.Source.
func (s *StrategySource) FetchItemDetail(ctx context.Context, ref domain.StoryRef) (*domain.Story, error) {
	strategy, err := s.registry.Resolve(ref.Source)
	if err != nil {
		return nil, fmt.Errorf("story %s: %w", ref, err)
	}
	return strategy.Detail(ctx, ref)
}
