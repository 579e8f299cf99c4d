package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"NewsDigest/internal/domain"
)

// ErrUnknownScanner is returned by Resolve for names nothing registered.
var ErrUnknownScanner = errors.New("scanner is not registered")

// Category describes a concrete section endpoint provided by config.
type Category struct {
	Name string
	URL  string
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Day        time.Time
	SiteName   string
	Categories []Category
	Options    map[string]string
	Limit      int
}

// Option returns a request option or fallback when unset.
func (r Request) Option(key, fallback string) string {
	if v, ok := r.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Scanner captures a single strategy implementation (Hacker News, arXiv, etc.).
type Scanner interface {
	Name() string
	// Scan lists the candidate stories of req.Day in source order.
	Scan(ctx context.Context, req Request) ([]domain.StoryRef, error)
	// Detail loads one story; nil means the source has nothing usable for it.
	Detail(ctx context.Context, ref domain.StoryRef) (*domain.Story, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownScanner, name)
}

// Names lists registered scanners in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
