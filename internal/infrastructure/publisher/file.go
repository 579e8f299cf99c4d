package publisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"NewsDigest/internal/ports"
)

// File writes <dir>/<date>.md.
type File struct {
	dir string
}

var _ ports.Publisher = (*File)(nil)

func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) Name() string { return "file" }

// Publish replaces the file atomically so readers never see a partial digest.
func (f *File) Publish(_ context.Context, document, dateKey string) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", f.dir, err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+dateKey+"-*.md")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(document); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write digest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close digest: %w", err)
	}

	target := filepath.Join(f.dir, dateKey+".md")
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename digest: %w", err)
	}
	return nil
}
