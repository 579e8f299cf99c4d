package logger

import (
	"fmt"
	"log/slog"
)

// Goose forwards migration output to slog under the given component.
type Goose struct {
	log *slog.Logger
}

// New returns a goose-compatible logger with component attribute.
func New(base *slog.Logger, component string) *Goose {
	if base == nil {
		base = slog.Default()
	}
	return &Goose{log: base.With("component", component)}
}

func (g *Goose) Printf(format string, v ...any) {
	g.log.Info(fmt.Sprintf(format, v...))
}

// Fatalf logs at error level and leaves exiting to the caller.
func (g *Goose) Fatalf(format string, v ...any) {
	g.log.Error(fmt.Sprintf(format, v...))
}
