package logger

import "log/slog"

// Cron adapts slog to the robfig/cron Logger interface.
type Cron struct {
	log *slog.Logger
}

func NewCron(base *slog.Logger, component string) *Cron {
	if base == nil {
		base = slog.Default()
	}
	return &Cron{log: base.With("component", component)}
}

// Info is demoted to debug; cron reports every wake-up through it.
func (c *Cron) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, keysAndValues...)
}

func (c *Cron) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
