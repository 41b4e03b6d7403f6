package schedule

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Bridges cron's logger interface to slog. cron reports routine bookkeeping ("wake", "run", "schedule") at Info; those go to Debug here. The one Info message worth surfacing is "skip", emitted by the non-reentrant guard.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = (*cronLogger)(nil)

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		ticksSkipped.Inc()
		l.logger.Warn("previous engagement cycle still running, skipping this tick")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
