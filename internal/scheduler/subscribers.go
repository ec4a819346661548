package scheduler

import (
	"sync"

	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/log"
)

// TransitionLogger logs whenever the target, run state or health tier changes.
type TransitionLogger struct {
	logger *log.Logger

	mu   sync.Mutex
	last Status
	seen bool
}

func NewTransitionLogger(l *log.Logger) *TransitionLogger {
	if l == nil {
		l = log.Nop()
	}
	return &TransitionLogger{logger: l}
}

func (t *TransitionLogger) OnStatusChanged(s Status) {
	t.mu.Lock()
	changed := !t.seen ||
		s.Target != t.last.Target ||
		s.RunState != t.last.RunState ||
		s.Health != t.last.Health
	prev := t.last.Health
	t.last = s
	t.seen = true
	t.mu.Unlock()

	if !changed {
		return
	}
	t.logger.Info("status_changed",
		zap.String("target", s.Target),
		zap.String("reason", string(s.Reason)),
		zap.String("run_state", string(s.RunState)),
		zap.String("health", string(s.Health)),
		zap.String("previous_health", string(prev)),
		zap.Int("avg_ms", s.Summary.AverageMs),
		zap.Int("drop_rate", s.Summary.DropRatePercent),
	)
}
