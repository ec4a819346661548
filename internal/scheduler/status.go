package scheduler

import "github.com/doridoridoriand/connwatch/internal/state"

// RunState is whether the scheduler is issuing probes.
type RunState string

const (
	Running RunState = "RUNNING"
	Paused  RunState = "PAUSED"
)

// Reason says which operation produced a notification.
type Reason string

const (
	ReasonProbe  Reason = "probe"
	ReasonPause  Reason = "pause"
	ReasonResume Reason = "resume"
	ReasonTarget Reason = "target"
	ReasonConfig Reason = "config"
)

// Status is the state pushed to subscribers and returned by State.
type Status struct {
	Seq      uint64
	Reason   Reason
	Target   string
	RunState RunState
	Health   state.Health
	Summary  state.Summary
	History  []state.Outcome
}

// Last returns the most recent outcome, if any.
func (s Status) Last() (state.Outcome, bool) {
	if len(s.History) == 0 {
		return state.Outcome{}, false
	}
	return s.History[len(s.History)-1], true
}

// Labels returns the display labels of the history, oldest first.
func (s Status) Labels() []string {
	labels := make([]string, len(s.History))
	for i, o := range s.History {
		labels[i] = o.Label()
	}
	return labels
}

// Subscriber receives status changes. Calls are serialised and made in the
// order the changes happened; implementations must not block and must not
// call back into the scheduler synchronously.
type Subscriber interface {
	OnStatusChanged(Status)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Status)

func (f SubscriberFunc) OnStatusChanged(s Status) { f(s) }
