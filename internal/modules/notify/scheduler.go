package notify

import (
	"time"

	"github.com/kunaal-theme/notify/internal/config"
)

// MinDelayFloor is the hard lower bound on notification delay. Configuration
// can raise the minimum but never lower it below this; the gap is what lets
// an author catch a bad publish before any email leaves.
const MinDelayFloor = 60 * time.Minute

// Schedule modes accepted from publish events and the blast composer.
const (
	ModeDelay = "delay"
	ModeTime  = "time"
)

// ScheduleOptions are the per-request scheduling knobs.
type ScheduleOptions struct {
	Mode         string
	DelayMinutes int
	At           time.Time
}

// Scheduler turns scheduling requests into concrete send times. It is built
// from an explicit config value; nothing here reads global state.
type Scheduler struct {
	minDelay     time.Duration
	defaultDelay time.Duration
}

func NewScheduler(cfg config.NewsletterConfig) *Scheduler {
	minDelay := time.Duration(cfg.MinDelayMinutes) * time.Minute
	if minDelay < MinDelayFloor {
		minDelay = MinDelayFloor
	}
	defaultDelay := time.Duration(cfg.DefaultDelayMinutes) * time.Minute
	if defaultDelay < minDelay {
		defaultDelay = minDelay
	}
	return &Scheduler{minDelay: minDelay, defaultDelay: defaultDelay}
}

// EffectiveMinDelay is the floor actually in force.
func (s *Scheduler) EffectiveMinDelay() time.Duration { return s.minDelay }

// ComputeSendTime resolves the options against now. Every result is at least
// EffectiveMinDelay in the future: explicit times in the past or inside the
// window are clamped forward, never rejected.
func (s *Scheduler) ComputeSendTime(now time.Time, opts ScheduleOptions) time.Time {
	earliest := now.Add(s.minDelay)

	switch opts.Mode {
	case ModeDelay:
		delay := time.Duration(opts.DelayMinutes) * time.Minute
		if delay <= 0 {
			delay = s.defaultDelay
		}
		if delay < s.minDelay {
			delay = s.minDelay
		}
		return now.Add(delay)
	case ModeTime:
		if opts.At.IsZero() || opts.At.Before(earliest) {
			return earliest
		}
		return opts.At
	default:
		return now.Add(s.defaultDelay)
	}
}
