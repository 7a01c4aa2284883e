package playback

import "time"

// TimingPolicy holds the playback pacing constants. They are policy, not
// invariants, but their relative ordering matters: the settle delay must be
// shorter than the grace delay, and the prefetch delay must exceed typical
// preparation latency so prefetching never starves the current step.
type TimingPolicy struct {
	// SettleDelay is applied after a step's media is ready, before the step
	// is declared playable, to smooth transitions.
	SettleDelay time.Duration
	// GraceDelay is applied after audio ends, before auto-advancing.
	GraceDelay time.Duration
	// PrefetchDelay is how long after an index change the next step's
	// narration is requested for cache warming.
	PrefetchDelay time.Duration
	// VisualWait bounds how long preparation waits for a step's visual. A
	// slow image must never block the lesson indefinitely.
	VisualWait time.Duration

	// MinSilence and CharsPerSecond derive the synthetic completion
	// duration for muted playback:
	// max(MinSilence, len(text) * second / CharsPerSecond).
	MinSilence     time.Duration
	CharsPerSecond int
}

func defaultTimingPolicy() TimingPolicy {
	return TimingPolicy{
		SettleDelay:    250 * time.Millisecond,
		GraceDelay:     600 * time.Millisecond,
		PrefetchDelay:  2 * time.Second,
		VisualWait:     5 * time.Second,
		MinSilence:     3 * time.Second,
		CharsPerSecond: 15,
	}
}

// silentDuration is how long a muted (or fully degraded) step stays current
// before advancing, paced so the narration stays readable on screen. The
// multiply happens before the divide; a truncated per-character duration
// would drift the total short of the whole-second budget.
func (t TimingPolicy) silentDuration(text string) time.Duration {
	duration := time.Duration(len(text)) * time.Second / time.Duration(t.CharsPerSecond)
	if duration < t.MinSilence {
		return t.MinSilence
	}
	return duration
}
