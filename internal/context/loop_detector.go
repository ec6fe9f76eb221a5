package context

import "fmt"

// LoopState is the detector's classification of recent tool activity.
type LoopState int

const (
	StateNormal LoopState = iota
	StateSuspect
	StateLooping
)

func (s LoopState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateSuspect:
		return "suspect"
	case StateLooping:
		return "looping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Verdict is the detector's advice for one call.
type Verdict int

const (
	Proceed Verdict = iota
	Redirect
)

func (v Verdict) String() string {
	if v == Redirect {
		return "redirect"
	}
	return "proceed"
}

// LoopConfig tunes the detector.
type LoopConfig struct {
	// WindowSize is N: how many recent calls the repeat check looks at.
	WindowSize int
	// RepeatThreshold is K: consecutive repeats (or cycle repetitions) that count as a loop.
	RepeatThreshold int
	// Tolerance is how many distinct calls may sit between two repeats that still count as suspicious.
	Tolerance int
	// MaxCycleLength is the longest period of an alternating pattern that is detected.
	MaxCycleLength int
	// VolatileFields are argument paths ignored for every tool.
	VolatileFields []string
}

// DefaultLoopConfig returns N=4, K=3, no tolerance and cycles up to length 3.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		WindowSize:      4,
		RepeatThreshold: 3,
		MaxCycleLength:  3,
	}
}

func (c LoopConfig) withDefaults() LoopConfig {
	def := DefaultLoopConfig()
	if c.WindowSize < 2 {
		c.WindowSize = def.WindowSize
	}
	if c.RepeatThreshold < 2 {
		c.RepeatThreshold = def.RepeatThreshold
	}
	if c.Tolerance < 0 {
		c.Tolerance = 0
	}
	if c.MaxCycleLength < 2 {
		c.MaxCycleLength = 1
	}
	return c
}

// SchemaSource reports which argument fields of a tool are volatile.
// tools.Registry implements it.
type SchemaSource interface {
	VolatileFields(toolName string) []string
}

// Decision describes one observation.
type Decision struct {
	Verdict   Verdict
	State     LoopState
	Signature string
	// Repeats is the number of times Signature occurs in the window, or the
	// number of full cycle repetitions when Period > 0.
	Repeats int
	// Period is the cycle length for alternating patterns, 0 otherwise.
	Period int
	// Episode numbers the loop episode a Redirect belongs to.
	Episode int
}

// LoopDetector classifies a stream of tool calls as Normal, Suspect or
// Looping. It is not safe for concurrent use; ContextManager serializes
// access to it.
type LoopDetector struct {
	cfg      LoopConfig
	schema   SchemaSource
	capacity int

	history  []string
	state    LoopState
	episodes int
}

// NewLoopDetector creates a detector. schema may be nil.
func NewLoopDetector(cfg LoopConfig, schema SchemaSource) *LoopDetector {
	cfg = cfg.withDefaults()
	return &LoopDetector{
		cfg:      cfg,
		schema:   schema,
		capacity: max(cfg.WindowSize, cfg.MaxCycleLength*cfg.RepeatThreshold),
	}
}

// SignatureOf computes the normalized signature of call.
func (d *LoopDetector) SignatureOf(call ToolCall) string {
	volatile := d.cfg.VolatileFields
	if d.schema != nil {
		if fields := d.schema.VolatileFields(call.Name); len(fields) > 0 {
			volatile = append(append([]string(nil), volatile...), fields...)
		}
	}
	return Signature(call.Name, call.Arguments, volatile)
}

// Observe records call and classifies the history ending with it.
func (d *LoopDetector) Observe(call ToolCall) Decision {
	return d.ObserveSignature(d.SignatureOf(call))
}

// ObserveSignature records a precomputed signature.
func (d *LoopDetector) ObserveSignature(sig string) Decision {
	d.history = append(d.history, sig)
	if len(d.history) > d.capacity {
		d.history = append(d.history[:0:0], d.history[len(d.history)-d.capacity:]...)
	}

	dec := d.classify(sig)

	switch {
	case dec.State == StateLooping:
		d.episodes++
		dec.Verdict = Redirect
		dec.Episode = d.episodes
		d.history = nil
		d.state = StateNormal
	case dec.State == StateNormal && d.state != StateNormal:
		d.history = []string{sig}
		d.state = StateNormal
	default:
		d.state = dec.State
	}
	return dec
}

func (d *LoopDetector) classify(sig string) Decision {
	dec := Decision{Verdict: Proceed, State: StateNormal, Signature: sig}
	k := d.cfg.RepeatThreshold

	run := d.trailingRun()
	period, reps := d.trailingCycle()

	switch {
	case run >= k:
		dec.State = StateLooping
		dec.Repeats = run
		return dec
	case period > 0 && reps >= k:
		dec.State = StateLooping
		dec.Period = period
		dec.Repeats = reps
		return dec
	}

	if occurrences, near := d.windowRepeats(sig); near {
		dec.State = StateSuspect
		dec.Repeats = occurrences
		return dec
	}
	if period > 0 && reps >= 2 {
		dec.State = StateSuspect
		dec.Period = period
		dec.Repeats = reps
	}
	return dec
}

// trailingRun counts how many of the newest entries equal the newest one.
func (d *LoopDetector) trailingRun() int {
	h := d.history
	last := h[len(h)-1]
	run := 0
	for i := len(h) - 1; i >= 0 && h[i] == last; i-- {
		run++
	}
	return run
}

// trailingCycle finds the shortest period p in [2, MaxCycleLength] whose
// block is not itself a repetition of one call, and returns how many full
// periods the periodic tail spans.
func (d *LoopDetector) trailingCycle() (period, reps int) {
	h := d.history
	for p := 2; p <= d.cfg.MaxCycleLength; p++ {
		if len(h) < 2*p {
			break
		}
		if minimalPeriod(h[len(h)-p:]) != p {
			continue
		}
		tail := p
		for i := len(h) - 1 - p; i >= 0 && h[i] == h[i+p]; i-- {
			tail++
		}
		if n := tail / p; n >= 2 {
			return p, n
		}
	}
	return 0, 0
}

func minimalPeriod(block []string) int {
	n := len(block)
	for p := 1; p < n; p++ {
		if n%p != 0 {
			continue
		}
		repeats := true
		for i := p; i < n; i++ {
			if block[i] != block[i-p] {
				repeats = false
				break
			}
		}
		if repeats {
			return p
		}
	}
	return n
}

// windowRepeats counts sig within the last WindowSize entries and reports
// whether its previous occurrence is separated by at most Tolerance
// distinct signatures.
func (d *LoopDetector) windowRepeats(sig string) (int, bool) {
	h := d.history
	start := max(0, len(h)-d.cfg.WindowSize)
	window := h[start:]

	occurrences := 0
	for _, s := range window {
		if s == sig {
			occurrences++
		}
	}
	if occurrences < 2 {
		return occurrences, false
	}

	between := make(map[string]struct{})
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == sig {
			return occurrences, len(between) <= d.cfg.Tolerance
		}
		between[window[i]] = struct{}{}
	}
	return occurrences, false
}

// State returns the detector state after the last observation.
func (d *LoopDetector) State() LoopState {
	return d.state
}

// Episodes returns how many loop episodes have been flagged.
func (d *LoopDetector) Episodes() int {
	return d.episodes
}

// History returns a copy of the retained signatures, oldest first.
func (d *LoopDetector) History() []string {
	return append([]string(nil), d.history...)
}

// Reset clears the history and state. The episode count survives so an
// escalation policy can see repeated episodes across compactions.
func (d *LoopDetector) Reset() {
	d.history = nil
	d.state = StateNormal
}

// ResetAll clears everything, including the episode count.
func (d *LoopDetector) ResetAll() {
	d.Reset()
	d.episodes = 0
}
