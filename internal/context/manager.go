package context

import (
	"context"
	"fmt"
	"sync"

	ferrors "github.com/friday-ai/friday/internal/errors"
	"github.com/friday-ai/friday/internal/logging"
)

// ManagerConfig holds the budget and loop settings of a session.
type ManagerConfig struct {
	SoftTokenLimit       int
	HardTokenLimit       int
	SummaryTokenOverhead int
	// WarnThreshold is the fraction of the soft limit that sets NeedsWarning.
	WarnThreshold  float64
	PinLatestUser  bool
	PreserveRecent int
	// MaxRedirects turns the episode after this many redirects into an
	// abort. Zero keeps redirects advisory forever.
	MaxRedirects int
	Loop         LoopConfig
}

// DefaultManagerConfig returns the default budget: compaction above 150k
// tokens, never more than 190k afterwards.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SoftTokenLimit:       150000,
		HardTokenLimit:       190000,
		SummaryTokenOverhead: DefaultSummaryTokenOverhead,
		WarnThreshold:        0.80,
		PinLatestUser:        true,
		Loop:                 DefaultLoopConfig(),
	}
}

// Action tells the driving loop what to do with a proposed tool call.
type Action int

const (
	ActionProceed Action = iota
	ActionRedirect
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionProceed:
		return "proceed"
	case ActionRedirect:
		return "redirect"
	case ActionAbort:
		return "abort"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// GateResult is the outcome of BeforeToolCall.
type GateResult struct {
	Action   Action
	Decision Decision
}

// Err returns LoopAborted for an abort and nil otherwise.
func (g GateResult) Err() error {
	if g.Action != ActionAbort {
		return nil
	}
	return ferrors.LoopAborted(g.Decision.Episode, g.Decision.Signature)
}

// Stats contains statistics about context usage
type Stats struct {
	UsedTokens       int
	CalibratedTokens int
	SoftLimit        int
	HardLimit        int
	UsagePercent     float64 // of the hard limit
	TurnCount        int
	PinnedTokens     int
	SummaryTurns     int
	PendingCalls     int
	NeedsCompaction  bool
	NeedsWarning     bool
	LoopState        LoopState
	LoopEpisodes     int
	Compactions      int
}

// Option configures a ContextManager.
type Option func(*ContextManager)

// WithTokenCounter replaces the default CharCounter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(cm *ContextManager) {
		if counter != nil {
			cm.counter = counter
		}
	}
}

// WithSummarizer replaces the default DigestSummarizer.
func WithSummarizer(s Summarizer) Option {
	return func(cm *ContextManager) {
		cm.summarizer = s
	}
}

// WithSchemaSource supplies per-tool volatile argument fields.
func WithSchemaSource(src SchemaSource) Option {
	return func(cm *ContextManager) {
		cm.schema = src
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(cm *ContextManager) {
		cm.logger = l
	}
}

// ContextManager owns a conversation: its turns, token accounting and loop
// detector. All methods are safe for concurrent use; every operation runs
// under one exclusive lock so no partial update is ever observable.
type ContextManager struct {
	mu sync.Mutex

	cfg        ManagerConfig
	counter    TokenCounter
	summarizer Summarizer
	schema     SchemaSource
	logger     *logging.Logger

	compactor  *ChatCompactor
	detector   *LoopDetector
	calibrator *TokenCalibrator

	turns       []Turn
	total       int
	pairs       *pairing
	compactions int
	warned      bool
}

// NewContextManager creates a manager for one session.
func NewContextManager(cfg ManagerConfig, opts ...Option) (*ContextManager, error) {
	if cfg.SoftTokenLimit <= 0 || cfg.HardTokenLimit <= 0 {
		return nil, ferrors.ConfigInvalid("token limits must be positive (soft=%d hard=%d)", cfg.SoftTokenLimit, cfg.HardTokenLimit)
	}
	if cfg.SoftTokenLimit > cfg.HardTokenLimit {
		return nil, ferrors.ConfigInvalid("soft limit %d exceeds hard limit %d", cfg.SoftTokenLimit, cfg.HardTokenLimit)
	}
	if cfg.SummaryTokenOverhead <= 0 {
		cfg.SummaryTokenOverhead = DefaultSummaryTokenOverhead
	}
	if cfg.SummaryTokenOverhead >= cfg.HardTokenLimit {
		return nil, ferrors.ConfigInvalid("summary overhead %d leaves no room under hard limit %d", cfg.SummaryTokenOverhead, cfg.HardTokenLimit)
	}

	cm := &ContextManager{
		cfg:        cfg,
		counter:    CharCounter{},
		calibrator: NewTokenCalibrator(0),
		pairs:      newPairing(),
	}
	for _, opt := range opts {
		opt(cm)
	}
	cm.logger = cm.logger.WithPrefix("context")
	cm.compactor = NewChatCompactor(CompactorConfig{
		SummaryTokenOverhead: cfg.SummaryTokenOverhead,
		PinLatestUser:        cfg.PinLatestUser,
		PreserveRecent:       cfg.PreserveRecent,
	}, cm.summarizer)
	cm.detector = NewLoopDetector(cfg.Loop, cm.schema)
	return cm, nil
}

// AppendTurn adds a turn, computing its token count. A system turn appended
// first is pinned. Turns that would break tool-call pairing are rejected
// with InvariantViolation and leave the session unchanged.
func (cm *ContextManager) AppendTurn(turn Turn) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := cm.pairs.check(turn); err != nil {
		cm.logger.Warn("rejected turn", logging.Role(string(turn.Role)), logging.Error(err))
		return err
	}

	turn = turn.Clone()
	if len(cm.turns) == 0 && turn.Role == RoleSystem {
		turn.Pinned = true
	}
	turn.Summary = false
	turn.TokenCount = cm.counter.CountTokens(turn)

	cm.pairs.apply(turn)
	cm.turns = append(cm.turns, turn)
	cm.total += turn.TokenCount

	cm.logger.Event(logging.EventContextAppend,
		logging.Role(string(turn.Role)),
		logging.Tokens(turn.TokenCount),
		logging.TotalTokens(cm.total),
	)
	cm.checkWarning()
	return nil
}

// checkWarning records crossing the warning threshold once per climb.
// Must be called while holding cm.mu.
func (cm *ContextManager) checkWarning() {
	if cm.cfg.WarnThreshold <= 0 {
		return
	}
	over := float64(cm.total) >= cm.cfg.WarnThreshold*float64(cm.cfg.SoftTokenLimit)
	if over && !cm.warned {
		cm.logger.Warn("context nearing soft limit", logging.TotalTokens(cm.total), logging.Limit("soft", cm.cfg.SoftTokenLimit))
		cm.logger.Event(logging.EventContextWarning, logging.TotalTokens(cm.total))
		cm.logger.Metrics().RecordContextWarning()
	}
	cm.warned = over
}

// BeforeToolCall records call with the loop detector and says whether to
// dispatch it. Every call is recorded, including ones that proceed.
func (cm *ContextManager) BeforeToolCall(call ToolCall) GateResult {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	prev := cm.detector.State()
	dec := cm.detector.Observe(call)
	gate := GateResult{Action: ActionProceed, Decision: dec}

	if dec.Verdict == Redirect {
		gate.Action = ActionRedirect
		if cm.cfg.MaxRedirects > 0 && dec.Episode > cm.cfg.MaxRedirects {
			gate.Action = ActionAbort
		}
	}

	cm.logger.Metrics().RecordGate(call.Name, gate.Action != ActionProceed)
	cm.logger.Event(logging.EventToolGate, logging.ToolName(call.Name), logging.CallID(call.ID), logging.State(dec.State.String()))

	switch {
	case gate.Action == ActionAbort:
		cm.logger.Error("loop escalation limit reached", logging.Signature(dec.Signature), logging.Episode(dec.Episode))
		cm.logger.Event(logging.EventLoopAbort, logging.Signature(dec.Signature), logging.Episode(dec.Episode))
		cm.logger.Metrics().RecordAbort()
	case gate.Action == ActionRedirect:
		cm.logger.Warn("repeated tool call, redirecting", logging.ToolName(call.Name), logging.Signature(dec.Signature), logging.Count(dec.Repeats), logging.Episode(dec.Episode))
		cm.logger.Event(logging.EventLoopRedirect, logging.Signature(dec.Signature), logging.Count(dec.Repeats), logging.F("period", dec.Period), logging.Episode(dec.Episode))
	case dec.State == StateSuspect && prev != StateSuspect:
		cm.logger.Debug("tool calls look repetitive", logging.Signature(dec.Signature), logging.From(prev.String()), logging.To(dec.State.String()))
		cm.logger.Event(logging.EventLoopSuspect, logging.Signature(dec.Signature), logging.Count(dec.Repeats))
	}
	return gate
}

// GuidanceTurn builds the system turn the driving loop injects after a
// redirect, asking the model to change strategy.
func GuidanceTurn(dec Decision) Turn {
	var pattern string
	if dec.Period > 0 {
		pattern = fmt.Sprintf("cycled through the same %d tool calls %d times", dec.Period, dec.Repeats)
	} else {
		pattern = fmt.Sprintf("made the same tool call %d times in a row", dec.Repeats)
	}
	return SystemTurn(fmt.Sprintf(
		"You have %s without making progress (%s). Do not repeat it. "+
			"Use the results you already have, try a different approach, or explain what is blocking you.",
		pattern, dec.Signature))
}

// CompactIfNeeded compacts the session when its total exceeds the soft
// limit. It returns a nil result when nothing had to be done. On
// BudgetExceeded or any other failure the session is unchanged.
func (cm *ContextManager) CompactIfNeeded(ctx context.Context) (*CompactResult, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.total <= cm.cfg.SoftTokenLimit {
		return nil, nil
	}

	res, err := cm.compactor.Compact(ctx, cm.turns, Limits{
		Target: cm.cfg.SoftTokenLimit,
		Hard:   cm.cfg.HardTokenLimit,
	})
	if err != nil {
		if ferrors.IsBudgetExceeded(err) {
			cm.logger.Error("budget exceeded", logging.TotalTokens(cm.total), logging.Limit("hard", cm.cfg.HardTokenLimit))
			cm.logger.Event(logging.EventContextBudgetExceeded, logging.TotalTokens(cm.total), logging.Limit("hard", cm.cfg.HardTokenLimit))
			cm.logger.Metrics().RecordBudgetExceeded()
		} else {
			cm.logger.Error("compaction failed", logging.Error(err))
		}
		return nil, err
	}

	pairs, err := replay(res.Turns)
	if err != nil {
		return nil, err
	}

	cm.turns = res.Turns
	cm.total = res.CompactedTokens
	cm.pairs = pairs
	cm.warned = false
	if res.Changed() {
		cm.compactions++
	}
	if res.ToolCallsRemoved() > 0 {
		cm.detector.Reset()
		cm.logger.Event(logging.EventLoopReset, logging.Reason("compaction"))
	}

	cm.logger.Info("compacted history",
		logging.TurnCount(res.TurnsSummarized),
		logging.F("turns_evicted", res.TurnsEvicted),
		logging.TokensFreed(res.TokensFreed),
		logging.TotalTokens(cm.total),
	)
	cm.logger.Event(logging.EventContextCompact,
		logging.TurnCount(res.TurnsSummarized),
		logging.Count(res.SummariesCreated),
		logging.TokensFreed(res.TokensFreed),
		logging.TotalTokens(cm.total),
	)
	cm.logger.Metrics().RecordCompaction(res.TurnsSummarized, res.TokensFreed)
	cm.checkWarning()

	out := *res
	out.Turns = cloneTurns(res.Turns)
	return &out, nil
}

// Snapshot returns an immutable copy of the session.
func (cm *ContextManager) Snapshot() Snapshot {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	return Snapshot{
		turns:        cloneTurns(cm.turns),
		TotalTokens:  cm.total,
		SoftLimit:    cm.cfg.SoftTokenLimit,
		HardLimit:    cm.cfg.HardTokenLimit,
		PendingCalls: cm.pairs.pendingIDs(),
	}
}

// Stats returns current context statistics
func (cm *ContextManager) Stats() Stats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	s := Stats{
		UsedTokens:       cm.total,
		CalibratedTokens: cm.calibrator.Adjust(cm.total),
		SoftLimit:        cm.cfg.SoftTokenLimit,
		HardLimit:        cm.cfg.HardTokenLimit,
		UsagePercent:     float64(cm.total) / float64(cm.cfg.HardTokenLimit),
		TurnCount:        len(cm.turns),
		PendingCalls:     len(cm.pairs.pending),
		NeedsCompaction:  cm.total > cm.cfg.SoftTokenLimit,
		LoopState:        cm.detector.State(),
		LoopEpisodes:     cm.detector.Episodes(),
		Compactions:      cm.compactions,
	}
	if cm.cfg.WarnThreshold > 0 {
		s.NeedsWarning = !s.NeedsCompaction && float64(cm.total) >= cm.cfg.WarnThreshold*float64(cm.cfg.SoftTokenLimit)
	}
	for _, t := range cm.turns {
		if t.Pinned {
			s.PinnedTokens += t.TokenCount
		}
		if t.Summary {
			s.SummaryTurns++
		}
	}
	return s
}

// RecordUsage feeds the input token count the model reported for the last
// prompt into the calibrator. It affects CalibratedTokens only.
func (cm *ContextManager) RecordUsage(actualInputTokens int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.calibrator.Record(cm.total, actualInputTokens)
}

// Restore replaces the session with a persisted turn sequence. Stored token
// counts are kept. The loop detector starts fresh.
func (cm *ContextManager) Restore(turns []Turn) error {
	pairs, err := replay(turns)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.turns = cloneTurns(turns)
	cm.total = sumTokens(cm.turns)
	cm.pairs = pairs
	cm.warned = false
	cm.detector.ResetAll()

	cm.logger.Event(logging.EventSessionRestore, logging.TurnCount(len(cm.turns)), logging.TotalTokens(cm.total))
	return nil
}

// Reset ends the session, dropping all turns and loop history.
func (cm *ContextManager) Reset() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.turns = nil
	cm.total = 0
	cm.pairs = newPairing()
	cm.compactions = 0
	cm.warned = false
	cm.detector.ResetAll()
	cm.logger.Event(logging.EventContextReset)
}

// Config returns the manager configuration.
func (cm *ContextManager) Config() ManagerConfig {
	return cm.cfg
}
