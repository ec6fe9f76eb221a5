package context

import (
	"context"

	ferrors "github.com/friday-ai/friday/internal/errors"
)

// DefaultSummaryTokenOverhead is the token cost charged per summary turn.
const DefaultSummaryTokenOverhead = 200

// Limits bounds one compaction. Target is the total compaction aims for;
// Hard is the total the result must not exceed.
type Limits struct {
	Target int
	Hard   int
}

func (l Limits) target() int {
	if l.Target <= 0 || l.Target > l.Hard {
		return l.Hard
	}
	return l.Target
}

// CompactorConfig controls which turns compaction may touch.
type CompactorConfig struct {
	SummaryTokenOverhead int
	// PinLatestUser keeps the most recent user turn out of every span.
	PinLatestUser bool
	// PreserveRecent keeps the last N turns out of every span.
	PreserveRecent int
}

// CompactResult describes a finished compaction.
type CompactResult struct {
	Turns               []Turn
	OriginalTokens      int
	CompactedTokens     int
	TokensFreed         int
	TurnsSummarized     int
	SummariesCreated    int
	ToolCallsSummarized int

	// TurnsEvicted counts turns dropped without a summary to meet the hard limit.
	TurnsEvicted     int
	ToolCallsEvicted int
}

// Changed reports whether compaction replaced or dropped any turns.
func (r *CompactResult) Changed() bool {
	return r != nil && (r.SummariesCreated > 0 || r.TurnsEvicted > 0)
}

// ToolCallsRemoved is the number of tool calls no longer verbatim in the result.
func (r *CompactResult) ToolCallsRemoved() int {
	if r == nil {
		return 0
	}
	return r.ToolCallsSummarized + r.ToolCallsEvicted
}

// ChatCompactor replaces spans of evictable turns with summary turns until
// a turn sequence fits its budget.
type ChatCompactor struct {
	cfg        CompactorConfig
	summarizer Summarizer
}

// NewChatCompactor creates a compactor. A nil summarizer uses DigestSummarizer.
func NewChatCompactor(cfg CompactorConfig, summarizer Summarizer) *ChatCompactor {
	if cfg.SummaryTokenOverhead <= 0 {
		cfg.SummaryTokenOverhead = DefaultSummaryTokenOverhead
	}
	if summarizer == nil {
		summarizer = DigestSummarizer{}
	}
	return &ChatCompactor{cfg: cfg, summarizer: summarizer}
}

// span is a half-open range of turn indices to replace with one summary,
// or to drop outright when evict is set.
type span struct {
	start, end int
	tokens     int
	evict      bool
}

// Compact returns a sequence whose total is at most limits.Hard, replacing
// spans oldest-first and widening each span until the total reaches
// limits.Target. Runs too small to pay for a summary, and if need be summary
// spans themselves, are evicted while the total is still above limits.Hard.
// turns is never modified. When the protected turns alone exceed the hard
// limit, Compact returns BudgetExceeded carrying their total and no result.
func (c *ChatCompactor) Compact(ctx context.Context, turns []Turn, limits Limits) (*CompactResult, error) {
	if limits.Hard <= 0 {
		return nil, ferrors.ConfigInvalid("hard token limit must be positive, got %d", limits.Hard)
	}
	if err := ValidateTurns(turns); err != nil {
		return nil, err
	}

	total := sumTokens(turns)
	target := limits.target()
	if total <= target {
		return &CompactResult{
			Turns:           cloneTurns(turns),
			OriginalTokens:  total,
			CompactedTokens: total,
		}, nil
	}

	protected := c.protect(turns)
	if floor := protectedTokens(turns, protected); floor > limits.Hard {
		return nil, ferrors.BudgetExceeded(floor, limits.Hard)
	}
	spans := c.plan(turns, protected, total, target, limits.Hard)

	result := &CompactResult{OriginalTokens: total}
	out := make([]Turn, 0, len(turns))
	next := 0
	for _, s := range spans {
		out = append(out, cloneTurns(turns[next:s.start])...)
		next = s.end

		segment := turns[s.start:s.end]
		calls := 0
		for _, t := range segment {
			calls += len(t.ToolCalls)
		}
		if s.evict {
			result.TurnsEvicted += len(segment)
			result.ToolCallsEvicted += calls
			continue
		}

		digest, err := c.summarizer.Summarize(ctx, cloneTurns(segment), c.cfg.SummaryTokenOverhead)
		if err != nil {
			return nil, ferrors.SummaryFailed(err)
		}
		out = append(out, Turn{
			Role:       RoleAssistant,
			Content:    digest,
			TokenCount: c.cfg.SummaryTokenOverhead,
			Pinned:     true,
			Summary:    true,
		})

		result.SummariesCreated++
		result.TurnsSummarized += len(segment)
		result.ToolCallsSummarized += calls
	}
	out = append(out, cloneTurns(turns[next:])...)

	if err := ValidateTurns(out); err != nil {
		return nil, err
	}

	result.Turns = out
	result.CompactedTokens = sumTokens(out)
	if result.CompactedTokens > limits.Hard {
		return nil, ferrors.InvariantViolation("compaction left %d tokens over a hard limit of %d", result.CompactedTokens, limits.Hard)
	}
	result.TokensFreed = total - result.CompactedTokens
	return result, nil
}

// plan chooses the spans to summarize or evict, ordered by start. It calls no
// collaborators, so the whole outcome is known before any summary is
// requested. The caller guarantees the protected turns fit under hard, which
// makes evicting every unprotected run always enough.
func (c *ChatCompactor) plan(turns []Turn, protected []bool, total, target, hard int) []span {
	safe := safeBoundaries(turns)
	overhead := c.cfg.SummaryTokenOverhead

	var spans []span
	projected := total
	for i := 0; i < len(turns) && projected > target; {
		if protected[i] {
			i++
			continue
		}
		runEnd := i
		for runEnd < len(turns) && !protected[runEnd] {
			runEnd++
		}

		tokens := 0
		end := i
		for j := i; j < runEnd; j++ {
			tokens += turns[j].TokenCount
			if !safe[j+1] {
				continue
			}
			end = j + 1
			if projected-tokens+overhead <= target {
				break
			}
		}

		if end > i {
			chosen := sumTokens(turns[i:end])
			if chosen > overhead {
				projected = projected - chosen + overhead
				spans = append(spans, span{start: i, end: end, tokens: chosen})
			} else {
				// Too cheap to summarize; kept unless the hard limit needs it gone.
				spans = append(spans, span{start: i, end: end, tokens: chosen, evict: true})
			}
		}
		i = runEnd
	}

	// Evict the cheap runs oldest-first, then give up summaries.
	keep := make([]bool, len(spans))
	for k, s := range spans {
		if !s.evict {
			keep[k] = true
			continue
		}
		if projected > hard {
			projected -= s.tokens
			keep[k] = true
		}
	}
	for k := range spans {
		if projected <= hard {
			break
		}
		if !spans[k].evict {
			spans[k].evict = true
			projected -= overhead
		}
	}

	chosen := spans[:0]
	for k, s := range spans {
		if keep[k] {
			chosen = append(chosen, s)
		}
	}
	return chosen
}

func protectedTokens(turns []Turn, protected []bool) int {
	n := 0
	for i, t := range turns {
		if protected[i] {
			n += t.TokenCount
		}
	}
	return n
}

// protect marks turns no span may include: pinned turns, summaries, the
// latest user turn, the preserved tail and unanswered call groups. A call
// group is protected as a whole whenever any member is.
func (c *ChatCompactor) protect(turns []Turn) []bool {
	n := len(turns)
	protected := make([]bool, n)

	lastUser := -1
	for i, t := range turns {
		if t.Pinned || t.Summary {
			protected[i] = true
		}
		if t.Role == RoleUser {
			lastUser = i
		}
	}
	if c.cfg.PinLatestUser && lastUser >= 0 {
		protected[lastUser] = true
	}
	for i := max(0, n-c.cfg.PreserveRecent); i < n; i++ {
		protected[i] = true
	}

	owner := make(map[string]int)
	group := make([]int, n)
	open := make(map[int]int)
	for i, t := range turns {
		group[i] = -1
		if t.HasToolCalls() {
			group[i] = i
			open[i] = len(t.ToolCalls)
			for _, call := range t.ToolCalls {
				owner[call.ID] = i
			}
		}
		if t.Role == RoleTool {
			if g, ok := owner[t.ToolCallID]; ok {
				group[i] = g
				open[g]--
			}
		}
	}

	guarded := make(map[int]bool)
	for g, remaining := range open {
		if remaining > 0 {
			guarded[g] = true
		}
	}
	for i, g := range group {
		if g >= 0 && protected[i] {
			guarded[g] = true
		}
	}
	for i, g := range group {
		if g >= 0 && guarded[g] {
			protected[i] = true
		}
	}
	return protected
}

// safeBoundaries reports for each boundary b (before turn b; b == len is the
// end) whether no tool call is open there.
func safeBoundaries(turns []Turn) []bool {
	safe := make([]bool, len(turns)+1)
	safe[0] = true
	open := 0
	for i, t := range turns {
		open += len(t.ToolCalls)
		if t.Role == RoleTool {
			open--
		}
		safe[i+1] = open == 0
	}
	return safe
}
