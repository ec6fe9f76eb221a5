package context

// Snapshot is a read-only copy of a session taken under the manager lock.
type Snapshot struct {
	turns        []Turn
	TotalTokens  int
	SoftLimit    int
	HardLimit    int
	PendingCalls []string
}

// Turns returns a fresh deep copy of the turns on every call.
func (s Snapshot) Turns() []Turn {
	return cloneTurns(s.turns)
}

// Len returns the number of turns.
func (s Snapshot) Len() int {
	return len(s.turns)
}

// Turn returns a copy of the i-th turn.
func (s Snapshot) Turn(i int) Turn {
	return s.turns[i].Clone()
}

// Awaiting reports whether the last assistant turn still waits for results.
func (s Snapshot) Awaiting() bool {
	return len(s.PendingCalls) > 0
}

// Masked returns the turns with all but the newest preserveRecent tool
// results shortened, for prompt assembly.
func (s Snapshot) Masked(preserveRecent int) []Turn {
	return MaskOldToolResults(s.turns, preserveRecent)
}
