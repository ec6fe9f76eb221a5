package logging

import (
	"time"
)

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Common field constructors.

// ToolName creates a tool name field.
func ToolName(name string) Field {
	return F("tool", name)
}

// CallID creates a tool call id field.
func CallID(id string) Field {
	return F("call_id", id)
}

// Role creates a turn role field.
func Role(role string) Field {
	return F("role", role)
}

// Tokens creates a token count field.
func Tokens(count int) Field {
	return F("tokens", count)
}

// TotalTokens creates a running-total field.
func TotalTokens(count int) Field {
	return F("total_tokens", count)
}

// TokensFreed creates a field for tokens released by compaction.
func TokensFreed(count int) Field {
	return F("tokens_freed", count)
}

// Limit creates a token limit field.
func Limit(name string, value int) Field {
	return F(name+"_limit", value)
}

// Signature creates a loop signature field.
func Signature(sig string) Field {
	return F("signature", sig)
}

// State creates a loop state field.
func State(s string) Field {
	return F("state", s)
}

// Episode creates a loop episode number field.
func Episode(n int) Field {
	return F("episode", n)
}

// From creates a "from" field for state transitions.
func From(value string) Field {
	return F("from", value)
}

// To creates a "to" field for state transitions.
func To(value string) Field {
	return F("to", value)
}

// Duration creates a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return F("duration_ms", d.Milliseconds())
}

// DurationSince creates a duration field from a start time.
func DurationSince(start time.Time) Field {
	return Duration(time.Since(start))
}

// Model creates a model name field.
func Model(name string) Field {
	return F("model", name)
}

// Path creates a file path field.
func Path(p string) Field {
	return F("path", p)
}

// Error creates an error field.
func Error(err error) Field {
	if err == nil {
		return F("error", nil)
	}
	return F("error", err.Error())
}

// Success creates a success boolean field.
func Success(ok bool) Field {
	return F("success", ok)
}

// Count creates a count field.
func Count(n int) Field {
	return F("count", n)
}

// Reason creates a reason field.
func Reason(r string) Field {
	return F("reason", r)
}

// TurnCount creates a turn count field.
func TurnCount(n int) Field {
	return F("turns", n)
}

func fieldsToMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}
