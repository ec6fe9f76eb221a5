package context

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// NormalizeArguments returns a deep copy of args without the volatile
// fields. A dotted path such as "env.NONCE" removes a nested key.
func NormalizeArguments(args map[string]any, volatile []string) map[string]any {
	out := copyMap(args)
	if out == nil {
		out = map[string]any{}
	}
	for _, path := range volatile {
		deletePath(out, strings.Split(path, "."))
	}
	return out
}

func deletePath(m map[string]any, path []string) {
	if len(path) == 0 || path[0] == "" {
		return
	}
	if len(path) == 1 {
		delete(m, path[0])
		return
	}
	if child, ok := m[path[0]].(map[string]any); ok {
		deletePath(child, path[1:])
	}
}

// Signature identifies a call for loop detection: the tool name plus a
// blake3 digest of the canonical JSON of its normalized arguments.
func Signature(toolName string, args map[string]any, volatile []string) string {
	sum := blake3.Sum256(canonicalJSON(NormalizeArguments(args, volatile)))
	return toolName + "#" + hex.EncodeToString(sum[:8])
}

// canonicalJSON encodes with sorted map keys. Values that cannot be encoded
// fall back to their %v rendering so a signature is always produced.
func canonicalJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return data
}
