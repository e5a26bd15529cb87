package syncx

import (
	"reflect"
	"sort"
	"time"
)

// FieldConflict records one field where client and server disagree.
type FieldConflict struct {
	Field       string `json:"field"`
	ServerValue any    `json:"server_value"`
	ClientValue any    `json:"client_value"`
}

// DiffFields compares the client's submitted field map against the server's
// current field map and returns a tuple for every field whose values differ.
// Only fields present in the client map are compared; fields the client never
// sent are not conflicts. Output is sorted by field name for determinism.
func DiffFields(server, client map[string]any) []FieldConflict {
	var conflicts []FieldConflict
	for field, clientValue := range client {
		serverValue := server[field]
		if !valueEqual(serverValue, clientValue) {
			conflicts = append(conflicts, FieldConflict{
				Field:       field,
				ServerValue: serverValue,
				ClientValue: clientValue,
			})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Field < conflicts[j].Field
	})
	return conflicts
}

// ApplyFields writes every field present in src into dst, returning a new map.
// dst is not mutated.
func ApplyFields(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue converts values into their wire representation: times become
// RFC3339 strings, everything else passes through as-is.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return RFC3339(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return RFC3339(*t)
	default:
		return v
	}
}

// valueEqual compares two field values after normalization. JSON decoding
// produces float64 for all numbers, so numeric values are compared as floats.
func valueEqual(a, b any) bool {
	a, b = NormalizeValue(a), NormalizeValue(b)

	if af, ok := asFloat(a); ok {
		if bf, ok2 := asFloat(b); ok2 {
			return af == bf
		}
		return false
	}

	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
