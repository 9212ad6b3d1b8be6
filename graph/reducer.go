package graph

import "reflect"

// Reducer merges a new value into an existing one for a single channel
// key: `(existing Option<Value>, incoming Value) ->
// Value`. existing is nil (and ok=false) when the key has not been
// written yet this execution.
//
// Reducers used on channels written by more than one node in the same
// parallel level must be associative: reduce(reduce(a,b),c) ==
// reduce(a, reduce(b,c)).
// DefaultReducer is explicitly non-associative (last-writer-wins depends
// on arrival order) and must not be used on a channel with more than one
// writer in a level — the scheduler counts writers per channel and
// surfaces a state-conflict metric (not an error) when more than one node
// of a level writes an undeclared channel or one whose Reducer is nil; a
// channel declared with Reducer: DefaultReducer is not counted.
type Reducer func(existing any, existingOK bool, incoming any) any

// DefaultReducer always returns the incoming value: last-writer-wins.
func DefaultReducer(_ any, _ bool, incoming any) any {
	return incoming
}

// AppendReducer concatenates ordered sequences, promoting bare scalars to
// singleton arrays.
func AppendReducer(existing any, existingOK bool, incoming any) any {
	if !existingOK {
		if arr, ok := incoming.([]any); ok {
			return append([]any{}, arr...)
		}
		return []any{incoming}
	}

	existingArr, isArr := existing.([]any)
	if !isArr {
		existingArr = []any{existing}
	} else {
		existingArr = append([]any{}, existingArr...)
	}

	if incArr, ok := incoming.([]any); ok {
		return append(existingArr, incArr...)
	}
	return append(existingArr, incoming)
}

// MergeReducer shallow-merges mappings, with incoming keys winning on
// conflict. A non-mapping incoming value replaces existing entirely.
func MergeReducer(existing any, existingOK bool, incoming any) any {
	incMap, incIsMap := incoming.(map[string]any)
	if !incIsMap {
		return incoming
	}
	existingMap, existIsMap := existing.(map[string]any)
	if !existingOK || !existIsMap {
		out := make(map[string]any, len(incMap))
		for k, v := range incMap {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(existingMap)+len(incMap))
	for k, v := range existingMap {
		out[k] = v
	}
	for k, v := range incMap {
		out[k] = v
	}
	return out
}

// AddReducer sums numeric values, preferring integer arithmetic when both
// sides are integral. A type mismatch (either side non-numeric) replaces
// with incoming.
func AddReducer(existing any, existingOK bool, incoming any) any {
	if !existingOK {
		return incoming
	}
	ei, eIsInt := asExactInt(existing)
	ni, nIsInt := asExactInt(incoming)
	if eIsInt && nIsInt {
		return ei + ni
	}
	ef, eOK := toFloat64(existing)
	nf, nOK := toFloat64(incoming)
	if eOK && nOK {
		return ef + nf
	}
	return incoming
}

// MaxReducer keeps the larger of two numeric values, falling back to
// string comparison for non-numeric values.
func MaxReducer(existing any, existingOK bool, incoming any) any {
	return minMaxReducer(existing, existingOK, incoming, true)
}

// MinReducer keeps the smaller of two numeric values, falling back to
// string comparison for non-numeric values.
func MinReducer(existing any, existingOK bool, incoming any) any {
	return minMaxReducer(existing, existingOK, incoming, false)
}

func minMaxReducer(existing any, existingOK bool, incoming any, max bool) any {
	if !existingOK {
		return incoming
	}
	ef, eOK := toFloat64(existing)
	nf, nOK := toFloat64(incoming)
	if eOK && nOK {
		if max {
			if ef >= nf {
				return existing
			}
			return incoming
		}
		if ef <= nf {
			return existing
		}
		return incoming
	}

	es, eIsStr := existing.(string)
	ns, nIsStr := incoming.(string)
	if eIsStr && nIsStr {
		if max {
			if es >= ns {
				return existing
			}
			return incoming
		}
		if es <= ns {
			return existing
		}
		return incoming
	}
	return incoming
}

func asExactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// CustomReducer wraps a user-supplied merge function. It exists as a named
// constructor for symmetry with the other built-ins even though a plain
// Reducer value already satisfies the type.
func CustomReducer(fn func(existing any, existingOK bool, incoming any) any) Reducer {
	return Reducer(fn)
}

// isZeroValue reports, via reflection, whether v is nil or the Go zero
// value for its dynamic type. No reducer in this file calls it.
func isZeroValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return !rv.IsValid() || rv.IsZero()
}
