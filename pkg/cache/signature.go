// Package cache implements the learned mapping cache: resolutions recorded
// from human answers, keyed by a normalized signature of the payload they
// resolved, so identical inputs submitted later auto-resolve without another
// round of clarification.
package cache

import (
	"sort"

	"curator/pkg/codec"
)

// Volatile payload fields carry per-submission identity, not content. They
// are stripped before signing so two structurally-equivalent payloads from
// different submissions collide on the same signature.
var volatileKeys = map[string]struct{}{
	"item_id":     {},
	"job_id":      {},
	"created_at":  {},
	"resolved_at": {},
	"updated_at":  {},
	"timestamp":   {},
}

// Signature computes the cache key for a payload. It is a pure function of
// the payload's content-relevant fields: volatile keys are dropped at every
// depth, map keys are sorted, and the result is the codec encoding of that
// normalized value.
func Signature(payload codec.Value) string {
	return codec.Encode(normalize(payload))
}

func normalize(v codec.Value) codec.Value {
	switch t := v.(type) {
	case *codec.Map:
		keys := t.Keys()
		sort.Strings(keys)
		out := codec.NewMap()
		for _, k := range keys {
			if _, volatile := volatileKeys[k]; volatile {
				continue
			}
			value, _ := t.Get(k)
			out.Set(k, normalize(value))
		}
		return out
	case codec.List:
		out := make(codec.List, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	default:
		return v
	}
}
