// Package merge combines record streams from several sources and drops
// sessions that more than one source reported.
package merge

import (
	"github.com/zhaobenny/tokdash/internal/model"
)

// Rank returns the precedence of a source; lower wins a collision.
// Direct parsers outrank the fallback backend.
func Rank(s model.SourceID) int {
	if s == model.SourceFallback {
		return 1
	}
	return 0
}

// Family returns the source family a record belongs to for deduplication.
// Fallback records belong to the direct source named by their application.
func Family(r model.RawUsageRecord) string {
	if r.Source != model.SourceFallback {
		return string(r.Source)
	}
	if id, err := model.ParseSourceID(r.Application); err == nil && id != model.SourceFallback {
		return string(id)
	}
	return "fallback:" + r.Application
}

type sessionKey struct {
	family string
	key    string
}

// Merge concatenates streams in order and removes duplicates. Two records with
// the same family and session key collide: the lower-ranked source wins, and
// on equal rank the first one seen is kept. Records without a session key are
// always kept. The relative order of survivors is preserved.
func Merge(streams ...[]model.RawUsageRecord) []model.RawUsageRecord {
	var all []model.RawUsageRecord
	for _, s := range streams {
		all = append(all, s...)
	}

	winner := make(map[sessionKey]int)
	for i, r := range all {
		if r.SessionKey == "" {
			continue
		}
		k := sessionKey{Family(r), r.SessionKey}
		j, seen := winner[k]
		if !seen || Rank(r.Source) < Rank(all[j].Source) {
			winner[k] = i
		}
	}

	out := make([]model.RawUsageRecord, 0, len(all))
	for i, r := range all {
		if r.SessionKey != "" && winner[sessionKey{Family(r), r.SessionKey}] != i {
			continue
		}
		out = append(out, r)
	}
	return out
}
